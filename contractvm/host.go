// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package contractvm

import (
	"encoding/binary"
	"fmt"

	"github.com/ava-labs/contractvm/backend"
	"github.com/ava-labs/contractvm/gas"
	"github.com/ava-labs/contractvm/layout"
	"github.com/ava-labs/contractvm/registers"
	"github.com/ava-labs/contractvm/storage"
)

var _ backend.HostContext = (*hostContext)(nil)

// hostContext is the host-function table for one call. It closes over the
// call's register bank, gas meter and storage view; all three die with the
// call. Every entry charges gas before it acts, so an exhausted budget can
// never leave a half-applied effect behind.
type hostContext struct {
	meter *gas.Meter
	regs  *registers.File
	view  *storage.View
	lay   *layout.Layout
	logs  []string
}

func newHostContext(meter *gas.Meter, regs *registers.File, view *storage.View, lay *layout.Layout) *hostContext {
	return &hostContext{
		meter: meter,
		regs:  regs,
		view:  view,
		lay:   lay,
	}
}

func (h *hostContext) Step(n uint64) error {
	return h.meter.Charge(gas.Step, n)
}

func (h *hostContext) RegisterRead(reg uint32, buf []byte) (uint32, error) {
	if err := h.meter.Charge(gas.HostCall, 1); err != nil {
		return 0, err
	}
	data, err := h.regs.Get(reg)
	if err != nil {
		return 0, err
	}
	n := len(data)
	if n > len(buf) {
		n = len(buf)
	}
	if err := h.meter.Charge(gas.ByteCopy, uint64(n)); err != nil {
		return 0, err
	}
	copy(buf, data[:n])
	return uint32(n), nil
}

func (h *hostContext) RegisterWrite(reg uint32, data []byte) error {
	if err := h.meter.Charge(gas.HostCall, 1); err != nil {
		return err
	}
	if err := h.meter.Charge(gas.ByteCopy, uint64(len(data))); err != nil {
		return err
	}
	return h.regs.Set(reg, data)
}

func (h *hostContext) Reg64Get(reg uint32) (uint64, error) {
	if err := h.meter.Charge(gas.HostCall, 1); err != nil {
		return 0, err
	}
	data, err := h.regs.Get(reg)
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("register %d holds %d bytes, want 8", reg, len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

func (h *hostContext) Reg64Set(reg uint32, val uint64) error {
	if err := h.meter.Charge(gas.HostCall, 1); err != nil {
		return err
	}
	if err := h.meter.Charge(gas.ByteCopy, 8); err != nil {
		return err
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], val)
	return h.regs.Set(reg, buf[:])
}

func (h *hostContext) StorageLoad(page uint32, reg uint32) error {
	if err := h.meter.Charge(gas.HostCall, 1); err != nil {
		return err
	}
	if err := h.meter.Charge(gas.PageRead, 1); err != nil {
		return err
	}
	if err := h.meter.Charge(gas.ByteCopy, layout.PageSize); err != nil {
		return err
	}
	data, err := h.view.Read(page)
	if err != nil {
		return err
	}
	return h.regs.Set(reg, data)
}

func (h *hostContext) StorageStore(page uint32, reg uint32) error {
	if err := h.meter.Charge(gas.HostCall, 1); err != nil {
		return err
	}
	if err := h.meter.Charge(gas.PageWrite, 1); err != nil {
		return err
	}
	data, err := h.regs.Get(reg)
	if err != nil {
		return err
	}
	if err := h.meter.Charge(gas.ByteCopy, uint64(len(data))); err != nil {
		return err
	}
	return h.view.Write(page, data)
}

func (h *hostContext) Get64(varID uint32) (uint64, error) {
	if err := h.meter.Charge(gas.HostCall, 1); err != nil {
		return 0, err
	}
	slot, err := h.lay.Slot(varID)
	if err != nil {
		return 0, err
	}
	if slot.Size > 8 {
		return 0, fmt.Errorf("variable %d is %d bytes, too wide for a 64-bit read", varID, slot.Size)
	}
	if err := h.meter.Charge(gas.PageRead, 1); err != nil {
		return 0, err
	}
	if err := h.meter.Charge(gas.ByteCopy, uint64(slot.Size)); err != nil {
		return 0, err
	}
	page, err := h.view.Read(slot.Page)
	if err != nil {
		return 0, err
	}
	var buf [8]byte
	copy(buf[8-slot.Size:], page[slot.Offset:slot.Offset+slot.Size])
	return binary.BigEndian.Uint64(buf[:]), nil
}

func (h *hostContext) Set64(varID uint32, val uint64) error {
	if err := h.meter.Charge(gas.HostCall, 1); err != nil {
		return err
	}
	slot, err := h.lay.Slot(varID)
	if err != nil {
		return err
	}
	if slot.Size > 8 {
		return fmt.Errorf("variable %d is %d bytes, too wide for a 64-bit write", varID, slot.Size)
	}
	if slot.Size < 8 && val>>(8*slot.Size) != 0 {
		return fmt.Errorf("value %d overflows %d-byte variable %d", val, slot.Size, varID)
	}
	if err := h.meter.Charge(gas.PageRead, 1); err != nil {
		return err
	}
	if err := h.meter.Charge(gas.PageWrite, 1); err != nil {
		return err
	}
	if err := h.meter.Charge(gas.ByteCopy, uint64(slot.Size)); err != nil {
		return err
	}
	page, err := h.view.Read(slot.Page)
	if err != nil {
		return err
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], val)
	copy(page[slot.Offset:slot.Offset+slot.Size], buf[8-slot.Size:])
	return h.view.Write(slot.Page, page)
}

func (h *hostContext) Log(reg uint32) error {
	if err := h.meter.Charge(gas.HostCall, 1); err != nil {
		return err
	}
	data, err := h.regs.Get(reg)
	if err != nil {
		return err
	}
	if err := h.meter.Charge(gas.ByteCopy, uint64(len(data))); err != nil {
		return err
	}
	h.logs = append(h.logs, string(data))
	return nil
}

func (h *hostContext) GasLeft() (uint64, error) {
	if err := h.meter.Charge(gas.HostCall, 1); err != nil {
		return 0, err
	}
	return h.meter.Remaining(), nil
}
