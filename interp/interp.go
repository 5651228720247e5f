// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package interp is the reference execution backend: a deterministic stack
// machine over a small bytecode. It exists so the engine can run end to end
// without an external compiler; heavier backends plug in behind the same
// backend.Backend contract.
package interp

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/ava-labs/contractvm/backend"
	"github.com/ava-labs/contractvm/gas"
)

const (
	// StackDepth caps the operand stack.
	StackDepth = 1024
	// MemorySize is the guest's scratch memory, one storage page's worth.
	MemorySize = 4096
)

var errNilHost = errors.New("nil host context")

var _ backend.Backend = (*Interpreter)(nil)

// Interpreter is stateless; one instance serves any number of sequential
// calls. Per-call state lives in the machine built by Run.
type Interpreter struct{}

func New() *Interpreter { return &Interpreter{} }

func (*Interpreter) Validate(code []byte) error { return validate(code) }

func (*Interpreter) Run(params backend.Params) (backend.Result, error) {
	if params.Host == nil {
		return backend.Result{}, errNilHost
	}
	// The starts bitset guards the entry point and every jump at runtime,
	// so code that skipped Validate traps instead of faulting the host.
	starts, err := boundaries(params.Code)
	if err != nil {
		return backend.Result{Trap: backend.TrapInvalidInstruction}, nil
	}

	m := &machine{
		code:   params.Code,
		starts: starts,
		host:   params.Host,
		mem:    make([]byte, MemorySize),
		stack:  make([]uint64, 0, 64),
	}
	trap := m.run(params.Entry)
	return backend.Result{Trap: trap, Steps: m.steps}, nil
}

type machine struct {
	code   []byte
	starts []bool
	host   backend.HostContext

	pc    uint64
	stack []uint64
	mem   []byte
	steps uint64
}

func (m *machine) run(entry uint32) backend.Trap {
	if uint64(entry) >= uint64(len(m.code)) || !m.starts[entry] {
		return backend.TrapInvalidInstruction
	}
	m.pc = uint64(entry)

	for {
		if err := m.host.Step(1); err != nil {
			return hostTrap(err)
		}
		m.steps++

		if m.pc >= uint64(len(m.code)) {
			return backend.TrapInvalidInstruction
		}
		op := m.code[m.pc]
		switch op {
		case opHalt:
			return backend.TrapNone

		case opPush8:
			if !m.push(binary.BigEndian.Uint64(m.code[m.pc+1 : m.pc+9])) {
				return backend.TrapStackOverflow
			}
			m.pc += 9

		case opPop:
			if _, ok := m.pop(); !ok {
				return backend.TrapStackUnderflow
			}
			m.pc++

		case opDup:
			if len(m.stack) == 0 {
				return backend.TrapStackUnderflow
			}
			if !m.push(m.stack[len(m.stack)-1]) {
				return backend.TrapStackOverflow
			}
			m.pc++

		case opSwap:
			if len(m.stack) < 2 {
				return backend.TrapStackUnderflow
			}
			last := len(m.stack) - 1
			m.stack[last], m.stack[last-1] = m.stack[last-1], m.stack[last]
			m.pc++

		case opAdd, opSub, opMul, opAnd, opOr, opXor, opEq, opLt:
			a, ok := m.pop()
			if !ok {
				return backend.TrapStackUnderflow
			}
			b, ok := m.pop()
			if !ok {
				return backend.TrapStackUnderflow
			}
			var out uint64
			switch op {
			case opAdd:
				out = b + a
			case opSub:
				out = b - a
			case opMul:
				out = b * a
			case opAnd:
				out = b & a
			case opOr:
				out = b | a
			case opXor:
				out = b ^ a
			case opEq:
				if b == a {
					out = 1
				}
			case opLt:
				if b < a {
					out = 1
				}
			}
			m.push(out) // two pops preceded this push, it cannot overflow
			m.pc++

		case opJump:
			target := uint64(binary.BigEndian.Uint32(m.code[m.pc+1 : m.pc+5]))
			if target >= uint64(len(m.code)) || !m.starts[target] {
				return backend.TrapInvalidInstruction
			}
			m.pc = target

		case opJumpi:
			cond, ok := m.pop()
			if !ok {
				return backend.TrapStackUnderflow
			}
			if cond != 0 {
				target := uint64(binary.BigEndian.Uint32(m.code[m.pc+1 : m.pc+5]))
				if target >= uint64(len(m.code)) || !m.starts[target] {
					return backend.TrapInvalidInstruction
				}
				m.pc = target
			} else {
				m.pc += 5
			}

		case opMload8:
			addr, ok := m.pop()
			if !ok {
				return backend.TrapStackUnderflow
			}
			if addr >= MemorySize {
				return backend.TrapMemoryFault
			}
			m.push(uint64(m.mem[addr]))
			m.pc++

		case opMstore8:
			addr, ok := m.pop()
			if !ok {
				return backend.TrapStackUnderflow
			}
			val, ok := m.pop()
			if !ok {
				return backend.TrapStackUnderflow
			}
			if addr >= MemorySize {
				return backend.TrapMemoryFault
			}
			m.mem[addr] = byte(val)
			m.pc++

		case opHostcall:
			if trap := m.hostcall(m.code[m.pc+1]); trap != backend.TrapNone {
				return trap
			}
			m.pc += 2

		default:
			return backend.TrapInvalidInstruction
		}
	}
}

func (m *machine) hostcall(index byte) backend.Trap {
	switch index {
	case hostReg64Get:
		reg, trap := m.popIndex()
		if trap != backend.TrapNone {
			return trap
		}
		val, err := m.host.Reg64Get(reg)
		if err != nil {
			return hostTrap(err)
		}
		if !m.push(val) {
			return backend.TrapStackOverflow
		}

	case hostReg64Set:
		reg, trap := m.popIndex()
		if trap != backend.TrapNone {
			return trap
		}
		val, ok := m.pop()
		if !ok {
			return backend.TrapStackUnderflow
		}
		if err := m.host.Reg64Set(reg, val); err != nil {
			return hostTrap(err)
		}

	case hostStorageLoad:
		reg, trap := m.popIndex()
		if trap != backend.TrapNone {
			return trap
		}
		page, trap := m.popIndex()
		if trap != backend.TrapNone {
			return trap
		}
		if err := m.host.StorageLoad(page, reg); err != nil {
			return hostTrap(err)
		}

	case hostStorageStore:
		reg, trap := m.popIndex()
		if trap != backend.TrapNone {
			return trap
		}
		page, trap := m.popIndex()
		if trap != backend.TrapNone {
			return trap
		}
		if err := m.host.StorageStore(page, reg); err != nil {
			return hostTrap(err)
		}

	case hostGet64:
		varID, trap := m.popIndex()
		if trap != backend.TrapNone {
			return trap
		}
		val, err := m.host.Get64(varID)
		if err != nil {
			return hostTrap(err)
		}
		if !m.push(val) {
			return backend.TrapStackOverflow
		}

	case hostSet64:
		varID, trap := m.popIndex()
		if trap != backend.TrapNone {
			return trap
		}
		val, ok := m.pop()
		if !ok {
			return backend.TrapStackUnderflow
		}
		if err := m.host.Set64(varID, val); err != nil {
			return hostTrap(err)
		}

	case hostLog:
		reg, trap := m.popIndex()
		if trap != backend.TrapNone {
			return trap
		}
		if err := m.host.Log(reg); err != nil {
			return hostTrap(err)
		}

	case hostGasLeft:
		left, err := m.host.GasLeft()
		if err != nil {
			return hostTrap(err)
		}
		if !m.push(left) {
			return backend.TrapStackOverflow
		}

	case hostRegToMem:
		reg, trap := m.popIndex()
		if trap != backend.TrapNone {
			return trap
		}
		off, ok := m.pop()
		if !ok {
			return backend.TrapStackUnderflow
		}
		if off >= MemorySize {
			return backend.TrapMemoryFault
		}
		n, err := m.host.RegisterRead(reg, m.mem[off:])
		if err != nil {
			return hostTrap(err)
		}
		if !m.push(uint64(n)) {
			return backend.TrapStackOverflow
		}

	case hostMemToReg:
		reg, trap := m.popIndex()
		if trap != backend.TrapNone {
			return trap
		}
		off, ok := m.pop()
		if !ok {
			return backend.TrapStackUnderflow
		}
		length, ok := m.pop()
		if !ok {
			return backend.TrapStackUnderflow
		}
		if off+length > MemorySize || off+length < off {
			return backend.TrapMemoryFault
		}
		if err := m.host.RegisterWrite(reg, m.mem[off:off+length]); err != nil {
			return hostTrap(err)
		}

	default:
		return backend.TrapInvalidInstruction
	}
	return backend.TrapNone
}

func (m *machine) push(v uint64) bool {
	if len(m.stack) >= StackDepth {
		return false
	}
	m.stack = append(m.stack, v)
	return true
}

func (m *machine) pop() (uint64, bool) {
	if len(m.stack) == 0 {
		return 0, false
	}
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v, true
}

// popIndex pops a value intended as a register, page or variable index.
// Values that do not fit in 32 bits trap as host errors rather than
// silently aliasing a small index.
func (m *machine) popIndex() (uint32, backend.Trap) {
	v, ok := m.pop()
	if !ok {
		return 0, backend.TrapStackUnderflow
	}
	if v > math.MaxUint32 {
		return 0, backend.TrapHostError
	}
	return uint32(v), backend.TrapNone
}

func hostTrap(err error) backend.Trap {
	if errors.Is(err, gas.ErrExhausted) {
		return backend.TrapOutOfGas
	}
	return backend.TrapHostError
}
