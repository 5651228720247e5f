// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package interp

import "encoding/binary"

// Assembler builds bytecode for the reference machine. It is development
// tooling: tests and example contracts are written with it, production
// artifacts arrive as deployed template bytes.
type Assembler struct {
	code []byte
}

func NewAssembler() *Assembler { return &Assembler{} }

// Pos returns the offset the next instruction will be emitted at, usable as
// a jump target or an export entry point.
func (a *Assembler) Pos() uint32 { return uint32(len(a.code)) }

// Bytes returns the assembled code.
func (a *Assembler) Bytes() []byte { return a.code }

func (a *Assembler) op(b ...byte) *Assembler {
	a.code = append(a.code, b...)
	return a
}

func (a *Assembler) Halt() *Assembler { return a.op(opHalt) }

func (a *Assembler) Push(v uint64) *Assembler {
	var imm [8]byte
	binary.BigEndian.PutUint64(imm[:], v)
	return a.op(append([]byte{opPush8}, imm[:]...)...)
}

func (a *Assembler) Pop() *Assembler  { return a.op(opPop) }
func (a *Assembler) Dup() *Assembler  { return a.op(opDup) }
func (a *Assembler) Swap() *Assembler { return a.op(opSwap) }
func (a *Assembler) Add() *Assembler  { return a.op(opAdd) }
func (a *Assembler) Sub() *Assembler  { return a.op(opSub) }
func (a *Assembler) Mul() *Assembler  { return a.op(opMul) }
func (a *Assembler) And() *Assembler  { return a.op(opAnd) }
func (a *Assembler) Or() *Assembler   { return a.op(opOr) }
func (a *Assembler) Xor() *Assembler  { return a.op(opXor) }
func (a *Assembler) Eq() *Assembler   { return a.op(opEq) }
func (a *Assembler) Lt() *Assembler   { return a.op(opLt) }

func (a *Assembler) Jump(target uint32) *Assembler {
	var imm [4]byte
	binary.BigEndian.PutUint32(imm[:], target)
	return a.op(append([]byte{opJump}, imm[:]...)...)
}

func (a *Assembler) Jumpi(target uint32) *Assembler {
	var imm [4]byte
	binary.BigEndian.PutUint32(imm[:], target)
	return a.op(append([]byte{opJumpi}, imm[:]...)...)
}

// Patch rewrites the 4-byte target of the jump emitted at [at].
func (a *Assembler) Patch(at int, target uint32) {
	binary.BigEndian.PutUint32(a.code[at+1:at+5], target)
}

func (a *Assembler) Mload8() *Assembler  { return a.op(opMload8) }
func (a *Assembler) Mstore8() *Assembler { return a.op(opMstore8) }

// Host call emitters, one per table entry.

func (a *Assembler) HostReg64Get() *Assembler     { return a.op(opHostcall, hostReg64Get) }
func (a *Assembler) HostReg64Set() *Assembler     { return a.op(opHostcall, hostReg64Set) }
func (a *Assembler) HostStorageLoad() *Assembler  { return a.op(opHostcall, hostStorageLoad) }
func (a *Assembler) HostStorageStore() *Assembler { return a.op(opHostcall, hostStorageStore) }
func (a *Assembler) HostGet64() *Assembler        { return a.op(opHostcall, hostGet64) }
func (a *Assembler) HostSet64() *Assembler        { return a.op(opHostcall, hostSet64) }
func (a *Assembler) HostLog() *Assembler          { return a.op(opHostcall, hostLog) }
func (a *Assembler) HostGasLeft() *Assembler      { return a.op(opHostcall, hostGasLeft) }
func (a *Assembler) HostRegToMem() *Assembler     { return a.op(opHostcall, hostRegToMem) }
func (a *Assembler) HostMemToReg() *Assembler     { return a.op(opHostcall, hostMemToReg) }
