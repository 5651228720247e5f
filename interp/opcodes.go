// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package interp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Opcodes of the reference stack machine. Multi-byte immediates are
// big-endian.
const (
	opHalt     = 0x00
	opPush8    = 0x01 // 8-byte immediate
	opPop      = 0x02
	opDup      = 0x03
	opSwap     = 0x04
	opAdd      = 0x10
	opSub      = 0x11
	opMul      = 0x12
	opAnd      = 0x13
	opOr       = 0x14
	opXor      = 0x15
	opEq       = 0x16
	opLt       = 0x17
	opJump     = 0x20 // 4-byte target
	opJumpi    = 0x21 // 4-byte target, pops condition
	opMload8   = 0x30
	opMstore8  = 0x31
	opHostcall = 0x40 // 1-byte host function index
)

// Host function indices reachable through opHostcall. Arguments are popped
// with the first-listed argument on top of the stack.
const (
	hostReg64Get     = 0x01 // (reg) -> value
	hostReg64Set     = 0x02 // (reg, value)
	hostStorageLoad  = 0x03 // (reg, page)
	hostStorageStore = 0x04 // (reg, page)
	hostGet64        = 0x05 // (varID) -> value
	hostSet64        = 0x06 // (varID, value)
	hostLog          = 0x07 // (reg)
	hostGasLeft      = 0x08 // () -> remaining
	hostRegToMem     = 0x09 // (reg, memOff) -> bytes copied
	hostMemToReg     = 0x0a // (reg, memOff, length)
)

var (
	ErrTruncatedImmediate = errors.New("immediate runs past end of code")
	ErrUnknownOpcode      = errors.New("unknown opcode")
	ErrBadJumpTarget      = errors.New("jump target is not an instruction boundary")
	ErrEmptyCode          = errors.New("empty code")
)

// immWidth returns the immediate byte count following [op], or -1 if the
// opcode is unknown.
func immWidth(op byte) int {
	switch op {
	case opPush8:
		return 8
	case opJump, opJumpi:
		return 4
	case opHostcall:
		return 1
	case opHalt, opPop, opDup, opSwap,
		opAdd, opSub, opMul, opAnd, opOr, opXor, opEq, opLt,
		opMload8, opMstore8:
		return 0
	default:
		return -1
	}
}

// boundaries returns a bitset marking every valid instruction start in
// [code].
func boundaries(code []byte) ([]bool, error) {
	starts := make([]bool, len(code))
	pc := 0
	for pc < len(code) {
		op := code[pc]
		width := immWidth(op)
		if width < 0 {
			return nil, fmt.Errorf("%w: 0x%02x at %d", ErrUnknownOpcode, op, pc)
		}
		if pc+1+width > len(code) {
			return nil, fmt.Errorf("%w: opcode 0x%02x at %d", ErrTruncatedImmediate, op, pc)
		}
		starts[pc] = true
		pc += 1 + width
	}
	return starts, nil
}

// validate performs the full static well-formedness check: decodable
// instruction stream and jump targets landing on instruction boundaries.
func validate(code []byte) error {
	if len(code) == 0 {
		return ErrEmptyCode
	}
	starts, err := boundaries(code)
	if err != nil {
		return err
	}
	pc := 0
	for pc < len(code) {
		op := code[pc]
		width := immWidth(op)
		if op == opJump || op == opJumpi {
			target := binary.BigEndian.Uint32(code[pc+1 : pc+5])
			if target >= uint32(len(code)) || !starts[target] {
				return fmt.Errorf("%w: %d from pc %d", ErrBadJumpTarget, target, pc)
			}
		}
		pc += 1 + width
	}
	return nil
}
