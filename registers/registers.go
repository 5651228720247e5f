// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package registers implements the host-owned buffer bank used to marshal
// structured data across the host/guest boundary. Guest code never sees a
// register's address; it only moves copies of register contents through
// explicit host calls.
package registers

import (
	"errors"
	"fmt"
)

const (
	// Count is the number of registers in a bank.
	Count = 16
	// MaxSize is the largest payload a single register can hold.
	MaxSize = 4096

	// ReturnRegister is the register a guest writes its return payload to
	// before halting.
	ReturnRegister = 0
	// ArgsRegister is the register the host stages encoded call arguments
	// into before execution starts.
	ArgsRegister = 1
)

var (
	ErrInvalidRegister  = errors.New("register index out of range")
	ErrRegisterOverflow = errors.New("register payload exceeds maximum size")
)

// File is a bank of registers scoped to a single call. A fresh bank starts
// with every register empty. Not safe for concurrent use; the owning call is
// the only accessor.
type File struct {
	regs [Count][]byte
}

// NewFile returns an empty register bank.
func NewFile() *File {
	return &File{}
}

// Get returns a copy of register [index]'s contents. An unset register reads
// as an empty payload.
func (f *File) Get(index uint32) ([]byte, error) {
	if index >= Count {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRegister, index)
	}
	out := make([]byte, len(f.regs[index]))
	copy(out, f.regs[index])
	return out, nil
}

// Set overwrites register [index] with a copy of [data].
func (f *File) Set(index uint32, data []byte) error {
	if index >= Count {
		return fmt.Errorf("%w: %d", ErrInvalidRegister, index)
	}
	if len(data) > MaxSize {
		return fmt.Errorf("%w: %d > %d", ErrRegisterOverflow, len(data), MaxSize)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	f.regs[index] = buf
	return nil
}

// Size returns the byte length currently held by register [index].
func (f *File) Size(index uint32) (int, error) {
	if index >= Count {
		return 0, fmt.Errorf("%w: %d", ErrInvalidRegister, index)
	}
	return len(f.regs[index]), nil
}
