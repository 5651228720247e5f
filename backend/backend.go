// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package backend defines the narrow contract between the engine and a
// pluggable bytecode execution backend. The engine supplies code, an entry
// point and a host-function table; the backend reports either a normal
// return or a trap. Concrete backends are selected at construction time,
// never discovered at runtime.
package backend

import "fmt"

// Trap is the terminal outcome of an abnormal execution. Traps are data at
// the orchestration layer: no unwinding ever crosses the host/guest
// boundary.
type Trap uint8

const (
	TrapNone Trap = iota
	TrapInvalidInstruction
	TrapStackUnderflow
	TrapStackOverflow
	TrapMemoryFault
	TrapOutOfGas
	TrapHostError
)

func (t Trap) String() string {
	switch t {
	case TrapNone:
		return "none"
	case TrapInvalidInstruction:
		return "invalid instruction"
	case TrapStackUnderflow:
		return "stack underflow"
	case TrapStackOverflow:
		return "stack overflow"
	case TrapMemoryFault:
		return "memory fault"
	case TrapOutOfGas:
		return "out of gas"
	case TrapHostError:
		return "host call error"
	default:
		return fmt.Sprintf("trap(%d)", t)
	}
}

// HostContext is the host-function table handed to a backend for one call.
// Every method is implicitly gas-charged by the host and returns an error to
// signal a trap, which the backend must propagate as the call's terminal
// outcome. No raw pointers cross this interface: register and page contents
// move by copy only.
type HostContext interface {
	// Step charges [n] executed bytecode steps against the budget. A
	// backend must call this for every instruction it retires and stop on
	// error; gas is the only bound on guest execution time.
	Step(n uint64) error

	// RegisterRead copies register [reg]'s contents into [buf] and returns
	// the number of bytes copied.
	RegisterRead(reg uint32, buf []byte) (uint32, error)

	// RegisterWrite overwrites register [reg] with a copy of [data].
	RegisterWrite(reg uint32, data []byte) error

	// Reg64Get reads register [reg] as a big-endian 64-bit value.
	Reg64Get(reg uint32) (uint64, error)

	// Reg64Set writes [val] big-endian as the full contents of register
	// [reg].
	Reg64Set(reg uint32, val uint64) error

	// StorageLoad copies storage page [page] into register [reg].
	StorageLoad(page uint32, reg uint32) error

	// StorageStore writes register [reg]'s contents as storage page [page],
	// zero-extended to a full page.
	StorageStore(page uint32, reg uint32) error

	// Get64 reads layout variable [varID] as an unsigned integer. The
	// variable must be 8 bytes or fewer.
	Get64(varID uint32) (uint64, error)

	// Set64 writes [val] into layout variable [varID].
	Set64(varID uint32, val uint64) error

	// Log records register [reg]'s contents as a guest log line.
	Log(reg uint32) error

	// GasLeft reports the remaining budget. Reading it is itself charged.
	GasLeft() (uint64, error)
}

// Params carries everything a backend needs for one execution.
type Params struct {
	Code  []byte
	Entry uint32
	Host  HostContext
}

// Result reports how an execution terminated. TrapNone means a normal
// return; any other trap means the call's effects must be discarded.
type Result struct {
	Trap  Trap
	Steps uint64
}

// Backend instantiates and runs guest programs. Run returns a non-nil error
// only for internal backend failures, in which case the Result is
// undefined; guest faults, gas exhaustion and host-call errors are reported
// through Result.Trap with a nil error.
type Backend interface {
	// Validate reports whether [code] is well-formed for this backend.
	Validate(code []byte) error

	// Run executes [params.Code] from [params.Entry] until it halts or
	// traps.
	Run(params Params) (Result, error)
}
