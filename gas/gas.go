// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package gas meters the computational cost of a contract call against a
// fixed budget. Costs come from a static schedule so that every node charges
// an identical amount for identical work.
package gas

import (
	"errors"
	"fmt"
)

var ErrExhausted = errors.New("gas exhausted")

// Kind identifies a chargeable unit of work in the cost schedule.
type Kind uint8

const (
	// Step is one executed bytecode instruction.
	Step Kind = iota
	// HostCall is the flat cost of crossing the host/guest boundary.
	HostCall
	// ByteCopy is one byte copied into or out of a register or page.
	ByteCopy
	// PageRead is one page loaded from the storage view.
	PageRead
	// PageWrite is one page written into the storage view.
	PageWrite
	// CallBase is the flat cost charged once per call before execution.
	CallBase

	numKinds
)

func (k Kind) String() string {
	switch k {
	case Step:
		return "step"
	case HostCall:
		return "hostCall"
	case ByteCopy:
		return "byteCopy"
	case PageRead:
		return "pageRead"
	case PageWrite:
		return "pageWrite"
	case CallBase:
		return "callBase"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// Schedule maps each Kind to its unit cost. The schedule is part of the
// protocol version: all participants must run the same table or their
// gas-used values diverge.
type Schedule [numKinds]uint64

// DefaultSchedule returns the v1 cost table.
func DefaultSchedule() Schedule {
	return Schedule{
		Step:      1,
		HostCall:  10,
		ByteCopy:  1,
		PageRead:  100,
		PageWrite: 200,
		CallBase:  500,
	}
}

// Cost returns the unit cost of [kind].
func (s *Schedule) Cost(kind Kind) uint64 { return s[kind] }

// Meter tracks the remaining budget for a single call. It is owned by that
// call and is not safe for concurrent use.
type Meter struct {
	schedule  Schedule
	limit     uint64
	remaining uint64
}

// NewMeter returns a meter seeded with [limit] units.
func NewMeter(schedule Schedule, limit uint64) *Meter {
	return &Meter{
		schedule:  schedule,
		limit:     limit,
		remaining: limit,
	}
}

// Charge deducts the scheduled cost of [units] occurrences of [kind].
// If the budget cannot cover the charge the meter clamps to zero and
// returns ErrExhausted; the remaining budget never goes negative.
func (m *Meter) Charge(kind Kind, units uint64) error {
	cost, overflow := mulOverflow(m.schedule.Cost(kind), units)
	if overflow || cost > m.remaining {
		m.remaining = 0
		return ErrExhausted
	}
	m.remaining -= cost
	return nil
}

// Remaining returns the unspent budget.
func (m *Meter) Remaining() uint64 { return m.remaining }

// Used returns the amount consumed so far.
func (m *Meter) Used() uint64 { return m.limit - m.remaining }

func mulOverflow(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, false
	}
	c := a * b
	return c, c/a != b
}
