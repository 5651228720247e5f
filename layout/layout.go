// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package layout computes the fixed storage layout of a contract template:
// every declared variable is assigned a (page, offset, size) slot once at
// deploy time, and every account spawned from the template reuses the same
// assignment. The computation is a pure function of the schema.
package layout

import (
	"errors"
	"fmt"

	"github.com/ava-labs/contractvm/abi"
)

const (
	// PageSize is the fixed byte size of one storage page.
	PageSize = 4096
	// MaxPages is the page-count ceiling of a single account's storage.
	MaxPages = 64
)

var (
	ErrSchemaTooLarge = errors.New("schema exceeds account storage ceiling")
	ErrDuplicateVar   = errors.New("duplicate variable name")
	ErrVariableSize   = errors.New("storage variables must have a fixed size")
	ErrUnnamedVar     = errors.New("variable name must not be empty")
	ErrVarNotFound    = errors.New("no such variable")
)

// Var is one declared storage variable. Schema order is layout order.
type Var struct {
	Name string   `serialize:"true"`
	Type abi.Type `serialize:"true"`
}

// Slot is the computed placement of one variable.
type Slot struct {
	Page   uint32
	Offset uint32
	Size   uint32
}

// Layout maps variable IDs (schema declaration indices) to slots.
type Layout struct {
	slots []Slot
	pages uint32
}

// Compute assigns slots to [schema] in declaration order. A variable that
// would straddle a page boundary is pushed wholly into the next page; fields
// are never split.
func Compute(schema []Var) (*Layout, error) {
	seen := make(map[string]struct{}, len(schema))
	slots := make([]Slot, 0, len(schema))

	page := uint32(0)
	offset := uint32(0)
	for i, v := range schema {
		if v.Name == "" {
			return nil, fmt.Errorf("%w: variable %d", ErrUnnamedVar, i)
		}
		if _, ok := seen[v.Name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateVar, v.Name)
		}
		seen[v.Name] = struct{}{}

		size, fixed := v.Type.FixedSize()
		if !fixed {
			return nil, fmt.Errorf("%w: %q is %s", ErrVariableSize, v.Name, v.Type)
		}

		if offset+size > PageSize {
			page++
			offset = 0
		}
		if page >= MaxPages {
			return nil, fmt.Errorf("%w: %q lands on page %d, ceiling is %d", ErrSchemaTooLarge, v.Name, page, MaxPages)
		}

		slots = append(slots, Slot{Page: page, Offset: offset, Size: size})
		offset += size
	}

	pages := uint32(0)
	if len(slots) > 0 {
		pages = page + 1
	}
	return &Layout{slots: slots, pages: pages}, nil
}

// Slot returns the placement of variable [id]. IDs are schema declaration
// indices, matching what guest code references in storage host calls.
func (l *Layout) Slot(id uint32) (Slot, error) {
	if id >= uint32(len(l.slots)) {
		return Slot{}, fmt.Errorf("%w: id %d", ErrVarNotFound, id)
	}
	return l.slots[id], nil
}

// Len returns the number of variables mapped by the layout.
func (l *Layout) Len() int { return len(l.slots) }

// Pages returns the number of pages the layout spans.
func (l *Layout) Pages() uint32 { return l.pages }
