// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"fmt"

	"github.com/ava-labs/avalanchego/ids"

	"github.com/ava-labs/contractvm/layout"
)

// View is the transient overlay one call mutates. Reads prefer dirty pages
// and fall back to the committed store; writes never touch the database
// until the store commits the view. Discarding a view leaves the underlying
// store untouched.
type View struct {
	store *Store
	addr  ids.ShortID
	base  ids.ID
	dirty map[uint32][]byte
}

// Addr returns the account the view belongs to.
func (v *View) Addr() ids.ShortID { return v.addr }

// BaseRoot returns the committed root the view was opened at.
func (v *View) BaseRoot() ids.ID { return v.base }

// Read returns a copy of page [index] as this call sees it.
func (v *View) Read(index uint32) ([]byte, error) {
	if index >= layout.MaxPages {
		return nil, fmt.Errorf("%w: %d", ErrPageOutOfRange, index)
	}
	if page, ok := v.dirty[index]; ok {
		out := make([]byte, layout.PageSize)
		copy(out, page)
		return out, nil
	}
	return v.store.GetPage(v.addr, index)
}

// Write replaces page [index] in the overlay. Payloads shorter than the page
// size are zero-extended to a full page; longer payloads are rejected.
func (v *View) Write(index uint32, data []byte) error {
	if index >= layout.MaxPages {
		return fmt.Errorf("%w: %d", ErrPageOutOfRange, index)
	}
	if len(data) > layout.PageSize {
		return fmt.Errorf("%w: %d > %d", ErrPageOversized, len(data), layout.PageSize)
	}
	page := make([]byte, layout.PageSize)
	copy(page, data)
	v.dirty[index] = page
	return nil
}

// DirtyCount returns the number of pages pending in the overlay.
func (v *View) DirtyCount() int { return len(v.dirty) }

// Discard drops all pending writes. The committed store is unaffected.
func (v *View) Discard() {
	v.dirty = make(map[uint32][]byte)
}
