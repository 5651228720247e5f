// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package storage organizes an account's state into fixed-size pages behind
// a backend-agnostic database. Reads see committed pages; writes go through
// a copy-on-write View that only becomes durable when the store commits it.
// An account's storage root is derived purely from its nonzero page
// contents, so identical page sets hash to identical roots regardless of
// write history.
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/hashing"

	"github.com/ava-labs/contractvm/layout"
)

var (
	ErrPageOutOfRange = errors.New("page index beyond account ceiling")
	ErrPageOversized  = errors.New("page payload exceeds page size")
	ErrCorruptPage    = errors.New("stored page has wrong length")
)

// Store reads and writes page records for every account. Keys are
// addr ‖ big-endian page index; values are full pages. All-zero pages are
// never stored, which keeps the page set canonical for root computation.
type Store struct {
	db database.Database
}

// New returns a store over [db]. Atomicity of commits is the caller's
// concern: wrap [db] in a versiondb and flush after Commit returns.
func New(db database.Database) *Store {
	return &Store{db: db}
}

// GetPage returns a copy of the committed page [index] of [addr]. A page
// that was never written reads as all zeros.
func (s *Store) GetPage(addr ids.ShortID, index uint32) ([]byte, error) {
	if index >= layout.MaxPages {
		return nil, fmt.Errorf("%w: %d", ErrPageOutOfRange, index)
	}
	raw, err := s.db.Get(pageKey(addr, index))
	switch {
	case err == database.ErrNotFound:
		return make([]byte, layout.PageSize), nil
	case err != nil:
		return nil, fmt.Errorf("reading page %d of %s: %w", index, addr, err)
	case len(raw) != layout.PageSize:
		return nil, fmt.Errorf("%w: page %d of %s is %d bytes", ErrCorruptPage, index, addr, len(raw))
	}
	page := make([]byte, layout.PageSize)
	copy(page, raw)
	return page, nil
}

// NewView opens a copy-on-write overlay for one call against [addr]. The
// view is exclusively owned by that call and is never shared.
func (s *Store) NewView(addr ids.ShortID, base ids.ID) *View {
	return &View{
		store: s,
		addr:  addr,
		base:  base,
		dirty: make(map[uint32][]byte),
	}
}

// Commit applies [view]'s dirty pages to the database and returns the new
// storage root of the account. The caller must flush its transaction
// boundary afterwards for the writes to become durable atomically.
func (s *Store) Commit(view *View) (ids.ID, error) {
	merged, err := s.committedPages(view.addr)
	if err != nil {
		return ids.Empty, err
	}

	for index, page := range view.dirty {
		key := pageKey(view.addr, index)
		if isZero(page) {
			if _, ok := merged[index]; ok {
				if err := s.db.Delete(key); err != nil {
					return ids.Empty, fmt.Errorf("deleting page %d of %s: %w", index, view.addr, err)
				}
				delete(merged, index)
			}
			continue
		}
		if err := s.db.Put(key, page); err != nil {
			return ids.Empty, fmt.Errorf("writing page %d of %s: %w", index, view.addr, err)
		}
		merged[index] = page
	}

	view.dirty = make(map[uint32][]byte)
	return rootOf(merged), nil
}

// Root recomputes the storage root of [addr] from its committed pages.
func (s *Store) Root(addr ids.ShortID) (ids.ID, error) {
	pages, err := s.committedPages(addr)
	if err != nil {
		return ids.Empty, err
	}
	return rootOf(pages), nil
}

func (s *Store) committedPages(addr ids.ShortID) (map[uint32][]byte, error) {
	pages := make(map[uint32][]byte)
	it := s.db.NewIteratorWithPrefix(addr[:])
	defer it.Release()
	for it.Next() {
		key := it.Key()
		if len(key) != len(addr)+4 {
			return nil, fmt.Errorf("%w: malformed page key %x", ErrCorruptPage, key)
		}
		index := binary.BigEndian.Uint32(key[len(addr):])
		if len(it.Value()) != layout.PageSize {
			return nil, fmt.Errorf("%w: page %d of %s is %d bytes", ErrCorruptPage, index, addr, len(it.Value()))
		}
		page := make([]byte, layout.PageSize)
		copy(page, it.Value())
		pages[index] = page
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("iterating pages of %s: %w", addr, err)
	}
	return pages, nil
}

// rootOf hashes the nonzero page set in ascending index order. The hash
// depends only on (index, content) pairs, never on write order. An empty
// set hashes to ids.Empty, the root of a never-touched account.
func rootOf(pages map[uint32][]byte) ids.ID {
	indices := make([]uint32, 0, len(pages))
	for index, page := range pages {
		if !isZero(page) {
			indices = append(indices, index)
		}
	}
	if len(indices) == 0 {
		return ids.Empty
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	preimage := make([]byte, 0, len(indices)*(4+hashing.HashLen))
	for _, index := range indices {
		var indexBytes [4]byte
		binary.BigEndian.PutUint32(indexBytes[:], index)
		pageHash := hashing.ComputeHash256(pages[index])
		preimage = append(preimage, indexBytes[:]...)
		preimage = append(preimage, pageHash...)
	}
	return hashing.ComputeHash256Array(preimage)
}

func pageKey(addr ids.ShortID, index uint32) []byte {
	key := make([]byte, len(addr)+4)
	copy(key, addr[:])
	binary.BigEndian.PutUint32(key[len(addr):], index)
	return key
}

func isZero(page []byte) bool {
	for _, b := range page {
		if b != 0 {
			return false
		}
	}
	return true
}
