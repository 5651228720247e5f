// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"testing"

	"github.com/ava-labs/avalanchego/database/memdb"
	"github.com/ava-labs/avalanchego/ids"
	"github.com/stretchr/testify/assert"

	"github.com/ava-labs/contractvm/layout"
)

var testAddr = ids.ShortID{0x11, 0x22, 0x33, 0x44}

func TestUnwrittenPageReadsAsZeros(t *testing.T) {
	assert := assert.New(t)

	s := New(memdb.New())
	page, err := s.GetPage(testAddr, 0)
	assert.NoError(err)
	assert.Len(page, layout.PageSize)
	for _, b := range page {
		assert.Zero(b)
	}

	view := s.NewView(testAddr, ids.Empty)
	page, err = view.Read(layout.MaxPages - 1)
	assert.NoError(err)
	assert.Len(page, layout.PageSize)
}

func TestViewWriteIsNotDurableUntilCommit(t *testing.T) {
	assert := assert.New(t)

	s := New(memdb.New())
	view := s.NewView(testAddr, ids.Empty)

	assert.NoError(view.Write(0, []byte{10, 20, 30}))
	assert.Equal(1, view.DirtyCount())

	// The view sees its own write, zero-extended to a full page.
	page, err := view.Read(0)
	assert.NoError(err)
	assert.Equal(byte(10), page[0])
	assert.Equal(byte(30), page[2])
	assert.Zero(page[3])

	// The committed store does not.
	committed, err := s.GetPage(testAddr, 0)
	assert.NoError(err)
	assert.Zero(committed[0])

	// Nor does a second view over the same account.
	other := s.NewView(testAddr, ids.Empty)
	page, err = other.Read(0)
	assert.NoError(err)
	assert.Zero(page[0])
}

func TestCommitMakesPagesDurable(t *testing.T) {
	assert := assert.New(t)

	s := New(memdb.New())
	view := s.NewView(testAddr, ids.Empty)
	assert.NoError(view.Write(2, []byte{1, 2, 3}))

	root, err := s.Commit(view)
	assert.NoError(err)
	assert.NotEqual(ids.Empty, root)
	assert.Equal(0, view.DirtyCount())

	page, err := s.GetPage(testAddr, 2)
	assert.NoError(err)
	assert.Equal(byte(1), page[0])

	recomputed, err := s.Root(testAddr)
	assert.NoError(err)
	assert.Equal(root, recomputed)
}

func TestDiscardLeavesStoreUntouched(t *testing.T) {
	assert := assert.New(t)

	s := New(memdb.New())
	view := s.NewView(testAddr, ids.Empty)
	assert.NoError(view.Write(0, []byte{0xff}))
	view.Discard()
	assert.Equal(0, view.DirtyCount())

	root, err := s.Root(testAddr)
	assert.NoError(err)
	assert.Equal(ids.Empty, root)
}

func TestRootIndependentOfWriteOrder(t *testing.T) {
	assert := assert.New(t)

	s1 := New(memdb.New())
	v1 := s1.NewView(testAddr, ids.Empty)
	assert.NoError(v1.Write(0, []byte{1}))
	assert.NoError(v1.Write(5, []byte{2}))
	root1, err := s1.Commit(v1)
	assert.NoError(err)

	s2 := New(memdb.New())
	v2 := s2.NewView(testAddr, ids.Empty)
	assert.NoError(v2.Write(5, []byte{2}))
	assert.NoError(v2.Write(0, []byte{1}))
	root2, err := s2.Commit(v2)
	assert.NoError(err)

	assert.Equal(root1, root2)
}

func TestRootIndependentOfCommitHistory(t *testing.T) {
	assert := assert.New(t)

	// Two commits on one store vs one commit on another, same final pages.
	s1 := New(memdb.New())
	v := s1.NewView(testAddr, ids.Empty)
	assert.NoError(v.Write(0, []byte{9}))
	_, err := s1.Commit(v)
	assert.NoError(err)
	v = s1.NewView(testAddr, ids.Empty)
	assert.NoError(v.Write(1, []byte{8}))
	root1, err := s1.Commit(v)
	assert.NoError(err)

	s2 := New(memdb.New())
	v = s2.NewView(testAddr, ids.Empty)
	assert.NoError(v.Write(1, []byte{8}))
	assert.NoError(v.Write(0, []byte{9}))
	root2, err := s2.Commit(v)
	assert.NoError(err)

	assert.Equal(root1, root2)
}

func TestRootDependsOnContentAndIndex(t *testing.T) {
	assert := assert.New(t)

	s1 := New(memdb.New())
	v1 := s1.NewView(testAddr, ids.Empty)
	assert.NoError(v1.Write(0, []byte{1}))
	root1, err := s1.Commit(v1)
	assert.NoError(err)

	// Same content at a different index is a different root.
	s2 := New(memdb.New())
	v2 := s2.NewView(testAddr, ids.Empty)
	assert.NoError(v2.Write(1, []byte{1}))
	root2, err := s2.Commit(v2)
	assert.NoError(err)
	assert.NotEqual(root1, root2)

	// Different content at the same index is a different root.
	s3 := New(memdb.New())
	v3 := s3.NewView(testAddr, ids.Empty)
	assert.NoError(v3.Write(0, []byte{2}))
	root3, err := s3.Commit(v3)
	assert.NoError(err)
	assert.NotEqual(root1, root3)
}

func TestRootIgnoresAccountIdentity(t *testing.T) {
	assert := assert.New(t)

	otherAddr := ids.ShortID{0x55, 0x66}

	s := New(memdb.New())
	v1 := s.NewView(testAddr, ids.Empty)
	assert.NoError(v1.Write(0, []byte{7, 7}))
	root1, err := s.Commit(v1)
	assert.NoError(err)

	v2 := s.NewView(otherAddr, ids.Empty)
	assert.NoError(v2.Write(0, []byte{7, 7}))
	root2, err := s.Commit(v2)
	assert.NoError(err)

	assert.Equal(root1, root2)
}

func TestZeroingAPageRemovesItFromTheRoot(t *testing.T) {
	assert := assert.New(t)

	s := New(memdb.New())
	v := s.NewView(testAddr, ids.Empty)
	assert.NoError(v.Write(0, []byte{5}))
	_, err := s.Commit(v)
	assert.NoError(err)

	v = s.NewView(testAddr, ids.Empty)
	assert.NoError(v.Write(0, make([]byte, layout.PageSize)))
	root, err := s.Commit(v)
	assert.NoError(err)
	assert.Equal(ids.Empty, root)
}

func TestPageBounds(t *testing.T) {
	assert := assert.New(t)

	s := New(memdb.New())
	_, err := s.GetPage(testAddr, layout.MaxPages)
	assert.ErrorIs(err, ErrPageOutOfRange)

	v := s.NewView(testAddr, ids.Empty)
	assert.ErrorIs(v.Write(layout.MaxPages, nil), ErrPageOutOfRange)
	_, err = v.Read(layout.MaxPages)
	assert.ErrorIs(err, ErrPageOutOfRange)

	assert.ErrorIs(v.Write(0, make([]byte, layout.PageSize+1)), ErrPageOversized)
}
