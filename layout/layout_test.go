// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package layout

import (
	"fmt"
	"testing"

	"github.com/ava-labs/contractvm/abi"
	"github.com/stretchr/testify/assert"
)

func TestComputePacksInDeclarationOrder(t *testing.T) {
	assert := assert.New(t)

	l, err := Compute([]Var{
		{Name: "counter", Type: abi.TypeU32},
		{Name: "owner", Type: abi.TypeAddress},
		{Name: "root", Type: abi.TypeHash},
	})
	assert.NoError(err)
	assert.Equal(3, l.Len())
	assert.EqualValues(1, l.Pages())

	s0, err := l.Slot(0)
	assert.NoError(err)
	assert.Equal(Slot{Page: 0, Offset: 0, Size: 4}, s0)

	s1, err := l.Slot(1)
	assert.NoError(err)
	assert.Equal(Slot{Page: 0, Offset: 4, Size: 20}, s1)

	s2, err := l.Slot(2)
	assert.NoError(err)
	assert.Equal(Slot{Page: 0, Offset: 24, Size: 32}, s2)
}

func TestComputePushesStraddlingVarToNextPage(t *testing.T) {
	assert := assert.New(t)

	// 511 u64 vars fill 4088 bytes of page 0; a hash var would straddle the
	// boundary and must start page 1 instead of being split.
	schema := make([]Var, 0, 512)
	for i := 0; i < 511; i++ {
		schema = append(schema, Var{Name: fmt.Sprintf("v%d", i), Type: abi.TypeU64})
	}
	schema = append(schema, Var{Name: "h", Type: abi.TypeHash})

	l, err := Compute(schema)
	assert.NoError(err)
	assert.EqualValues(2, l.Pages())

	s, err := l.Slot(511)
	assert.NoError(err)
	assert.Equal(Slot{Page: 1, Offset: 0, Size: 32}, s)
}

func TestComputeNonOverlap(t *testing.T) {
	assert := assert.New(t)

	schema := make([]Var, 0, 600)
	typs := []abi.Type{abi.TypeU32, abi.TypeU64, abi.TypeBool, abi.TypeAddress, abi.TypeHash}
	for i := 0; i < 600; i++ {
		schema = append(schema, Var{Name: fmt.Sprintf("v%d", i), Type: typs[i%len(typs)]})
	}

	l, err := Compute(schema)
	assert.NoError(err)

	type span struct{ start, end uint64 }
	spans := make([]span, 0, l.Len())
	for id := 0; id < l.Len(); id++ {
		s, err := l.Slot(uint32(id))
		assert.NoError(err)
		assert.LessOrEqual(s.Offset+s.Size, uint32(PageSize))
		start := uint64(s.Page)*PageSize + uint64(s.Offset)
		spans = append(spans, span{start, start + uint64(s.Size)})
	}
	for i := 1; i < len(spans); i++ {
		assert.LessOrEqual(spans[i-1].end, spans[i].start)
	}
}

func TestComputeSchemaTooLarge(t *testing.T) {
	assert := assert.New(t)

	// 128 hash vars fill one page exactly; MaxPages*128 vars fill the whole
	// account, so one more must fail.
	schema := make([]Var, 0, MaxPages*128+1)
	for i := 0; i <= MaxPages*128; i++ {
		schema = append(schema, Var{Name: fmt.Sprintf("v%d", i), Type: abi.TypeHash})
	}
	_, err := Compute(schema)
	assert.ErrorIs(err, ErrSchemaTooLarge)
}

func TestComputeRejectsDuplicates(t *testing.T) {
	assert := assert.New(t)

	_, err := Compute([]Var{
		{Name: "x", Type: abi.TypeU32},
		{Name: "x", Type: abi.TypeU64},
	})
	assert.ErrorIs(err, ErrDuplicateVar)
}

func TestComputeRejectsVariableSizeVars(t *testing.T) {
	assert := assert.New(t)

	_, err := Compute([]Var{{Name: "blob", Type: abi.TypeBytes}})
	assert.ErrorIs(err, ErrVariableSize)
}

func TestComputeRejectsUnnamedVars(t *testing.T) {
	assert := assert.New(t)

	_, err := Compute([]Var{{Type: abi.TypeU32}})
	assert.ErrorIs(err, ErrUnnamedVar)
}

func TestComputeEmptySchema(t *testing.T) {
	assert := assert.New(t)

	l, err := Compute(nil)
	assert.NoError(err)
	assert.Equal(0, l.Len())
	assert.EqualValues(0, l.Pages())

	_, err = l.Slot(0)
	assert.ErrorIs(err, ErrVarNotFound)
}

func TestComputeDeterministic(t *testing.T) {
	assert := assert.New(t)

	schema := []Var{
		{Name: "a", Type: abi.TypeU64},
		{Name: "b", Type: abi.TypeAddress},
	}
	l1, err := Compute(schema)
	assert.NoError(err)
	l2, err := Compute(schema)
	assert.NoError(err)

	for id := 0; id < l1.Len(); id++ {
		s1, _ := l1.Slot(uint32(id))
		s2, _ := l2.Slot(uint32(id))
		assert.Equal(s1, s2)
	}
}
