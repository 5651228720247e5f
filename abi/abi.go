// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package abi encodes and decodes the structured values that cross the
// host/guest boundary: call arguments, return payloads and storage variable
// contents. The encoding is flat, big-endian and schema-driven; a buffer that
// does not match its schema exactly is rejected, never padded or truncated.
package abi

import (
	"errors"
	"fmt"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/wrappers"
)

// MaxEncodedSize bounds a single encoded argument list. It matches the
// register payload ceiling so that any encoded value can be staged into one
// register.
const MaxEncodedSize = 4096

var (
	ErrMalformedInput = errors.New("malformed abi input")
	ErrUnknownType    = errors.New("unknown abi type")
	ErrTypeMismatch   = errors.New("value type does not match schema type")
)

// Type enumerates the value types a schema may declare.
type Type uint8

const (
	TypeU32 Type = iota
	TypeU64
	TypeBool
	TypeAddress
	TypeHash
	TypeBytes
)

func (t Type) String() string {
	switch t {
	case TypeU32:
		return "u32"
	case TypeU64:
		return "u64"
	case TypeBool:
		return "bool"
	case TypeAddress:
		return "address"
	case TypeHash:
		return "hash"
	case TypeBytes:
		return "bytes"
	default:
		return fmt.Sprintf("type(%d)", t)
	}
}

// FixedSize returns the encoded byte size of [t] and whether that size is
// fixed. TypeBytes is the only variable-length type.
func (t Type) FixedSize() (uint32, bool) {
	switch t {
	case TypeU32:
		return 4, true
	case TypeU64:
		return 8, true
	case TypeBool:
		return 1, true
	case TypeAddress:
		return 20, true
	case TypeHash:
		return 32, true
	default:
		return 0, false
	}
}

// Value is a typed value accepted by the codec. Exactly one payload field is
// meaningful, selected by Type.
type Value struct {
	Type Type

	Num  uint64
	Addr ids.ShortID
	Hash ids.ID
	Blob []byte
}

// U32 wraps a 32-bit unsigned integer.
func U32(v uint32) Value { return Value{Type: TypeU32, Num: uint64(v)} }

// U64 wraps a 64-bit unsigned integer.
func U64(v uint64) Value { return Value{Type: TypeU64, Num: v} }

// Bool wraps a boolean.
func Bool(v bool) Value {
	n := uint64(0)
	if v {
		n = 1
	}
	return Value{Type: TypeBool, Num: n}
}

// Address wraps a 20-byte account address.
func Address(addr ids.ShortID) Value { return Value{Type: TypeAddress, Addr: addr} }

// Hash wraps a 32-byte hash.
func Hash(h ids.ID) Value { return Value{Type: TypeHash, Hash: h} }

// Bytes wraps an arbitrary-length blob. The blob is copied.
func Bytes(b []byte) Value {
	buf := make([]byte, len(b))
	copy(buf, b)
	return Value{Type: TypeBytes, Blob: buf}
}

// TypesOf returns the per-position types of [values], usable as a schema
// for re-encoding them.
func TypesOf(values []Value) []Type {
	types := make([]Type, len(values))
	for i, v := range values {
		types[i] = v.Type
	}
	return types
}

// EncodeArgs encodes [values] against [types]. The two slices must agree in
// length and per-position type.
func EncodeArgs(types []Type, values []Value) ([]byte, error) {
	if len(types) != len(values) {
		return nil, fmt.Errorf("%w: %d values for %d declared types", ErrTypeMismatch, len(values), len(types))
	}

	p := wrappers.Packer{MaxSize: MaxEncodedSize}
	for i, typ := range types {
		val := values[i]
		if val.Type != typ {
			return nil, fmt.Errorf("%w: argument %d is %s, schema wants %s", ErrTypeMismatch, i, val.Type, typ)
		}
		switch typ {
		case TypeU32:
			p.PackInt(uint32(val.Num))
		case TypeU64:
			p.PackLong(val.Num)
		case TypeBool:
			p.PackBool(val.Num != 0)
		case TypeAddress:
			p.PackFixedBytes(val.Addr[:])
		case TypeHash:
			p.PackFixedBytes(val.Hash[:])
		case TypeBytes:
			p.PackBytes(val.Blob)
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownType, typ)
		}
	}
	if p.Errored() {
		return nil, fmt.Errorf("%w: %s", ErrMalformedInput, p.Err)
	}
	return p.Bytes, nil
}

// DecodeArgs decodes [raw] against [types]. Truncated buffers, overrunning
// length prefixes and trailing bytes all fail with ErrMalformedInput.
func DecodeArgs(types []Type, raw []byte) ([]Value, error) {
	p := wrappers.Packer{Bytes: raw}
	values := make([]Value, 0, len(types))
	for i, typ := range types {
		var val Value
		switch typ {
		case TypeU32:
			val = U32(p.UnpackInt())
		case TypeU64:
			val = U64(p.UnpackLong())
		case TypeBool:
			val = Bool(p.UnpackBool())
		case TypeAddress:
			addr, err := ids.ToShortID(p.UnpackFixedBytes(20))
			if err != nil {
				return nil, fmt.Errorf("%w: argument %d: %s", ErrMalformedInput, i, err)
			}
			val = Address(addr)
		case TypeHash:
			h, err := ids.ToID(p.UnpackFixedBytes(32))
			if err != nil {
				return nil, fmt.Errorf("%w: argument %d: %s", ErrMalformedInput, i, err)
			}
			val = Hash(h)
		case TypeBytes:
			val = Bytes(p.UnpackBytes())
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownType, typ)
		}
		if p.Errored() {
			return nil, fmt.Errorf("%w: argument %d (%s)", ErrMalformedInput, i, typ)
		}
		values = append(values, val)
	}
	if p.Offset != len(raw) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedInput, len(raw)-p.Offset)
	}
	return values, nil
}
