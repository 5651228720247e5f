// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package contractvm

import (
	"fmt"
	"net/http"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/formatting"
	cjson "github.com/ava-labs/avalanchego/utils/json"

	"github.com/ava-labs/contractvm/abi"
)

// StaticService implements the stateless API: encoding typed arguments into
// calldata and decoding return payloads, without touching any engine state.
// Clients use it to build the hex payloads the stateful Service expects.
type StaticService struct{}

// NewStaticService returns the stateless API service.
func NewStaticService() *StaticService { return &StaticService{} }

// ValueJSON is the API form of a typed value. Exactly one payload field is
// read, selected by Type.
type ValueJSON struct {
	Type uint8        `json:"type"`
	Num  cjson.Uint64 `json:"num"`
	Addr ids.ShortID  `json:"addr"`
	Hash ids.ID       `json:"hash"`
	Blob string       `json:"blob"`
}

func valueFromJSON(v ValueJSON) (abi.Value, error) {
	switch abi.Type(v.Type) {
	case abi.TypeU32:
		return abi.U32(uint32(v.Num)), nil
	case abi.TypeU64:
		return abi.U64(uint64(v.Num)), nil
	case abi.TypeBool:
		return abi.Bool(v.Num != 0), nil
	case abi.TypeAddress:
		return abi.Address(v.Addr), nil
	case abi.TypeHash:
		return abi.Hash(v.Hash), nil
	case abi.TypeBytes:
		blob, err := formatting.Decode(formatting.Hex, v.Blob)
		if err != nil {
			return abi.Value{}, err
		}
		return abi.Bytes(blob), nil
	default:
		return abi.Value{}, fmt.Errorf("%w: %d", abi.ErrUnknownType, v.Type)
	}
}

func valueToJSON(v abi.Value) (ValueJSON, error) {
	out := ValueJSON{
		Type: uint8(v.Type),
		Num:  cjson.Uint64(v.Num),
		Addr: v.Addr,
		Hash: v.Hash,
	}
	if v.Type == abi.TypeBytes {
		blob, err := formatting.EncodeWithChecksum(formatting.Hex, v.Blob)
		if err != nil {
			return out, err
		}
		out.Blob = blob
	}
	return out, nil
}

// EncodeCalldataArgs are the arguments for EncodeCalldata.
type EncodeCalldataArgs struct {
	Values []ValueJSON `json:"values"`
}

// EncodeCalldataReply is the reply from EncodeCalldata.
type EncodeCalldataReply struct {
	Calldata string `json:"calldata"`
}

// EncodeCalldata packs typed values into the wire encoding exported
// functions consume.
func (*StaticService) EncodeCalldata(_ *http.Request, args *EncodeCalldataArgs, reply *EncodeCalldataReply) error {
	values := make([]abi.Value, len(args.Values))
	for i, v := range args.Values {
		val, err := valueFromJSON(v)
		if err != nil {
			return err
		}
		values[i] = val
	}
	raw, err := abi.EncodeArgs(abi.TypesOf(values), values)
	if err != nil {
		return err
	}
	reply.Calldata, err = formatting.EncodeWithChecksum(formatting.Hex, raw)
	return err
}

// DecodeCalldataArgs are the arguments for DecodeCalldata.
type DecodeCalldataArgs struct {
	Types    []uint8 `json:"types"`
	Calldata string  `json:"calldata"`
}

// DecodeCalldataReply is the reply from DecodeCalldata.
type DecodeCalldataReply struct {
	Values []ValueJSON `json:"values"`
}

// DecodeCalldata unpacks a wire-encoded payload against a declared schema.
func (*StaticService) DecodeCalldata(_ *http.Request, args *DecodeCalldataArgs, reply *DecodeCalldataReply) error {
	raw, err := formatting.Decode(formatting.Hex, args.Calldata)
	if err != nil {
		return err
	}
	types := make([]abi.Type, len(args.Types))
	for i, t := range args.Types {
		types[i] = abi.Type(t)
	}
	values, err := abi.DecodeArgs(types, raw)
	if err != nil {
		return err
	}
	reply.Values = make([]ValueJSON, len(values))
	for i, v := range values {
		reply.Values[i], err = valueToJSON(v)
		if err != nil {
			return err
		}
	}
	return nil
}
