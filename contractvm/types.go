// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package contractvm

import (
	"github.com/ava-labs/avalanchego/ids"

	"github.com/ava-labs/contractvm/abi"
	"github.com/ava-labs/contractvm/backend"
	"github.com/ava-labs/contractvm/layout"
)

// Export is one callable entry point of a template. Params and Returns hold
// abi.Type values; they are persisted as raw bytes to keep the wire format
// independent of Go type identities.
type Export struct {
	Name    string  `serialize:"true"`
	Entry   uint32  `serialize:"true"`
	Params  []uint8 `serialize:"true"`
	Returns []uint8 `serialize:"true"`
}

// ParamTypes returns the export's argument schema.
func (e *Export) ParamTypes() []abi.Type { return toTypes(e.Params) }

// ReturnTypes returns the export's return-value schema.
func (e *Export) ReturnTypes() []abi.Type { return toTypes(e.Returns) }

func toTypes(raw []uint8) []abi.Type {
	types := make([]abi.Type, len(raw))
	for i, t := range raw {
		types[i] = abi.Type(t)
	}
	return types
}

// TypeBytes converts an abi schema to its persisted form.
func TypeBytes(types []abi.Type) []uint8 {
	raw := make([]uint8, len(types))
	for i, t := range types {
		raw[i] = uint8(t)
	}
	return raw
}

// Template is an immutable deployed unit: code, storage schema and
// metadata. Its ID is derived from its serialized content, so deploying the
// same template twice yields the same ID.
type Template struct {
	Name     string       `serialize:"true"`
	Code     []byte       `serialize:"true"`
	Schema   []layout.Var `serialize:"true"`
	Exports  []Export     `serialize:"true"`
	Metadata []byte       `serialize:"true"`
}

// Export returns the export named [name], or nil.
func (t *Template) Export(name string) *Export {
	for i := range t.Exports {
		if t.Exports[i].Name == name {
			return &t.Exports[i]
		}
	}
	return nil
}

// Account is a stateful instance spawned from a template. StorageRoot is its
// only mutable field; it advances exactly once per successful call.
type Account struct {
	TemplateID  ids.ID `serialize:"true"`
	StorageRoot ids.ID `serialize:"true"`
}

// Receipt is the outcome of a spawn or call. A failed receipt carries the
// trap and the gas consumed before the trap; its storage effects were
// discarded and the account's root is unchanged.
type Receipt struct {
	Success    bool
	Trap       backend.Trap
	GasUsed    uint64
	NewRoot    ids.ID
	ReturnData []abi.Value
	Logs       []string
	Reason     string
}
