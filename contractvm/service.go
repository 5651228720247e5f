// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package contractvm

import (
	"net/http"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/formatting"
	cjson "github.com/ava-labs/avalanchego/utils/json"

	"github.com/ava-labs/contractvm/abi"
	"github.com/ava-labs/contractvm/layout"
)

// Service is the JSON-RPC API of the engine. Byte payloads are hex strings;
// argument bytes arrive already ABI-encoded against the target export's
// schema.
type Service struct{ vm *VM }

// NewService returns the API service for [vm].
func NewService(vm *VM) *Service { return &Service{vm: vm} }

// VarJSON mirrors layout.Var for the API.
type VarJSON struct {
	Name string `json:"name"`
	Type uint8  `json:"type"`
}

// ExportJSON mirrors Export for the API.
type ExportJSON struct {
	Name    string       `json:"name"`
	Entry   cjson.Uint32 `json:"entry"`
	Params  []uint8      `json:"params"`
	Returns []uint8      `json:"returns"`
}

// ReceiptJSON is the API form of a Receipt.
type ReceiptJSON struct {
	Success    bool         `json:"success"`
	Trap       string       `json:"trap,omitempty"`
	Reason     string       `json:"reason,omitempty"`
	GasUsed    cjson.Uint64 `json:"gasUsed"`
	NewRoot    ids.ID       `json:"newRoot"`
	ReturnData string       `json:"returnData"`
	Logs       []string     `json:"logs"`
}

func receiptJSON(receipt *Receipt) (ReceiptJSON, error) {
	out := ReceiptJSON{
		Success: receipt.Success,
		GasUsed: cjson.Uint64(receipt.GasUsed),
		NewRoot: receipt.NewRoot,
		Reason:  receipt.Reason,
		Logs:    receipt.Logs,
	}
	if !receipt.Success {
		out.Trap = receipt.Trap.String()
	}
	if len(receipt.ReturnData) > 0 {
		raw, err := abi.EncodeArgs(abi.TypesOf(receipt.ReturnData), receipt.ReturnData)
		if err != nil {
			return out, err
		}
		encoded, err := formatting.EncodeWithChecksum(formatting.Hex, raw)
		if err != nil {
			return out, err
		}
		out.ReturnData = encoded
	}
	return out, nil
}

// DeployArgs are the arguments for Deploy.
type DeployArgs struct {
	Name     string       `json:"name"`
	Code     string       `json:"code"`
	Schema   []VarJSON    `json:"schema"`
	Exports  []ExportJSON `json:"exports"`
	Metadata string       `json:"metadata"`
}

// DeployReply is the reply from Deploy.
type DeployReply struct {
	TemplateID ids.ID `json:"templateID"`
}

// Deploy persists a validated template and returns its ID.
func (s *Service) Deploy(_ *http.Request, args *DeployArgs, reply *DeployReply) error {
	code, err := formatting.Decode(formatting.Hex, args.Code)
	if err != nil {
		return err
	}
	metadata, err := formatting.Decode(formatting.Hex, args.Metadata)
	if err != nil {
		return err
	}

	schema := make([]layout.Var, len(args.Schema))
	for i, v := range args.Schema {
		schema[i] = layout.Var{Name: v.Name, Type: abi.Type(v.Type)}
	}
	exports := make([]Export, len(args.Exports))
	for i, e := range args.Exports {
		exports[i] = Export{
			Name:    e.Name,
			Entry:   uint32(e.Entry),
			Params:  e.Params,
			Returns: e.Returns,
		}
	}

	id, err := s.vm.Deploy(&Template{
		Name:     args.Name,
		Code:     code,
		Schema:   schema,
		Exports:  exports,
		Metadata: metadata,
	})
	if err != nil {
		return err
	}
	reply.TemplateID = id
	return nil
}

// SpawnArgs are the arguments for Spawn.
type SpawnArgs struct {
	TemplateID ids.ID       `json:"templateID"`
	CtorArgs   string       `json:"ctorArgs"`
	Salt       string       `json:"salt"`
	GasLimit   cjson.Uint64 `json:"gasLimit"`
}

// SpawnReply is the reply from Spawn.
type SpawnReply struct {
	Address ids.ShortID `json:"address"`
	Receipt ReceiptJSON `json:"receipt"`
}

// Spawn creates an account from a deployed template.
func (s *Service) Spawn(_ *http.Request, args *SpawnArgs, reply *SpawnReply) error {
	ctorArgs, err := formatting.Decode(formatting.Hex, args.CtorArgs)
	if err != nil {
		return err
	}
	salt, err := formatting.Decode(formatting.Hex, args.Salt)
	if err != nil {
		return err
	}

	addr, receipt, err := s.vm.Spawn(args.TemplateID, ctorArgs, salt, uint64(args.GasLimit))
	if err != nil {
		return err
	}
	reply.Address = addr
	reply.Receipt, err = receiptJSON(receipt)
	return err
}

// CallArgs are the arguments for Call.
type CallArgs struct {
	Address  ids.ShortID  `json:"address"`
	Function string       `json:"function"`
	Calldata string       `json:"calldata"`
	GasLimit cjson.Uint64 `json:"gasLimit"`
}

// CallReply is the reply from Call.
type CallReply struct {
	Receipt ReceiptJSON `json:"receipt"`
}

// Call invokes an exported function on an account.
func (s *Service) Call(_ *http.Request, args *CallArgs, reply *CallReply) error {
	calldata, err := formatting.Decode(formatting.Hex, args.Calldata)
	if err != nil {
		return err
	}

	receipt, err := s.vm.Call(args.Address, args.Function, calldata, uint64(args.GasLimit))
	if err != nil {
		return err
	}
	reply.Receipt, err = receiptJSON(receipt)
	return err
}

// GetAccountArgs are the arguments for GetAccount.
type GetAccountArgs struct {
	Address ids.ShortID `json:"address"`
}

// GetAccountReply is the reply from GetAccount.
type GetAccountReply struct {
	TemplateID  ids.ID `json:"templateID"`
	StorageRoot ids.ID `json:"storageRoot"`
}

// GetAccount returns the account record at an address.
func (s *Service) GetAccount(_ *http.Request, args *GetAccountArgs, reply *GetAccountReply) error {
	acct, err := s.vm.GetAccount(args.Address)
	if err != nil {
		return err
	}
	reply.TemplateID = acct.TemplateID
	reply.StorageRoot = acct.StorageRoot
	return nil
}

// GetTemplateArgs are the arguments for GetTemplate.
type GetTemplateArgs struct {
	TemplateID ids.ID `json:"templateID"`
}

// GetTemplateReply is the reply from GetTemplate.
type GetTemplateReply struct {
	Name    string       `json:"name"`
	Code    string       `json:"code"`
	Schema  []VarJSON    `json:"schema"`
	Exports []ExportJSON `json:"exports"`
}

// GetTemplate returns a deployed template.
func (s *Service) GetTemplate(_ *http.Request, args *GetTemplateArgs, reply *GetTemplateReply) error {
	tpl, err := s.vm.GetTemplate(args.TemplateID)
	if err != nil {
		return err
	}

	code, err := formatting.EncodeWithChecksum(formatting.Hex, tpl.Code)
	if err != nil {
		return err
	}
	reply.Name = tpl.Name
	reply.Code = code
	reply.Schema = make([]VarJSON, len(tpl.Schema))
	for i, v := range tpl.Schema {
		reply.Schema[i] = VarJSON{Name: v.Name, Type: uint8(v.Type)}
	}
	reply.Exports = make([]ExportJSON, len(tpl.Exports))
	for i, e := range tpl.Exports {
		reply.Exports[i] = ExportJSON{
			Name:    e.Name,
			Entry:   cjson.Uint32(e.Entry),
			Params:  e.Params,
			Returns: e.Returns,
		}
	}
	return nil
}
