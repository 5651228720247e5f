// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package client

import (
	"context"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/formatting"
	cjson "github.com/ava-labs/avalanchego/utils/json"
	"github.com/ava-labs/avalanchego/utils/rpc"

	"github.com/ava-labs/contractvm/abi"
	"github.com/ava-labs/contractvm/contractvm"
	"github.com/ava-labs/contractvm/layout"
)

// Client defines contractvm client operations.
type Client interface {
	// Deploy publishes a template and returns its content-derived ID.
	Deploy(ctx context.Context, tpl *contractvm.Template) (ids.ID, error)

	// Spawn creates an account from a deployed template.
	Spawn(ctx context.Context, templateID ids.ID, ctorArgs []byte, salt []byte, gasLimit uint64) (ids.ShortID, contractvm.ReceiptJSON, error)

	// Call invokes an exported function on an account.
	Call(ctx context.Context, addr ids.ShortID, function string, calldata []byte, gasLimit uint64) (contractvm.ReceiptJSON, error)

	// GetAccount fetches an account's template ID and storage root.
	GetAccount(ctx context.Context, addr ids.ShortID) (ids.ID, ids.ID, error)

	// GetTemplate fetches a deployed template.
	GetTemplate(ctx context.Context, templateID ids.ID) (*contractvm.Template, error)
}

// New creates a new client object.
func New(uri string) Client {
	req := rpc.NewEndpointRequester(uri, "/", contractvm.Name)
	return &client{req: req}
}

type client struct {
	req rpc.EndpointRequester
}

func (cli *client) Deploy(ctx context.Context, tpl *contractvm.Template) (ids.ID, error) {
	code, err := formatting.EncodeWithChecksum(formatting.Hex, tpl.Code)
	if err != nil {
		return ids.Empty, err
	}
	metadata, err := formatting.EncodeWithChecksum(formatting.Hex, tpl.Metadata)
	if err != nil {
		return ids.Empty, err
	}

	schema := make([]contractvm.VarJSON, len(tpl.Schema))
	for i, v := range tpl.Schema {
		schema[i] = contractvm.VarJSON{Name: v.Name, Type: uint8(v.Type)}
	}
	exports := make([]contractvm.ExportJSON, len(tpl.Exports))
	for i, e := range tpl.Exports {
		exports[i] = contractvm.ExportJSON{
			Name:    e.Name,
			Entry:   cjson.Uint32(e.Entry),
			Params:  e.Params,
			Returns: e.Returns,
		}
	}

	resp := new(contractvm.DeployReply)
	err = cli.req.SendRequest(ctx,
		"deploy",
		&contractvm.DeployArgs{
			Name:     tpl.Name,
			Code:     code,
			Schema:   schema,
			Exports:  exports,
			Metadata: metadata,
		},
		resp,
	)
	if err != nil {
		return ids.Empty, err
	}
	return resp.TemplateID, nil
}

func (cli *client) Spawn(ctx context.Context, templateID ids.ID, ctorArgs []byte, salt []byte, gasLimit uint64) (ids.ShortID, contractvm.ReceiptJSON, error) {
	ctorHex, err := formatting.EncodeWithChecksum(formatting.Hex, ctorArgs)
	if err != nil {
		return ids.ShortEmpty, contractvm.ReceiptJSON{}, err
	}
	saltHex, err := formatting.EncodeWithChecksum(formatting.Hex, salt)
	if err != nil {
		return ids.ShortEmpty, contractvm.ReceiptJSON{}, err
	}

	resp := new(contractvm.SpawnReply)
	err = cli.req.SendRequest(ctx,
		"spawn",
		&contractvm.SpawnArgs{
			TemplateID: templateID,
			CtorArgs:   ctorHex,
			Salt:       saltHex,
			GasLimit:   cjson.Uint64(gasLimit),
		},
		resp,
	)
	if err != nil {
		return ids.ShortEmpty, contractvm.ReceiptJSON{}, err
	}
	return resp.Address, resp.Receipt, nil
}

func (cli *client) Call(ctx context.Context, addr ids.ShortID, function string, calldata []byte, gasLimit uint64) (contractvm.ReceiptJSON, error) {
	calldataHex, err := formatting.EncodeWithChecksum(formatting.Hex, calldata)
	if err != nil {
		return contractvm.ReceiptJSON{}, err
	}

	resp := new(contractvm.CallReply)
	err = cli.req.SendRequest(ctx,
		"call",
		&contractvm.CallArgs{
			Address:  addr,
			Function: function,
			Calldata: calldataHex,
			GasLimit: cjson.Uint64(gasLimit),
		},
		resp,
	)
	if err != nil {
		return contractvm.ReceiptJSON{}, err
	}
	return resp.Receipt, nil
}

func (cli *client) GetAccount(ctx context.Context, addr ids.ShortID) (ids.ID, ids.ID, error) {
	resp := new(contractvm.GetAccountReply)
	err := cli.req.SendRequest(ctx,
		"getAccount",
		&contractvm.GetAccountArgs{Address: addr},
		resp,
	)
	if err != nil {
		return ids.Empty, ids.Empty, err
	}
	return resp.TemplateID, resp.StorageRoot, nil
}

func (cli *client) GetTemplate(ctx context.Context, templateID ids.ID) (*contractvm.Template, error) {
	resp := new(contractvm.GetTemplateReply)
	err := cli.req.SendRequest(ctx,
		"getTemplate",
		&contractvm.GetTemplateArgs{TemplateID: templateID},
		resp,
	)
	if err != nil {
		return nil, err
	}

	code, err := formatting.Decode(formatting.Hex, resp.Code)
	if err != nil {
		return nil, err
	}
	schema := make([]layout.Var, len(resp.Schema))
	for i, v := range resp.Schema {
		schema[i] = layout.Var{Name: v.Name, Type: abi.Type(v.Type)}
	}
	exports := make([]contractvm.Export, len(resp.Exports))
	for i, e := range resp.Exports {
		exports[i] = contractvm.Export{
			Name:    e.Name,
			Entry:   uint32(e.Entry),
			Params:  e.Params,
			Returns: e.Returns,
		}
	}
	return &contractvm.Template{
		Name:    resp.Name,
		Code:    code,
		Schema:  schema,
		Exports: exports,
	}, nil
}
