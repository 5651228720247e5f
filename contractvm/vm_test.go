// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package contractvm

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/database/memdb"
	"github.com/ava-labs/avalanchego/ids"
	"github.com/stretchr/testify/assert"

	"github.com/ava-labs/contractvm/abi"
	"github.com/ava-labs/contractvm/backend"
	"github.com/ava-labs/contractvm/interp"
	"github.com/ava-labs/contractvm/layout"
	"github.com/ava-labs/contractvm/registers"
)

func newTestVM(t *testing.T) *VM {
	t.Helper()
	vm, err := (&Factory{}).New(memdb.New())
	if err != nil {
		t.Fatal(err)
	}
	return vm
}

// counterTemplate is a template with one u64 variable. The constructor takes
// the initial count; increment bumps it and returns the new value; echo logs
// its calldata; boom writes storage and then underflows the stack.
func counterTemplate() *Template {
	a := interp.NewAssembler()

	ctorEntry := a.Pos()
	a.Push(uint64(registers.ArgsRegister)).HostReg64Get().
		Push(0).HostSet64().
		Halt()

	incEntry := a.Pos()
	a.Push(0).HostGet64().
		Push(1).Add().
		Dup().
		Push(0).HostSet64().
		Push(uint64(registers.ReturnRegister)).HostReg64Set().
		Halt()

	echoEntry := a.Pos()
	a.Push(uint64(registers.ArgsRegister)).HostLog().
		Halt()

	boomEntry := a.Pos()
	a.Push(99).
		Push(0).HostSet64().
		Pop(). // stack is empty here
		Halt()

	return &Template{
		Name: "counter",
		Code: a.Bytes(),
		Schema: []layout.Var{
			{Name: "count", Type: abi.TypeU64},
		},
		Exports: []Export{
			{Name: CtorName, Entry: ctorEntry, Params: []uint8{uint8(abi.TypeU64)}},
			{Name: "increment", Entry: incEntry, Returns: []uint8{uint8(abi.TypeU64)}},
			{Name: "echo", Entry: echoEntry, Params: []uint8{uint8(abi.TypeBytes)}},
			{Name: "boom", Entry: boomEntry},
		},
	}
}

func encodeU64(t *testing.T, v uint64) []byte {
	t.Helper()
	raw, err := abi.EncodeArgs([]abi.Type{abi.TypeU64}, []abi.Value{abi.U64(v)})
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

const testGasLimit = 100_000

func TestDeployIsIdempotent(t *testing.T) {
	assert := assert.New(t)
	vm := newTestVM(t)
	defer vm.Close()

	id, err := vm.Deploy(counterTemplate())
	assert.NoError(err)
	assert.NotEqual(ids.Empty, id)

	again, err := vm.Deploy(counterTemplate())
	assert.NoError(err)
	assert.Equal(id, again)

	stored, err := vm.GetTemplate(id)
	assert.NoError(err)
	assert.Equal("counter", stored.Name)
	assert.Len(stored.Exports, 4)
}

func TestDeployRejectsInvalidTemplates(t *testing.T) {
	assert := assert.New(t)
	vm := newTestVM(t)
	defer vm.Close()

	// Empty code.
	_, err := vm.Deploy(&Template{Name: "empty"})
	assert.ErrorIs(err, ErrInvalidTemplate)

	// Undecodable bytecode.
	_, err = vm.Deploy(&Template{Name: "junk", Code: []byte{0xff}})
	assert.ErrorIs(err, ErrInvalidTemplate)

	// Duplicate schema variable.
	tpl := counterTemplate()
	tpl.Schema = append(tpl.Schema, layout.Var{Name: "count", Type: abi.TypeU32})
	_, err = vm.Deploy(tpl)
	assert.ErrorIs(err, ErrInvalidTemplate)

	// Export entry outside the code.
	tpl = counterTemplate()
	tpl.Exports[0].Entry = uint32(len(tpl.Code)) + 10
	_, err = vm.Deploy(tpl)
	assert.ErrorIs(err, ErrInvalidTemplate)

	// Duplicate export name.
	tpl = counterTemplate()
	tpl.Exports = append(tpl.Exports, Export{Name: "increment", Entry: 0})
	_, err = vm.Deploy(tpl)
	assert.ErrorIs(err, ErrInvalidTemplate)
}

func TestSpawnRunsConstructor(t *testing.T) {
	assert := assert.New(t)
	vm := newTestVM(t)
	defer vm.Close()

	id, err := vm.Deploy(counterTemplate())
	assert.NoError(err)

	addr, receipt, err := vm.Spawn(id, encodeU64(t, 7), []byte("salt"), testGasLimit)
	assert.NoError(err)
	assert.True(receipt.Success)
	assert.NotEqual(ids.Empty, receipt.NewRoot)
	assert.NotZero(receipt.GasUsed)

	acct, err := vm.GetAccount(addr)
	assert.NoError(err)
	assert.Equal(id, acct.TemplateID)
	assert.Equal(receipt.NewRoot, acct.StorageRoot)

	// The constructor wrote 7; the first increment returns 8.
	callReceipt, err := vm.Call(addr, "increment", nil, testGasLimit)
	assert.NoError(err)
	assert.True(callReceipt.Success)
	assert.Equal(uint64(8), callReceipt.ReturnData[0].Num)
}

func TestSpawnErrors(t *testing.T) {
	assert := assert.New(t)
	vm := newTestVM(t)
	defer vm.Close()

	_, _, err := vm.Spawn(ids.GenerateTestID(), nil, nil, testGasLimit)
	assert.ErrorIs(err, ErrTemplateNotFound)

	id, err := vm.Deploy(counterTemplate())
	assert.NoError(err)

	// Identical spawn inputs land on the same address.
	_, _, err = vm.Spawn(id, encodeU64(t, 1), []byte("dup"), testGasLimit)
	assert.NoError(err)
	_, _, err = vm.Spawn(id, encodeU64(t, 1), []byte("dup"), testGasLimit)
	assert.ErrorIs(err, ErrAccountExists)

	// A different salt is a different account.
	_, _, err = vm.Spawn(id, encodeU64(t, 1), []byte("other"), testGasLimit)
	assert.NoError(err)

	// Calldata that does not match the constructor schema.
	_, _, err = vm.Spawn(id, []byte{1, 2, 3}, []byte("bad"), testGasLimit)
	assert.ErrorIs(err, abi.ErrMalformedInput)
}

func TestCallUpdatesStorageRoot(t *testing.T) {
	assert := assert.New(t)
	vm := newTestVM(t)
	defer vm.Close()

	id, err := vm.Deploy(counterTemplate())
	assert.NoError(err)
	addr, spawnReceipt, err := vm.Spawn(id, encodeU64(t, 0), nil, testGasLimit)
	assert.NoError(err)

	first, err := vm.Call(addr, "increment", nil, testGasLimit)
	assert.NoError(err)
	assert.True(first.Success)
	assert.Equal(uint64(1), first.ReturnData[0].Num)
	assert.NotEqual(spawnReceipt.NewRoot, first.NewRoot)

	second, err := vm.Call(addr, "increment", nil, testGasLimit)
	assert.NoError(err)
	assert.True(second.Success)
	assert.Equal(uint64(2), second.ReturnData[0].Num)
	assert.NotEqual(first.NewRoot, second.NewRoot)

	// Identical work costs identical gas regardless of the starting root.
	assert.Equal(first.GasUsed, second.GasUsed)

	acct, err := vm.GetAccount(addr)
	assert.NoError(err)
	assert.Equal(second.NewRoot, acct.StorageRoot)
}

func TestCallErrors(t *testing.T) {
	assert := assert.New(t)
	vm := newTestVM(t)
	defer vm.Close()

	_, err := vm.Call(ids.GenerateTestShortID(), "increment", nil, testGasLimit)
	assert.ErrorIs(err, ErrAccountNotFound)

	id, err := vm.Deploy(counterTemplate())
	assert.NoError(err)
	addr, _, err := vm.Spawn(id, encodeU64(t, 0), nil, testGasLimit)
	assert.NoError(err)

	_, err = vm.Call(addr, "missing", nil, testGasLimit)
	assert.ErrorIs(err, ErrUnknownFunction)

	// The constructor is not callable after spawn.
	_, err = vm.Call(addr, CtorName, encodeU64(t, 0), testGasLimit)
	assert.ErrorIs(err, ErrUnknownFunction)

	// Calldata for an export that declares no parameters.
	_, err = vm.Call(addr, "increment", []byte{1}, testGasLimit)
	assert.ErrorIs(err, abi.ErrMalformedInput)
}

func TestCallOutOfGas(t *testing.T) {
	assert := assert.New(t)
	vm := newTestVM(t)
	defer vm.Close()

	id, err := vm.Deploy(counterTemplate())
	assert.NoError(err)
	addr, spawnReceipt, err := vm.Spawn(id, encodeU64(t, 5), nil, testGasLimit)
	assert.NoError(err)

	// A limit below the base call cost fails before any instruction runs.
	receipt, err := vm.Call(addr, "increment", nil, 100)
	assert.NoError(err)
	assert.False(receipt.Success)
	assert.Equal(backend.TrapOutOfGas, receipt.Trap)
	assert.Equal(uint64(100), receipt.GasUsed)

	// A limit that covers the base cost but not the storage work fails
	// mid-execution; either way the root is untouched.
	receipt, err = vm.Call(addr, "increment", nil, 600)
	assert.NoError(err)
	assert.False(receipt.Success)
	assert.Equal(backend.TrapOutOfGas, receipt.Trap)

	acct, err := vm.GetAccount(addr)
	assert.NoError(err)
	assert.Equal(spawnReceipt.NewRoot, acct.StorageRoot)

	// The counter value is unchanged.
	after, err := vm.Call(addr, "increment", nil, testGasLimit)
	assert.NoError(err)
	assert.Equal(uint64(6), after.ReturnData[0].Num)
}

func TestTrapDiscardsWrites(t *testing.T) {
	assert := assert.New(t)
	vm := newTestVM(t)
	defer vm.Close()

	id, err := vm.Deploy(counterTemplate())
	assert.NoError(err)
	addr, spawnReceipt, err := vm.Spawn(id, encodeU64(t, 3), nil, testGasLimit)
	assert.NoError(err)

	// boom writes 99 to the counter and then traps; the write must not land.
	receipt, err := vm.Call(addr, "boom", nil, testGasLimit)
	assert.NoError(err)
	assert.False(receipt.Success)
	assert.Equal(backend.TrapStackUnderflow, receipt.Trap)
	assert.NotZero(receipt.GasUsed)

	acct, err := vm.GetAccount(addr)
	assert.NoError(err)
	assert.Equal(spawnReceipt.NewRoot, acct.StorageRoot)

	after, err := vm.Call(addr, "increment", nil, testGasLimit)
	assert.NoError(err)
	assert.Equal(uint64(4), after.ReturnData[0].Num)
}

func TestCallCollectsLogs(t *testing.T) {
	assert := assert.New(t)
	vm := newTestVM(t)
	defer vm.Close()

	id, err := vm.Deploy(counterTemplate())
	assert.NoError(err)
	addr, _, err := vm.Spawn(id, encodeU64(t, 0), nil, testGasLimit)
	assert.NoError(err)

	calldata, err := abi.EncodeArgs(
		[]abi.Type{abi.TypeBytes},
		[]abi.Value{abi.Bytes([]byte("hello"))},
	)
	assert.NoError(err)

	receipt, err := vm.Call(addr, "echo", calldata, testGasLimit)
	assert.NoError(err)
	assert.True(receipt.Success)
	// The guest logs the raw calldata it was handed.
	assert.Equal([]string{string(calldata)}, receipt.Logs)
}

func TestConstructorTrapPersistsNothing(t *testing.T) {
	assert := assert.New(t)
	vm := newTestVM(t)
	defer vm.Close()

	id, err := vm.Deploy(counterTemplate())
	assert.NoError(err)

	// Starve the constructor of gas: the receipt reports the trap and no
	// account exists afterwards.
	addr, receipt, err := vm.Spawn(id, encodeU64(t, 7), []byte("oog"), 100)
	assert.NoError(err)
	assert.False(receipt.Success)
	assert.Equal(backend.TrapOutOfGas, receipt.Trap)

	_, err = vm.GetAccount(addr)
	assert.ErrorIs(err, ErrAccountNotFound)

	// The same inputs can be retried with enough gas.
	retryAddr, receipt, err := vm.Spawn(id, encodeU64(t, 7), []byte("oog"), testGasLimit)
	assert.NoError(err)
	assert.True(receipt.Success)
	assert.Equal(addr, retryAddr)
}

func TestDeterministicAcrossEngines(t *testing.T) {
	assert := assert.New(t)

	run := func() (ids.ID, ids.ShortID, *Receipt) {
		vm := newTestVM(t)
		defer vm.Close()

		id, err := vm.Deploy(counterTemplate())
		assert.NoError(err)
		addr, _, err := vm.Spawn(id, encodeU64(t, 10), []byte("seed"), testGasLimit)
		assert.NoError(err)
		_, err = vm.Call(addr, "increment", nil, testGasLimit)
		assert.NoError(err)
		receipt, err := vm.Call(addr, "increment", nil, testGasLimit)
		assert.NoError(err)
		return id, addr, receipt
	}

	id1, addr1, receipt1 := run()
	id2, addr2, receipt2 := run()

	assert.Equal(id1, id2)
	assert.Equal(addr1, addr2)
	assert.Equal(receipt1.NewRoot, receipt2.NewRoot)
	assert.Equal(receipt1.GasUsed, receipt2.GasUsed)
	assert.Equal(receipt1.ReturnData, receipt2.ReturnData)
}

var errBrokenDisk = errors.New("broken disk")

// batchFailDB fails every batch write while armed, so the durable flush at
// the end of a call errors while in-memory execution still succeeds.
type batchFailDB struct {
	database.Database
	fail bool
}

func (db *batchFailDB) NewBatch() database.Batch {
	return &failBatch{Batch: db.Database.NewBatch(), db: db}
}

type failBatch struct {
	database.Batch
	db *batchFailDB
}

func (b *failBatch) Write() error {
	if b.db.fail {
		return errBrokenDisk
	}
	return b.Batch.Write()
}

func TestFailedCommitPoisonsEngine(t *testing.T) {
	assert := assert.New(t)

	db := &batchFailDB{Database: memdb.New()}
	vm, err := (&Factory{}).New(db)
	assert.NoError(err)
	defer vm.Close()

	id, err := vm.Deploy(counterTemplate())
	assert.NoError(err)
	addr, _, err := vm.Spawn(id, encodeU64(t, 1), nil, testGasLimit)
	assert.NoError(err)

	db.fail = true
	_, err = vm.Call(addr, "increment", nil, testGasLimit)
	assert.ErrorIs(err, ErrStateCorrupt)

	// Durability is uncertain after a failed flush; the engine stays
	// poisoned even once the fault clears.
	db.fail = false
	_, err = vm.Call(addr, "increment", nil, testGasLimit)
	assert.ErrorIs(err, ErrStateCorrupt)
	_, err = vm.Deploy(counterTemplate())
	assert.ErrorIs(err, ErrStateCorrupt)
	_, _, err = vm.Spawn(id, encodeU64(t, 2), []byte("again"), testGasLimit)
	assert.ErrorIs(err, ErrStateCorrupt)
}

func TestConcurrentCallsSerializePerAccount(t *testing.T) {
	assert := assert.New(t)
	vm := newTestVM(t)
	defer vm.Close()

	id, err := vm.Deploy(counterTemplate())
	assert.NoError(err)
	addrA, _, err := vm.Spawn(id, encodeU64(t, 0), []byte("a"), testGasLimit)
	assert.NoError(err)
	addrB, _, err := vm.Spawn(id, encodeU64(t, 100), []byte("b"), testGasLimit)
	assert.NoError(err)

	const callsPerAccount = 8
	var wg sync.WaitGroup
	errs := make(chan error, 2*callsPerAccount)
	for i := 0; i < callsPerAccount; i++ {
		for _, addr := range []ids.ShortID{addrA, addrB} {
			wg.Add(1)
			go func(addr ids.ShortID) {
				defer wg.Done()
				receipt, err := vm.Call(addr, "increment", nil, testGasLimit)
				if err == nil && !receipt.Success {
					err = fmt.Errorf("call trapped: %s", receipt.Trap)
				}
				errs <- err
			}(addr)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(err)
	}

	// No increment was lost to a racing read-modify-write on either account.
	a, err := vm.Call(addrA, "increment", nil, testGasLimit)
	assert.NoError(err)
	assert.Equal(uint64(callsPerAccount+1), a.ReturnData[0].Num)
	b, err := vm.Call(addrB, "increment", nil, testGasLimit)
	assert.NoError(err)
	assert.Equal(uint64(100+callsPerAccount+1), b.ReturnData[0].Num)
}

func TestStatePersistsAcrossInstances(t *testing.T) {
	assert := assert.New(t)
	db := memdb.New()

	vm, err := (&Factory{}).New(db)
	assert.NoError(err)
	id, err := vm.Deploy(counterTemplate())
	assert.NoError(err)
	addr, _, err := vm.Spawn(id, encodeU64(t, 41), nil, testGasLimit)
	assert.NoError(err)

	reopened, err := (&Factory{}).New(db)
	assert.NoError(err)
	defer reopened.Close()

	tpl, err := reopened.GetTemplate(id)
	assert.NoError(err)
	assert.Equal("counter", tpl.Name)

	receipt, err := reopened.Call(addr, "increment", nil, testGasLimit)
	assert.NoError(err)
	assert.Equal(uint64(42), receipt.ReturnData[0].Num)
}
