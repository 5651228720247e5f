// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package contractvm

import (
	"fmt"
	"sync"

	log "github.com/inconshreveable/log15"

	"github.com/ava-labs/avalanchego/cache"
	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/hashing"
	"github.com/ava-labs/avalanchego/version"

	"github.com/ava-labs/contractvm/abi"
	"github.com/ava-labs/contractvm/backend"
	"github.com/ava-labs/contractvm/gas"
	"github.com/ava-labs/contractvm/layout"
	"github.com/ava-labs/contractvm/registers"
	"github.com/ava-labs/contractvm/storage"
)

const (
	Name = "contractvm"

	// ProtocolVersion pins the page geometry and gas schedule a database
	// was created under.
	ProtocolVersion uint8 = 1

	// CtorName is the reserved export run once at spawn time. It is not
	// callable afterwards.
	CtorName = "ctor"

	layoutCacheSize = 512
)

var Version = version.NewDefaultVersion(1, 0, 0)

// VM executes contract calls deterministically: identical (template, prior
// root, arguments, gas limit) tuples produce bit-identical outcomes on every
// node. All durable writes funnel through a single versiondb commit, so a
// call either lands completely or not at all.
type VM struct {
	state    State
	backend  backend.Backend
	schedule gas.Schedule

	// layoutCache memoizes computed layouts per template ID; recomputing is
	// pure but runs on every call otherwise.
	layoutCache cache.Cacher

	// commitLock serializes the Committing phase. The versiondb transaction
	// buffer is engine-wide, so only one call may have pending writes in it
	// at any moment.
	commitLock sync.Mutex

	// busyLock guards busy, the per-account in-flight locks. Calls against
	// the same account are serialized; different accounts run in parallel.
	busyLock sync.Mutex
	busy     map[ids.ShortID]*sync.Mutex

	fatalLock sync.Mutex
	fatal     error
}

// Config carries construction-time parameters.
type Config struct {
	// Schedule is the gas cost table. The zero value means
	// gas.DefaultSchedule.
	Schedule gas.Schedule
}

// New builds a VM over [db] using [be] as the execution backend. A database
// initialized under a different protocol version is rejected.
func New(db database.Database, be backend.Backend, config Config) (*VM, error) {
	if config.Schedule == (gas.Schedule{}) {
		config.Schedule = gas.DefaultSchedule()
	}

	state := NewState(db)
	vm := &VM{
		state:       state,
		backend:     be,
		schedule:    config.Schedule,
		layoutCache: &cache.LRU{Size: layoutCacheSize},
		busy:        make(map[ids.ShortID]*sync.Mutex),
	}

	initialized, err := state.IsInitialized()
	if err != nil {
		return nil, fmt.Errorf("checking initialization: %w", err)
	}
	if !initialized {
		if err := state.SetProtocolVersion(ProtocolVersion); err != nil {
			return nil, err
		}
		if err := state.SetInitialized(); err != nil {
			return nil, err
		}
		if err := state.Commit(); err != nil {
			return nil, fmt.Errorf("committing initialization: %w", err)
		}
		log.Info("initialized contract VM database", "protocolVersion", ProtocolVersion)
	} else {
		stored, err := state.GetProtocolVersion()
		if err != nil {
			return nil, fmt.Errorf("reading protocol version: %w", err)
		}
		if stored != ProtocolVersion {
			return nil, fmt.Errorf("database is protocol version %d, this build runs %d", stored, ProtocolVersion)
		}
	}

	log.Info("initializing contract VM", "version", Version, "protocolVersion", ProtocolVersion)
	return vm, nil
}

// Close releases the underlying database.
func (vm *VM) Close() error {
	return vm.state.Close()
}

// Deploy validates [tpl] and persists it, returning its content-derived ID.
// Deploying an identical template again is a no-op returning the same ID.
func (vm *VM) Deploy(tpl *Template) (ids.ID, error) {
	if err := vm.errored(); err != nil {
		return ids.Empty, err
	}
	if tpl == nil || len(tpl.Code) == 0 {
		return ids.Empty, fmt.Errorf("%w: empty code", ErrInvalidTemplate)
	}
	if err := vm.backend.Validate(tpl.Code); err != nil {
		return ids.Empty, fmt.Errorf("%w: %s", ErrInvalidTemplate, err)
	}
	if _, err := layout.Compute(tpl.Schema); err != nil {
		return ids.Empty, fmt.Errorf("%w: %s", ErrInvalidTemplate, err)
	}
	if err := validateExports(tpl); err != nil {
		return ids.Empty, fmt.Errorf("%w: %s", ErrInvalidTemplate, err)
	}

	raw, err := Codec.Marshal(CodecVersion, tpl)
	if err != nil {
		return ids.Empty, fmt.Errorf("%w: %s", ErrInvalidTemplate, err)
	}
	id := ids.ID(hashing.ComputeHash256Array(raw))

	vm.commitLock.Lock()
	defer vm.commitLock.Unlock()

	exists, err := vm.state.HasTemplate(id)
	if err != nil {
		return ids.Empty, err
	}
	if exists {
		return id, nil
	}
	if err := vm.state.PutTemplate(id, tpl); err != nil {
		vm.abort(err)
		return ids.Empty, err
	}
	if err := vm.state.Commit(); err != nil {
		return ids.Empty, vm.markFatal(err)
	}

	log.Info("deployed template", "id", id, "name", tpl.Name, "codeLen", len(tpl.Code))
	return id, nil
}

// Spawn derives a fresh account from [templateID], runs its constructor (if
// the template exports one) against an empty storage root, and persists the
// account record. On a constructor trap nothing is persisted and the failed
// receipt is returned.
func (vm *VM) Spawn(templateID ids.ID, ctorArgs []byte, salt []byte, gasLimit uint64) (ids.ShortID, *Receipt, error) {
	if err := vm.errored(); err != nil {
		return ids.ShortEmpty, nil, err
	}

	tpl, err := vm.getTemplate(templateID)
	if err != nil {
		return ids.ShortEmpty, nil, err
	}

	// The address is a pure function of the spawn inputs and is never
	// reused: a different salt yields a different account.
	preimage := make([]byte, 0, len(templateID)+len(salt)+len(ctorArgs))
	preimage = append(preimage, templateID[:]...)
	preimage = append(preimage, salt...)
	preimage = append(preimage, ctorArgs...)
	addr := ids.ShortID(hashing.ComputeHash160Array(preimage))

	unlock := vm.lockAccount(addr)
	defer unlock()

	exists, err := vm.state.HasAccount(addr)
	if err != nil {
		return ids.ShortEmpty, nil, err
	}
	if exists {
		return ids.ShortEmpty, nil, fmt.Errorf("%w: %s", ErrAccountExists, addr)
	}

	receipt := &Receipt{Success: true, NewRoot: ids.Empty}
	var view *storage.View
	if ctor := tpl.Export(CtorName); ctor != nil {
		lay, err := vm.layoutFor(templateID, tpl)
		if err != nil {
			return ids.ShortEmpty, nil, err
		}
		receipt, view, err = vm.run(tpl, lay, addr, ctor, ctorArgs, ids.Empty, gasLimit)
		if err != nil {
			return ids.ShortEmpty, nil, err
		}
		if !receipt.Success {
			return addr, receipt, nil
		}
	} else if len(ctorArgs) != 0 {
		return ids.ShortEmpty, nil, fmt.Errorf("%w: template has no constructor", abi.ErrMalformedInput)
	}

	newRoot, err := vm.commit(addr, templateID, view)
	if err != nil {
		return ids.ShortEmpty, nil, err
	}
	receipt.NewRoot = newRoot

	log.Info("spawned account", "address", addr, "template", templateID, "root", newRoot, "gasUsed", receipt.GasUsed)
	return addr, receipt, nil
}

// Call executes exported [function] on the account at [addr]. The returned
// receipt reports either success with the new storage root or the trap that
// ended the call; validation and ABI failures return a nil receipt and an
// error instead, having consumed no gas and touched no state.
func (vm *VM) Call(addr ids.ShortID, function string, calldata []byte, gasLimit uint64) (*Receipt, error) {
	if err := vm.errored(); err != nil {
		return nil, err
	}

	unlock := vm.lockAccount(addr)
	defer unlock()

	acct, err := vm.getAccount(addr)
	if err != nil {
		return nil, err
	}
	tpl, err := vm.getTemplate(acct.TemplateID)
	if err != nil {
		return nil, err
	}

	if function == CtorName {
		return nil, fmt.Errorf("%w: %q runs only at spawn", ErrUnknownFunction, function)
	}
	export := tpl.Export(function)
	if export == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, function)
	}
	lay, err := vm.layoutFor(acct.TemplateID, tpl)
	if err != nil {
		return nil, err
	}

	receipt, view, err := vm.run(tpl, lay, addr, export, calldata, acct.StorageRoot, gasLimit)
	if err != nil {
		return nil, err
	}
	if !receipt.Success {
		log.Debug("call trapped", "address", addr, "function", function, "trap", receipt.Trap, "gasUsed", receipt.GasUsed)
		return receipt, nil
	}

	newRoot, err := vm.commit(addr, acct.TemplateID, view)
	if err != nil {
		return nil, err
	}
	receipt.NewRoot = newRoot

	log.Debug("call committed", "address", addr, "function", function, "root", newRoot, "gasUsed", receipt.GasUsed)
	return receipt, nil
}

// GetTemplate returns the deployed template [id].
func (vm *VM) GetTemplate(id ids.ID) (*Template, error) {
	return vm.getTemplate(id)
}

// GetAccount returns the account record at [addr].
func (vm *VM) GetAccount(addr ids.ShortID) (*Account, error) {
	return vm.getAccount(addr)
}

// run is the Preparing and Executing phases: it stages arguments, builds
// the per-call context and asks the backend to execute. It never writes to
// the durable state; a successful receipt comes back with the view still
// holding the call's dirty pages for the caller to commit.
func (vm *VM) run(
	tpl *Template,
	lay *layout.Layout,
	addr ids.ShortID,
	export *Export,
	calldata []byte,
	baseRoot ids.ID,
	gasLimit uint64,
) (*Receipt, *storage.View, error) {
	// Arguments are validated before any gas is charged: malformed input is
	// the caller's mistake, not a metered outcome.
	if _, err := abi.DecodeArgs(export.ParamTypes(), calldata); err != nil {
		return nil, nil, err
	}

	meter := gas.NewMeter(vm.schedule, gasLimit)
	if err := meter.Charge(gas.CallBase, 1); err != nil {
		// A limit below the base cost fails before the register bank or
		// view exist; the meter clamps to zero, so the receipt reports the
		// whole limit as consumed.
		return &Receipt{Trap: backend.TrapOutOfGas, GasUsed: meter.Used()}, nil, nil
	}

	regs := registers.NewFile()
	if err := regs.Set(registers.ArgsRegister, calldata); err != nil {
		return nil, nil, fmt.Errorf("%w: %s", abi.ErrMalformedInput, err)
	}

	view := vm.state.Pages().NewView(addr, baseRoot)
	host := newHostContext(meter, regs, view, lay)

	result, err := vm.backend.Run(backend.Params{
		Code:  tpl.Code,
		Entry: export.Entry,
		Host:  host,
	})
	if err != nil {
		// Internal backend failure: the result is undefined, so nothing is
		// committed and the error is surfaced as an engine fault.
		return nil, nil, fmt.Errorf("execution backend: %w", err)
	}
	if result.Trap != backend.TrapNone {
		view.Discard()
		return &Receipt{
			Trap:    result.Trap,
			GasUsed: meter.Used(),
			Logs:    host.logs,
		}, nil, nil
	}

	returnRaw, err := regs.Get(registers.ReturnRegister)
	if err != nil {
		return nil, nil, err
	}
	returnData, err := abi.DecodeArgs(export.ReturnTypes(), returnRaw)
	if err != nil {
		// The guest produced returndata that does not match its declared
		// schema. The call fails and its storage effects are discarded.
		view.Discard()
		return &Receipt{
			Trap:    backend.TrapHostError,
			GasUsed: meter.Used(),
			Logs:    host.logs,
			Reason:  "malformed return data",
		}, nil, nil
	}

	return &Receipt{
		Success:    true,
		GasUsed:    meter.Used(),
		ReturnData: returnData,
		Logs:       host.logs,
	}, view, nil
}

// commit is the Committing phase: applies the view's dirty pages, writes
// the account record with the recomputed root and flushes the versiondb
// atomically. A failure here leaves durability uncertain and poisons the
// engine instance.
func (vm *VM) commit(addr ids.ShortID, templateID ids.ID, view *storage.View) (ids.ID, error) {
	vm.commitLock.Lock()
	defer vm.commitLock.Unlock()

	newRoot := ids.Empty
	if view != nil {
		root, err := vm.state.Pages().Commit(view)
		if err != nil {
			vm.abort(err)
			return ids.Empty, vm.markFatal(err)
		}
		newRoot = root
	}
	if err := vm.state.PutAccount(addr, &Account{TemplateID: templateID, StorageRoot: newRoot}); err != nil {
		vm.abort(err)
		return ids.Empty, vm.markFatal(err)
	}
	if err := vm.state.Commit(); err != nil {
		return ids.Empty, vm.markFatal(err)
	}
	return newRoot, nil
}

func (vm *VM) getTemplate(id ids.ID) (*Template, error) {
	tpl, err := vm.state.GetTemplate(id)
	if err == database.ErrNotFound {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return tpl, err
}

func (vm *VM) getAccount(addr ids.ShortID) (*Account, error) {
	acct, err := vm.state.GetAccount(addr)
	if err == database.ErrNotFound {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	return acct, err
}

// layoutFor returns the memoized layout of [tpl].
func (vm *VM) layoutFor(id ids.ID, tpl *Template) (*layout.Layout, error) {
	if layIntf, cached := vm.layoutCache.Get(id); cached {
		return layIntf.(*layout.Layout), nil
	}
	lay, err := layout.Compute(tpl.Schema)
	if err != nil {
		// The schema was validated at deploy time; failing here means the
		// stored record is damaged.
		return nil, fmt.Errorf("%w: stored schema of %s: %s", ErrStateCorrupt, id, err)
	}
	vm.layoutCache.Put(id, lay)
	return lay, nil
}

// lockAccount serializes in-flight work per account and returns the unlock.
func (vm *VM) lockAccount(addr ids.ShortID) func() {
	vm.busyLock.Lock()
	mu, ok := vm.busy[addr]
	if !ok {
		mu = &sync.Mutex{}
		vm.busy[addr] = mu
	}
	vm.busyLock.Unlock()

	mu.Lock()
	return mu.Unlock
}

func (vm *VM) errored() error {
	vm.fatalLock.Lock()
	defer vm.fatalLock.Unlock()
	return vm.fatal
}

func (vm *VM) markFatal(err error) error {
	vm.fatalLock.Lock()
	defer vm.fatalLock.Unlock()
	if vm.fatal == nil {
		vm.fatal = fmt.Errorf("%w: %s", ErrStateCorrupt, err)
		log.Error("durable commit failed, engine poisoned", "err", err)
	}
	return fmt.Errorf("%w: %s", ErrStateCorrupt, err)
}

// abort drops pending versiondb writes after a failed mutation so they can
// not leak into a later commit.
func (vm *VM) abort(err error) {
	vm.state.Abort()
	log.Error("aborted pending state", "err", err)
}

func validateExports(tpl *Template) error {
	seen := make(map[string]struct{}, len(tpl.Exports))
	for i, export := range tpl.Exports {
		if export.Name == "" {
			return fmt.Errorf("export %d has no name", i)
		}
		if _, ok := seen[export.Name]; ok {
			return fmt.Errorf("duplicate export %q", export.Name)
		}
		seen[export.Name] = struct{}{}
		if export.Entry >= uint32(len(tpl.Code)) {
			return fmt.Errorf("export %q entry %d outside code", export.Name, export.Entry)
		}
		for _, t := range append(append([]uint8{}, export.Params...), export.Returns...) {
			if abi.Type(t) > abi.TypeBytes {
				return fmt.Errorf("export %q uses unknown abi type %d", export.Name, t)
			}
		}
	}
	return nil
}
