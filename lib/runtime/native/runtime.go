// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package native implements the runtime interface directly in Go: a small
// deterministic state machine with a handful of modules. It stands in for
// an embedded execution engine while keeping block execution fully
// reproducible, so headers carry meaningful state roots.
package native

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/lib/runtime"
	"github.com/tessera-net/tessera/lib/transaction"
	"github.com/tessera-net/tessera/node/types"

	log "github.com/ChainSafe/log15"
	"github.com/vmihailenco/msgpack/v5"
)

var logger = log.New("pkg", "runtime")

var (
	errNoBlockUnderConstruction = errors.New("no block under construction")
	errUnknownModule            = errors.New("unknown module")
	errUnknownMethod            = errors.New("unknown method")
)

// Instance is the native runtime
type Instance struct {
	version runtime.Version

	lock    sync.Mutex
	storage runtime.Storage

	// block under construction, nil outside InitializeBlock..FinalizeBlock
	building *buildingBlock
}

type buildingBlock struct {
	header     *types.Header
	extrinsics []types.Extrinsic
}

// NewInstance creates a native runtime instance
func NewInstance(cfg *runtime.InstanceConfig) (*Instance, error) {
	in := &Instance{
		version: runtime.Version{
			SpecName:    "tessera",
			ImplName:    "tessera-native",
			SpecVersion: 1,
			ImplVersion: 1,
		},
		storage: cfg.Storage,
	}

	if cfg.LogLvl != 0 {
		logger.SetHandler(log.LvlFilterHandler(cfg.LogLvl, log.StdoutHandler))
	}

	return in, nil
}

// Version implements runtime.Instance
func (in *Instance) Version() runtime.Version {
	return in.version
}

// SetContextStorage implements runtime.Instance
func (in *Instance) SetContextStorage(s runtime.Storage) {
	in.lock.Lock()
	defer in.lock.Unlock()
	in.storage = s
}

// Stop implements runtime.Instance
func (in *Instance) Stop() {}

// BabeConfiguration reads the block production parameters from storage
func (in *Instance) BabeConfiguration() (*types.BabeConfiguration, error) {
	in.lock.Lock()
	defer in.lock.Unlock()

	if in.storage == nil {
		return nil, runtime.ErrNilStorage
	}

	enc := in.storage.Get(runtime.ModuleStorageKey("Babe", "Configuration"))
	if enc == nil {
		return nil, fmt.Errorf("babe configuration not found in storage")
	}

	cfg := new(types.BabeConfiguration)
	if err := msgpack.Unmarshal(enc, cfg); err != nil {
		return nil, fmt.Errorf("cannot decode babe configuration: %w", err)
	}
	return cfg, nil
}

// GrandpaAuthorities reads the finality voter set from storage
func (in *Instance) GrandpaAuthorities() ([]types.GrandpaVoterRaw, error) {
	in.lock.Lock()
	defer in.lock.Unlock()

	if in.storage == nil {
		return nil, runtime.ErrNilStorage
	}

	enc := in.storage.Get(runtime.ModuleStorageKey("Grandpa", "Authorities"))
	if enc == nil {
		return nil, fmt.Errorf("grandpa authorities not found in storage")
	}

	var voters []types.GrandpaVoterRaw
	if err := msgpack.Unmarshal(enc, &voters); err != nil {
		return nil, fmt.Errorf("cannot decode grandpa authorities: %w", err)
	}
	return voters, nil
}

// ValidateTransaction checks the extrinsic decodes to a known dispatch and
// assigns its validity. Inherent-only modules are rejected: they may not
// enter the pool.
func (in *Instance) ValidateTransaction(e types.Extrinsic) (*transaction.Validity, error) {
	call, err := DecodeCall(e)
	if err != nil {
		return nil, err
	}

	if err := checkDispatch(call); err != nil {
		return nil, err
	}

	if isInherentModule(call.Module) {
		return nil, fmt.Errorf("%w: inherent module %s", runtime.ErrInvalidTransaction, call.Module)
	}

	provides, err := common.Blake2bHash(e)
	if err != nil {
		return nil, err
	}

	return &transaction.Validity{
		Priority:  call.Tip + 1,
		Provides:  [][]byte{provides.ToBytes()},
		Longevity: 64,
		Propagate: true,
	}, nil
}

// InitializeBlock begins constructing a block with the given header
func (in *Instance) InitializeBlock(header *types.Header) error {
	in.lock.Lock()
	defer in.lock.Unlock()

	if in.storage == nil {
		return runtime.ErrNilStorage
	}

	cp, err := header.DeepCopy()
	if err != nil {
		return err
	}

	in.building = &buildingBlock{header: cp}
	return nil
}

// InherentExtrinsics returns the inherents for the block under construction
func (in *Instance) InherentExtrinsics(timestamp, slot uint64) ([]types.Extrinsic, error) {
	tsExt, err := NewTimestampExtrinsic(timestamp)
	if err != nil {
		return nil, err
	}

	slotExt, err := NewSlotExtrinsic(slot)
	if err != nil {
		return nil, err
	}

	return []types.Extrinsic{tsExt, slotExt}, nil
}

// ApplyExtrinsic executes one extrinsic against the block under construction
func (in *Instance) ApplyExtrinsic(e types.Extrinsic) error {
	in.lock.Lock()
	defer in.lock.Unlock()

	if in.building == nil {
		return errNoBlockUnderConstruction
	}

	call, err := DecodeCall(e)
	if err != nil {
		return err
	}

	if err := in.dispatch(call); err != nil {
		return err
	}

	in.building.extrinsics = append(in.building.extrinsics, e)
	return nil
}

// FinalizeBlock completes the block under construction, returning its
// header with state and extrinsics roots computed
func (in *Instance) FinalizeBlock() (*types.Header, error) {
	in.lock.Lock()
	defer in.lock.Unlock()

	if in.building == nil {
		return nil, errNoBlockUnderConstruction
	}

	header := in.building.header

	stateRoot, err := in.storage.Root()
	if err != nil {
		return nil, err
	}
	header.StateRoot = stateRoot

	extRoot, err := ExtrinsicsRoot(in.building.extrinsics)
	if err != nil {
		return nil, err
	}
	header.ExtrinsicsRoot = extRoot

	in.building = nil
	header.ClearCachedHash()
	return header, nil
}

// ExecuteBlock re-executes the block against the current storage context
// and verifies the header's roots. The caller is expected to have set the
// context to a copy of the parent block's state.
func (in *Instance) ExecuteBlock(block *types.Block) error {
	if err := in.InitializeBlock(&block.Header); err != nil {
		return err
	}

	for i, ext := range block.Body {
		if err := in.ApplyExtrinsic(ext); err != nil {
			return fmt.Errorf("extrinsic %d: %w", i, err)
		}
	}

	result, err := in.FinalizeBlock()
	if err != nil {
		return err
	}

	if result.StateRoot != block.Header.StateRoot {
		return fmt.Errorf("%w: state root mismatch: got %s, header has %s",
			runtime.ErrExecutionFailed, result.StateRoot, block.Header.StateRoot)
	}

	if result.ExtrinsicsRoot != block.Header.ExtrinsicsRoot {
		return fmt.Errorf("%w: extrinsics root mismatch: got %s, header has %s",
			runtime.ErrExecutionFailed, result.ExtrinsicsRoot, block.Header.ExtrinsicsRoot)
	}

	return nil
}

// ExtrinsicsRoot computes the root committing to an ordered extrinsic list
func ExtrinsicsRoot(exts []types.Extrinsic) (common.Hash, error) {
	hashes := make([]common.Hash, len(exts))
	for i, ext := range exts {
		h, err := common.Blake2bHash(ext)
		if err != nil {
			return common.EmptyHash, err
		}
		hashes[i] = h
	}
	return common.HashSlice(hashes...)
}
