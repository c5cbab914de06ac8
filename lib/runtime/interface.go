// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package runtime defines the interface between the node and the state
// transition logic. Instances are pluggable: the node only ever talks to
// the Instance interface, so a chain may swap in its own implementation.
package runtime

import (
	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/lib/keystore"
	"github.com/tessera-net/tessera/lib/transaction"
	"github.com/tessera-net/tessera/node/types"

	log "github.com/ChainSafe/log15"
)

//go:generate mockgen -destination=mocks/instance.go -package mocks . Instance

// Instance is the interface a runtime instance must implement
type Instance interface {
	// Version reports the runtime's identity; it decides whether two
	// nodes are running compatible state transition logic
	Version() Version

	// BabeConfiguration returns the genesis block production parameters
	BabeConfiguration() (*types.BabeConfiguration, error)

	// GrandpaAuthorities returns the genesis finality voter set
	GrandpaAuthorities() ([]types.GrandpaVoterRaw, error)

	// ValidateTransaction checks an extrinsic against the current
	// storage context and assigns it a validity
	ValidateTransaction(e types.Extrinsic) (*transaction.Validity, error)

	// InitializeBlock begins the construction of a new block on top of
	// the current storage context
	InitializeBlock(header *types.Header) error

	// InherentExtrinsics returns the inherents to place at the start of
	// the block under construction
	InherentExtrinsics(timestamp uint64, slot uint64) ([]types.Extrinsic, error)

	// ApplyExtrinsic executes one extrinsic against the block under
	// construction
	ApplyExtrinsic(e types.Extrinsic) error

	// FinalizeBlock completes the block under construction and returns
	// its header with the state and extrinsics roots filled in
	FinalizeBlock() (*types.Header, error)

	// ExecuteBlock re-executes a complete block and verifies that the
	// header's roots match the computed state
	ExecuteBlock(block *types.Block) error

	// SetContextStorage points the instance at the storage to execute
	// against; it must be called before any of the calls above
	SetContextStorage(s Storage)

	Stop()
}

// Storage is the key/value view a runtime instance executes against
type Storage interface {
	Set(key, value []byte)
	Get(key []byte) []byte
	Delete(key []byte)
	Root() (common.Hash, error)
}

// InstanceConfig holds what is needed to construct a runtime instance
type InstanceConfig struct {
	Storage  Storage
	Keystore *keystore.GlobalKeystore
	LogLvl   log.Lvl
	Role     byte
}

// Version identifies a runtime implementation
type Version struct {
	SpecName    string
	ImplName    string
	SpecVersion uint32
	ImplVersion uint32
}
