// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package babe

import (
	"time"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/lib/runtime"
	"github.com/tessera-net/tessera/lib/transaction"
	"github.com/tessera-net/tessera/node/types"
)

// BlockState is the subset of the block state used by the production engine
type BlockState interface {
	BestBlockHash() common.Hash
	BestBlockHeader() (*types.Header, error)
	GetHeader(hash common.Hash) (*types.Header, error)
	GetAllBlocksAtNumber(number uint64) []common.Hash
	GenesisHash() common.Hash
}

// StorageState is the subset of the storage state used by the production engine
type StorageState interface {
	TrieState(root *common.Hash) (*runtime.TrieState, error)
}

// TransactionState is the pending-extrinsic queue
type TransactionState interface {
	Push(vt *transaction.ValidTransaction) (common.Hash, error)
	Pop() *transaction.ValidTransaction
	Peek() *transaction.ValidTransaction
}

// EpochState tracks epochs and their production parameters
type EpochState interface {
	GetCurrentEpoch() (uint64, error)
	SetCurrentEpoch(epoch uint64) error
	GetEpochData(epoch uint64) (*types.EpochData, error)
	HasEpochData(epoch uint64) (bool, error)
	GetEpochForBlock(header *types.Header) (uint64, error)
	GetStartSlotForEpoch(epoch uint64) (uint64, error)
	GetEpochLength() uint64
	GetSlotDuration() time.Duration
}

// BlockImportHandler submits locally built blocks to the import pipeline
type BlockImportHandler interface {
	HandleBlockProduced(block *types.Block, state *runtime.TrieState) error
}

// Network reports how many peers the node is connected to. Production is
// gated on having peers unless force authoring is enabled.
type Network interface {
	PeerCount() int
}
