// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package core

import (
	"time"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/lib/runtime"
	"github.com/tessera-net/tessera/lib/transaction"
	"github.com/tessera-net/tessera/node/network"
	"github.com/tessera-net/tessera/node/types"
)

// BlockState is the view of the chain database the import pipeline reads
// and, exclusively, writes. No other service calls AddBlockWithArrivalTime
// or SetFinalisedHash.
type BlockState interface {
	BestBlockHash() common.Hash
	BestBlockHeader() (*types.Header, error)
	GetHeader(hash common.Hash) (*types.Header, error)
	HasHeader(hash common.Hash) (bool, error)
	GetBlockByHash(hash common.Hash) (*types.Block, error)
	GetBlockBody(hash common.Hash) (*types.Body, error)
	AddBlockWithArrivalTime(block *types.Block, arrivalTime time.Time) error
	GetJustification(hash common.Hash) ([]byte, error)
	SetJustification(hash common.Hash, data []byte) error
	HasJustification(hash common.Hash) (bool, error)
	SetFinalisedHash(hash common.Hash, round, setID uint64) ([]common.Hash, error)
	GetHighestFinalisedHeader() (*types.Header, error)
	GenesisHash() common.Hash
}

// StorageState persists post-state tries of imported blocks
type StorageState interface {
	TrieState(root *common.Hash) (*runtime.TrieState, error)
	StoreTrie(ts *runtime.TrieState) error
}

// TransactionState is the pending-transaction intake the pipeline prunes
// on import and refills on reorg
type TransactionState interface {
	Push(vt *transaction.ValidTransaction) (common.Hash, error)
	AddToPool(vt *transaction.ValidTransaction) common.Hash
	RemoveExtrinsic(ext types.Extrinsic)
	RemoveExtrinsicFromPool(ext types.Extrinsic)
	PendingInPool() []*transaction.ValidTransaction
	Exists(ext types.Extrinsic) bool
}

// EpochState tracks the production epoch the chain head is in
type EpochState interface {
	GetEpochForBlock(header *types.Header) (uint64, error)
	GetCurrentEpoch() (uint64, error)
	SetCurrentEpoch(epoch uint64) error
}

// GrandpaState resolves the voter set a justification must be checked
// against
type GrandpaState interface {
	GetSetIDByBlockNumber(number uint64) (uint64, error)
	GetAuthorities(setID uint64) (types.GrandpaVoters, error)
}

// Verifier checks the slot claim and seal of an incoming block
type Verifier interface {
	VerifyBlock(header *types.Header) error
}

// DigestHandler processes the consensus digest items of an imported block
type DigestHandler interface {
	HandleDigests(header *types.Header) error
}

// Network gossips blocks and transactions to peers. All methods must be
// non-blocking; a nil Network is allowed and turns gossip into a no-op.
type Network interface {
	GossipBlockAnnounce(msg *network.BlockAnnounceMessage)
	GossipBlockRequest(msg *network.BlockRequestMessage)
	GossipJustification(msg *network.JustificationMessage)
	GossipTransaction(msg *network.TransactionMessage)
}
