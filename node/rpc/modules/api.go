// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package modules

import (
	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/lib/transaction"
	"github.com/tessera-net/tessera/node/types"
)

// BlockAPI is the chain state interface for the RPC modules
type BlockAPI interface {
	BestBlockHash() common.Hash
	GetHeader(hash common.Hash) (*types.Header, error)
	GetBlockByHash(hash common.Hash) (*types.Block, error)
	GetHashByNumber(number uint64) (common.Hash, error)
	GetHighestFinalisedHeader() (*types.Header, error)
	GetJustification(hash common.Hash) ([]byte, error)
	GetImportedBlockNotifierChannel() chan *types.Block
	FreeImportedBlockNotifierChannel(ch chan *types.Block)
	GetFinalisedNotifierChannel() chan *types.FinalisationInfo
	FreeFinalisedNotifierChannel(ch chan *types.FinalisationInfo)
}

// NetworkAPI is the overlay interface for the RPC modules
type NetworkAPI interface {
	PeerCount() int
	NodeAddrs() []string
}

// CoreAPI is the import pipeline interface for the RPC modules
type CoreAPI interface {
	HandleSubmittedExtrinsic(ext types.Extrinsic) error
}

// TransactionStateAPI is the transaction pool interface for the RPC modules
type TransactionStateAPI interface {
	Pending() []*transaction.ValidTransaction
	PendingInPool() []*transaction.ValidTransaction
}

// BlockFinalityAPI exposes the finality voter's round state
type BlockFinalityAPI interface {
	Round() uint64
	SetID() uint64
	Voters() types.GrandpaVoters
}

// SystemAPI is the static node metadata interface for the RPC modules
type SystemAPI interface {
	SystemName() string
	SystemVersion() string
	ChainName() string
	Properties() map[string]interface{}
}
