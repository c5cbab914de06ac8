// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package grandpa

import (
	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/lib/crypto/ed25519"
	"github.com/tessera-net/tessera/node/types"
)

// BlockState is the chain view the voting engine reads. It never writes
// through this interface; finalisation is applied by the FinalityHandler.
type BlockState interface {
	BestBlockHeader() (*types.Header, error)
	GetHighestFinalisedHeader() (*types.Header, error)
	GetHeader(hash common.Hash) (*types.Header, error)
	HasHeader(hash common.Hash) (bool, error)
	IsDescendantOf(parent, child common.Hash) (bool, error)
	HighestCommonAncestor(a, b common.Hash) (common.Hash, error)
	GetImportedBlockNotifierChannel() chan *types.Block
	FreeImportedBlockNotifierChannel(ch chan *types.Block)
}

// GrandpaState persists voter sets, round bookkeeping and equivocation
// reports
type GrandpaState interface {
	GetCurrentSetID() (uint64, error)
	GetAuthorities(setID uint64) (types.GrandpaVoters, error)
	GetSetIDByBlockNumber(number uint64) (uint64, error)
	GetLatestRound() (uint64, error)
	SetLatestRound(round uint64) error
	ReportEquivocation(setID, round uint64, offender ed25519.PublicKeyBytes) error
}

// HeaderGetter is the minimal chain view needed to verify a
// justification: header lookup only, no bodies and no block tree
type HeaderGetter interface {
	GetHeader(hash common.Hash) (*types.Header, error)
}

// Network gossips finality messages to connected peers
type Network interface {
	GossipFinalityMessage(data []byte)
}

// FinalityHandler applies a justification to the chain. The import
// pipeline implements this so that finalisation commits go through the
// same exclusive writer as block imports.
type FinalityHandler interface {
	HandleJustification(just *Justification) error
}
