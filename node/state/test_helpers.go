// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package state

import (
	"testing"
	"time"

	"github.com/ChainSafe/chaindb"
	log "github.com/ChainSafe/log15"
	"github.com/stretchr/testify/require"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/lib/genesis"
	"github.com/tessera-net/tessera/node/types"
)

// NewInMemoryDB creates a new in-memory database for testing
func NewInMemoryDB(t *testing.T) chaindb.Database {
	t.Helper()

	db, err := chaindb.NewBadgerDB(&chaindb.Config{
		DataDir:  t.TempDir(),
		InMemory: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// NewTestService creates an in-memory state service initialised with the
// development genesis and starts it.
func NewTestService(t *testing.T) *Service {
	t.Helper()

	gen, err := genesis.NewDevGenesis()
	require.NoError(t, err)

	ts, err := genesis.NewTrieStateFromGenesis(gen)
	require.NoError(t, err)

	header, err := genesis.NewGenesisHeader(ts)
	require.NoError(t, err)

	srv := NewService(t.TempDir(), log.LvlCrit)
	srv.UseMemDB()

	err = srv.Initialise(gen, header, ts)
	require.NoError(t, err)

	err = srv.Start()
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = srv.Stop()
	})

	return srv
}

// AddBlocksToState adds the given number of empty blocks to the block state,
// building on the best block each time. The blocks carry a pre-runtime digest
// so each has a slot and a unique hash; slots start after the current best.
func AddBlocksToState(t *testing.T, blockState *BlockState, depth int) []*types.Header {
	t.Helper()

	var headers []*types.Header
	head, err := blockState.BestBlockHeader()
	require.NoError(t, err)

	startNum := uint64(head.Number)
	previousHash := head.Hash()

	for i := startNum + 1; i <= startNum+uint64(depth); i++ {
		block := BuildTestBlockWithSlot(t, previousHash, i, 100+i)
		err := blockState.AddBlockWithArrivalTime(block, time.Now())
		require.NoError(t, err)

		previousHash = block.Header.Hash()
		headers = append(headers, &block.Header)
	}

	return headers
}

// AddBlockToStateAtSlot adds a single empty block with the given slot on top
// of the given parent and returns its header.
func AddBlockToStateAtSlot(t *testing.T, blockState *BlockState,
	parent common.Hash, number, slot uint64) *types.Header {
	t.Helper()

	block := BuildTestBlockWithSlot(t, parent, number, slot)
	err := blockState.AddBlock(block)
	require.NoError(t, err)
	return &block.Header
}

// BuildTestBlockWithSlot returns an empty block with the given parent, number
// and slot. The pre-runtime digest makes the header hash unique per slot.
func BuildTestBlockWithSlot(t *testing.T, parent common.Hash, number, slot uint64) *types.Block {
	t.Helper()

	preDigest := &types.BabePreDigest{
		AuthorityIndex: 0,
		SlotNumber:     slot,
	}

	item, err := preDigest.ToPreRuntimeDigest()
	require.NoError(t, err)

	header := types.NewHeader(parent, common.EmptyHash, common.EmptyHash,
		uint(number), types.Digest{item})

	return &types.Block{
		Header: *header,
		Body:   *types.NewBody(nil),
	}
}
