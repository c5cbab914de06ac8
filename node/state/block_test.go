// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/node/types"
)

func newTestGenesisHeader() *types.Header {
	return types.NewHeader(common.EmptyHash, common.EmptyHash, common.EmptyHash, 0, types.Digest{})
}

func newTestBlockState(t *testing.T) *BlockState {
	t.Helper()

	db := NewInMemoryDB(t)
	bs, err := NewBlockStateFromGenesis(db, newTestGenesisHeader())
	require.NoError(t, err)
	return bs
}

func TestBlockState_SetGetHeader(t *testing.T) {
	bs := newTestBlockState(t)

	header := types.NewHeader(bs.GenesisHash(), common.EmptyHash, common.EmptyHash, 1, types.Digest{})
	err := bs.SetHeader(header)
	require.NoError(t, err)

	res, err := bs.GetHeader(header.Hash())
	require.NoError(t, err)
	require.Equal(t, header.Hash(), res.Hash())
	require.Equal(t, header.Number, res.Number)

	has, err := bs.HasHeader(header.Hash())
	require.NoError(t, err)
	require.True(t, has)

	_, err = bs.GetHeader(common.Hash{0xaa})
	require.ErrorIs(t, err, ErrHeaderNotFound)
}

func TestBlockState_AddBlock(t *testing.T) {
	bs := newTestBlockState(t)

	block1 := BuildTestBlockWithSlot(t, bs.GenesisHash(), 1, 101)
	err := bs.AddBlock(block1)
	require.NoError(t, err)

	block2 := BuildTestBlockWithSlot(t, block1.Header.Hash(), 2, 102)
	err = bs.AddBlock(block2)
	require.NoError(t, err)

	require.Equal(t, block2.Header.Hash(), bs.BestBlockHash())

	num, err := bs.BestBlockNumber()
	require.NoError(t, err)
	require.Equal(t, uint64(2), num)

	res, err := bs.GetBlockByNumber(1)
	require.NoError(t, err)
	require.Equal(t, block1.Header.Hash(), res.Header.Hash())

	body, err := bs.GetBlockBody(block2.Header.Hash())
	require.NoError(t, err)
	require.Equal(t, &block2.Body, body)
}

func TestBlockState_AddBlock_Reorg(t *testing.T) {
	bs := newTestBlockState(t)

	// two-block chain on top of genesis
	chainA := make([]*types.Block, 2)
	parent := bs.GenesisHash()
	for i := range chainA {
		chainA[i] = BuildTestBlockWithSlot(t, parent, uint64(i+1), uint64(101+i))
		require.NoError(t, bs.AddBlock(chainA[i]))
		parent = chainA[i].Header.Hash()
	}

	require.Equal(t, chainA[1].Header.Hash(), bs.BestBlockHash())

	// a longer fork from genesis takes over as the canonical chain
	chainB := make([]*types.Block, 3)
	parent = bs.GenesisHash()
	for i := range chainB {
		chainB[i] = BuildTestBlockWithSlot(t, parent, uint64(i+1), uint64(201+i))
		require.NoError(t, bs.AddBlock(chainB[i]))
		parent = chainB[i].Header.Hash()
	}

	require.Equal(t, chainB[2].Header.Hash(), bs.BestBlockHash())

	for i, block := range chainB {
		hash, err := bs.GetHashByNumber(uint64(i + 1))
		require.NoError(t, err)
		require.Equal(t, block.Header.Hash(), hash)
	}
}

func TestBlockState_ArrivalTime(t *testing.T) {
	bs := newTestBlockState(t)

	arrival := time.Unix(0, 1_500_000_000_000_000_000)
	block := BuildTestBlockWithSlot(t, bs.GenesisHash(), 1, 101)
	err := bs.AddBlockWithArrivalTime(block, arrival)
	require.NoError(t, err)

	res, err := bs.GetArrivalTime(block.Header.Hash())
	require.NoError(t, err)
	require.Equal(t, arrival.UnixNano(), res.UnixNano())
}

func TestBlockState_Justification(t *testing.T) {
	bs := newTestBlockState(t)

	block := BuildTestBlockWithSlot(t, bs.GenesisHash(), 1, 101)
	require.NoError(t, bs.AddBlock(block))

	hash := block.Header.Hash()
	has, err := bs.HasJustification(hash)
	require.NoError(t, err)
	require.False(t, has)

	err = bs.SetJustification(hash, []byte("testdata"))
	require.NoError(t, err)

	res, err := bs.GetJustification(hash)
	require.NoError(t, err)
	require.Equal(t, []byte("testdata"), res)
}

func TestBlockState_StoreAndLoadBlockTree(t *testing.T) {
	db := NewInMemoryDB(t)
	bs, err := NewBlockStateFromGenesis(db, newTestGenesisHeader())
	require.NoError(t, err)

	AddBlocksToState(t, bs, 5)
	best := bs.BestBlockHash()

	err = bs.storeBlockTree()
	require.NoError(t, err)

	bs2, err := NewBlockState(db)
	require.NoError(t, err)
	require.Equal(t, best, bs2.BestBlockHash())
	require.Equal(t, bs.GenesisHash(), bs2.GenesisHash())
	require.ElementsMatch(t, bs.Leaves(), bs2.Leaves())
}

func TestBlockState_ImportedNotifier(t *testing.T) {
	bs := newTestBlockState(t)

	ch := bs.GetImportedBlockNotifierChannel()
	defer bs.FreeImportedBlockNotifierChannel(ch)

	block := BuildTestBlockWithSlot(t, bs.GenesisHash(), 1, 101)
	require.NoError(t, bs.AddBlock(block))

	select {
	case imported := <-ch:
		require.Equal(t, block.Header.Hash(), imported.Header.Hash())
	case <-time.After(time.Second):
		t.Fatal("did not receive imported block notification")
	}
}

func TestBlockState_IsDescendantOf(t *testing.T) {
	bs := newTestBlockState(t)

	headers := AddBlocksToState(t, bs, 3)

	is, err := bs.IsDescendantOf(bs.GenesisHash(), headers[2].Hash())
	require.NoError(t, err)
	require.True(t, is)

	is, err = bs.IsDescendantOf(headers[2].Hash(), bs.GenesisHash())
	require.NoError(t, err)
	require.False(t, is)
}
