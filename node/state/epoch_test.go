// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tessera-net/tessera/lib/genesis"
)

func TestEpochState_Genesis(t *testing.T) {
	srv := NewTestService(t)

	curr, err := srv.Epoch.GetCurrentEpoch()
	require.NoError(t, err)
	require.Equal(t, uint64(0), curr)

	data, err := srv.Epoch.GetEpochData(0)
	require.NoError(t, err)
	require.Len(t, data.Authorities, genesis.DevAuthorityCount)

	require.Equal(t, uint64(200), srv.Epoch.GetEpochLength())
}

func TestEpochState_GetEpochData_NotFound(t *testing.T) {
	srv := NewTestService(t)

	_, err := srv.Epoch.GetEpochData(42)
	require.ErrorIs(t, err, ErrEpochNotFound)

	has, err := srv.Epoch.HasEpochData(42)
	require.NoError(t, err)
	require.False(t, has)
}

func TestEpochState_SetEpochData(t *testing.T) {
	srv := NewTestService(t)

	data, err := srv.Epoch.GetEpochData(0)
	require.NoError(t, err)

	err = srv.Epoch.SetEpochData(1, data)
	require.NoError(t, err)

	res, err := srv.Epoch.GetEpochData(1)
	require.NoError(t, err)
	require.Equal(t, data.ToEpochDataRaw(), res.ToEpochDataRaw())
}

func TestEpochState_GetEpochForBlock(t *testing.T) {
	srv := NewTestService(t)

	// block 1 anchors the first slot
	headers := AddBlocksToState(t, srv.Block, 2)

	epoch, err := srv.Epoch.GetEpochForBlock(headers[0])
	require.NoError(t, err)
	require.Equal(t, uint64(0), epoch)

	epoch, err = srv.Epoch.GetEpochForBlock(headers[1])
	require.NoError(t, err)
	require.Equal(t, uint64(0), epoch)

	firstSlot := uint64(101)
	epochLength := srv.Epoch.GetEpochLength()

	// a block one epoch length past the first slot is in epoch 1
	block := BuildTestBlockWithSlot(t, headers[1].Hash(), 3, firstSlot+epochLength)
	epoch, err = srv.Epoch.GetEpochForBlock(&block.Header)
	require.NoError(t, err)
	require.Equal(t, uint64(1), epoch)

	block = BuildTestBlockWithSlot(t, headers[1].Hash(), 3, firstSlot+3*epochLength+5)
	epoch, err = srv.Epoch.GetEpochForBlock(&block.Header)
	require.NoError(t, err)
	require.Equal(t, uint64(3), epoch)
}

func TestEpochState_GetStartSlotForEpoch(t *testing.T) {
	srv := NewTestService(t)

	AddBlocksToState(t, srv.Block, 1)

	// anchor the first slot
	header, err := srv.Block.GetHeaderByNumber(1)
	require.NoError(t, err)
	_, err = srv.Epoch.GetEpochForBlock(header)
	require.NoError(t, err)

	start, err := srv.Epoch.GetStartSlotForEpoch(0)
	require.NoError(t, err)
	require.Equal(t, uint64(101), start)

	start, err = srv.Epoch.GetStartSlotForEpoch(2)
	require.NoError(t, err)
	require.Equal(t, uint64(101)+2*srv.Epoch.GetEpochLength(), start)
}
