// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package babe

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/node/types"
)

func TestInitiateEpoch_Genesis(t *testing.T) {
	babeService, _ := createTestService(t, &ServiceConfig{Authority: true})
	babeService.epochData.threshold = common.MaxUint128

	startSlot := getCurrentSlot(babeService.slotDuration)
	err := babeService.initiateEpoch(0, startSlot)
	require.NoError(t, err)

	// with the maximum threshold every slot of the epoch is claimed
	require.Len(t, babeService.slotToProof, int(babeService.epochLength))

	_, has := babeService.slotToProof[startSlot]
	require.True(t, has)
	_, has = babeService.slotToProof[startSlot+babeService.epochLength-1]
	require.True(t, has)
}

func TestInitiateEpoch_MissingEpochData(t *testing.T) {
	babeService, _ := createTestService(t, &ServiceConfig{Authority: true})

	err := babeService.initiateEpoch(1, getCurrentSlot(babeService.slotDuration))
	require.ErrorIs(t, err, ErrEpochDataNotFound)
}

func TestInitiateEpoch_NextEpoch(t *testing.T) {
	babeService, stateSrvc := createTestService(t, &ServiceConfig{Authority: true})
	babeService.epochData.threshold = common.MaxUint128

	startSlot := getCurrentSlot(babeService.slotDuration)
	require.NoError(t, babeService.initiateEpoch(0, startSlot))

	// announce epoch 1 with fresh randomness and the same authorities
	require.NoError(t, stateSrvc.Epoch.SetEpochData(1, &types.EpochData{
		Authorities: babeService.epochData.authorities,
		Randomness:  types.Randomness{9, 9, 9},
	}))

	nextStart := startSlot + babeService.epochLength
	require.NoError(t, babeService.initiateEpoch(1, nextStart))

	require.Equal(t, Randomness{9, 9, 9}, babeService.epochData.randomness)
	require.Equal(t, uint32(0), babeService.epochData.authorityIndex)

	// proofs from the previous epoch have been cleared
	for s := range babeService.slotToProof {
		require.GreaterOrEqual(t, s, nextStart)
	}
}

func TestInitiateEpoch_NotInNextAuthoritySet(t *testing.T) {
	babeService, stateSrvc := createTestService(t, &ServiceConfig{Authority: true})
	babeService.epochData.threshold = common.MaxUint128

	startSlot := getCurrentSlot(babeService.slotDuration)
	require.NoError(t, babeService.initiateEpoch(0, startSlot))
	require.NotEmpty(t, babeService.slotToProof)

	// epoch 1's set does not include this node's key
	other := babeService.epochData.authorities[1:]
	require.NoError(t, stateSrvc.Epoch.SetEpochData(1, &types.EpochData{
		Authorities: other,
		Randomness:  types.Randomness{1},
	}))

	nextStart := startSlot + babeService.epochLength
	require.NoError(t, babeService.initiateEpoch(1, nextStart))

	// the node idles: no claims for the new epoch
	require.Empty(t, babeService.slotToProof)
}

func TestIncrementEpoch(t *testing.T) {
	babeService, _ := createTestService(t, &ServiceConfig{Authority: true})

	next, err := babeService.incrementEpoch()
	require.NoError(t, err)
	require.Equal(t, uint64(1), next)

	next, err = babeService.incrementEpoch()
	require.NoError(t, err)
	require.Equal(t, uint64(2), next)

	epoch, err := babeService.epochState.GetCurrentEpoch()
	require.NoError(t, err)
	require.Equal(t, uint64(2), epoch)
}
