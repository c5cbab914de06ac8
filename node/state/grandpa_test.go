// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tessera-net/tessera/lib/crypto/ed25519"
	"github.com/tessera-net/tessera/lib/genesis"
	"github.com/tessera-net/tessera/lib/keystore"
	"github.com/tessera-net/tessera/node/types"
)

func TestGrandpaState_Genesis(t *testing.T) {
	srv := NewTestService(t)

	setID, err := srv.Grandpa.GetCurrentSetID()
	require.NoError(t, err)
	require.Equal(t, uint64(0), setID)

	voters, err := srv.Grandpa.GetAuthorities(0)
	require.NoError(t, err)
	require.Len(t, voters, genesis.DevAuthorityCount)

	activeFrom, err := srv.Grandpa.GetSetIDChange(0)
	require.NoError(t, err)
	require.Equal(t, uint64(0), activeFrom)

	round, err := srv.Grandpa.GetLatestRound()
	require.NoError(t, err)
	require.Equal(t, uint64(0), round)
}

func TestGrandpaState_SetNextChange(t *testing.T) {
	srv := NewTestService(t)

	voters, err := srv.Grandpa.GetAuthorities(0)
	require.NoError(t, err)

	err = srv.Grandpa.SetNextChange(voters[:2], 10)
	require.NoError(t, err)

	next, err := srv.Grandpa.GetAuthorities(1)
	require.NoError(t, err)
	require.Len(t, next, 2)

	// the set ID is not incremented until the change is enacted
	setID, err := srv.Grandpa.GetCurrentSetID()
	require.NoError(t, err)
	require.Equal(t, uint64(0), setID)

	setID, err = srv.Grandpa.IncrementSetID()
	require.NoError(t, err)
	require.Equal(t, uint64(1), setID)
}

func TestGrandpaState_GetSetIDByBlockNumber(t *testing.T) {
	srv := NewTestService(t)

	voters, err := srv.Grandpa.GetAuthorities(0)
	require.NoError(t, err)

	err = srv.Grandpa.SetNextChange(voters, 10)
	require.NoError(t, err)

	_, err = srv.Grandpa.IncrementSetID()
	require.NoError(t, err)

	setID, err := srv.Grandpa.GetSetIDByBlockNumber(5)
	require.NoError(t, err)
	require.Equal(t, uint64(0), setID)

	setID, err = srv.Grandpa.GetSetIDByBlockNumber(10)
	require.NoError(t, err)
	require.Equal(t, uint64(1), setID)

	setID, err = srv.Grandpa.GetSetIDByBlockNumber(100)
	require.NoError(t, err)
	require.Equal(t, uint64(1), setID)
}

func TestGrandpaState_LatestRound(t *testing.T) {
	srv := NewTestService(t)

	err := srv.Grandpa.SetLatestRound(7)
	require.NoError(t, err)

	round, err := srv.Grandpa.GetLatestRound()
	require.NoError(t, err)
	require.Equal(t, uint64(7), round)
}

func TestGrandpaState_GetAuthorities_NotFound(t *testing.T) {
	srv := NewTestService(t)

	_, err := srv.Grandpa.GetAuthorities(9)
	require.ErrorIs(t, err, ErrSetIDNotFound)
}

func TestGrandpaState_ApplyScheduledChange(t *testing.T) {
	srv := NewTestService(t)

	voters, err := srv.Grandpa.GetAuthorities(0)
	require.NoError(t, err)

	// no change scheduled: a finalised block is a no-op
	err = srv.Grandpa.ApplyScheduledChange(&types.Header{Number: 5})
	require.NoError(t, err)

	setID, err := srv.Grandpa.GetCurrentSetID()
	require.NoError(t, err)
	require.Equal(t, uint64(0), setID)

	err = srv.Grandpa.SetNextChange(voters[:1], 10)
	require.NoError(t, err)

	// finalisation has not reached the change block yet
	err = srv.Grandpa.ApplyScheduledChange(&types.Header{Number: 9})
	require.NoError(t, err)

	setID, err = srv.Grandpa.GetCurrentSetID()
	require.NoError(t, err)
	require.Equal(t, uint64(0), setID)

	err = srv.Grandpa.ApplyScheduledChange(&types.Header{Number: 10})
	require.NoError(t, err)

	setID, err = srv.Grandpa.GetCurrentSetID()
	require.NoError(t, err)
	require.Equal(t, uint64(1), setID)

	// applying again with no further change scheduled is a no-op
	err = srv.Grandpa.ApplyScheduledChange(&types.Header{Number: 11})
	require.NoError(t, err)

	setID, err = srv.Grandpa.GetCurrentSetID()
	require.NoError(t, err)
	require.Equal(t, uint64(1), setID)
}

func TestGrandpaState_ReportEquivocation(t *testing.T) {
	srv := NewTestService(t)

	kr, err := keystore.NewEd25519Keyring()
	require.NoError(t, err)

	offender := kr.Dave().Public().(*ed25519.PublicKey).AsBytes()

	reports, err := srv.Grandpa.GetEquivocationReports(0, 1)
	require.NoError(t, err)
	require.Empty(t, reports)

	err = srv.Grandpa.ReportEquivocation(0, 1, offender)
	require.NoError(t, err)

	// reporting the same offender twice is a no-op
	err = srv.Grandpa.ReportEquivocation(0, 1, offender)
	require.NoError(t, err)

	reports, err = srv.Grandpa.GetEquivocationReports(0, 1)
	require.NoError(t, err)
	require.Equal(t, []ed25519.PublicKeyBytes{offender}, reports)

	second := kr.ByName("eve").Public().(*ed25519.PublicKey).AsBytes()
	err = srv.Grandpa.ReportEquivocation(0, 1, second)
	require.NoError(t, err)

	reports, err = srv.Grandpa.GetEquivocationReports(0, 1)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	// reports are scoped per round
	reports, err = srv.Grandpa.GetEquivocationReports(0, 2)
	require.NoError(t, err)
	require.Empty(t, reports)
}
