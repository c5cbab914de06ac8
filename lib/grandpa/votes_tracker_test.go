// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package grandpa

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/lib/crypto/ed25519"
)

func newTrackerVote(hash common.Hash, round uint64, authority byte) *VoteMessage {
	var id ed25519.PublicKeyBytes
	id[0] = authority

	return &VoteMessage{
		Round:       round,
		Vote:        *NewVote(hash, 1),
		AuthorityID: id,
	}
}

func TestVotesTracker_EvictsOldestAtCapacity(t *testing.T) {
	vt := newVotesTracker(2)

	h1 := common.Hash{1}
	h2 := common.Hash{2}
	h3 := common.Hash{3}

	vt.add("a", newTrackerVote(h1, 1, 1))
	vt.add("b", newTrackerVote(h2, 1, 2))
	vt.add("c", newTrackerVote(h3, 1, 3))

	require.Equal(t, 2, vt.len())
	require.Empty(t, vt.messages(h1))
	require.Len(t, vt.messages(h2), 1)
	require.Len(t, vt.messages(h3), 1)
}

func TestVotesTracker_ReplacesSameAuthorityAndBlock(t *testing.T) {
	vt := newVotesTracker(4)

	h1 := common.Hash{1}
	vt.add("a", newTrackerVote(h1, 1, 1))
	vt.add("a", newTrackerVote(h1, 2, 1))

	require.Equal(t, 1, vt.len())

	msgs := vt.messages(h1)
	require.Len(t, msgs, 1)
	require.Equal(t, uint64(2), msgs[0].msg.Round)
}

func TestVotesTracker_DeleteAndClear(t *testing.T) {
	vt := newVotesTracker(4)

	h1 := common.Hash{1}
	h2 := common.Hash{2}
	vt.add("a", newTrackerVote(h1, 1, 1))
	vt.add("b", newTrackerVote(h1, 1, 2))
	vt.add("c", newTrackerVote(h2, 1, 3))

	require.Equal(t, 3, vt.len())
	require.Len(t, vt.all(), 3)

	vt.delete(h1)
	require.Equal(t, 1, vt.len())
	require.Empty(t, vt.messages(h1))
	require.Len(t, vt.messages(h2), 1)

	vt.clear()
	require.Equal(t, 0, vt.len())
	require.Empty(t, vt.messages(h2))
}
