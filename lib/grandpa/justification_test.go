// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package grandpa

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/lib/crypto/ed25519"
	"github.com/tessera-net/tessera/node/state"
	"github.com/tessera-net/tessera/node/types"
)

// headerMap is a chain view holding nothing but headers, as a light
// client would
type headerMap map[common.Hash]*types.Header

func (m headerMap) GetHeader(hash common.Hash) (*types.Header, error) {
	header, has := m[hash]
	if !has {
		return nil, fmt.Errorf("header not found: %s", hash)
	}
	return header, nil
}

func buildTestJustification(t *testing.T, round, setID uint64, target *types.Header,
	votes map[*ed25519.Keypair]*Vote) *Justification {
	t.Helper()

	signed := make([]SignedVote, 0, len(votes))
	for kp, vote := range votes {
		msg := signTestVote(t, kp, vote, round, setID)
		signed = append(signed, *msg.SignedVote())
	}

	return &Justification{
		Round: round,
		Commit: Commit{
			Hash:   target.Hash(),
			Number: uint64(target.Number),
			Votes:  signed,
		},
	}
}

func TestVerifyJustification_Valid(t *testing.T) {
	kr := testKeyring(t)
	stateSrvc := state.NewTestService(t)

	headers := state.AddBlocksToState(t, stateSrvc.Block, 3)
	target := headers[1]
	tip := headers[2]

	voters, err := stateSrvc.Grandpa.GetAuthorities(0)
	require.NoError(t, err)

	// alice votes the target directly, bob and charlie vote a descendant
	just := buildTestJustification(t, 1, 0, target, map[*ed25519.Keypair]*Vote{
		kr.Alice():   NewVoteFromHeader(target),
		kr.Bob():     NewVoteFromHeader(tip),
		kr.Charlie(): NewVoteFromHeader(tip),
	})

	err = VerifyJustification(stateSrvc.Block, voters, 0, just)
	require.NoError(t, err)
}

func TestVerifyJustification_BelowThreshold(t *testing.T) {
	kr := testKeyring(t)
	stateSrvc := state.NewTestService(t)

	headers := state.AddBlocksToState(t, stateSrvc.Block, 1)
	target := headers[0]

	voters, err := stateSrvc.Grandpa.GetAuthorities(0)
	require.NoError(t, err)

	just := buildTestJustification(t, 1, 0, target, map[*ed25519.Keypair]*Vote{
		kr.Alice(): NewVoteFromHeader(target),
	})

	err = VerifyJustification(stateSrvc.Block, voters, 0, just)
	require.ErrorIs(t, err, ErrJustificationBelowThreshold)
}

func TestVerifyJustification_DuplicateVoterCountedOnce(t *testing.T) {
	kr := testKeyring(t)
	stateSrvc := state.NewTestService(t)

	err := stateSrvc.Grandpa.SetAuthorities(0,
		newTestVoters(t, kr.Alice(), kr.Bob(), kr.Charlie(), kr.Dave()))
	require.NoError(t, err)

	headers := state.AddBlocksToState(t, stateSrvc.Block, 1)
	target := headers[0]

	voters, err := stateSrvc.Grandpa.GetAuthorities(0)
	require.NoError(t, err)

	just := buildTestJustification(t, 1, 0, target, map[*ed25519.Keypair]*Vote{
		kr.Alice(): NewVoteFromHeader(target),
		kr.Bob():   NewVoteFromHeader(target),
	})

	// pad with a copy of bob's vote; three signed votes but only two
	// distinct voters, below the threshold of three
	just.Commit.Votes = append(just.Commit.Votes, *signTestVote(t, kr.Bob(),
		NewVoteFromHeader(target), 1, 0).SignedVote())
	require.Len(t, just.Commit.Votes, 3)

	err = VerifyJustification(stateSrvc.Block, voters, 0, just)
	require.ErrorIs(t, err, ErrJustificationBelowThreshold)
}

func TestVerifyJustification_InvalidSignature(t *testing.T) {
	kr := testKeyring(t)
	stateSrvc := state.NewTestService(t)

	headers := state.AddBlocksToState(t, stateSrvc.Block, 1)
	target := headers[0]

	voters, err := stateSrvc.Grandpa.GetAuthorities(0)
	require.NoError(t, err)

	just := buildTestJustification(t, 1, 0, target, map[*ed25519.Keypair]*Vote{
		kr.Alice(): NewVoteFromHeader(target),
		kr.Bob():   NewVoteFromHeader(target),
	})

	// a vote signed for a different round does not verify for this one
	just.Commit.Votes[0] = *signTestVote(t, kr.Alice(),
		NewVoteFromHeader(target), 2, 0).SignedVote()

	err = VerifyJustification(stateSrvc.Block, voters, 0, just)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyJustification_UnknownVoter(t *testing.T) {
	kr := testKeyring(t)
	stateSrvc := state.NewTestService(t)

	headers := state.AddBlocksToState(t, stateSrvc.Block, 1)
	target := headers[0]

	voters, err := stateSrvc.Grandpa.GetAuthorities(0)
	require.NoError(t, err)

	outsider, err := ed25519.GenerateKeypair()
	require.NoError(t, err)

	just := buildTestJustification(t, 1, 0, target, map[*ed25519.Keypair]*Vote{
		kr.Alice(): NewVoteFromHeader(target),
		kr.Bob():   NewVoteFromHeader(target),
		outsider:   NewVoteFromHeader(target),
	})

	err = VerifyJustification(stateSrvc.Block, voters, 0, just)
	require.ErrorIs(t, err, ErrVoterNotFound)
}

// A light client holding nothing but headers can verify a justification,
// including votes for descendants of the target.
func TestVerifyJustification_HeadersOnly(t *testing.T) {
	kr := testKeyring(t)

	b1 := state.BuildTestBlockWithSlot(t, common.Hash{9}, 1, 101)
	b2 := state.BuildTestBlockWithSlot(t, b1.Header.Hash(), 2, 102)

	voters := newTestVoters(t, kr.Alice(), kr.Bob(), kr.Charlie())

	just := buildTestJustification(t, 1, 0, &b1.Header, map[*ed25519.Keypair]*Vote{
		kr.Alice():   NewVoteFromHeader(&b1.Header),
		kr.Bob():     NewVoteFromHeader(&b2.Header),
		kr.Charlie(): NewVoteFromHeader(&b2.Header),
	})

	// only the descendant's header is needed to walk back to the target
	headers := headerMap{b2.Header.Hash(): &b2.Header}

	err := VerifyJustification(headers, voters, 0, just)
	require.NoError(t, err)

	// without that header the descendant votes cannot be counted
	err = VerifyJustification(headerMap{}, voters, 0, just)
	require.ErrorIs(t, err, ErrJustificationBelowThreshold)
}

func TestVerifyBlockJustification(t *testing.T) {
	kr := testKeyring(t)
	stateSrvc := state.NewTestService(t)

	headers := state.AddBlocksToState(t, stateSrvc.Block, 2)
	target := headers[1]

	just := buildTestJustification(t, 1, 0, target, map[*ed25519.Keypair]*Vote{
		kr.Alice(): NewVoteFromHeader(target),
		kr.Bob():   NewVoteFromHeader(target),
	})

	enc, err := just.Encode()
	require.NoError(t, err)

	decoded, err := VerifyBlockJustification(stateSrvc.Block, stateSrvc.Grandpa, target.Hash(), enc)
	require.NoError(t, err)
	require.Equal(t, just.Round, decoded.Round)
	require.Equal(t, just.Commit.Hash, decoded.Commit.Hash)

	// checking it against a different block fails
	_, err = VerifyBlockJustification(stateSrvc.Block, stateSrvc.Grandpa, headers[0].Hash(), enc)
	require.ErrorIs(t, err, ErrJustificationMismatch)
}
