// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package grandpa

import (
	"fmt"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/lib/crypto/ed25519"
	"github.com/tessera-net/tessera/node/types"
)

// VerifyJustification checks a justification against the given voter
// set. Every vote must be correctly signed by a set member for the
// justification's round; the weight of the counted votes must reach two
// thirds of the set. A voter appearing more than once counts once, so
// equivocation evidence inside a justification cannot inflate its
// weight. Votes that do not target the commit block or a descendant of
// it are evidence only and never counted.
//
// Descent is checked by walking parent hashes, so a header-only chain
// view is enough; no block bodies and no block tree are required.
func VerifyJustification(headers HeaderGetter, voters types.GrandpaVoters, setID uint64, j *Justification) error {
	counted := make(map[ed25519.PublicKeyBytes]struct{}, len(j.Commit.Votes))
	var weight uint64

	for i := range j.Commit.Votes {
		sv := &j.Commit.Votes[i]

		if !votersContain(voters, sv.AuthorityID) {
			return fmt.Errorf("%w: authority %s", ErrVoterNotFound, sv.AuthorityID)
		}

		if err := verifyJustificationVote(sv, j.Round, setID); err != nil {
			return err
		}

		if _, has := counted[sv.AuthorityID]; has {
			continue
		}

		onChain, err := headerChainContains(headers, j.Commit.Hash, j.Commit.Number, sv.Vote)
		if err != nil || !onChain {
			continue
		}

		counted[sv.AuthorityID] = struct{}{}
		weight++
	}

	if threshold := voteThreshold(voters.TotalWeight()); weight < threshold {
		return fmt.Errorf("%w: got %d, need %d", ErrJustificationBelowThreshold, weight, threshold)
	}
	return nil
}

// VerifyBlockJustification decodes and verifies a stored justification
// for the given block, resolving the voter set from the set ID active at
// the block's number
func VerifyBlockJustification(headers HeaderGetter, gs GrandpaState, hash common.Hash, data []byte) (*Justification, error) {
	j := new(Justification)
	if err := j.Decode(data); err != nil {
		return nil, fmt.Errorf("cannot decode justification: %w", err)
	}

	if j.Commit.Hash != hash {
		return nil, fmt.Errorf("%w: justification targets %s", ErrJustificationMismatch, j.Commit.Hash)
	}

	setID, err := gs.GetSetIDByBlockNumber(j.Commit.Number)
	if err != nil {
		return nil, err
	}

	voters, err := gs.GetAuthorities(setID)
	if err != nil {
		return nil, err
	}

	if err := VerifyJustification(headers, voters, setID, j); err != nil {
		return nil, err
	}
	return j, nil
}

func votersContain(voters types.GrandpaVoters, id ed25519.PublicKeyBytes) bool {
	for i := range voters {
		if voters[i].PublicKeyBytes() == id {
			return true
		}
	}
	return false
}

func verifyJustificationVote(sv *SignedVote, round, setID uint64) error {
	full := &FullVote{
		Round: round,
		SetID: setID,
		Vote:  sv.Vote,
	}

	enc, err := full.Encode()
	if err != nil {
		return err
	}

	pub, err := ed25519.NewPublicKey(sv.AuthorityID[:])
	if err != nil {
		return err
	}

	ok, err := pub.Verify(enc, sv.Signature[:])
	if err != nil {
		return err
	}

	if !ok {
		return fmt.Errorf("%w: authority %s round %d", ErrInvalidSignature, sv.AuthorityID, round)
	}
	return nil
}

// headerChainContains reports whether the chain from the vote block down
// to the target number passes through the target block
func headerChainContains(headers HeaderGetter, target common.Hash, targetNumber uint64, vote Vote) (bool, error) {
	if vote.Hash == target {
		return vote.Number == targetNumber, nil
	}

	if vote.Number <= targetNumber {
		return false, nil
	}

	hash := vote.Hash
	for n := vote.Number; n > targetNumber; n-- {
		header, err := headers.GetHeader(hash)
		if err != nil {
			return false, err
		}
		hash = header.ParentHash
	}

	return hash == target, nil
}
