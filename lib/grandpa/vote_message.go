// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package grandpa

import (
	"errors"
	"fmt"

	"github.com/tessera-net/tessera/lib/crypto/ed25519"
	"github.com/tessera-net/tessera/node/types"
)

// handleVoteMessage validates an incoming vote and stores it for the
// current round. Votes for the next round or for a block this node has
// not imported yet are parked and retried later; they produce no error.
func (s *Service) handleVoteMessage(from string, msg *VoteMessage) error {
	if err := verifyVoteSignature(msg); err != nil {
		return err
	}

	s.roundLock.Lock()
	defer s.roundLock.Unlock()

	if msg.SetID != s.state.setID {
		return fmt.Errorf("%w: got %d, current %d", ErrSetIDMismatch, msg.SetID, s.state.setID)
	}

	switch {
	case msg.Round == s.state.round:
	case msg.Round == s.state.round+1:
		// early vote for the next round, counted when the round starts
		s.tracker.add(from, msg)
		return nil
	case msg.Round < s.state.round:
		return fmt.Errorf("%w: got %d, current %d", errRoundOutdated, msg.Round, s.state.round)
	default:
		return fmt.Errorf("%w: got %d, current %d", errRoundTooFarAhead, msg.Round, s.state.round)
	}

	ourPub := s.keypair.Public().(*ed25519.PublicKey)
	if msg.AuthorityID == ourPub.AsBytes() {
		return errVoteFromSelf
	}

	voter, err := s.state.pubkeyToVoter(msg.AuthorityID)
	if err != nil {
		return err
	}

	if err := s.validateVoteBlock(from, msg); err != nil {
		if errors.Is(err, errVoteParked) {
			// counted once the block arrives
			return nil
		}
		return err
	}

	sv := msg.SignedVote()
	if equivocated := s.checkForEquivocation(voter, sv, msg.Round, msg.SetID); equivocated {
		return fmt.Errorf("%w: authority %s", ErrEquivocation, msg.AuthorityID)
	}

	s.votes[msg.AuthorityID] = sv
	logger.Trace("stored vote", "from", from, "round", msg.Round, "vote", msg.Vote)
	return nil
}

// verifyVoteSignature checks the message signature over the full vote
// for its round and set ID
func verifyVoteSignature(msg *VoteMessage) error {
	full := &FullVote{
		Round: msg.Round,
		SetID: msg.SetID,
		Vote:  msg.Vote,
	}

	enc, err := full.Encode()
	if err != nil {
		return err
	}

	pub, err := ed25519.NewPublicKey(msg.AuthorityID[:])
	if err != nil {
		return err
	}

	ok, err := pub.Verify(enc, msg.Signature[:])
	if err != nil {
		return err
	}

	if !ok {
		return fmt.Errorf("%w: authority %s round %d", ErrInvalidSignature, msg.AuthorityID, msg.Round)
	}
	return nil
}

// validateVoteBlock checks the voted block is known and on a chain
// descending from the last finalised block. An unknown block parks the
// vote and returns errVoteParked so the caller does not count it before
// the block is imported. Caller holds the round lock.
func (s *Service) validateVoteBlock(from string, msg *VoteMessage) error {
	has, err := s.blockState.HasHeader(msg.Vote.Hash)
	if err != nil {
		return err
	}

	if !has {
		s.tracker.add(from, msg)
		logger.Trace("parked vote for unknown block", "from", from, "hash", msg.Vote.Hash)
		return errVoteParked
	}

	head, err := s.blockState.GetHighestFinalisedHeader()
	if err != nil {
		return err
	}

	isDescendant, err := s.blockState.IsDescendantOf(head.Hash(), msg.Vote.Hash)
	if err != nil {
		return err
	}

	if !isDescendant {
		return errVoteBlockMismatch
	}
	return nil
}

// checkForEquivocation records evidence when a voter casts a second,
// different vote in the same round. Both votes are kept as evidence and
// removed from the counting set; the voter still contributes a single
// weight to every candidate through the equivocator count. A repeat of
// the same vote is not an equivocation. Caller holds the round lock.
func (s *Service) checkForEquivocation(voter *types.GrandpaVoter, sv *SignedVote, round, setID uint64) bool {
	id := voter.PublicKeyBytes()

	if evidence, has := s.equivocations[id]; has {
		for _, prev := range evidence {
			if prev.Vote == sv.Vote {
				return true
			}
		}
		s.equivocations[id] = append(evidence, sv)
		return true
	}

	prev, voted := s.votes[id]
	if !voted || prev.Vote == sv.Vote {
		return false
	}

	s.equivocations[id] = []*SignedVote{prev, sv}
	delete(s.votes, id)

	logger.Warn("voter equivocated",
		"round", round,
		"authority", id,
		"first", prev.Vote,
		"second", sv.Vote,
	)

	if err := s.grandpaState.ReportEquivocation(setID, round, id); err != nil {
		logger.Warn("cannot record equivocation report", "error", err)
	}
	return true
}
