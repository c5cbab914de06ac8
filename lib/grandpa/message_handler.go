// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package grandpa

import (
	"fmt"
)

// HandleNetworkMessage processes a finality message received from the
// given peer. The returned error classifies the message for the caller:
// signature and encoding errors mean the message is malformed and the
// peer should be penalised; parked votes return nil.
func (s *Service) HandleNetworkMessage(from string, data []byte) error {
	msg, err := decodeMessage(data)
	if err != nil {
		return err
	}

	switch m := msg.(type) {
	case *VoteMessage:
		return s.handleVoteMessage(from, m)
	case *CommitMessage:
		return s.handleCommitMessage(from, m)
	default:
		return errInvalidMessageType
	}
}

// handleCommitMessage verifies a commit produced by another voter and
// hands its justification to the finality handler. The handler enforces
// that finalisation only ever moves forward, so commits for rounds this
// node has already passed are harmless.
func (s *Service) handleCommitMessage(from string, msg *CommitMessage) error {
	logger.Debug("received commit message",
		"from", from,
		"round", msg.Round,
		"hash", msg.Commit.Hash,
		"number", msg.Commit.Number,
	)

	voters, err := s.grandpaState.GetAuthorities(msg.SetID)
	if err != nil {
		return fmt.Errorf("%w: set %d", ErrSetIDMismatch, msg.SetID)
	}

	just := msg.ToJustification()
	if err := VerifyJustification(s.blockState, voters, msg.SetID, just); err != nil {
		return err
	}

	return s.finalityHandler.HandleJustification(just)
}
