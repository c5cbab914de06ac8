// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package grandpa

import (
	"errors"
)

var (
	// ErrInvalidSignature is returned when a vote or justification carries
	// a signature that does not verify against the claimed authority key
	ErrInvalidSignature = errors.New("signature is not valid")

	// ErrVoterNotFound is returned when a vote is signed by a key outside
	// the voter set for its set ID
	ErrVoterNotFound = errors.New("voter is not in voter set")

	// ErrSetIDMismatch is returned when a message references a set ID other
	// than the one this service is voting with
	ErrSetIDMismatch = errors.New("set IDs do not match")

	// ErrEquivocation is returned when a voter has cast two distinct votes
	// in the same round
	ErrEquivocation = errors.New("vote is equivocatory")

	// ErrJustificationBelowThreshold is returned when the votes in a
	// justification do not reach two thirds of the voter set weight
	ErrJustificationBelowThreshold = errors.New("justification sum below threshold")

	// ErrJustificationMismatch is returned when a justification is checked
	// against a block other than its commit target
	ErrJustificationMismatch = errors.New("justification does not target block")

	errNilBlockState      = errors.New("block state is nil")
	errNilGrandpaState    = errors.New("grandpa state is nil")
	errNilKeypair         = errors.New("keypair is nil")
	errNilFinalityHandler = errors.New("finality handler is nil")

	errVoteFromSelf       = errors.New("vote was signed with our own key")
	errVoteParked         = errors.New("vote parked until its block is imported")
	errVoteBlockMismatch  = errors.New("vote block is not a descendant of the finalised block")
	errRoundOutdated      = errors.New("vote round is below the current round")
	errRoundTooFarAhead   = errors.New("vote round is too far ahead of the current round")
	errRoundTimeout       = errors.New("round timed out without reaching quorum")
	errInvalidMessageType = errors.New("invalid finality message type")
	errServiceStopped     = errors.New("service has been stopped")
)
