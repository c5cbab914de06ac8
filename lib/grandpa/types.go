// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package grandpa

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/lib/crypto/ed25519"
	"github.com/tessera-net/tessera/node/types"
)

// Vote is a statement about a single block: its hash and number.
type Vote struct {
	Hash   common.Hash
	Number uint64
}

// NewVote returns a vote for the given block
func NewVote(hash common.Hash, number uint64) *Vote {
	return &Vote{
		Hash:   hash,
		Number: number,
	}
}

// NewVoteFromHeader returns a vote for the block described by the header
func NewVoteFromHeader(h *types.Header) *Vote {
	return NewVote(h.Hash(), uint64(h.Number))
}

func (v Vote) String() string {
	return fmt.Sprintf("hash=%s number=%d", v.Hash, v.Number)
}

// SignedVote is a vote with the signature and identity of the voter who
// cast it. The signature covers the msgpack encoding of the FullVote for
// the round and set ID the vote was cast in.
type SignedVote struct {
	Vote        Vote
	Signature   ed25519.SignatureBytes
	AuthorityID ed25519.PublicKeyBytes
}

func (s *SignedVote) String() string {
	return fmt.Sprintf("%s authority=%s", s.Vote, s.AuthorityID)
}

// Commit is the target of a finalised round together with every vote
// backing it. Votes may target the commit block itself or any descendant
// of it; equivocatory votes are carried as evidence.
type Commit struct {
	Hash   common.Hash
	Number uint64
	Votes  []SignedVote
}

// Justification is the proof of finality for a single block: the round it
// was finalised in and the commit reaching quorum for it. It is formed
// once per target and never regenerated.
type Justification struct {
	Round  uint64
	Commit Commit
}

// Encode returns the msgpack encoding of the justification
func (j *Justification) Encode() ([]byte, error) {
	return msgpack.Marshal(j)
}

// Decode sets the justification from its msgpack encoding
func (j *Justification) Decode(in []byte) error {
	return msgpack.Unmarshal(in, j)
}

// State tracks the voter set a service votes with. The set is replaced,
// never mutated, when the set ID increments at an authority change.
type State struct {
	voters types.GrandpaVoters
	setID  uint64
	round  uint64
}

// NewState returns a new State with the given voter set
func NewState(voters types.GrandpaVoters, setID, round uint64) *State {
	return &State{
		voters: voters,
		setID:  setID,
		round:  round,
	}
}

// pubkeyToVoter returns the voter for the given public key, or
// ErrVoterNotFound if the key is not in the voter set
func (s *State) pubkeyToVoter(pk ed25519.PublicKeyBytes) (*types.GrandpaVoter, error) {
	for i := range s.voters {
		if s.voters[i].PublicKeyBytes() == pk {
			return &s.voters[i], nil
		}
	}

	return nil, ErrVoterNotFound
}

// threshold returns the minimum vote weight for quorum: two thirds of the
// total voter weight, rounded up
func (s *State) threshold() uint64 {
	return voteThreshold(s.voters.TotalWeight())
}

func voteThreshold(totalWeight uint64) uint64 {
	return (2*totalWeight + 2) / 3
}
