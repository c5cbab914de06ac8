// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package grandpa

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/tessera-net/tessera/lib/crypto/ed25519"
)

// finality gossip messages are a one-byte type tag followed by the
// msgpack encoding of the message body
const (
	voteMessageType byte = iota
	commitMessageType
)

// FullVote is the payload a voter signs to cast a vote. Binding the round
// and set ID into the signed bytes prevents a vote from being replayed in
// a different round or under a different voter set.
type FullVote struct {
	Round uint64
	SetID uint64
	Vote  Vote
}

// Encode returns the msgpack encoding of the full vote
func (f *FullVote) Encode() ([]byte, error) {
	return msgpack.Marshal(f)
}

// VoteMessage is gossiped by each voter once per round and carries a
// single signed vote
type VoteMessage struct {
	Round       uint64
	SetID       uint64
	Vote        Vote
	Signature   ed25519.SignatureBytes
	AuthorityID ed25519.PublicKeyBytes
}

// SignedVote returns the signed vote carried by the message
func (m *VoteMessage) SignedVote() *SignedVote {
	return &SignedVote{
		Vote:        m.Vote,
		Signature:   m.Signature,
		AuthorityID: m.AuthorityID,
	}
}

// Encode returns the tagged wire encoding of the message
func (m *VoteMessage) Encode() ([]byte, error) {
	return encodeMessage(voteMessageType, m)
}

// CommitMessage is gossiped when a round reaches quorum and carries the
// justification for the finalised block
type CommitMessage struct {
	Round  uint64
	SetID  uint64
	Commit Commit
}

// ToJustification returns the justification carried by the message
func (m *CommitMessage) ToJustification() *Justification {
	return &Justification{
		Round:  m.Round,
		Commit: m.Commit,
	}
}

// Encode returns the tagged wire encoding of the message
func (m *CommitMessage) Encode() ([]byte, error) {
	return encodeMessage(commitMessageType, m)
}

func newCommitMessage(just *Justification, setID uint64) *CommitMessage {
	return &CommitMessage{
		Round:  just.Round,
		SetID:  setID,
		Commit: just.Commit,
	}
}

func encodeMessage(msgType byte, msg interface{}) ([]byte, error) {
	enc, err := msgpack.Marshal(msg)
	if err != nil {
		return nil, err
	}

	return append([]byte{msgType}, enc...), nil
}

// decodeMessage decodes a tagged finality gossip message into either a
// *VoteMessage or a *CommitMessage
func decodeMessage(in []byte) (interface{}, error) {
	if len(in) < 2 {
		return nil, fmt.Errorf("%w: message too short", errInvalidMessageType)
	}

	switch in[0] {
	case voteMessageType:
		msg := new(VoteMessage)
		if err := msgpack.Unmarshal(in[1:], msg); err != nil {
			return nil, fmt.Errorf("cannot decode vote message: %w", err)
		}
		return msg, nil
	case commitMessageType:
		msg := new(CommitMessage)
		if err := msgpack.Unmarshal(in[1:], msg); err != nil {
			return nil, fmt.Errorf("cannot decode commit message: %w", err)
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("%w: %d", errInvalidMessageType, in[0])
	}
}
