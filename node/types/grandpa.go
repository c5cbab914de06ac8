// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package types

import (
	"fmt"
	"strings"

	"github.com/tessera-net/tessera/lib/crypto/ed25519"
)

// GrandpaVoter represents a finality authority: an ed25519 key and a
// voter ID used as its weight
type GrandpaVoter struct {
	Key *ed25519.PublicKey
	ID  uint64
}

// PublicKeyBytes returns the voter key as fixed-size bytes
func (v *GrandpaVoter) PublicKeyBytes() ed25519.PublicKeyBytes {
	return v.Key.AsBytes()
}

// String returns a compact representation of the voter
func (v *GrandpaVoter) String() string {
	return fmt.Sprintf("[key=0x%x id=%d]", v.PublicKeyBytes(), v.ID)
}

// GrandpaVoterRaw is a voter with its key in raw byte form
type GrandpaVoterRaw struct {
	Key [ed25519.PublicKeyLength]byte
	ID  uint64
}

// ToRaw returns the raw form of the voter
func (v *GrandpaVoter) ToRaw() GrandpaVoterRaw {
	raw := GrandpaVoterRaw{ID: v.ID}
	copy(raw.Key[:], v.Key.Encode())
	return raw
}

// FromRaw sets the voter from its raw form
func (v *GrandpaVoter) FromRaw(raw GrandpaVoterRaw) error {
	key, err := ed25519.NewPublicKey(raw.Key[:])
	if err != nil {
		return fmt.Errorf("cannot decode voter key: %w", err)
	}

	v.Key = key
	v.ID = raw.ID
	return nil
}

// GrandpaVoters is the set of voters for a finality authority set
type GrandpaVoters []GrandpaVoter

// String returns a readable form of the voter set
func (v GrandpaVoters) String() string {
	parts := make([]string, len(v))
	for i := range v {
		parts[i] = v[i].String()
	}
	return strings.Join(parts, " ")
}

// TotalWeight returns the summed weight of all voters. Each voter has
// weight 1.
func (v GrandpaVoters) TotalWeight() uint64 {
	return uint64(len(v))
}

// GrandpaVotersToRaw converts voters to raw form
func GrandpaVotersToRaw(voters GrandpaVoters) []GrandpaVoterRaw {
	raw := make([]GrandpaVoterRaw, len(voters))
	for i := range voters {
		raw[i] = voters[i].ToRaw()
	}
	return raw
}

// GrandpaVotersFromRaw converts raw voters to voters
func GrandpaVotersFromRaw(raw []GrandpaVoterRaw) (GrandpaVoters, error) {
	voters := make(GrandpaVoters, len(raw))
	for i := range raw {
		if err := voters[i].FromRaw(raw[i]); err != nil {
			return nil, fmt.Errorf("voter %d: %w", i, err)
		}
	}
	return voters, nil
}

// FinalisationInfo is the metadata attached to a finalised block
// notification
type FinalisationInfo struct {
	Header Header
	Round  uint64
	SetID  uint64
}
