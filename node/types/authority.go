// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package types

import (
	"fmt"

	"github.com/tessera-net/tessera/lib/crypto/sr25519"
)

// RandomnessLength is the byte length of epoch randomness
const RandomnessLength = 32

// Randomness is the epoch randomness value
type Randomness [RandomnessLength]byte

// Authority is a block production authority: an sr25519 key and a
// voting weight
type Authority struct {
	Key    *sr25519.PublicKey
	Weight uint64
}

// NewAuthority creates a new block production authority
func NewAuthority(pub *sr25519.PublicKey, weight uint64) Authority {
	return Authority{Key: pub, Weight: weight}
}

// AuthorityRaw is an authority with its key in raw byte form, suitable
// for encoding and for runtime exchange
type AuthorityRaw struct {
	Key    [sr25519.PublicKeyLength]byte
	Weight uint64
}

// ToRaw returns the raw form of the authority
func (a *Authority) ToRaw() AuthorityRaw {
	raw := AuthorityRaw{Weight: a.Weight}
	copy(raw.Key[:], a.Key.Encode())
	return raw
}

// FromRaw sets the authority from its raw form
func (a *Authority) FromRaw(raw AuthorityRaw) error {
	key, err := sr25519.NewPublicKey(raw.Key[:])
	if err != nil {
		return fmt.Errorf("cannot decode authority key: %w", err)
	}

	a.Key = key
	a.Weight = raw.Weight
	return nil
}

// AuthoritiesToRaw converts a slice of authorities to raw form
func AuthoritiesToRaw(auths []Authority) []AuthorityRaw {
	raw := make([]AuthorityRaw, len(auths))
	for i := range auths {
		raw[i] = auths[i].ToRaw()
	}
	return raw
}

// AuthoritiesFromRaw converts a slice of raw authorities to authorities
func AuthoritiesFromRaw(raw []AuthorityRaw) ([]Authority, error) {
	auths := make([]Authority, len(raw))
	for i := range raw {
		if err := auths[i].FromRaw(raw[i]); err != nil {
			return nil, fmt.Errorf("authority %d: %w", i, err)
		}
	}
	return auths, nil
}

// EpochData is the set of epoch parameters needed to claim and verify
// slots in a given epoch
type EpochData struct {
	Authorities []Authority
	Randomness  Randomness
}

// ToEpochDataRaw returns the raw form of the epoch data
func (d *EpochData) ToEpochDataRaw() *EpochDataRaw {
	return &EpochDataRaw{
		Authorities: AuthoritiesToRaw(d.Authorities),
		Randomness:  d.Randomness,
	}
}

// EpochDataRaw is epoch data with authority keys in raw byte form
type EpochDataRaw struct {
	Authorities []AuthorityRaw
	Randomness  Randomness
}

// ToEpochData decodes the raw epoch data's authority keys
func (d *EpochDataRaw) ToEpochData() (*EpochData, error) {
	auths, err := AuthoritiesFromRaw(d.Authorities)
	if err != nil {
		return nil, err
	}

	return &EpochData{
		Authorities: auths,
		Randomness:  d.Randomness,
	}, nil
}
