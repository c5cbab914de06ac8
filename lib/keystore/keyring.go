// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package keystore

import (
	"github.com/tessera-net/tessera/lib/crypto/ed25519"
	"github.com/tessera-net/tessera/lib/crypto/sr25519"
)

// keyringNames are the well-known test identities, in authority-index order
var keyringNames = []string{
	"alice", "bob", "charlie", "dave", "eve",
	"ferdie", "george", "heather", "ian",
}

// Sr25519Keyring holds deterministic sr25519 test keys
type Sr25519Keyring struct {
	Keys   []*sr25519.Keypair
	byName map[string]*sr25519.Keypair
}

// NewSr25519Keyring returns a keyring with one key per well-known name,
// seeds derived from the name so every process agrees on them
func NewSr25519Keyring() (*Sr25519Keyring, error) {
	kr := &Sr25519Keyring{
		Keys:   make([]*sr25519.Keypair, len(keyringNames)),
		byName: make(map[string]*sr25519.Keypair, len(keyringNames)),
	}

	for i, name := range keyringNames {
		kp, err := sr25519.NewKeypairFromSeed(seedForName(name))
		if err != nil {
			return nil, err
		}

		kr.Keys[i] = kp
		kr.byName[name] = kp
	}
	return kr, nil
}

// ByName returns the keypair for a well-known name, or nil
func (kr *Sr25519Keyring) ByName(name string) *sr25519.Keypair {
	return kr.byName[name]
}

// Alice returns alice's key
func (kr *Sr25519Keyring) Alice() *sr25519.Keypair { return kr.byName["alice"] }

// Bob returns bob's key
func (kr *Sr25519Keyring) Bob() *sr25519.Keypair { return kr.byName["bob"] }

// Charlie returns charlie's key
func (kr *Sr25519Keyring) Charlie() *sr25519.Keypair { return kr.byName["charlie"] }

// Dave returns dave's key
func (kr *Sr25519Keyring) Dave() *sr25519.Keypair { return kr.byName["dave"] }

// Ed25519Keyring holds deterministic ed25519 test keys
type Ed25519Keyring struct {
	Keys   []*ed25519.Keypair
	byName map[string]*ed25519.Keypair
}

// NewEd25519Keyring returns a keyring with one key per well-known name
func NewEd25519Keyring() (*Ed25519Keyring, error) {
	kr := &Ed25519Keyring{
		Keys:   make([]*ed25519.Keypair, len(keyringNames)),
		byName: make(map[string]*ed25519.Keypair, len(keyringNames)),
	}

	for i, name := range keyringNames {
		kp, err := ed25519.NewKeypairFromSeed(seedForName(name))
		if err != nil {
			return nil, err
		}

		kr.Keys[i] = kp
		kr.byName[name] = kp
	}
	return kr, nil
}

// ByName returns the keypair for a well-known name, or nil
func (kr *Ed25519Keyring) ByName(name string) *ed25519.Keypair {
	return kr.byName[name]
}

// Alice returns alice's key
func (kr *Ed25519Keyring) Alice() *ed25519.Keypair { return kr.byName["alice"] }

// Bob returns bob's key
func (kr *Ed25519Keyring) Bob() *ed25519.Keypair { return kr.byName["bob"] }

// Charlie returns charlie's key
func (kr *Ed25519Keyring) Charlie() *ed25519.Keypair { return kr.byName["charlie"] }

// Dave returns dave's key
func (kr *Ed25519Keyring) Dave() *ed25519.Keypair { return kr.byName["dave"] }
