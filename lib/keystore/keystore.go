// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package keystore

import (
	"errors"
	"sync"

	"github.com/tessera-net/tessera/lib/crypto"
)

// ErrInvalidKeystoreName is returned when looking up an unknown keystore
var ErrInvalidKeystoreName = errors.New("invalid keystore name")

// Name identifies one of the node's keystores
type Name string

// keystore names, one per key-holding protocol role
var (
	BabeName Name = "babe"
	GranName Name = "gran"
	AccoName Name = "acco"
)

// Keystore holds the keypairs of a single type for one protocol
type Keystore interface {
	Name() Name
	Type() crypto.KeyType
	Insert(kp crypto.Keypair) error
	GetKeypair(pub crypto.PublicKey) crypto.Keypair
	GetKeypairFromAddress(addr crypto.Address) crypto.Keypair
	Keypairs() []crypto.Keypair
	PublicKeys() []crypto.PublicKey
	Size() int
}

// GlobalKeystore holds the keystores used by the node services
type GlobalKeystore struct {
	Babe Keystore
	Gran Keystore
	Acco Keystore
}

// NewGlobalKeystore returns a GlobalKeystore with empty keystores
func NewGlobalKeystore() *GlobalKeystore {
	return &GlobalKeystore{
		Babe: NewBasicKeystore(BabeName, crypto.Sr25519Type),
		Gran: NewBasicKeystore(GranName, crypto.Ed25519Type),
		Acco: NewBasicKeystore(AccoName, crypto.Sr25519Type),
	}
}

// GetKeystore returns the keystore for the given name
func (k *GlobalKeystore) GetKeystore(name []byte) (Keystore, error) {
	switch Name(name) {
	case BabeName:
		return k.Babe, nil
	case GranName:
		return k.Gran, nil
	case AccoName:
		return k.Acco, nil
	default:
		return nil, ErrInvalidKeystoreName
	}
}

// BasicKeystore is an in-memory keystore holding keypairs of a single type
type BasicKeystore struct {
	name Name
	typ  crypto.KeyType
	keys map[crypto.Address]crypto.Keypair
	lock sync.RWMutex
}

// NewBasicKeystore returns an empty BasicKeystore of the given key type
func NewBasicKeystore(name Name, typ crypto.KeyType) *BasicKeystore {
	return &BasicKeystore{
		name: name,
		typ:  typ,
		keys: make(map[crypto.Address]crypto.Keypair),
	}
}

// Name returns the keystore name
func (ks *BasicKeystore) Name() Name {
	return ks.name
}

// Type returns the key type held by the keystore
func (ks *BasicKeystore) Type() crypto.KeyType {
	return ks.typ
}

// Insert adds a keypair to the keystore. Keypairs of the wrong type
// are silently ignored.
func (ks *BasicKeystore) Insert(kp crypto.Keypair) error {
	if kp.Type() != ks.typ {
		return nil
	}

	ks.lock.Lock()
	defer ks.lock.Unlock()
	ks.keys[kp.Public().Address()] = kp
	return nil
}

// GetKeypair returns the keypair for the given public key, or nil
func (ks *BasicKeystore) GetKeypair(pub crypto.PublicKey) crypto.Keypair {
	return ks.GetKeypairFromAddress(pub.Address())
}

// GetKeypairFromAddress returns the keypair for the given address, or nil
func (ks *BasicKeystore) GetKeypairFromAddress(addr crypto.Address) crypto.Keypair {
	ks.lock.RLock()
	defer ks.lock.RUnlock()
	return ks.keys[addr]
}

// Keypairs returns all keypairs in the keystore
func (ks *BasicKeystore) Keypairs() []crypto.Keypair {
	ks.lock.RLock()
	defer ks.lock.RUnlock()

	res := make([]crypto.Keypair, 0, len(ks.keys))
	for _, kp := range ks.keys {
		res = append(res, kp)
	}
	return res
}

// PublicKeys returns the public keys of all keypairs in the keystore
func (ks *BasicKeystore) PublicKeys() []crypto.PublicKey {
	ks.lock.RLock()
	defer ks.lock.RUnlock()

	res := make([]crypto.PublicKey, 0, len(ks.keys))
	for _, kp := range ks.keys {
		res = append(res, kp.Public())
	}
	return res
}

// Size returns the number of keypairs in the keystore
func (ks *BasicKeystore) Size() int {
	ks.lock.RLock()
	defer ks.lock.RUnlock()
	return len(ks.keys)
}
