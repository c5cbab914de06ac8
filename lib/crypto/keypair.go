// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package crypto

import (
	"encoding/binary"

	"github.com/tessera-net/tessera/lib/common"

	"github.com/btcsuite/btcutil/base58"
	bip39 "github.com/cosmos/go-bip39"
	"github.com/gtank/merlin"
)

// KeyType identifies a supported signature scheme
type KeyType = string

// supported key types
const (
	Ed25519Type KeyType = "ed25519"
	Sr25519Type KeyType = "sr25519"
	UnknownType KeyType = "unknown"
)

// Address is the base58 string form of a public key
type Address string

// ss58Prefix is prepended to the key before hashing the address checksum
var ssPrefix = []byte("SS58PRE")

// Keypair is a public/private signing pair
type Keypair interface {
	Type() KeyType
	Sign(msg []byte) ([]byte, error)
	Public() PublicKey
	Private() PrivateKey
}

// PublicKey is the verification half of a Keypair
type PublicKey interface {
	Verify(msg, sig []byte) (bool, error)
	Encode() []byte
	Decode([]byte) error
	Address() Address
	Hex() string
}

// PrivateKey is the signing half of a Keypair
type PrivateKey interface {
	Sign(msg []byte) ([]byte, error)
	Public() (PublicKey, error)
	Encode() []byte
	Decode([]byte) error
	Hex() string
}

// PublicKeyToAddress derives the base58 address for a public key: the
// network prefix byte, the raw key and the first two bytes of the
// blake2b-512 checksum over "SS58PRE" + prefix + key.
func PublicKeyToAddress(pub PublicKey) Address {
	enc := append([]byte{42}, pub.Encode()...)
	hashInput := append(ssPrefix, enc...)
	checksum, err := common.Blake2b512(hashInput)
	if err != nil {
		return ""
	}

	return Address(base58.Encode(append(enc, checksum[:2]...)))
}

// PublicAddressToByteArray returns the raw public key bytes for an address,
// or nil if the address cannot be decoded
func PublicAddressToByteArray(addr Address) []byte {
	dec := base58.Decode(string(addr))
	if len(dec) < 3 {
		return nil
	}

	return dec[1 : len(dec)-2]
}

// NewBIP39Mnemonic returns a new 12-word BIP39 mnemonic
func NewBIP39Mnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", err
	}

	return bip39.NewMnemonic(entropy)
}

// MnemonicToSeed derives a 32-byte seed from a BIP39 mnemonic
func MnemonicToSeed(mnemonic, password string) ([]byte, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, password)
	if err != nil {
		return nil, err
	}

	return seed[:32], nil
}

// AppendUint64 appends a little-endian encoded uint64 to the transcript
// under the given label
func AppendUint64(t *merlin.Transcript, label []byte, n uint64) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, n)
	t.AppendMessage(label, buf)
}
