// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package ed25519

import (
	ed25519go "crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/tessera-net/tessera/lib/crypto"
)

// length constants for ed25519 keys and signatures
const (
	PublicKeyLength  = 32
	SeedLength       = 32
	PrivateKeyLength = 64
	SignatureLength  = 64
)

var (
	errNilKey           = errors.New("key is nil")
	errInvalidKeyLength = errors.New("invalid key length")
	errInvalidSigLength = errors.New("signature is not 64 bytes")
)

// Keypair is an ed25519 public/private signing pair
type Keypair struct {
	public  *PublicKey
	private *PrivateKey
}

// PublicKey wraps an ed25519 public key
type PublicKey ed25519go.PublicKey

// PrivateKey wraps an ed25519 private key
type PrivateKey ed25519go.PrivateKey

// PublicKeyBytes is a comparable raw public key, usable as a map key
type PublicKeyBytes [PublicKeyLength]byte

// String returns the 0x prefixed hex encoding of the raw key
func (b PublicKeyBytes) String() string {
	return fmt.Sprintf("0x%x", b[:])
}

// SignatureBytes is a raw ed25519 signature
type SignatureBytes [SignatureLength]byte

// NewSignatureBytes casts a signature slice to SignatureBytes
func NewSignatureBytes(in []byte) (sig SignatureBytes) {
	copy(sig[:], in)
	return sig
}

// GenerateKeypair returns a new randomly generated ed25519 Keypair
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := ed25519go.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	pubKey := PublicKey(pub)
	privKey := PrivateKey(priv)
	return &Keypair{
		public:  &pubKey,
		private: &privKey,
	}, nil
}

// NewKeypairFromSeed derives a Keypair from a 32-byte seed
func NewKeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != SeedLength {
		return nil, errInvalidKeyLength
	}

	priv := ed25519go.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519go.PublicKey)
	pubKey := PublicKey(pub)
	privKey := PrivateKey(priv)
	return &Keypair{
		public:  &pubKey,
		private: &privKey,
	}, nil
}

// NewKeypairFromMnemonic derives a Keypair from a BIP39 mnemonic
func NewKeypairFromMnemonic(mnemonic, password string) (*Keypair, error) {
	seed, err := crypto.MnemonicToSeed(mnemonic, password)
	if err != nil {
		return nil, err
	}

	return NewKeypairFromSeed(seed)
}

// NewKeypairFromPrivateKeyString derives a Keypair from a 0x prefixed hex seed
func NewKeypairFromPrivateKeyString(in string) (*Keypair, error) {
	if len(in) < 2 || in[:2] != "0x" {
		return nil, errors.New("string is not 0x prefixed")
	}

	seed, err := hex.DecodeString(in[2:])
	if err != nil {
		return nil, err
	}

	return NewKeypairFromSeed(seed)
}

// NewKeypairFromPrivateKeyBytes reconstructs a Keypair from an encoded
// 64-byte private key, as written by PrivateKey.Encode
func NewKeypairFromPrivateKeyBytes(in []byte) (*Keypair, error) {
	priv := new(PrivateKey)
	if err := priv.Decode(in); err != nil {
		return nil, err
	}

	pub, err := priv.Public()
	if err != nil {
		return nil, err
	}

	return &Keypair{
		public:  pub.(*PublicKey),
		private: priv,
	}, nil
}

// NewPublicKey builds a PublicKey from 32 raw bytes
func NewPublicKey(in []byte) (*PublicKey, error) {
	if len(in) != PublicKeyLength {
		return nil, errInvalidKeyLength
	}

	pub := PublicKey(ed25519go.PublicKey(in))
	return &pub, nil
}

// Type returns the ed25519 key type
func (kp *Keypair) Type() crypto.KeyType { return crypto.Ed25519Type }

// Sign signs the message
func (kp *Keypair) Sign(msg []byte) ([]byte, error) {
	return kp.private.Sign(msg)
}

// Public returns the public half of the keypair
func (kp *Keypair) Public() crypto.PublicKey { return kp.public }

// Private returns the private half of the keypair
func (kp *Keypair) Private() crypto.PrivateKey { return kp.private }

// Sign signs the message
func (k *PrivateKey) Sign(msg []byte) ([]byte, error) {
	if k == nil {
		return nil, errNilKey
	}

	return ed25519go.Sign(ed25519go.PrivateKey(*k), msg), nil
}

// Public returns the public key derived from the private key
func (k *PrivateKey) Public() (crypto.PublicKey, error) {
	if k == nil {
		return nil, errNilKey
	}

	pub := PublicKey(ed25519go.PrivateKey(*k).Public().(ed25519go.PublicKey))
	return &pub, nil
}

// Encode returns the raw private key bytes
func (k *PrivateKey) Encode() []byte {
	return []byte(ed25519go.PrivateKey(*k))
}

// Decode interprets the input as an ed25519 private key
func (k *PrivateKey) Decode(in []byte) error {
	if len(in) != PrivateKeyLength {
		return errInvalidKeyLength
	}

	*k = PrivateKey(ed25519go.PrivateKey(in))
	return nil
}

// Hex returns the 0x prefixed hex encoding of the private key
func (k *PrivateKey) Hex() string {
	return fmt.Sprintf("0x%x", k.Encode())
}

// Verify checks the signature over the message
func (k *PublicKey) Verify(msg, sig []byte) (bool, error) {
	if k == nil {
		return false, errNilKey
	}

	if len(sig) != SignatureLength {
		return false, errInvalidSigLength
	}

	return ed25519go.Verify(ed25519go.PublicKey(*k), msg, sig), nil
}

// Encode returns the raw public key bytes
func (k *PublicKey) Encode() []byte {
	return []byte(ed25519go.PublicKey(*k))
}

// Decode interprets the input as an ed25519 public key
func (k *PublicKey) Decode(in []byte) error {
	if len(in) != PublicKeyLength {
		return errInvalidKeyLength
	}

	*k = PublicKey(ed25519go.PublicKey(in))
	return nil
}

// Address returns the base58 address for the public key
func (k *PublicKey) Address() crypto.Address {
	return crypto.PublicKeyToAddress(k)
}

// Hex returns the 0x prefixed hex encoding of the public key
func (k *PublicKey) Hex() string {
	return fmt.Sprintf("0x%x", k.Encode())
}

// AsBytes returns the public key as a comparable PublicKeyBytes
func (k *PublicKey) AsBytes() (b PublicKeyBytes) {
	copy(b[:], k.Encode())
	return b
}
