// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package sr25519

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/tessera-net/tessera/lib/crypto"

	"github.com/ChainSafe/go-schnorrkel"
	"github.com/gtank/merlin"
)

// length constants for sr25519 keys, signatures and VRF material
const (
	PublicKeyLength  = 32
	SeedLength       = 32
	PrivateKeyLength = 32
	SignatureLength  = 64
	VRFOutputLength  = 32
	VRFProofLength   = 64
)

// SigningContext is the context prepended to all signed messages
var SigningContext = []byte("tessera")

var (
	errNilKey            = errors.New("key is nil")
	errInvalidSeedLength = errors.New("seed is not 32 bytes")
	errInvalidKeyLength  = errors.New("key is not 32 bytes")
	errInvalidSigLength  = errors.New("signature is not 64 bytes")
)

// Keypair is a sr25519 public/private signing pair
type Keypair struct {
	public  *PublicKey
	private *PrivateKey
}

// PublicKey wraps a schnorrkel public key
type PublicKey struct {
	key *schnorrkel.PublicKey
}

// PrivateKey wraps a schnorrkel secret key
type PrivateKey struct {
	key *schnorrkel.SecretKey
}

// VrfOutputAndProof is a VRF output with the proof it was correctly derived
type VrfOutputAndProof struct {
	Output [VRFOutputLength]byte
	Proof  [VRFProofLength]byte
}

// NewKeypair returns a Keypair from a schnorrkel secret key
func NewKeypair(priv *schnorrkel.SecretKey) (*Keypair, error) {
	pub, err := priv.Public()
	if err != nil {
		return nil, err
	}

	return &Keypair{
		public:  &PublicKey{key: pub},
		private: &PrivateKey{key: priv},
	}, nil
}

// NewKeypairFromSeed derives a Keypair from a 32-byte seed
func NewKeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != SeedLength {
		return nil, errInvalidSeedLength
	}

	var buf [SeedLength]byte
	copy(buf[:], seed)
	msc, err := schnorrkel.NewMiniSecretKeyFromRaw(buf)
	if err != nil {
		return nil, err
	}

	return &Keypair{
		public:  &PublicKey{key: msc.Public()},
		private: &PrivateKey{key: msc.ExpandEd25519()},
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
	seed, err := hexToBytes(in)
	if err != nil {
		return nil, err
	}

	return NewKeypairFromSeed(seed)
}

// NewKeypairFromPrivateKeyBytes reconstructs a Keypair from an encoded
// secret key, as written by PrivateKey.Encode. The secret key is already
// expanded; it must not be re-derived as a seed.
func NewKeypairFromPrivateKeyBytes(in []byte) (*Keypair, error) {
	priv := new(PrivateKey)
	if err := priv.Decode(in); err != nil {
		return nil, err
	}

	return NewKeypair(priv.key)
}

// GenerateKeypair returns a new randomly generated Keypair
func GenerateKeypair() (*Keypair, error) {
	priv, pub, err := schnorrkel.GenerateKeypair()
	if err != nil {
		return nil, err
	}

	return &Keypair{
		public:  &PublicKey{key: pub},
		private: &PrivateKey{key: priv},
	}, nil
}

// NewPublicKey builds a PublicKey from 32 raw bytes
func NewPublicKey(in []byte) (*PublicKey, error) {
	if len(in) != PublicKeyLength {
		return nil, errInvalidKeyLength
	}

	var buf [PublicKeyLength]byte
	copy(buf[:], in)
	key := new(schnorrkel.PublicKey)
	if err := key.Decode(buf); err != nil {
		return nil, err
	}

	return &PublicKey{key: key}, nil
}

// Type returns the sr25519 key type
func (kp *Keypair) Type() crypto.KeyType { return crypto.Sr25519Type }

// Sign signs the message using the tessera signing context
func (kp *Keypair) Sign(msg []byte) ([]byte, error) {
	return kp.private.Sign(msg)
}

// Public returns the public half of the keypair
func (kp *Keypair) Public() crypto.PublicKey { return kp.public }

// Private returns the private half of the keypair
func (kp *Keypair) Private() crypto.PrivateKey { return kp.private }

// VrfSign creates a VRF output and proof from a transcript
func (kp *Keypair) VrfSign(t *merlin.Transcript) ([VRFOutputLength]byte, [VRFProofLength]byte, error) {
	return kp.private.VrfSign(t)
}

// Sign signs the message using the tessera signing context
func (k *PrivateKey) Sign(msg []byte) ([]byte, error) {
	if k.key == nil {
		return nil, errNilKey
	}

	t := schnorrkel.NewSigningContext(SigningContext, msg)
	sig, err := k.key.Sign(t)
	if err != nil {
		return nil, err
	}

	enc := sig.Encode()
	return enc[:], nil
}

// VrfSign creates a VRF output and proof from a transcript
func (k *PrivateKey) VrfSign(t *merlin.Transcript) ([VRFOutputLength]byte, [VRFProofLength]byte, error) {
	var (
		outBuf   [VRFOutputLength]byte
		proofBuf [VRFProofLength]byte
	)

	inout, proof, err := k.key.VrfSign(t)
	if err != nil {
		return outBuf, proofBuf, err
	}

	out := inout.Output().Encode()
	copy(outBuf[:], out[:])
	proofEnc := proof.Encode()
	copy(proofBuf[:], proofEnc[:])
	return outBuf, proofBuf, nil
}

// Public returns the public key derived from the private key
func (k *PrivateKey) Public() (crypto.PublicKey, error) {
	kp, err := NewKeypair(k.key)
	if err != nil {
		return nil, err
	}

	return kp.Public(), nil
}

// Encode returns the 32-byte private key
func (k *PrivateKey) Encode() []byte {
	enc := k.key.Encode()
	return enc[:]
}

// Decode interprets the input as a schnorrkel secret key
func (k *PrivateKey) Decode(in []byte) error {
	if len(in) != PrivateKeyLength {
		return errInvalidKeyLength
	}

	var buf [PrivateKeyLength]byte
	copy(buf[:], in)
	k.key = new(schnorrkel.SecretKey)
	return k.key.Decode(buf)
}

// Hex returns the 0x prefixed hex encoding of the private key
func (k *PrivateKey) Hex() string {
	return fmt.Sprintf("0x%x", k.Encode())
}

// Verify checks the signature over the message using the tessera
// signing context
func (k *PublicKey) Verify(msg, sig []byte) (bool, error) {
	if k.key == nil {
		return false, errNilKey
	}

	if len(sig) != SignatureLength {
		return false, errInvalidSigLength
	}

	var buf [SignatureLength]byte
	copy(buf[:], sig)
	s := new(schnorrkel.Signature)
	if err := s.Decode(buf); err != nil {
		return false, err
	}

	t := schnorrkel.NewSigningContext(SigningContext, msg)
	return k.key.Verify(s, t)
}

// VrfVerify confirms that the output and proof are valid for the transcript
func (k *PublicKey) VrfVerify(t *merlin.Transcript, out, proof []byte) (bool, error) {
	if k.key == nil {
		return false, errNilKey
	}

	var outBuf [VRFOutputLength]byte
	copy(outBuf[:], out)
	o := new(schnorrkel.VrfOutput)
	if err := o.Decode(outBuf); err != nil {
		return false, err
	}

	var proofBuf [VRFProofLength]byte
	copy(proofBuf[:], proof)
	p := new(schnorrkel.VrfProof)
	if err := p.Decode(proofBuf); err != nil {
		return false, err
	}

	return k.key.VrfVerify(t, o, p)
}

// Encode returns the 32-byte public key
func (k *PublicKey) Encode() []byte {
	enc := k.key.Encode()
	return enc[:]
}

// Decode interprets the input as a schnorrkel public key
func (k *PublicKey) Decode(in []byte) error {
	if len(in) != PublicKeyLength {
		return errInvalidKeyLength
	}

	var buf [PublicKeyLength]byte
	copy(buf[:], in)
	k.key = new(schnorrkel.PublicKey)
	return k.key.Decode(buf)
}

// Address returns the base58 address for the public key
func (k *PublicKey) Address() crypto.Address {
	return crypto.PublicKeyToAddress(k)
}

// Hex returns the 0x prefixed hex encoding of the public key
func (k *PublicKey) Hex() string {
	return fmt.Sprintf("0x%x", k.Encode())
}

// AsBytes returns the public key as a fixed 32-byte array
func (k *PublicKey) AsBytes() (b [PublicKeyLength]byte) {
	copy(b[:], k.Encode())
	return b
}

// AttachInput reconstructs the VRF input/output pair for threshold checks
func AttachInput(output [VRFOutputLength]byte, pub *PublicKey, t *merlin.Transcript) (*schnorrkel.VrfInOut, error) {
	out := new(schnorrkel.VrfOutput)
	if err := out.Decode(output); err != nil {
		return nil, err
	}

	return out.AttachInput(pub.key, t)
}

func hexToBytes(in string) ([]byte, error) {
	if len(in) < 2 || in[:2] != "0x" {
		return nil, errors.New("string is not 0x prefixed")
	}

	return hex.DecodeString(in[2:])
}
