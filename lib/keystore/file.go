// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package keystore

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/lib/crypto"
	"github.com/tessera-net/tessera/lib/crypto/ed25519"
	"github.com/tessera-net/tessera/lib/crypto/sr25519"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/nacl/secretbox"
)

var errDecryptionFailed = errors.New("decryption failed: invalid passphrase or corrupt file")

// EncryptedKeystore is the on-disk JSON format for a single keypair
type EncryptedKeystore struct {
	Type       string `json:"type"`
	PublicKey  string `json:"publicKey"`
	Ciphertext []byte `json:"ciphertext"`
	Nonce      []byte `json:"nonce"`
}

func passphraseKey(passphrase []byte) [32]byte {
	return blake2b.Sum256(passphrase)
}

// Encrypt seals the private key bytes with a key derived from the passphrase
func Encrypt(privateKey, passphrase []byte) (ciphertext, nonce []byte, err error) {
	var nonceBuf [24]byte
	if _, err = io.ReadFull(rand.Reader, nonceBuf[:]); err != nil {
		return nil, nil, err
	}

	key := passphraseKey(passphrase)
	out := secretbox.Seal(nil, privateKey, &nonceBuf, &key)
	return out, nonceBuf[:], nil
}

// Decrypt opens a sealed private key with the passphrase-derived key
func Decrypt(ciphertext, nonce, passphrase []byte) ([]byte, error) {
	if len(nonce) != 24 {
		return nil, errDecryptionFailed
	}

	var nonceBuf [24]byte
	copy(nonceBuf[:], nonce)
	key := passphraseKey(passphrase)

	out, ok := secretbox.Open(nil, ciphertext, &nonceBuf, &key)
	if !ok {
		return nil, errDecryptionFailed
	}
	return out, nil
}

// StoreKeypair writes an encrypted keypair file to the keystore directory,
// named <address>.key
func StoreKeypair(kp crypto.Keypair, dir string, passphrase []byte) (string, error) {
	ciphertext, nonce, err := Encrypt(kp.Private().Encode(), passphrase)
	if err != nil {
		return "", err
	}

	enc := &EncryptedKeystore{
		Type:       kp.Type(),
		PublicKey:  kp.Public().Hex(),
		Ciphertext: ciphertext,
		Nonce:      nonce,
	}

	data, err := json.MarshalIndent(enc, "", "\t")
	if err != nil {
		return "", err
	}

	fp := filepath.Join(dir, fmt.Sprintf("%s.key", kp.Public().Address()))
	if err = os.WriteFile(fp, data, 0o600); err != nil {
		return "", err
	}
	return fp, nil
}

// LoadKeypairFromFile decrypts a keypair file with the given passphrase
func LoadKeypairFromFile(fp string, passphrase []byte) (crypto.Keypair, error) {
	data, err := os.ReadFile(filepath.Clean(fp))
	if err != nil {
		return nil, err
	}

	enc := new(EncryptedKeystore)
	if err = json.Unmarshal(data, enc); err != nil {
		return nil, err
	}

	priv, err := Decrypt(enc.Ciphertext, enc.Nonce, passphrase)
	if err != nil {
		return nil, err
	}

	// the ciphertext holds the encoded private key, not a seed
	switch enc.Type {
	case crypto.Sr25519Type:
		return sr25519.NewKeypairFromPrivateKeyBytes(priv)
	case crypto.Ed25519Type:
		return ed25519.NewKeypairFromPrivateKeyBytes(priv)
	default:
		return nil, fmt.Errorf("cannot decode keypair of unknown type %q", enc.Type)
	}
}

// ImportKeypair copies an encrypted keypair file into the keystore directory
func ImportKeypair(src, dir string) (string, error) {
	data, err := os.ReadFile(filepath.Clean(src))
	if err != nil {
		return "", err
	}

	enc := new(EncryptedKeystore)
	if err = json.Unmarshal(data, enc); err != nil {
		return "", fmt.Errorf("cannot parse keystore file: %w", err)
	}

	dst := filepath.Join(dir, filepath.Base(src))
	if err = os.WriteFile(dst, data, 0o600); err != nil {
		return "", err
	}
	return dst, nil
}

// KeyFilePaths returns the .key files under the keystore directory
func KeyFilePaths(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var res []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".key") {
			res = append(res, filepath.Join(dir, e.Name()))
		}
	}
	return res, nil
}

// LoadKeystore fills the appropriate GlobalKeystore slot for the named key.
// Test keyring names (alice..ivan) resolve to deterministic keys; anything
// else is treated as a file under the keystore directory.
func LoadKeystore(key string, ks Keystore, dir string, passphrase []byte) error {
	if key == "" {
		return nil
	}

	if isKeyringName(key) {
		return loadKeyringKey(key, ks)
	}

	fp := filepath.Join(dir, fmt.Sprintf("%s.key", key))
	kp, err := LoadKeypairFromFile(fp, passphrase)
	if err != nil {
		return fmt.Errorf("cannot load key %q: %w", key, err)
	}
	return ks.Insert(kp)
}

func isKeyringName(key string) bool {
	for _, name := range keyringNames {
		if key == name {
			return true
		}
	}
	return false
}

func loadKeyringKey(key string, ks Keystore) error {
	var kp crypto.Keypair

	switch ks.Type() {
	case crypto.Sr25519Type:
		kr, err := NewSr25519Keyring()
		if err != nil {
			return err
		}
		kp = kr.ByName(key)
	case crypto.Ed25519Type:
		kr, err := NewEd25519Keyring()
		if err != nil {
			return err
		}
		kp = kr.ByName(key)
	default:
		return fmt.Errorf("cannot load keyring key for type %q", ks.Type())
	}

	if kp == nil {
		return fmt.Errorf("no keyring key named %q", key)
	}
	return ks.Insert(kp)
}

// seedForName derives a deterministic 32-byte test seed from a keyring name
func seedForName(name string) []byte {
	h := common.MustBlake2bHash([]byte("tessera keyring: " + name))
	return h.ToBytes()
}
