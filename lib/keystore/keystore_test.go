// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package keystore

import (
	"testing"

	"github.com/tessera-net/tessera/lib/crypto"
	"github.com/tessera-net/tessera/lib/crypto/ed25519"
	"github.com/tessera-net/tessera/lib/crypto/sr25519"

	"github.com/stretchr/testify/require"
)

func TestBasicKeystore_InsertAndGet(t *testing.T) {
	ks := NewBasicKeystore(BabeName, crypto.Sr25519Type)

	kp, err := sr25519.GenerateKeypair()
	require.NoError(t, err)

	err = ks.Insert(kp)
	require.NoError(t, err)
	require.Equal(t, 1, ks.Size())

	res := ks.GetKeypair(kp.Public())
	require.Equal(t, kp, res)

	res = ks.GetKeypairFromAddress(kp.Public().Address())
	require.Equal(t, kp, res)
}

func TestBasicKeystore_IgnoresWrongType(t *testing.T) {
	ks := NewBasicKeystore(GranName, crypto.Ed25519Type)

	srKp, err := sr25519.GenerateKeypair()
	require.NoError(t, err)

	err = ks.Insert(srKp)
	require.NoError(t, err)
	require.Equal(t, 0, ks.Size())

	edKp, err := ed25519.GenerateKeypair()
	require.NoError(t, err)

	err = ks.Insert(edKp)
	require.NoError(t, err)
	require.Equal(t, 1, ks.Size())
}

func TestGlobalKeystore_GetKeystore(t *testing.T) {
	gks := NewGlobalKeystore()

	ks, err := gks.GetKeystore([]byte("babe"))
	require.NoError(t, err)
	require.Equal(t, crypto.Sr25519Type, ks.Type())

	ks, err = gks.GetKeystore([]byte("gran"))
	require.NoError(t, err)
	require.Equal(t, crypto.Ed25519Type, ks.Type())

	_, err = gks.GetKeystore([]byte("nope"))
	require.ErrorIs(t, err, ErrInvalidKeystoreName)
}

func TestStoreAndLoadKeypair(t *testing.T) {
	dir := t.TempDir()
	passphrase := []byte("ecstatic")

	kp, err := sr25519.GenerateKeypair()
	require.NoError(t, err)

	fp, err := StoreKeypair(kp, dir, passphrase)
	require.NoError(t, err)

	res, err := LoadKeypairFromFile(fp, passphrase)
	require.NoError(t, err)
	require.Equal(t, kp.Public().Hex(), res.Public().Hex())

	// the loaded key must sign for the stored public key
	msg := []byte("round trip")
	sig, err := res.Sign(msg)
	require.NoError(t, err)
	ok, err := kp.Public().Verify(msg, sig)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = LoadKeypairFromFile(fp, []byte("wrong"))
	require.ErrorIs(t, err, errDecryptionFailed)
}

func TestStoreAndLoadKeypair_Ed25519(t *testing.T) {
	dir := t.TempDir()
	passphrase := []byte("obstinate")

	kp, err := ed25519.GenerateKeypair()
	require.NoError(t, err)

	fp, err := StoreKeypair(kp, dir, passphrase)
	require.NoError(t, err)

	res, err := LoadKeypairFromFile(fp, passphrase)
	require.NoError(t, err)
	require.Equal(t, kp.Public().Hex(), res.Public().Hex())

	msg := []byte("round trip")
	sig, err := res.Sign(msg)
	require.NoError(t, err)
	ok, err := kp.Public().Verify(msg, sig)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestKeyring_Deterministic(t *testing.T) {
	a, err := NewSr25519Keyring()
	require.NoError(t, err)
	b, err := NewSr25519Keyring()
	require.NoError(t, err)

	require.Len(t, a.Keys, len(keyringNames))
	require.Equal(t, a.Alice().Public().Hex(), b.Alice().Public().Hex())
	require.NotEqual(t, a.Alice().Public().Hex(), a.Bob().Public().Hex())

	ed, err := NewEd25519Keyring()
	require.NoError(t, err)
	require.NotNil(t, ed.ByName("ferdie"))
	require.Nil(t, ed.ByName("zelda"))
}

func TestLoadKeystore_KeyringName(t *testing.T) {
	gks := NewGlobalKeystore()

	err := LoadKeystore("alice", gks.Babe, t.TempDir(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, gks.Babe.Size())

	err = LoadKeystore("alice", gks.Gran, t.TempDir(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, gks.Gran.Size())
}
