// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tessera-net/tessera/lib/keystore"
	"github.com/tessera-net/tessera/lib/utils"
)

func TestGenerateKeypair(t *testing.T) {
	basepath := t.TempDir()

	fp, err := generateKeypair("sr25519", basepath, []byte("password"))
	require.NoError(t, err)
	require.True(t, utils.PathExists(fp))

	files, err := utils.KeystoreFiles(basepath)
	require.NoError(t, err)
	require.Len(t, files, 1)
}

func TestGenerateKeypairEd25519(t *testing.T) {
	basepath := t.TempDir()

	fp, err := generateKeypair("ed25519", basepath, []byte("password"))
	require.NoError(t, err)
	require.True(t, utils.PathExists(fp))
}

func TestGenerateKeypairInvalidType(t *testing.T) {
	_, err := generateKeypair("secp256k1", t.TempDir(), []byte("password"))
	require.Error(t, err)
}

func TestUnlockKeystoreKeyring(t *testing.T) {
	ks := keystore.NewGlobalKeystore()
	require.NoError(t, unlockKeystore(ks, t.TempDir(), "alice", "", ""))

	require.Equal(t, 1, ks.Babe.Size())
	require.Equal(t, 1, ks.Gran.Size())
	require.Equal(t, 1, ks.Acco.Size())
}

func TestUnlockKeystoreStoredKey(t *testing.T) {
	basepath := t.TempDir()

	fp, err := generateKeypair("sr25519", basepath, []byte("password"))
	require.NoError(t, err)

	name := filepath.Base(fp)
	name = name[:len(name)-len(".key")]

	ks := keystore.NewGlobalKeystore()
	require.NoError(t, unlockKeystore(ks, basepath, "", name, "password"))
	require.Equal(t, 1, ks.Babe.Size())
	require.Equal(t, 1, ks.Acco.Size())
	require.Equal(t, 0, ks.Gran.Size())
}

func TestUnlockKeystoreWrongPassword(t *testing.T) {
	basepath := t.TempDir()

	fp, err := generateKeypair("sr25519", basepath, []byte("password"))
	require.NoError(t, err)

	name := filepath.Base(fp)
	name = name[:len(name)-len(".key")]

	ks := keystore.NewGlobalKeystore()
	require.Error(t, unlockKeystore(ks, basepath, "", name, "wrong"))
}
