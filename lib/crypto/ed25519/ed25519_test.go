// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package ed25519

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)

	msg := []byte("helloworld")
	sig, err := kp.Sign(msg)
	require.NoError(t, err)

	pub := kp.Public().(*PublicKey)
	ok, err := pub.Verify(msg, sig)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = pub.Verify([]byte("helloworlb"), sig)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPublicKeyBytes_MapKey(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)

	pub := kp.Public().(*PublicKey)
	m := map[PublicKeyBytes]int{
		pub.AsBytes(): 1,
	}
	require.Equal(t, 1, m[pub.AsBytes()])
}

func TestNewKeypairFromSeed_Deterministic(t *testing.T) {
	seed := make([]byte, SeedLength)
	seed[31] = 0x7

	a, err := NewKeypairFromSeed(seed)
	require.NoError(t, err)
	b, err := NewKeypairFromSeed(seed)
	require.NoError(t, err)
	require.Equal(t, a.Public().Hex(), b.Public().Hex())

	sig, err := a.Sign([]byte("x"))
	require.NoError(t, err)
	ok, err := b.Public().(*PublicKey).Verify([]byte("x"), sig)
	require.NoError(t, err)
	require.True(t, ok)
}
