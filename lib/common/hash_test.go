// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package common

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestHexToHash(t *testing.T) {
	in := "0x8550326cee1e7b9d09a9bd30b20bbb87cc6d6f43a8b26ed9e57e2407e27cda66"
	h, err := HexToHash(in)
	require.NoError(t, err)
	require.Equal(t, in, h.String())

	_, err = HexToHash("8550326cee1e7b9d")
	require.ErrorIs(t, err, errNotHexPrefixed)
}

func TestHash_MsgpackRoundtrip(t *testing.T) {
	h := MustBlake2bHash([]byte("noot"))

	enc, err := msgpack.Marshal(h)
	require.NoError(t, err)

	var res Hash
	err = msgpack.Unmarshal(enc, &res)
	require.NoError(t, err)
	require.Equal(t, h, res)
}

func TestHash_JSONRoundtrip(t *testing.T) {
	h := MustBlake2bHash([]byte("noot"))

	enc, err := h.MarshalJSON()
	require.NoError(t, err)

	var res Hash
	err = res.UnmarshalJSON(enc)
	require.NoError(t, err)
	require.Equal(t, h, res)
}

func TestBlake2bHash(t *testing.T) {
	h, err := Blake2bHash([]byte{0x1})
	require.NoError(t, err)
	require.False(t, h.IsEmpty())

	h2, err := Blake2bHash([]byte{0x1})
	require.NoError(t, err)
	require.Equal(t, h, h2)

	h3, err := Blake2bHash([]byte{0x2})
	require.NoError(t, err)
	require.NotEqual(t, h, h3)
}

func TestTwox128(t *testing.T) {
	out, err := Twox128([]byte("System"))
	require.NoError(t, err)
	require.Len(t, out, 16)

	again, err := Twox128([]byte("System"))
	require.NoError(t, err)
	require.Equal(t, out, again)
}
