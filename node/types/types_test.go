// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package types

import (
	"testing"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/lib/crypto/sr25519"

	"github.com/stretchr/testify/require"
)

func TestHeaderEncodeDecode(t *testing.T) {
	digest := Digest{NewBABEPreRuntimeDigest([]byte{1, 2, 3})}
	header := NewHeader(common.MustBlake2bHash([]byte("parent")),
		common.MustBlake2bHash([]byte("state")),
		common.MustBlake2bHash([]byte("exts")),
		77, digest)

	enc, err := header.Encode()
	require.NoError(t, err)

	dec, err := DecodeHeader(enc)
	require.NoError(t, err)
	require.Equal(t, header.ParentHash, dec.ParentHash)
	require.Equal(t, header.Number, dec.Number)
	require.Equal(t, header.StateRoot, dec.StateRoot)
	require.Equal(t, header.Digest, dec.Digest)
	require.Equal(t, header.Hash(), dec.Hash())
}

func TestHeaderHash(t *testing.T) {
	a := NewHeader(common.EmptyHash, common.EmptyHash, common.EmptyHash, 1, Digest{})
	b := NewHeader(common.EmptyHash, common.EmptyHash, common.EmptyHash, 1, Digest{})
	c := NewHeader(common.EmptyHash, common.EmptyHash, common.EmptyHash, 2, Digest{})

	require.Equal(t, a.Hash(), b.Hash())
	require.NotEqual(t, a.Hash(), c.Hash())
	require.False(t, a.Hash().IsEmpty())
}

func TestHeaderDeepCopy(t *testing.T) {
	header := NewHeader(common.EmptyHash, common.EmptyHash, common.EmptyHash,
		3, Digest{NewBABEPreRuntimeDigest([]byte{9})})

	cp, err := header.DeepCopy()
	require.NoError(t, err)
	require.Equal(t, header.Digest, cp.Digest)

	cp.Digest[0].Data[0] = 42
	require.NotEqual(t, header.Digest[0].Data[0], cp.Digest[0].Data[0])
}

func TestBlockEncodeDecode(t *testing.T) {
	block := NewBlock(*NewHeader(common.EmptyHash, common.EmptyHash,
		common.EmptyHash, 5, Digest{}), Body{Extrinsic{1}, Extrinsic{2, 3}})

	enc, err := block.Encode()
	require.NoError(t, err)

	dec, err := DecodeBlock(enc)
	require.NoError(t, err)
	require.Equal(t, block.Header.Hash(), dec.Header.Hash())
	require.Equal(t, block.Body, dec.Body)
	require.True(t, dec.Body.HasExtrinsic(Extrinsic{2, 3}))
	require.False(t, dec.Body.HasExtrinsic(Extrinsic{4}))
}

func TestBabePreDigest(t *testing.T) {
	var out [sr25519.VRFOutputLength]byte
	var proof [sr25519.VRFProofLength]byte
	out[0] = 1
	proof[0] = 2

	pre := NewBabePreDigest(2, 100, out, proof)
	item, err := pre.ToPreRuntimeDigest()
	require.NoError(t, err)
	require.True(t, item.IsPreRuntime())
	require.Equal(t, BabeEngineID, item.Engine)

	dec, err := DecodeBabePreDigest(item.Data)
	require.NoError(t, err)
	require.Equal(t, pre, dec)

	_, err = DecodeBabePreDigest([]byte("junk"))
	require.Error(t, err)
}

func TestNextEpochDataDigest(t *testing.T) {
	kp, err := sr25519.GenerateKeypair()
	require.NoError(t, err)

	auth := NewAuthority(kp.Public().(*sr25519.PublicKey), 1)
	data := &NextEpochData{
		Authorities: []AuthorityRaw{auth.ToRaw()},
		Randomness:  [RandomnessLength]byte{1, 2, 3},
	}

	item, err := data.ToConsensusDigest()
	require.NoError(t, err)
	require.Equal(t, ConsensusType, item.Type)
	require.Equal(t, BabeEngineID, item.Engine)

	dec, err := DecodeNextEpochData(item.Data)
	require.NoError(t, err)
	require.Equal(t, data, dec)

	auths, err := AuthoritiesFromRaw(dec.Authorities)
	require.NoError(t, err)
	require.Equal(t, auth.Key.Encode(), auths[0].Key.Encode())
}

func TestGrandpaScheduledChangeDigest(t *testing.T) {
	change := &GrandpaScheduledChange{
		Auths: []GrandpaVoterRaw{{ID: 1}, {ID: 2}},
		Delay: 0,
	}

	item, err := change.ToConsensusDigest()
	require.NoError(t, err)
	require.Equal(t, GrandpaEngineID, item.Engine)

	dec, err := DecodeGrandpaScheduledChange(item.Data)
	require.NoError(t, err)
	require.Equal(t, change, dec)
}

func TestRoles(t *testing.T) {
	require.Equal(t, AuthorityRole, StringToRole("authority"))
	require.Equal(t, SentryRole, StringToRole("sentry"))
	require.Equal(t, FullNodeRole, StringToRole("bogus"))
	require.Equal(t, "light", RoleToString(LightClientRole))
}
