// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package babe

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/lib/crypto/sr25519"
)

func TestCalculateThreshold(t *testing.T) {
	// c = 1 means every authority may claim every slot
	threshold, err := CalculateThreshold(1, 1, 3)
	require.NoError(t, err)
	require.Equal(t, common.MaxUint128, threshold)

	// a larger c yields a larger threshold
	lower, err := CalculateThreshold(1, 4, 3)
	require.NoError(t, err)

	higher, err := CalculateThreshold(1, 2, 3)
	require.NoError(t, err)
	require.Equal(t, -1, lower.Compare(higher))

	// more authorities lower the per-authority threshold
	fewer, err := CalculateThreshold(1, 4, 3)
	require.NoError(t, err)

	more, err := CalculateThreshold(1, 4, 30)
	require.NoError(t, err)
	require.Equal(t, 1, fewer.Compare(more))
}

func TestCalculateThreshold_Invalid(t *testing.T) {
	_, err := CalculateThreshold(0, 4, 3)
	require.ErrorIs(t, err, ErrThresholdOneIsZero)

	_, err = CalculateThreshold(1, 0, 3)
	require.ErrorIs(t, err, ErrThresholdOneIsZero)

	// c > 1 is not a probability
	_, err = CalculateThreshold(5, 4, 3)
	require.Error(t, err)
}

func TestClaimSlot_MaxThreshold(t *testing.T) {
	kp, err := sr25519.GenerateKeypair()
	require.NoError(t, err)

	proof, err := claimSlot(Randomness{}, 1, 0, common.MaxUint128, kp)
	require.NoError(t, err)
	require.NotNil(t, proof)

	under, err := checkThreshold(Randomness{}, 1, 0, proof.Output,
		common.MaxUint128, kp.Public().(*sr25519.PublicKey))
	require.NoError(t, err)
	require.True(t, under)
}

func TestClaimSlot_MinThreshold(t *testing.T) {
	kp, err := sr25519.GenerateKeypair()
	require.NoError(t, err)

	_, err = claimSlot(Randomness{}, 1, 0, &common.Uint128{}, kp)
	require.ErrorIs(t, err, ErrNotAuthorized)
}

func TestClaimSlot_ProofVerifies(t *testing.T) {
	kp, err := sr25519.GenerateKeypair()
	require.NoError(t, err)

	randomness := Randomness{1, 2, 3}
	proof, err := claimSlot(randomness, 77, 2, common.MaxUint128, kp)
	require.NoError(t, err)

	pub := kp.Public().(*sr25519.PublicKey)

	transcript := makeTranscript(randomness, 77, 2)
	ok, err := pub.VrfVerify(transcript, proof.Output[:], proof.Proof[:])
	require.NoError(t, err)
	require.True(t, ok)

	// a different slot's transcript must not verify
	wrong := makeTranscript(randomness, 78, 2)
	ok, _ = pub.VrfVerify(wrong, proof.Output[:], proof.Proof[:])
	require.False(t, ok)

	// nor may another key take credit for the claim
	other, err := sr25519.GenerateKeypair()
	require.NoError(t, err)

	otherPub := other.Public().(*sr25519.PublicKey)
	ok, _ = otherPub.VrfVerify(makeTranscript(randomness, 77, 2), proof.Output[:], proof.Proof[:])
	require.False(t, ok)
}
