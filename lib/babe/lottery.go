// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package babe

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/gtank/merlin"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/lib/crypto"
	"github.com/tessera-net/tessera/lib/crypto/sr25519"
	"github.com/tessera-net/tessera/node/types"
)

var vrfPrefix = []byte("tessera-babe-vrf")

// makeTranscript builds the VRF transcript binding a slot claim to the
// epoch randomness, the slot and the epoch
func makeTranscript(randomness Randomness, slot, epoch uint64) *merlin.Transcript {
	t := merlin.NewTranscript(string(types.BabeEngineID[:]))
	crypto.AppendUint64(t, []byte("slot number"), slot)
	crypto.AppendUint64(t, []byte("current epoch"), epoch)
	t.AppendMessage([]byte("chain randomness"), randomness[:])
	return t
}

// claimSlot runs the slot lottery: it signs the slot transcript with the VRF
// key and checks the output against the epoch threshold. If the output is not
// under the threshold the node is not this slot's producer and
// ErrNotAuthorized is returned.
func claimSlot(randomness Randomness,
	slot, epoch uint64,
	threshold *common.Uint128,
	keypair *sr25519.Keypair,
) (*sr25519.VrfOutputAndProof, error) {
	transcript := makeTranscript(randomness, slot, epoch)

	out, proof, err := keypair.VrfSign(transcript)
	if err != nil {
		return nil, err
	}

	ok, err := checkThreshold(randomness, slot, epoch, out, threshold,
		keypair.Public().(*sr25519.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("failed to compare with threshold: %w", err)
	}

	if !ok {
		return nil, fmt.Errorf("%w: slot %d epoch %d", ErrNotAuthorized, slot, epoch)
	}

	return &sr25519.VrfOutputAndProof{
		Output: out,
		Proof:  proof,
	}, nil
}

// checkThreshold returns true if the given VRF output makes its producer the
// winner of the slot lottery for the given slot and epoch
func checkThreshold(randomness Randomness,
	slot, epoch uint64,
	output [sr25519.VRFOutputLength]byte,
	threshold *common.Uint128,
	pub *sr25519.PublicKey,
) (bool, error) {
	t := makeTranscript(randomness, slot, epoch)
	inout, err := sr25519.AttachInput(output, pub, t)
	if err != nil {
		return false, fmt.Errorf("attaching vrf input: %w", err)
	}

	const size = 16
	res, err := inout.MakeBytes(size, vrfPrefix)
	if err != nil {
		return false, fmt.Errorf("making vrf bytes: %w", err)
	}

	inoutUint, err := common.NewUint128FromLEBytes(res)
	if err != nil {
		return false, err
	}

	return inoutUint.Compare(threshold) < 0, nil
}

// CalculateThreshold calculates the slot lottery threshold for an authority.
// equation: threshold = 2^128 * (1 - (1-c)^(1/numAuths)) where c = C1/C2
func CalculateThreshold(c1, c2 uint64, numAuths int) (*common.Uint128, error) {
	if c1 == 0 || c2 == 0 {
		return nil, ErrThresholdOneIsZero
	}

	c := float64(c1) / float64(c2)
	if c > 1 {
		return nil, errors.New("invalid threshold fraction: greater than 1")
	}

	// 1 / len(authorities)
	theta := float64(1) / float64(numAuths)

	// 1 - (1-c)^theta
	p := 1 - math.Pow(1-c, theta)
	pRat := new(big.Rat).SetFloat64(p)

	// 1 << 128
	shift := new(big.Int).Lsh(big.NewInt(1), 128)
	numer := new(big.Int).Mul(shift, pRat.Num())

	thresholdBig := new(big.Int).Div(numer, pRat.Denom())

	// special case where threshold is the maximum
	if thresholdBig.Cmp(shift) == 0 {
		return common.MaxUint128, nil
	}

	if len(thresholdBig.Bytes()) > 16 {
		return nil, errors.New("threshold must fit in 128 bits")
	}

	return common.NewUint128FromBigInt(thresholdBig)
}
