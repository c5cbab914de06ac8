// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package babe

import (
	"errors"
	"fmt"

	"github.com/tessera-net/tessera/lib/crypto/sr25519"
)

// initiateEpoch sets the epochData for the given epoch and runs the lottery
// for each of the epoch's slots, recording the proofs for the slots this node
// wins. startSlot is the first slot of the epoch.
func (b *Service) initiateEpoch(epoch, startSlot uint64) error {
	logger.Debug("initiating epoch data", "epoch", epoch, "start slot", startSlot)

	if epoch > 0 {
		has, err := b.epochState.HasEpochData(epoch)
		if err != nil {
			return err
		}

		if !has {
			// the epoch data digest announcing this epoch has not been
			// processed yet
			return fmt.Errorf("%w: epoch %d", ErrEpochDataNotFound, epoch)
		}

		data, err := b.epochState.GetEpochData(epoch)
		if err != nil {
			return err
		}

		idx, err := b.getAuthorityIndex(data.Authorities)
		if errors.Is(err, ErrNotAuthority) {
			// this node's key is not in the new authority set; idle through
			// the epoch rather than stopping the service, since a later set
			// may include it again
			logger.Warn("not in authority set, skipping block production", "epoch", epoch)
			b.epochData = &epochData{
				randomness:  data.Randomness,
				authorities: data.Authorities,
				threshold:   b.epochData.threshold,
			}
			b.clearSlotProofs(startSlot)
			return nil
		} else if err != nil {
			return err
		}

		threshold, err := CalculateThreshold(b.c1, b.c2, len(data.Authorities))
		if err != nil {
			return err
		}

		b.epochData = &epochData{
			randomness:     data.Randomness,
			authorities:    data.Authorities,
			authorityIndex: idx,
			threshold:      threshold,
		}
	}

	b.clearSlotProofs(startSlot)

	for i := startSlot; i < startSlot+b.epochLength; i++ {
		proof, err := b.runLottery(i, epoch)
		if err != nil {
			return fmt.Errorf("error running slot lottery at slot %d: %w", i, err)
		}

		if proof != nil {
			b.slotToProof[i] = proof
			logger.Trace("claimed slot", "slot", i, "slots into epoch", i-startSlot)
		}
	}

	return nil
}

// clearSlotProofs drops lottery proofs for slots before the given slot
func (b *Service) clearSlotProofs(startSlot uint64) {
	for s := range b.slotToProof {
		if s < startSlot {
			delete(b.slotToProof, s)
		}
	}
}

// incrementEpoch increments the current epoch stored in the db and returns
// the new epoch number
func (b *Service) incrementEpoch() (uint64, error) {
	epoch, err := b.epochState.GetCurrentEpoch()
	if err != nil {
		return 0, err
	}

	next := epoch + 1
	if err := b.epochState.SetCurrentEpoch(next); err != nil {
		return 0, err
	}

	return next, nil
}

// runLottery runs the lottery for a specific slot number. It returns the VRF
// output and proof if this node is authorised to produce a block for the
// slot, and nil otherwise.
func (b *Service) runLottery(slot, epoch uint64) (*sr25519.VrfOutputAndProof, error) {
	proof, err := claimSlot(
		b.epochData.randomness,
		slot,
		epoch,
		b.epochData.threshold,
		b.keypair,
	)
	if errors.Is(err, ErrNotAuthorized) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return proof, nil
}
