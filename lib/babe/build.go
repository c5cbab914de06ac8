// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package babe

import (
	"errors"
	"fmt"
	"time"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/lib/crypto/sr25519"
	"github.com/tessera-net/tessera/lib/runtime"
	"github.com/tessera-net/tessera/lib/transaction"
	"github.com/tessera-net/tessera/node/types"
)

// buildBlock constructs, seals and returns a block for the given slot on top
// of the given parent. The caller must have set the runtime's storage context
// to the parent's post-state.
func (b *Service) buildBlock(parent *types.Header, slot Slot,
	proof *sr25519.VrfOutputAndProof) (*types.Block, error) {
	logger.Trace("build block", "parent", parent.Hash(), "slot", slot)

	preDigest, err := b.buildBlockPreDigest(slot, proof)
	if err != nil {
		return nil, err
	}

	header := types.NewHeader(parent.Hash(), common.Hash{}, common.Hash{},
		parent.Number+1, types.Digest{preDigest})

	if err := b.rt.InitializeBlock(header); err != nil {
		return nil, fmt.Errorf("cannot initialise block: %w", err)
	}

	logger.Trace("initialised block")

	inherents, err := b.buildBlockInherents(slot)
	if err != nil {
		return nil, fmt.Errorf("cannot build inherents: %w", err)
	}

	logger.Trace("built block inherents")

	included := b.buildBlockExtrinsics(slot)

	logger.Trace("built block extrinsics")

	header, err = b.rt.FinalizeBlock()
	if err != nil {
		b.addToQueue(included)
		return nil, fmt.Errorf("cannot finalise block: %w", err)
	}

	logger.Trace("finalised block")

	seal, err := b.buildBlockSeal(header)
	if err != nil {
		return nil, err
	}

	header.Digest = append(header.Digest, seal)
	header.ClearCachedHash()

	logger.Trace("built block seal")

	body := make(types.Body, 0, len(inherents)+len(included))
	body = append(body, inherents...)
	for _, txn := range included {
		body = append(body, txn.Extrinsic)
	}

	return &types.Block{
		Header: *header,
		Body:   body,
	}, nil
}

// buildBlockPreDigest creates the pre-runtime digest item carrying the slot
// claim: the slot number, this node's authority index and the lottery proof
func (b *Service) buildBlockPreDigest(slot Slot, proof *sr25519.VrfOutputAndProof) (types.DigestItem, error) {
	preDigest := types.NewBabePreDigest(
		b.epochData.authorityIndex,
		slot.number,
		proof.Output,
		proof.Proof,
	)

	return preDigest.ToPreRuntimeDigest()
}

// buildBlockSeal creates the seal for the block header: a signature of the
// blake2b hash of the encoded header, made with the production key
func (b *Service) buildBlockSeal(header *types.Header) (types.DigestItem, error) {
	encHeader, err := header.Encode()
	if err != nil {
		return types.DigestItem{}, err
	}

	hash, err := common.Blake2bHash(encHeader)
	if err != nil {
		return types.DigestItem{}, err
	}

	sig, err := b.keypair.Sign(hash[:])
	if err != nil {
		return types.DigestItem{}, err
	}

	return types.NewSealDigest(types.BabeEngineID, sig), nil
}

// buildBlockInherents applies the inherent extrinsics for the slot to the
// block under construction and returns them
func (b *Service) buildBlockInherents(slot Slot) ([]types.Extrinsic, error) {
	inherents, err := b.rt.InherentExtrinsics(uint64(slot.start.UnixMilli()), slot.number)
	if err != nil {
		return nil, err
	}

	for i, ext := range inherents {
		if err := b.rt.ApplyExtrinsic(ext); err != nil {
			return nil, fmt.Errorf("error applying inherent %d: %w", i, err)
		}
	}

	return inherents, nil
}

// buildBlockExtrinsics applies ready extrinsics from the queue to the block
// under construction until the slot's build budget runs out or the queue is
// empty. The last third of the slot is reserved for finalising and submitting
// the block. It returns the extrinsics that made it into the block.
func (b *Service) buildBlockExtrinsics(slot Slot) []*transaction.ValidTransaction {
	var included []*transaction.ValidTransaction

	slotEnd := slot.start.Add(slot.duration * 2 / 3)

	for time.Now().Before(slotEnd) {
		txn := b.transactionState.Pop()
		if txn == nil {
			break
		}

		ext := txn.Extrinsic
		logger.Trace("build block, applying extrinsic", "extrinsic", ext)

		err := b.rt.ApplyExtrinsic(ext)
		switch {
		case errors.Is(err, runtime.ErrUnknownTransaction):
			// may become valid in a later block; re-queue rather than drop
			if _, err := b.transactionState.Push(txn); err != nil {
				logger.Debug("failed to re-queue transaction", "error", err)
			}
			continue
		case errors.Is(err, runtime.ErrInvalidTransaction):
			logger.Warn("discarding invalid extrinsic", "extrinsic", ext, "error", err)
			continue
		case err != nil:
			logger.Warn("failed to apply extrinsic", "extrinsic", ext, "error", err)
			continue
		}

		logger.Debug("build block applied extrinsic", "extrinsic", ext)
		included = append(included, txn)
	}

	return included
}

// addToQueue returns extrinsics to the queue after a failed build so they are
// not lost
func (b *Service) addToQueue(txs []*transaction.ValidTransaction) {
	for _, t := range txs {
		hash, err := b.transactionState.Push(t)
		if err != nil {
			logger.Trace("failed to re-add transaction to queue", "error", err)
		} else {
			logger.Trace("re-added transaction to queue", "hash", hash)
		}
	}
}
