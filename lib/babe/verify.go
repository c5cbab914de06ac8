// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package babe

import (
	"fmt"
	"sync"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/lib/crypto/sr25519"
	"github.com/tessera-net/tessera/node/types"
)

// verifierInfo is the epoch-specific data needed to verify a slot claim
type verifierInfo struct {
	authorities []types.Authority
	randomness  Randomness
	threshold   *common.Uint128
}

// VerificationManager verifies the authorship right of incoming blocks. It
// resolves each block to its epoch and checks the slot claim against that
// epoch's authority set, randomness and threshold.
type VerificationManager struct {
	lock       sync.Mutex
	blockState BlockState
	epochState EpochState
	c1, c2     uint64

	// epochs already resolved to verification data
	epochInfo map[uint64]*verifierInfo
}

// NewVerificationManager returns a new VerificationManager. genCfg supplies
// the chain's lottery constants, which are fixed at genesis.
func NewVerificationManager(blockState BlockState, epochState EpochState,
	genCfg *types.BabeConfiguration) (*VerificationManager, error) {
	if blockState == nil {
		return nil, errNilBlockState
	}

	if epochState == nil {
		return nil, errNilEpochState
	}

	return &VerificationManager{
		blockState: blockState,
		epochState: epochState,
		c1:         genCfg.C1,
		c2:         genCfg.C2,
		epochInfo:  make(map[uint64]*verifierInfo),
	}, nil
}

// VerifyBlock verifies that the producer of the block was authorised to
// produce it. It returns ErrEpochDataNotFound if the block's epoch cannot be
// resolved yet; the caller may retry once the epoch data arrives.
func (v *VerificationManager) VerifyBlock(header *types.Header) error {
	epoch, err := v.epochState.GetEpochForBlock(header)
	if err != nil {
		return fmt.Errorf("failed to get epoch for block header: %w", err)
	}

	info, err := v.getVerifierInfo(epoch)
	if err != nil {
		return err
	}

	verifier := newVerifier(v.blockState, epoch, info)
	return verifier.verifyAuthorshipRight(header)
}

func (v *VerificationManager) getVerifierInfo(epoch uint64) (*verifierInfo, error) {
	v.lock.Lock()
	defer v.lock.Unlock()

	if info, has := v.epochInfo[epoch]; has {
		return info, nil
	}

	has, err := v.epochState.HasEpochData(epoch)
	if err != nil {
		return nil, err
	}

	if !has {
		return nil, fmt.Errorf("%w: epoch %d", ErrEpochDataNotFound, epoch)
	}

	data, err := v.epochState.GetEpochData(epoch)
	if err != nil {
		return nil, err
	}

	threshold, err := CalculateThreshold(v.c1, v.c2, len(data.Authorities))
	if err != nil {
		return nil, fmt.Errorf("failed to calculate threshold: %w", err)
	}

	info := &verifierInfo{
		authorities: data.Authorities,
		randomness:  data.Randomness,
		threshold:   threshold,
	}

	v.epochInfo[epoch] = info
	return info, nil
}

// verifier verifies blocks claiming slots of a single epoch
type verifier struct {
	blockState  BlockState
	epoch       uint64
	authorities []types.Authority
	randomness  Randomness
	threshold   *common.Uint128
}

func newVerifier(blockState BlockState, epoch uint64, info *verifierInfo) *verifier {
	return &verifier{
		blockState:  blockState,
		epoch:       epoch,
		authorities: info.authorities,
		randomness:  info.randomness,
		threshold:   info.threshold,
	}
}

// verifyAuthorshipRight checks the block's slot claim end to end: digest
// shape, producer index, VRF proof, lottery threshold, seal signature, and
// finally that the producer has not already produced a different block in
// the same slot.
func (b *verifier) verifyAuthorshipRight(header *types.Header) error {
	if len(header.Digest) < 2 {
		return errMissingDigestItems
	}

	preDigestItem := header.Digest[0]
	sealItem := header.Digest[len(header.Digest)-1]

	if !preDigestItem.IsPreRuntime() || preDigestItem.Engine != types.BabeEngineID {
		return errFirstDigestNotPreRuntime
	}

	if !sealItem.IsSeal() || sealItem.Engine != types.BabeEngineID {
		return errLastDigestItemNotSeal
	}

	preDigest, err := types.DecodeBabePreDigest(preDigestItem.Data)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBadSlotClaim, err)
	}

	if len(b.authorities) <= int(preDigest.AuthorityIndex) {
		return ErrInvalidBlockProducerIndex
	}

	authorPub := b.authorities[preDigest.AuthorityIndex].Key

	if err := b.verifySlotWinner(preDigest, authorPub); err != nil {
		return err
	}

	// the seal signs the blake2b hash of the header as it was sealed,
	// without the seal digest itself
	unsealed, err := header.DeepCopy()
	if err != nil {
		return err
	}

	unsealed.Digest = unsealed.Digest[:len(unsealed.Digest)-1]
	unsealed.ClearCachedHash()

	encHeader, err := unsealed.Encode()
	if err != nil {
		return err
	}

	hash, err := common.Blake2bHash(encHeader)
	if err != nil {
		return err
	}

	ok, err := authorPub.Verify(hash[:], sealItem.Data)
	if err != nil {
		return err
	}

	if !ok {
		return fmt.Errorf("%w: seal is invalid", ErrBadSignature)
	}

	return b.checkForEquivocation(header, preDigest)
}

// verifySlotWinner verifies the claim's VRF proof against the claiming
// authority's key and checks the output against the epoch's threshold
func (b *verifier) verifySlotWinner(preDigest *types.BabePreDigest, authorPub *sr25519.PublicKey) error {
	t := makeTranscript(b.randomness, preDigest.SlotNumber, b.epoch)

	ok, err := authorPub.VrfVerify(t, preDigest.VRFOutput[:], preDigest.VRFProof[:])
	if err != nil {
		return fmt.Errorf("failed to verify vrf proof: %w", err)
	}

	if !ok {
		return fmt.Errorf("%w: vrf proof is invalid", ErrBadSlotClaim)
	}

	under, err := checkThreshold(b.randomness, preDigest.SlotNumber, b.epoch,
		preDigest.VRFOutput, b.threshold, authorPub)
	if err != nil {
		return fmt.Errorf("failed to compare with threshold: %w", err)
	}

	if !under {
		return ErrVRFOutputOverThreshold
	}

	return nil
}

// checkForEquivocation reports whether the block's producer has already
// produced a different block in the same slot. The earlier block is kept;
// the equivocating one is rejected.
func (b *verifier) checkForEquivocation(header *types.Header, preDigest *types.BabePreDigest) error {
	hashes := b.blockState.GetAllBlocksAtNumber(uint64(header.Number))

	for _, hash := range hashes {
		if hash == header.Hash() {
			continue
		}

		existing, err := b.blockState.GetHeader(hash)
		if err != nil || len(existing.Digest) == 0 {
			continue
		}

		existingPre, err := types.DecodeBabePreDigest(existing.Digest[0].Data)
		if err != nil {
			continue
		}

		if existingPre.SlotNumber != preDigest.SlotNumber {
			continue
		}

		if existingPre.AuthorityIndex == preDigest.AuthorityIndex {
			logger.Warn("producer equivocated",
				"author index", preDigest.AuthorityIndex,
				"slot", preDigest.SlotNumber,
				"existing block", hash,
				"new block", header.Hash(),
			)
			return fmt.Errorf("%w: authority index %d slot %d",
				ErrProducerEquivocated, preDigest.AuthorityIndex, preDigest.SlotNumber)
		}
	}

	return nil
}
