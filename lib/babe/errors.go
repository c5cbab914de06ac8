// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package babe

import (
	"errors"
)

var (
	// ErrBadSlotClaim is returned when a slot claim VRF proof does not verify
	ErrBadSlotClaim = errors.New("could not verify slot claim VRF proof")

	// ErrBadSignature is returned when a block seal signature is invalid
	ErrBadSignature = errors.New("could not verify block seal signature")

	// ErrProducerEquivocated is returned when a producer has already produced
	// a different block in the same slot
	ErrProducerEquivocated = errors.New("block producer equivocated")

	// ErrNotAuthorized is returned when the node did not win the slot lottery
	ErrNotAuthorized = errors.New("not authorized to produce block")

	// ErrVRFOutputOverThreshold is returned when a claimed slot's VRF output
	// does not fall under the epoch threshold
	ErrVRFOutputOverThreshold = errors.New("vrf output over threshold")

	// ErrInvalidBlockProducerIndex is returned when a block's producer index
	// is not in the epoch's authority set
	ErrInvalidBlockProducerIndex = errors.New("block producer is not in authority set")

	// ErrNotAuthority is returned when an authority-only operation is
	// attempted by a non-authority node
	ErrNotAuthority = errors.New("node is not an authority")

	// ErrEpochDataNotFound is returned when the authority set for an epoch is
	// not yet known. This is transient; the announcing block may still arrive.
	ErrEpochDataNotFound = errors.New("epoch data not found")

	// ErrThresholdOneIsZero is returned when a threshold fraction has a zero term
	ErrThresholdOneIsZero = errors.New("numerator or denominator cannot be 0")

	errNilBlockState            = errors.New("block state is nil")
	errNilEpochState            = errors.New("epoch state is nil")
	errNilStorageState          = errors.New("storage state is nil")
	errNilRuntime               = errors.New("runtime is nil")
	errNilBlockImportHandler    = errors.New("block import handler is nil")
	errNilParentHeader          = errors.New("parent header is nil")
	errNoAuthorityKey           = errors.New("cannot author blocks; no keypair provided")
	errMissingDigestItems       = errors.New("block header is missing digest items")
	errFirstDigestNotPreRuntime = errors.New("first digest item is not a pre-runtime digest")
	errLastDigestItemNotSeal    = errors.New("last digest item is not the seal")
	errNoPeersToAuthor          = errors.New("no peers connected; refusing to author")
)
