// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package common

import (
	"encoding/binary"

	"github.com/OneOfOne/xxhash"
	"golang.org/x/crypto/blake2b"
)

// Blake2bHash returns the 256-bit blake2b hash of the input data
func Blake2bHash(in []byte) (Hash, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return EmptyHash, err
	}

	if _, err = h.Write(in); err != nil {
		return EmptyHash, err
	}

	return NewHash(h.Sum(nil)), nil
}

// MustBlake2bHash returns the 256-bit blake2b hash of the input data,
// panicking on failure
func MustBlake2bHash(in []byte) Hash {
	h, err := Blake2bHash(in)
	if err != nil {
		panic(err)
	}

	return h
}

// Blake2b128 returns the 128-bit blake2b hash of the input data
func Blake2b128(in []byte) ([]byte, error) {
	h, err := blake2b.New(16, nil)
	if err != nil {
		return nil, err
	}

	if _, err = h.Write(in); err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}

// Blake2b512 returns the 512-bit blake2b hash of the input data
func Blake2b512(in []byte) ([]byte, error) {
	h, err := blake2b.New512(nil)
	if err != nil {
		return nil, err
	}

	if _, err = h.Write(in); err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}

// Twox64 returns the 64-bit xxHash of the input data, seed 0,
// little-endian encoded
func Twox64(in []byte) ([]byte, error) {
	h := xxhash.NewS64(0)
	if _, err := h.Write(in); err != nil {
		return nil, err
	}

	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, h.Sum64())
	return out, nil
}

// Twox128 computes xxHash64 twice with seeds 0 and 1 over the input and
// concatenates the little-endian results
func Twox128(in []byte) ([]byte, error) {
	out := make([]byte, 16)
	for seed := uint64(0); seed < 2; seed++ {
		h := xxhash.NewS64(seed)
		if _, err := h.Write(in); err != nil {
			return nil, err
		}

		binary.LittleEndian.PutUint64(out[seed*8:], h.Sum64())
	}

	return out, nil
}
