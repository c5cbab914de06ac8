// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package common

import (
	"encoding/binary"
	"fmt"
	"math/big"
)

// Uint128 represents an unsigned 128-bit integer
type Uint128 struct {
	Upper uint64
	Lower uint64
}

// MaxUint128 is the maximum Uint128 value
var MaxUint128 = &Uint128{
	Upper: ^uint64(0),
	Lower: ^uint64(0),
}

// NewUint128FromLEBytes constructs a Uint128 from little-endian bytes.
// Input shorter than 16 bytes is zero padded.
func NewUint128FromLEBytes(in []byte) (*Uint128, error) {
	if len(in) > 16 {
		return nil, fmt.Errorf("cannot build Uint128 from %d bytes", len(in))
	}

	for len(in) < 16 {
		in = append(in, 0)
	}

	return &Uint128{
		Upper: binary.LittleEndian.Uint64(in[8:]),
		Lower: binary.LittleEndian.Uint64(in[:8]),
	}, nil
}

// NewUint128FromBigInt constructs a Uint128 from a non-negative big.Int
func NewUint128FromBigInt(in *big.Int) (*Uint128, error) {
	b := in.Bytes()
	if len(b) > 16 {
		return nil, fmt.Errorf("%s does not fit in 128 bits", in)
	}

	for len(b) < 16 {
		b = append([]byte{0}, b...)
	}

	return &Uint128{
		Upper: binary.BigEndian.Uint64(b[:8]),
		Lower: binary.BigEndian.Uint64(b[8:]),
	}, nil
}

// Compare returns 1 if u > other, -1 if u < other and 0 if equal
func (u *Uint128) Compare(other *Uint128) int {
	switch {
	case u.Upper > other.Upper:
		return 1
	case u.Upper < other.Upper:
		return -1
	case u.Lower > other.Lower:
		return 1
	case u.Lower < other.Lower:
		return -1
	}
	return 0
}

// String returns the decimal representation
func (u *Uint128) String() string {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[:8], u.Upper)
	binary.BigEndian.PutUint64(b[8:], u.Lower)
	return new(big.Int).SetBytes(b).String()
}
