// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package common

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// HashLength is the byte length of the common.Hash type
const HashLength = 32

// EmptyHash is the zero hash
var EmptyHash = Hash{}

var errNotHexPrefixed = errors.New("string is not 0x prefixed")

// Hash is a 256-bit blake2b digest
type Hash [HashLength]byte

// NewHash casts a byte slice to a Hash. Input longer than 32 bytes is
// truncated; shorter input is zero padded on the right.
func NewHash(in []byte) (h Hash) {
	copy(h[:], in)
	return h
}

// ToBytes returns the hash as a byte slice
func (h Hash) ToBytes() []byte {
	b := [HashLength]byte(h)
	return b[:]
}

// IsEmpty returns true if the hash is the zero hash
func (h Hash) IsEmpty() bool {
	return h == EmptyHash
}

// String returns the 0x prefixed hex string for the hash
func (h Hash) String() string {
	return fmt.Sprintf("0x%x", h[:])
}

// Short returns an abbreviated hex string, first and last 4 bytes
func (h Hash) Short() string {
	const n = 4
	return fmt.Sprintf("0x%x...%x", h[:n], h[HashLength-n:])
}

// HexToHash turns a 0x prefixed hex string into a Hash
func HexToHash(in string) (Hash, error) {
	if !strings.HasPrefix(in, "0x") {
		return EmptyHash, errNotHexPrefixed
	}

	out, err := hex.DecodeString(in[2:])
	if err != nil {
		return EmptyHash, err
	}

	var h Hash
	copy(h[:], out)
	return h, nil
}

// MustHexToHash turns a 0x prefixed hex string into a Hash, panicking if the
// string cannot be decoded
func MustHexToHash(in string) Hash {
	h, err := HexToHash(in)
	if err != nil {
		panic(err)
	}

	return h
}

// MarshalJSON encodes the hash as a 0x prefixed hex string
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes a 0x prefixed hex string into the hash
func (h *Hash) UnmarshalJSON(data []byte) error {
	trimmed := strings.Trim(string(data), "\"")
	if len(trimmed) < 2 {
		return errNotHexPrefixed
	}

	var err error
	*h, err = HexToHash(trimmed)
	return err
}

// EncodeMsgpack encodes the hash as raw bytes rather than an integer array
func (h Hash) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeBytes(h[:])
}

// DecodeMsgpack decodes raw bytes into the hash
func (h *Hash) DecodeMsgpack(dec *msgpack.Decoder) error {
	b, err := dec.DecodeBytes()
	if err != nil {
		return err
	}

	if len(b) != HashLength {
		return fmt.Errorf("cannot decode hash: expected %d bytes, got %d", HashLength, len(b))
	}

	copy(h[:], b)
	return nil
}

// HashSlice hashes the concatenation of the given hashes
func HashSlice(hashes ...Hash) (Hash, error) {
	buf := make([]byte, 0, len(hashes)*HashLength)
	for _, h := range hashes {
		buf = append(buf, h[:]...)
	}

	return Blake2bHash(buf)
}

// HashValidator presents a Hash to the request validator as its hex
// string, so hexadecimal tags apply to hash-typed fields
func HashValidator(field reflect.Value) interface{} {
	if h, ok := field.Interface().(Hash); ok {
		return h.String()
	}
	return nil
}
