// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package types

import (
	"errors"
	"fmt"

	"github.com/tessera-net/tessera/lib/common"

	"github.com/vmihailenco/msgpack/v5"
)

var errNilHeader = errors.New("header is nil")

// Header is a block header. Its hash is a pure function of its fields,
// computed lazily and cached.
type Header struct {
	ParentHash     common.Hash
	Number         uint
	StateRoot      common.Hash
	ExtrinsicsRoot common.Hash
	Digest         Digest

	hash common.Hash
}

// NewHeader creates a block header
func NewHeader(parentHash, stateRoot, extrinsicsRoot common.Hash,
	number uint, digest Digest) *Header {
	return &Header{
		ParentHash:     parentHash,
		Number:         number,
		StateRoot:      stateRoot,
		ExtrinsicsRoot: extrinsicsRoot,
		Digest:         digest,
	}
}

// NewEmptyHeader returns a header with all zero values
func NewEmptyHeader() *Header {
	return &Header{Digest: Digest{}}
}

type headerWire struct {
	ParentHash     common.Hash
	Number         uint
	StateRoot      common.Hash
	ExtrinsicsRoot common.Hash
	Digest         []DigestItem
}

// Encode returns the msgpack encoding of the header
func (h *Header) Encode() ([]byte, error) {
	if h == nil {
		return nil, errNilHeader
	}

	return msgpack.Marshal(&headerWire{
		ParentHash:     h.ParentHash,
		Number:         h.Number,
		StateRoot:      h.StateRoot,
		ExtrinsicsRoot: h.ExtrinsicsRoot,
		Digest:         h.Digest,
	})
}

// MustEncode encodes the header, panicking on failure
func (h *Header) MustEncode() []byte {
	enc, err := h.Encode()
	if err != nil {
		panic(err)
	}
	return enc
}

// DecodeHeader decodes a msgpack encoded header
func DecodeHeader(in []byte) (*Header, error) {
	wire := new(headerWire)
	if err := msgpack.Unmarshal(in, wire); err != nil {
		return nil, fmt.Errorf("cannot decode header: %w", err)
	}

	return &Header{
		ParentHash:     wire.ParentHash,
		Number:         wire.Number,
		StateRoot:      wire.StateRoot,
		ExtrinsicsRoot: wire.ExtrinsicsRoot,
		Digest:         wire.Digest,
	}, nil
}

// Hash returns the blake2b hash of the encoded header. The first call
// computes and caches it; headers must not be mutated afterwards.
func (h *Header) Hash() common.Hash {
	if h.hash.IsEmpty() {
		enc, err := h.Encode()
		if err != nil {
			return common.EmptyHash
		}

		hash, err := common.Blake2bHash(enc)
		if err != nil {
			return common.EmptyHash
		}

		h.hash = hash
	}

	return h.hash
}

// ClearCachedHash resets the cached hash, forcing recomputation on the
// next Hash call
func (h *Header) ClearCachedHash() {
	h.hash = common.EmptyHash
}

// DeepCopy returns a copy of the header sharing no memory with the original
func (h *Header) DeepCopy() (*Header, error) {
	if h == nil {
		return nil, errNilHeader
	}

	cp := &Header{
		ParentHash:     h.ParentHash,
		Number:         h.Number,
		StateRoot:      h.StateRoot,
		ExtrinsicsRoot: h.ExtrinsicsRoot,
		Digest:         make(Digest, len(h.Digest)),
	}

	for i, item := range h.Digest {
		data := make([]byte, len(item.Data))
		copy(data, item.Data)
		cp.Digest[i] = DigestItem{Type: item.Type, Engine: item.Engine, Data: data}
	}
	return cp, nil
}

// String returns a compact human readable form of the header
func (h *Header) String() string {
	return fmt.Sprintf("header number=%d hash=%s parent=%s",
		h.Number, h.Hash().Short(), h.ParentHash.Short())
}
