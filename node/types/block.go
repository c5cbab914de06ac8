// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package types

import (
	"bytes"
	"fmt"

	"github.com/tessera-net/tessera/lib/common"

	"github.com/vmihailenco/msgpack/v5"
)

// Extrinsic is an opaque encoded transaction
type Extrinsic []byte

// Hash returns the blake2b hash of the extrinsic
func (e Extrinsic) Hash() common.Hash {
	hash, err := common.Blake2bHash(e)
	if err != nil {
		panic(err)
	}
	return hash
}

// Body is the block body, an ordered list of extrinsics
type Body []Extrinsic

// NewBody creates a body from a slice of extrinsics
func NewBody(exts []Extrinsic) *Body {
	body := Body(exts)
	return &body
}

// HasExtrinsic reports whether the body contains the given extrinsic
func (b *Body) HasExtrinsic(target Extrinsic) bool {
	for _, ext := range *b {
		if bytes.Equal(ext, target) {
			return true
		}
	}
	return false
}

// DeepCopy returns a copy of the body sharing no memory with the original
func (b *Body) DeepCopy() Body {
	cp := make(Body, len(*b))
	for i, ext := range *b {
		cp[i] = make(Extrinsic, len(ext))
		copy(cp[i], ext)
	}
	return cp
}

// Block is a header together with its body
type Block struct {
	Header Header
	Body   Body
}

// NewBlock creates a block from a header and body
func NewBlock(header Header, body Body) Block {
	return Block{Header: header, Body: body}
}

// NewEmptyBlock returns a block with an empty header and body
func NewEmptyBlock() Block {
	return Block{Header: *NewEmptyHeader(), Body: Body{}}
}

type blockWire struct {
	Header []byte
	Body   [][]byte
}

// Encode returns the msgpack encoding of the block
func (b *Block) Encode() ([]byte, error) {
	header, err := b.Header.Encode()
	if err != nil {
		return nil, fmt.Errorf("cannot encode header: %w", err)
	}

	body := make([][]byte, len(b.Body))
	for i, ext := range b.Body {
		body[i] = ext
	}

	return msgpack.Marshal(&blockWire{Header: header, Body: body})
}

// MustEncode encodes the block, panicking on failure
func (b *Block) MustEncode() []byte {
	enc, err := b.Encode()
	if err != nil {
		panic(err)
	}
	return enc
}

// DecodeBlock decodes a msgpack encoded block
func DecodeBlock(in []byte) (*Block, error) {
	wire := new(blockWire)
	if err := msgpack.Unmarshal(in, wire); err != nil {
		return nil, fmt.Errorf("cannot decode block: %w", err)
	}

	header, err := DecodeHeader(wire.Header)
	if err != nil {
		return nil, err
	}

	body := make(Body, len(wire.Body))
	for i, ext := range wire.Body {
		body[i] = Extrinsic(ext)
	}

	return &Block{Header: *header, Body: body}, nil
}

// DeepCopy returns a copy of the block sharing no memory with the original
func (b *Block) DeepCopy() (Block, error) {
	header, err := b.Header.DeepCopy()
	if err != nil {
		return Block{}, err
	}
	return Block{Header: *header, Body: b.Body.DeepCopy()}, nil
}

// String returns a compact human readable form of the block
func (b *Block) String() string {
	return fmt.Sprintf("block number=%d hash=%s exts=%d",
		b.Header.Number, b.Header.Hash().Short(), len(b.Body))
}
