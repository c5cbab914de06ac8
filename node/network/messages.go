// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package network

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/node/types"
)

// message type tags on the blocks topic
const (
	blockAnnounceType byte = iota + 1
	blockRequestType
)

var errInvalidMessageType = errors.New("invalid network message type")

// BlockAnnounceMessage is gossiped on the blocks topic when a node imports
// or produces a block. It carries the complete block so a receiver can
// import it without a follow-up body request. A justification may ride
// along, typically when the announced block sits on a justification-period
// boundary or when the announce answers a BlockRequestMessage.
type BlockAnnounceMessage struct {
	Header        *types.Header
	Body          types.Body
	BestBlock     bool
	Justification []byte
}

// Encode returns the tagged wire encoding of the message
func (m *BlockAnnounceMessage) Encode() ([]byte, error) {
	return encodeBlockMessage(blockAnnounceType, m)
}

// String formats the message for logging
func (m *BlockAnnounceMessage) String() string {
	if m.Header == nil {
		return "BlockAnnounceMessage empty"
	}
	return fmt.Sprintf("BlockAnnounceMessage number=%d hash=%s best=%t",
		m.Header.Number, m.Header.Hash(), m.BestBlock)
}

// BlockRequestMessage asks peers to re-announce a block this node is
// missing, usually the unknown parent of a parked block. Nodes that have
// the block answer with a BlockAnnounceMessage.
type BlockRequestMessage struct {
	Hash   common.Hash
	Number uint64
}

// Encode returns the tagged wire encoding of the message
func (m *BlockRequestMessage) Encode() ([]byte, error) {
	return encodeBlockMessage(blockRequestType, m)
}

// String formats the message for logging
func (m *BlockRequestMessage) String() string {
	return fmt.Sprintf("BlockRequestMessage number=%d hash=%s", m.Number, m.Hash)
}

// JustificationMessage carries an encoded finality justification for a
// block already finalised by the voter set, so non-voting nodes can
// advance their finalised pointer without following rounds.
type JustificationMessage struct {
	Justification []byte
}

// Encode returns the wire encoding of the message
func (m *JustificationMessage) Encode() ([]byte, error) {
	return msgpack.Marshal(m)
}

// String formats the message for logging
func (m *JustificationMessage) String() string {
	return fmt.Sprintf("JustificationMessage len=%d", len(m.Justification))
}

func decodeJustificationMessage(in []byte) (*JustificationMessage, error) {
	msg := new(JustificationMessage)
	if err := msgpack.Unmarshal(in, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// TransactionMessage carries pending extrinsics between transaction pools
type TransactionMessage struct {
	Extrinsics []types.Extrinsic
}

// Encode returns the wire encoding of the message
func (m *TransactionMessage) Encode() ([]byte, error) {
	return msgpack.Marshal(m)
}

// String formats the message for logging
func (m *TransactionMessage) String() string {
	return fmt.Sprintf("TransactionMessage count=%d", len(m.Extrinsics))
}

func decodeTransactionMessage(in []byte) (*TransactionMessage, error) {
	msg := new(TransactionMessage)
	if err := msgpack.Unmarshal(in, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func encodeBlockMessage(msgType byte, msg interface{}) ([]byte, error) {
	enc, err := msgpack.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return append([]byte{msgType}, enc...), nil
}

func decodeBlockMessage(in []byte) (interface{}, error) {
	if len(in) < 2 {
		return nil, errInvalidMessageType
	}

	var msg interface{}
	switch in[0] {
	case blockAnnounceType:
		msg = new(BlockAnnounceMessage)
	case blockRequestType:
		msg = new(BlockRequestMessage)
	default:
		return nil, errInvalidMessageType
	}

	if err := msgpack.Unmarshal(in[1:], msg); err != nil {
		return nil, err
	}
	return msg, nil
}
