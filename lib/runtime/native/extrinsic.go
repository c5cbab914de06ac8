// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package native

import (
	"encoding/binary"
	"fmt"

	"github.com/tessera-net/tessera/lib/runtime"
	"github.com/tessera-net/tessera/node/types"

	"github.com/vmihailenco/msgpack/v5"
)

// Call is the decoded form of an extrinsic: a module dispatch with
// arguments. Tip raises the transaction's priority in the ready queue.
type Call struct {
	Module string
	Method string
	Args   [][]byte
	Nonce  uint64
	Tip    uint64
}

// Encode returns the msgpack encoding of the call
func (c *Call) Encode() (types.Extrinsic, error) {
	enc, err := msgpack.Marshal(c)
	if err != nil {
		return nil, err
	}
	return types.Extrinsic(enc), nil
}

// DecodeCall decodes an extrinsic into a call. A decode failure means the
// extrinsic is malformed and can never be valid.
func DecodeCall(e types.Extrinsic) (*Call, error) {
	call := new(Call)
	if err := msgpack.Unmarshal(e, call); err != nil {
		return nil, fmt.Errorf("%w: %s", runtime.ErrInvalidTransaction, err)
	}

	if call.Module == "" || call.Method == "" {
		return nil, fmt.Errorf("%w: empty module or method", runtime.ErrInvalidTransaction)
	}

	return call, nil
}

// NewTimestampExtrinsic returns the inherent that sets the block timestamp
func NewTimestampExtrinsic(timestamp uint64) (types.Extrinsic, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, timestamp)

	call := &Call{
		Module: "timestamp",
		Method: "set",
		Args:   [][]byte{buf},
	}
	return call.Encode()
}

// NewSlotExtrinsic returns the inherent that records the block's slot
func NewSlotExtrinsic(slot uint64) (types.Extrinsic, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, slot)

	call := &Call{
		Module: "slot",
		Method: "set",
		Args:   [][]byte{buf},
	}
	return call.Encode()
}

// NewRecordExtrinsic returns a datalog record submission
func NewRecordExtrinsic(data []byte, nonce, tip uint64) (types.Extrinsic, error) {
	call := &Call{
		Module: "datalog",
		Method: "record",
		Args:   [][]byte{data},
		Nonce:  nonce,
		Tip:    tip,
	}
	return call.Encode()
}

// NewRemarkExtrinsic returns a no-op system remark
func NewRemarkExtrinsic(remark []byte, nonce uint64) (types.Extrinsic, error) {
	call := &Call{
		Module: "system",
		Method: "remark",
		Args:   [][]byte{remark},
		Nonce:  nonce,
	}
	return call.Encode()
}
