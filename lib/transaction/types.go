// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package transaction

import (
	"github.com/tessera-net/tessera/node/types"
)

// Validity describes how an extrinsic may be scheduled: its priority in
// the ready queue, how long it stays valid and whether it should be
// gossiped to peers
type Validity struct {
	Priority  uint64
	Requires  [][]byte
	Provides  [][]byte
	Longevity uint64
	Propagate bool
}

// NewValidity returns Validity
func NewValidity(priority uint64, requires, provides [][]byte, longevity uint64, propagate bool) *Validity {
	return &Validity{
		Priority:  priority,
		Requires:  requires,
		Provides:  provides,
		Longevity: longevity,
		Propagate: propagate,
	}
}

// ValidTransaction is an extrinsic paired with the validity the runtime
// assigned to it
type ValidTransaction struct {
	Extrinsic types.Extrinsic
	Validity  *Validity
}

// NewValidTransaction returns ValidTransaction
func NewValidTransaction(extrinsic types.Extrinsic, validity *Validity) *ValidTransaction {
	return &ValidTransaction{
		Extrinsic: extrinsic,
		Validity:  validity,
	}
}

// Status represents possible transaction statuses
type Status int64

const (
	// Future status occurs when transaction is part of the future queue
	Future Status = iota
	// Ready status occurs when transaction is part of the ready queue
	Ready
	// InBlock status occurs when transaction has been included in a block
	InBlock
	// Retracted status occurs when the block this transaction was included
	// in has been retracted
	Retracted
	// Finalized status occurs when the block this transaction was included
	// in has been finalised
	Finalized
	// Dropped status occurs when transaction has been dropped from the pool
	// because of a limit
	Dropped
	// Invalid status occurs when transaction is no longer valid in the
	// current state
	Invalid
)

// String returns string representation of current status
func (s Status) String() string {
	switch s {
	case Future:
		return "future"
	case Ready:
		return "ready"
	case InBlock:
		return "inBlock"
	case Retracted:
		return "retracted"
	case Finalized:
		return "finalized"
	case Dropped:
		return "dropped"
	case Invalid:
		return "invalid"
	}
	return "unknown"
}
