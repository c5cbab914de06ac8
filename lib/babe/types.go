// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package babe

import (
	"fmt"
	"time"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/node/types"
)

// Randomness is the per-epoch VRF randomness
type Randomness = types.Randomness

// Slot represents a single production slot: its number, when it starts and
// how long it lasts.
type Slot struct {
	start    time.Time
	duration time.Duration
	number   uint64
}

// NewSlot returns a new Slot
func NewSlot(start time.Time, duration time.Duration, number uint64) *Slot {
	return &Slot{
		start:    start,
		duration: duration,
		number:   number,
	}
}

// Number returns the slot number
func (s *Slot) Number() uint64 {
	return s.number
}

func (s *Slot) String() string {
	return fmt.Sprintf("slot number=%d start=%s duration=%s", s.number, s.start, s.duration)
}

// Authorities is a formatting helper for a slice of authorities
type Authorities []types.Authority

// String returns the Authorities as a formatted string
func (d Authorities) String() string {
	str := ""
	for _, di := range []types.Authority(d) {
		str = str + fmt.Sprintf("[key=0x%x weight=%d] ", di.Key.Encode(), di.Weight)
	}
	return str
}

// epochData is the production state for the epoch currently being authored
type epochData struct {
	randomness     Randomness
	authorityIndex uint32
	authorities    []types.Authority
	threshold      *common.Uint128
}

func (ed *epochData) String() string {
	return fmt.Sprintf("randomness=%x authorityIndex=%d authorities=%v threshold=%s",
		ed.randomness,
		ed.authorityIndex,
		Authorities(ed.authorities),
		ed.threshold,
	)
}
