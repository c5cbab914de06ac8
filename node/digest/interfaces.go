// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package digest

import (
	"github.com/tessera-net/tessera/node/types"
)

// BlockState provides the finalisation notifications the handler consumes
type BlockState interface {
	GetFinalisedNotifierChannel() chan *types.FinalisationInfo
	FreeFinalisedNotifierChannel(ch chan *types.FinalisationInfo)
}

// EpochState stores the epoch data announced in imported block digests
type EpochState interface {
	GetEpochForBlock(header *types.Header) (uint64, error)
	SetEpochData(epoch uint64, info *types.EpochData) error
}

// GrandpaState schedules the voter set changes announced in imported block
// digests and applies them as finalisation reaches them
type GrandpaState interface {
	SetNextChange(authorities types.GrandpaVoters, number uint64) error
	ApplyScheduledChange(finalisedHeader *types.Header) error
}
