// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package digest

import (
	"fmt"

	"github.com/tessera-net/tessera/node/types"
)

// BlockImportHandler processes the consensus digest items carried by
// imported blocks. The import worker calls it for every block it accepts,
// so announced epoch data and voter set changes are recorded in import
// order.
type BlockImportHandler struct {
	epochState   EpochState
	grandpaState GrandpaState
}

// NewBlockImportHandler creates a digest handler for imported blocks
func NewBlockImportHandler(epochState EpochState, grandpaState GrandpaState) *BlockImportHandler {
	return &BlockImportHandler{
		epochState:   epochState,
		grandpaState: grandpaState,
	}
}

// HandleDigests processes the consensus digest items of the given header.
// Items from unknown consensus engines are ignored.
func (h *BlockImportHandler) HandleDigests(header *types.Header) error {
	for _, item := range header.Digest {
		if item.Type != types.ConsensusType {
			continue
		}

		var err error
		switch item.Engine {
		case types.BabeEngineID:
			err = h.handleNextEpochData(item.Data, header)
		case types.GrandpaEngineID:
			err = h.handleScheduledChange(item.Data, header)
		}
		if err != nil {
			return fmt.Errorf("consensus digest of block %d: %w", header.Number, err)
		}
	}

	return nil
}

func (h *BlockImportHandler) handleNextEpochData(data []byte, header *types.Header) error {
	next, err := types.DecodeNextEpochData(data)
	if err != nil {
		return err
	}

	epoch, err := h.epochState.GetEpochForBlock(header)
	if err != nil {
		return fmt.Errorf("cannot determine epoch of block: %w", err)
	}

	info, err := next.ToEpochData()
	if err != nil {
		return err
	}

	if err := h.epochState.SetEpochData(epoch+1, info); err != nil {
		return err
	}

	logger.Debug("stored next epoch data", "epoch", epoch+1, "authorities", len(info.Authorities))
	return nil
}

func (h *BlockImportHandler) handleScheduledChange(data []byte, header *types.Header) error {
	sc, err := types.DecodeGrandpaScheduledChange(data)
	if err != nil {
		return err
	}

	voters, err := types.GrandpaVotersFromRaw(sc.Auths)
	if err != nil {
		return err
	}

	activeAt := uint64(header.Number) + uint64(sc.Delay)
	if err := h.grandpaState.SetNextChange(voters, activeAt); err != nil {
		return err
	}

	logger.Debug("scheduled voter set change", "active at", activeAt, "voters", len(voters))
	return nil
}
