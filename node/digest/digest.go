// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package digest

import (
	"context"
	"os"

	log "github.com/ChainSafe/log15"

	"github.com/tessera-net/tessera/node/types"
)

var logger = log.New("pkg", "digest")

// Handler activates scheduled consensus changes as finalisation reaches
// them. Digest items of imported blocks are recorded by the
// BlockImportHandler; this handler consumes finalisation notifications so
// a voter set change takes effect only at the finalised boundary, never in
// the middle of a voting round.
type Handler struct {
	ctx    context.Context
	cancel context.CancelFunc

	blockState   BlockState
	grandpaState GrandpaState

	finalised chan *types.FinalisationInfo
}

// NewHandler creates a handler applying scheduled changes on finalisation
func NewHandler(lvl log.Lvl, blockState BlockState, grandpaState GrandpaState) (*Handler, error) {
	h := log.StreamHandler(os.Stdout, log.TerminalFormat())
	logger.SetHandler(log.LvlFilterHandler(lvl, h))

	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		ctx:          ctx,
		cancel:       cancel,
		blockState:   blockState,
		grandpaState: grandpaState,
		finalised:    blockState.GetFinalisedNotifierChannel(),
	}, nil
}

// Start starts the handler
func (h *Handler) Start() error {
	go h.handleBlockFinalisation(h.ctx)
	return nil
}

// Stop stops the handler
func (h *Handler) Stop() error {
	h.cancel()
	h.blockState.FreeFinalisedNotifierChannel(h.finalised)
	return nil
}

func (h *Handler) handleBlockFinalisation(ctx context.Context) {
	for {
		select {
		case info := <-h.finalised:
			if info == nil {
				continue
			}

			err := h.grandpaState.ApplyScheduledChange(&info.Header)
			if err != nil {
				logger.Error("failed to apply scheduled voter set change",
					"block", info.Header.Number, "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
