// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package grandpa

import (
	"fmt"
	"os"

	log "github.com/ChainSafe/log15"
)

// Observer tracks finality without voting. It verifies the commits
// other voters produce and hands their justifications to the finality
// handler; it never finalises a block whose justification it has not
// verified itself. Vote messages are ignored.
type Observer struct {
	blockState      BlockState
	grandpaState    GrandpaState
	finalityHandler FinalityHandler
}

// ObserverConfig is the configuration for a finality observer
type ObserverConfig struct {
	LogLvl          log.Lvl
	BlockState      BlockState
	GrandpaState    GrandpaState
	FinalityHandler FinalityHandler
}

// NewObserver returns a new finality observer
func NewObserver(cfg *ObserverConfig) (*Observer, error) {
	if cfg.BlockState == nil {
		return nil, errNilBlockState
	}

	if cfg.GrandpaState == nil {
		return nil, errNilGrandpaState
	}

	if cfg.FinalityHandler == nil {
		return nil, errNilFinalityHandler
	}

	h := log.StreamHandler(os.Stdout, log.TerminalFormat())
	logger.SetHandler(log.LvlFilterHandler(cfg.LogLvl, h))

	return &Observer{
		blockState:      cfg.BlockState,
		grandpaState:    cfg.GrandpaState,
		finalityHandler: cfg.FinalityHandler,
	}, nil
}

// Start implements the service interface; the observer is purely
// reactive and runs no tasks of its own
func (o *Observer) Start() error {
	logger.Debug("started finality observer")
	return nil
}

// Stop implements the service interface
func (o *Observer) Stop() error {
	return nil
}

// HandleNetworkMessage verifies a commit message and applies its
// justification through the finality handler. Vote messages return nil
// without any processing.
func (o *Observer) HandleNetworkMessage(from string, data []byte) error {
	msg, err := decodeMessage(data)
	if err != nil {
		return err
	}

	commit, ok := msg.(*CommitMessage)
	if !ok {
		return nil
	}

	logger.Debug("observed commit message",
		"from", from,
		"round", commit.Round,
		"hash", commit.Commit.Hash,
		"number", commit.Commit.Number,
	)

	voters, err := o.grandpaState.GetAuthorities(commit.SetID)
	if err != nil {
		return fmt.Errorf("%w: set %d", ErrSetIDMismatch, commit.SetID)
	}

	just := commit.ToJustification()
	if err := VerifyJustification(o.blockState, voters, commit.SetID, just); err != nil {
		return err
	}

	return o.finalityHandler.HandleJustification(just)
}
