// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package state

import (
	"github.com/tessera-net/tessera/node/types"
)

const defaultBufferSize = 128

// GetImportedBlockNotifierChannel returns a channel that receives every block
// added to the blocktree. The channel is buffered; if the receiver falls
// behind, notifications are dropped rather than blocking the import path.
func (bs *BlockState) GetImportedBlockNotifierChannel() chan *types.Block {
	bs.importedLock.Lock()
	defer bs.importedLock.Unlock()

	ch := make(chan *types.Block, defaultBufferSize)
	bs.imported[ch] = struct{}{}
	return ch
}

// FreeImportedBlockNotifierChannel unregisters the given imported block channel
func (bs *BlockState) FreeImportedBlockNotifierChannel(ch chan *types.Block) {
	bs.importedLock.Lock()
	defer bs.importedLock.Unlock()
	delete(bs.imported, ch)
}

// GetFinalisedNotifierChannel returns a channel that receives a notification
// each time a block is finalised
func (bs *BlockState) GetFinalisedNotifierChannel() chan *types.FinalisationInfo {
	bs.finalisedLock.Lock()
	defer bs.finalisedLock.Unlock()

	ch := make(chan *types.FinalisationInfo, defaultBufferSize)
	bs.finalised[ch] = struct{}{}
	return ch
}

// FreeFinalisedNotifierChannel unregisters the given finalisation channel
func (bs *BlockState) FreeFinalisedNotifierChannel(ch chan *types.FinalisationInfo) {
	bs.finalisedLock.Lock()
	defer bs.finalisedLock.Unlock()
	delete(bs.finalised, ch)
}

func (bs *BlockState) notifyImported(block *types.Block) {
	bs.importedLock.RLock()
	defer bs.importedLock.RUnlock()

	if len(bs.imported) == 0 {
		return
	}

	logger.Trace("notifying imported block channels...", "chans", len(bs.imported))
	for ch := range bs.imported {
		go func(ch chan *types.Block) {
			select {
			case ch <- block:
			default:
			}
		}(ch)
	}
}

func (bs *BlockState) notifyFinalized(info *types.FinalisationInfo) {
	bs.finalisedLock.RLock()
	defer bs.finalisedLock.RUnlock()

	if len(bs.finalised) == 0 {
		return
	}

	logger.Debug("notifying finalised block channels...", "chans", len(bs.finalised))
	for ch := range bs.finalised {
		go func(ch chan *types.FinalisationInfo) {
			select {
			case ch <- info:
			default:
			}
		}(ch)
	}
}
