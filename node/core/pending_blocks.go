// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package core

import (
	"sync"
	"time"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/node/types"
)

// defaultPendingLimit bounds how many parked blocks the pipeline holds
// while waiting for their ancestors
const defaultPendingLimit = 512

// pendingBlock is a block parked by the import pipeline: its parent is not
// imported yet, or its epoch data has not arrived. A justification may be
// parked for a block we have not seen at all, in which case block is nil.
type pendingBlock struct {
	hash          common.Hash
	number        uint64
	block         *types.Block
	justification []byte
	from          string
	addedAt       time.Time
}

// pendingBlockSet is a bounded set of blocks with missing ancestors,
// indexed by parent hash so the children of a newly imported block can be
// released in one lookup. When the set is full the oldest entry is
// evicted; the evicted block will be re-requested if a descendant arrives.
type pendingBlockSet struct {
	mu    sync.RWMutex
	limit int

	blocks           map[common.Hash]*pendingBlock
	parentToChildren map[common.Hash]map[common.Hash]struct{}
}

func newPendingBlockSet(limit int) *pendingBlockSet {
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	return &pendingBlockSet{
		limit:            limit,
		blocks:           make(map[common.Hash]*pendingBlock),
		parentToChildren: make(map[common.Hash]map[common.Hash]struct{}),
	}
}

// addBlock parks a complete block. Re-adding refreshes the entry's age and
// keeps any justification already attached.
func (s *pendingBlockSet) addBlock(block *types.Block, from string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := block.Header.Hash()
	if pb, has := s.blocks[hash]; has {
		pb.block = block
		pb.addedAt = time.Now()
		return
	}

	s.evictOldestLocked()

	s.blocks[hash] = &pendingBlock{
		hash:    hash,
		number:  uint64(block.Header.Number),
		block:   block,
		from:    from,
		addedAt: time.Now(),
	}
	s.indexLocked(block.Header.ParentHash, hash)
}

// addJustification parks a justification for a block that is not imported
// yet. The block itself may or may not be in the set.
func (s *pendingBlockSet) addJustification(hash common.Hash, number uint64, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pb, has := s.blocks[hash]; has {
		pb.justification = data
		pb.addedAt = time.Now()
		return
	}

	s.evictOldestLocked()

	s.blocks[hash] = &pendingBlock{
		hash:          hash,
		number:        number,
		justification: data,
		addedAt:       time.Now(),
	}
}

func (s *pendingBlockSet) indexLocked(parent, child common.Hash) {
	if s.parentToChildren[parent] == nil {
		s.parentToChildren[parent] = make(map[common.Hash]struct{})
	}
	s.parentToChildren[parent][child] = struct{}{}
}

// evictOldestLocked makes room for one more entry by dropping the oldest
// one once the set is at capacity
func (s *pendingBlockSet) evictOldestLocked() {
	if len(s.blocks) < s.limit {
		return
	}

	var oldest *pendingBlock
	for _, pb := range s.blocks {
		if oldest == nil || pb.addedAt.Before(oldest.addedAt) {
			oldest = pb
		}
	}

	if oldest != nil {
		s.removeLocked(oldest.hash)
	}
}

func (s *pendingBlockSet) getBlock(hash common.Hash) *pendingBlock {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blocks[hash]
}

func (s *pendingBlockSet) hasBlock(hash common.Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, has := s.blocks[hash]
	return has
}

func (s *pendingBlockSet) size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks)
}

// childrenOf returns the parked blocks waiting on the given parent
func (s *pendingBlockSet) childrenOf(parent common.Hash) []*pendingBlock {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var children []*pendingBlock
	for hash := range s.parentToChildren[parent] {
		if pb, has := s.blocks[hash]; has {
			children = append(children, pb)
		}
	}
	return children
}

func (s *pendingBlockSet) remove(hash common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(hash)
}

func (s *pendingBlockSet) removeLocked(hash common.Hash) {
	pb, has := s.blocks[hash]
	if !has {
		return
	}

	if pb.block != nil {
		parent := pb.block.Header.ParentHash
		if children, has := s.parentToChildren[parent]; has {
			delete(children, hash)
			if len(children) == 0 {
				delete(s.parentToChildren, parent)
			}
		}
	}

	delete(s.blocks, hash)
}

// removeLowerBlocks drops every parked entry at or below the given number;
// anything under the finalised head can never be imported
func (s *pendingBlockSet) removeLowerBlocks(num uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, pb := range s.blocks {
		if pb.number <= num {
			s.removeLocked(hash)
		}
	}
}
