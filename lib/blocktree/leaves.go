// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package blocktree

import (
	"errors"
	"sync"
)

// leafMap provides quick lookup for existing leaves
type leafMap struct {
	currentHighestLeaf *node

	sync.RWMutex
	smap *sync.Map // map[Hash]*node
}

func newEmptyLeafMap() *leafMap {
	return &leafMap{
		smap: &sync.Map{},
	}
}

func newLeafMap(n *node) *leafMap {
	smap := &sync.Map{}
	for _, leaf := range n.getLeaves(nil) {
		smap.Store(leaf.hash, leaf)
	}

	return &leafMap{
		smap: smap,
	}
}

func (lm *leafMap) store(key Hash, value *node) {
	lm.smap.Store(key, value)
}

func (lm *leafMap) load(key Hash) (*node, error) {
	v, ok := lm.smap.Load(key)
	if !ok {
		return nil, errors.New("key not found")
	}

	return v.(*node), nil
}

// replace deletes the old node from the map and inserts the new one
func (lm *leafMap) replace(oldNode, newNode *node) {
	lm.Lock()
	defer lm.Unlock()
	lm.smap.Delete(oldNode.hash)
	lm.store(newNode.hash, newNode)
}

// bestBlock searches the stored leaves for the one with the greatest number.
// If two leaves have the same number, the one that arrived earliest wins.
func (lm *leafMap) bestBlock() *node {
	lm.RLock()
	defer lm.RUnlock()

	var best *node
	lm.smap.Range(func(_, v interface{}) bool {
		leaf := v.(*node)
		if best == nil {
			best = leaf
			return true
		}

		if leaf.number > best.number {
			best = leaf
		} else if leaf.number == best.number && leaf.arrivalTime.Before(best.arrivalTime) {
			best = leaf
		}

		return true
	})

	lm.currentHighestLeaf = best
	return best
}

func (lm *leafMap) toMap() map[Hash]*node {
	mmap := make(map[Hash]*node)

	lm.smap.Range(func(k, v interface{}) bool {
		mmap[k.(Hash)] = v.(*node)
		return true
	})

	return mmap
}

func (lm *leafMap) nodes() []*node {
	nodes := []*node{}

	lm.smap.Range(func(_, v interface{}) bool {
		nodes = append(nodes, v.(*node))
		return true
	})

	return nodes
}
