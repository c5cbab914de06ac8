// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package blocktree keeps track of every unfinalised fork of the chain.
// The tree is rooted at the most recently finalised block and is pruned
// every time finality advances.
package blocktree

import (
	"fmt"
	"sync"
	"time"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/node/types"

	"github.com/disiqueira/gotree"
)

// Hash common.Hash
type Hash = common.Hash

// BlockTree represents the current state with all possible blocks
// that have not yet been finalised
type BlockTree struct {
	root   *node
	leaves *leafMap
	sync.RWMutex
}

// NewEmptyBlockTree creates a BlockTree with a nil root
func NewEmptyBlockTree() *BlockTree {
	return &BlockTree{
		root:   nil,
		leaves: newEmptyLeafMap(),
	}
}

// NewBlockTreeFromRoot initialises a blocktree with a root header. The root
// is always the most recently finalised block, so the genesis block when the
// node first starts.
func NewBlockTreeFromRoot(root *types.Header) *BlockTree {
	n := &node{
		hash:        root.Hash(),
		parent:      nil,
		children:    []*node{},
		number:      root.Number,
		arrivalTime: time.Now(),
	}

	return &BlockTree{
		root:   n,
		leaves: newLeafMap(n),
	}
}

// GenesisHash returns the hash of the tree's root block
func (bt *BlockTree) GenesisHash() Hash {
	bt.RLock()
	defer bt.RUnlock()
	return bt.root.hash
}

// AddBlock inserts the block as a child of its parent node.
// Assumes the block has no children.
func (bt *BlockTree) AddBlock(header *types.Header, arrivalTime time.Time) error {
	bt.Lock()
	defer bt.Unlock()

	parent := bt.getNode(header.ParentHash)
	if parent == nil {
		return ErrParentNotFound
	}

	if bt.getNode(header.Hash()) != nil {
		return ErrBlockExists
	}

	if header.Number != parent.number+1 {
		return fmt.Errorf("%w: got %d, expected %d",
			errUnexpectedNumber, header.Number, parent.number+1)
	}

	n := &node{
		hash:        header.Hash(),
		parent:      parent,
		children:    []*node{},
		number:      header.Number,
		arrivalTime: arrivalTime,
	}
	parent.addChild(n)
	bt.leaves.replace(parent, n)

	return nil
}

// GetAllBlocksAtNumber returns the hashes of all blocks in the tree with
// the given number
func (bt *BlockTree) GetAllBlocksAtNumber(number uint) []common.Hash {
	bt.RLock()
	defer bt.RUnlock()

	hashes := []common.Hash{}
	if bt.root == nil {
		return hashes
	}

	if bt.root.number == number {
		return append(hashes, bt.root.hash)
	}

	return bt.root.getNodesWithNumber(number, hashes)
}

// getNode finds and returns a node by its hash. Returns nil if not found.
func (bt *BlockTree) getNode(h Hash) *node {
	if bt.root == nil {
		return nil
	}

	if bt.root.hash == h {
		return bt.root
	}

	for _, leaf := range bt.leaves.nodes() {
		if leaf.hash == h {
			return leaf
		}
	}

	for _, child := range bt.root.children {
		if n := child.getNode(h); n != nil {
			return n
		}
	}

	return nil
}

// HasBlock reports whether the given hash is in the tree
func (bt *BlockTree) HasBlock(h Hash) bool {
	bt.RLock()
	defer bt.RUnlock()
	return bt.getNode(h) != nil
}

// Prune sets the given hash as the new blocktree root, removing every node
// that is neither the new root nor one of its descendants. It returns the
// hashes that were pruned.
func (bt *BlockTree) Prune(finalised Hash) (pruned []Hash) {
	bt.Lock()
	defer bt.Unlock()

	if finalised == bt.root.hash {
		return pruned
	}

	n := bt.getNode(finalised)
	if n == nil {
		return pruned
	}

	pruned = bt.root.prune(n, nil)
	bt.root = n
	bt.root.parent = nil
	bt.leaves = newLeafMap(n)
	return pruned
}

// String utilises github.com/disiqueira/gotree to create a printable tree
func (bt *BlockTree) String() string {
	bt.RLock()
	defer bt.RUnlock()

	tree := gotree.New(bt.root.string())
	for _, child := range bt.root.children {
		sub := tree.Add(child.string())
		child.createTree(sub)
	}

	var leaves string
	bt.leaves.smap.Range(func(hash, _ interface{}) bool {
		leaves = leaves + fmt.Sprintf("%s\n", hash.(Hash))
		return true
	})

	return fmt.Sprintf("Leaves:\n%s\n%s\n", leaves, tree.Print())
}

// subChain returns the path from the node with the start hash to the node
// with the end hash
func (bt *BlockTree) subChain(start, end Hash) ([]*node, error) {
	sn := bt.getNode(start)
	if sn == nil {
		return nil, ErrStartNodeNotFound
	}
	en := bt.getNode(end)
	if en == nil {
		return nil, ErrEndNodeNotFound
	}
	return sn.subChain(en)
}

// SubBlockchain returns the path of hashes from the start hash to the end
// hash, inclusive on both ends
func (bt *BlockTree) SubBlockchain(start, end Hash) ([]Hash, error) {
	bt.RLock()
	defer bt.RUnlock()

	sc, err := bt.subChain(start, end)
	if err != nil {
		return nil, err
	}

	var hashes []Hash
	for _, n := range sc {
		hashes = append(hashes, n.hash)
	}
	return hashes, nil
}

// BestBlockHash returns the hash of the deepest leaf in the tree. If there
// are multiple deepest leaves, the one that arrived first wins: fork choice
// is longest chain with ties broken by arrival order.
func (bt *BlockTree) BestBlockHash() Hash {
	bt.RLock()
	defer bt.RUnlock()

	if bt.leaves == nil {
		return Hash{}
	}

	best := bt.leaves.bestBlock()
	if best == nil {
		return Hash{}
	}

	return best.hash
}

// IsDescendantOf returns true if the child is a descendant of parent.
// It returns an error if either is not in the blocktree.
func (bt *BlockTree) IsDescendantOf(parent, child Hash) (bool, error) {
	bt.RLock()
	defer bt.RUnlock()

	pn := bt.getNode(parent)
	if pn == nil {
		return false, ErrStartNodeNotFound
	}
	cn := bt.getNode(child)
	if cn == nil {
		return false, ErrEndNodeNotFound
	}
	return cn.isDescendantOf(pn), nil
}

// Leaves returns the leaves of the blocktree as an array
func (bt *BlockTree) Leaves() []Hash {
	bt.RLock()
	defer bt.RUnlock()

	lm := bt.leaves.toMap()
	la := make([]Hash, 0, len(lm))
	for k := range lm {
		la = append(la, k)
	}

	return la
}

// HighestCommonAncestor returns the deepest block that is an ancestor of
// both a and b
func (bt *BlockTree) HighestCommonAncestor(a, b Hash) (Hash, error) {
	bt.RLock()
	defer bt.RUnlock()

	an := bt.getNode(a)
	if an == nil {
		return common.Hash{}, ErrNodeNotFound
	}
	bn := bt.getNode(b)
	if bn == nil {
		return common.Hash{}, ErrNodeNotFound
	}

	hca := an.highestCommonAncestor(bn)
	if hca == nil {
		return common.Hash{}, ErrNoCommonAncestor
	}
	return hca.hash, nil
}

// GetAllBlocks returns all the block hashes in the tree
func (bt *BlockTree) GetAllBlocks() []Hash {
	bt.RLock()
	defer bt.RUnlock()

	if bt.root == nil {
		return nil
	}
	return bt.root.getAllDescendants(nil)
}
