// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package blocktree

import (
	"fmt"
	"time"

	"github.com/disiqueira/gotree"
)

// node is an element in the BlockTree
type node struct {
	hash        Hash
	parent      *node
	children    []*node
	number      uint
	arrivalTime time.Time
}

func (n *node) addChild(child *node) {
	n.children = append(n.children, child)
}

func (n *node) deleteChild(toDelete *node) {
	for i, child := range n.children {
		if child.hash == toDelete.hash {
			n.children = append(n.children[:i], n.children[i+1:]...)
			return
		}
	}
}

func (n *node) string() string {
	return fmt.Sprintf("{hash: %s, number: %d, arrivalTime: %s}",
		n.hash, n.number, n.arrivalTime.Format(time.RFC3339Nano))
}

// createTree adds all the node's children to the existing printable tree.
// Note: this is strictly for BlockTree.String()
func (n *node) createTree(tree gotree.Tree) {
	for _, child := range n.children {
		sub := tree.Add(child.string())
		child.createTree(sub)
	}
}

// getNode recursively searches for a node with the given hash
func (n *node) getNode(h Hash) *node {
	if n == nil {
		return nil
	}

	if n.hash == h {
		return n
	}

	for _, child := range n.children {
		if found := child.getNode(h); found != nil {
			return found
		}
	}

	return nil
}

// getNodesWithNumber collects all descendant hashes at the given number
func (n *node) getNodesWithNumber(number uint, hashes []Hash) []Hash {
	for _, child := range n.children {
		if child.number == number {
			hashes = append(hashes, child.hash)
		}

		// children are deeper than the desired number, stop descending
		if child.number > number {
			continue
		}

		hashes = child.getNodesWithNumber(number, hashes)
	}

	return hashes
}

// subChain returns the path from n to descendant, inclusive on both ends
func (n *node) subChain(descendant *node) ([]*node, error) {
	if descendant == nil {
		return nil, ErrNilDescendant
	}

	if n.hash == descendant.hash {
		return []*node{n}, nil
	}

	var path []*node
	for curr := descendant; curr != nil; curr = curr.parent {
		path = append([]*node{curr}, path...)
		if curr.hash == n.hash {
			return path, nil
		}
	}

	return nil, ErrDescendantNotFound
}

// isDescendantOf walks up the parent links from n looking for ancestor.
// A node is considered a descendant of itself.
func (n *node) isDescendantOf(ancestor *node) bool {
	if ancestor == nil || n == nil {
		return false
	}

	for curr := n; curr != nil; curr = curr.parent {
		if curr.hash == ancestor.hash {
			return true
		}
	}

	return false
}

func (n *node) highestCommonAncestor(other *node) *node {
	for curr := n; curr != nil; curr = curr.parent {
		if other.isDescendantOf(curr) {
			return curr
		}
	}

	return nil
}

// getLeaves returns all leaf nodes in the subtree rooted at n
func (n *node) getLeaves(leaves []*node) []*node {
	if n == nil {
		return leaves
	}

	if len(n.children) == 0 {
		leaves = append(leaves, n)
	}

	for _, child := range n.children {
		leaves = child.getLeaves(leaves)
	}

	return leaves
}

// getAllDescendants returns the node's hash and all its descendants' hashes
func (n *node) getAllDescendants(desc []Hash) []Hash {
	if n == nil {
		return desc
	}

	desc = append(desc, n.hash)
	for _, child := range n.children {
		desc = child.getAllDescendants(desc)
	}

	return desc
}

// prune collects the hashes of every node that is neither an ancestor nor
// a descendant of finalised, detaching them from the tree
func (n *node) prune(finalised *node, pruned []Hash) []Hash {
	if finalised == nil {
		return pruned
	}

	// descendants of the finalised block stay, as do all their children
	if n.isDescendantOf(finalised) {
		return pruned
	}

	if !finalised.isDescendantOf(n) {
		pruned = append(pruned, n.hash)
		pruned = n.collectDescendants(pruned)
		n.parent.deleteChild(n)
		return pruned
	}

	// ancestor of the finalised block: keep it, check its children
	for _, child := range append([]*node{}, n.children...) {
		pruned = child.prune(finalised, pruned)
	}

	return pruned
}

func (n *node) collectDescendants(out []Hash) []Hash {
	for _, child := range n.children {
		out = append(out, child.hash)
		out = child.collectDescendants(out)
	}
	return out
}
