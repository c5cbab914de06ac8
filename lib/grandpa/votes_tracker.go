// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package grandpa

import (
	"container/list"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/lib/crypto/ed25519"
)

// networkVoteMessage is a vote received from the network together with
// the peer that sent it, kept for error attribution when it is retried
type networkVoteMessage struct {
	from string
	msg  *VoteMessage
}

// votesTracker parks vote messages that cannot be counted yet, either
// because they reference a block this node has not imported or because
// they belong to the next round. It is bounded: when full, the oldest
// parked vote is evicted. Not safe for concurrent use; callers hold the
// service round lock.
type votesTracker struct {
	// map of vote block hash to authority ID to data element
	mapping    map[common.Hash]map[ed25519.PublicKeyBytes]*list.Element
	linkedList *list.List
	capacity   int
}

// newVotesTracker returns a tracker holding at most capacity votes
func newVotesTracker(capacity int) votesTracker {
	return votesTracker{
		mapping:    make(map[common.Hash]map[ed25519.PublicKeyBytes]*list.Element, capacity),
		linkedList: list.New(),
		capacity:   capacity,
	}
}

// add parks a vote message. A newer vote from the same authority for the
// same block replaces the older one.
func (vt *votesTracker) add(from string, msg *VoteMessage) {
	blockHash := msg.Vote.Hash
	authorityID := msg.AuthorityID

	byAuthority, has := vt.mapping[blockHash]
	if !has {
		byAuthority = make(map[ed25519.PublicKeyBytes]*list.Element)
		vt.mapping[blockHash] = byAuthority
	}

	data := networkVoteMessage{from: from, msg: msg}

	element, has := byAuthority[authorityID]
	if has {
		element.Value = data
		vt.linkedList.MoveToFront(element)
		return
	}

	if vt.linkedList.Len() >= vt.capacity {
		vt.evictOldest()
	}

	byAuthority[authorityID] = vt.linkedList.PushFront(data)
}

func (vt *votesTracker) evictOldest() {
	oldest := vt.linkedList.Back()
	if oldest == nil {
		return
	}

	vt.linkedList.Remove(oldest)

	data := oldest.Value.(networkVoteMessage)
	blockHash := data.msg.Vote.Hash

	byAuthority := vt.mapping[blockHash]
	delete(byAuthority, data.msg.AuthorityID)
	if len(byAuthority) == 0 {
		delete(vt.mapping, blockHash)
	}
}

// messages returns the parked votes for the given block hash
func (vt *votesTracker) messages(blockHash common.Hash) []networkVoteMessage {
	byAuthority := vt.mapping[blockHash]
	msgs := make([]networkVoteMessage, 0, len(byAuthority))
	for _, element := range byAuthority {
		msgs = append(msgs, element.Value.(networkVoteMessage))
	}
	return msgs
}

// all returns every parked vote
func (vt *votesTracker) all() []networkVoteMessage {
	msgs := make([]networkVoteMessage, 0, vt.linkedList.Len())
	for element := vt.linkedList.Front(); element != nil; element = element.Next() {
		msgs = append(msgs, element.Value.(networkVoteMessage))
	}
	return msgs
}

// clear removes every parked vote
func (vt *votesTracker) clear() {
	vt.mapping = make(map[common.Hash]map[ed25519.PublicKeyBytes]*list.Element)
	vt.linkedList.Init()
}

// delete removes every parked vote for the given block hash
func (vt *votesTracker) delete(blockHash common.Hash) {
	byAuthority := vt.mapping[blockHash]
	for _, element := range byAuthority {
		vt.linkedList.Remove(element)
	}
	delete(vt.mapping, blockHash)
}

// len returns the number of parked votes
func (vt *votesTracker) len() int {
	return vt.linkedList.Len()
}
