// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package transaction

import (
	"container/heap"
	"sync"

	"github.com/tessera-net/tessera/lib/common"
)

// item wraps a transaction with the bookkeeping the heap needs. order is
// a monotonic insertion counter so equal priorities pop in FIFO order.
type item struct {
	data  *ValidTransaction
	hash  common.Hash
	order uint64
	index int
}

type priorityQueue []*item

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].data.Validity.Priority == pq[j].data.Validity.Priority {
		return pq[i].order < pq[j].order
	}
	return pq[i].data.Validity.Priority > pq[j].data.Validity.Priority
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x interface{}) {
	n := len(*pq)
	it := x.(*item)
	it.index = n
	*pq = append(*pq, it)
}

func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*pq = old[0 : n-1]
	return it
}

// PriorityQueue is a thread safe priority queue of ready transactions,
// ordered by validity priority with insertion order breaking ties
type PriorityQueue struct {
	pq        priorityQueue
	txs       map[common.Hash]*item
	nextOrder uint64
	sync.Mutex
}

// NewPriorityQueue creates new instance of PriorityQueue
func NewPriorityQueue() *PriorityQueue {
	spq := &PriorityQueue{
		txs: make(map[common.Hash]*item),
	}
	heap.Init(&spq.pq)
	return spq
}

// Push inserts the transaction into the queue and returns its hash.
// Re-pushing an extrinsic already in the queue is a no-op.
func (spq *PriorityQueue) Push(tx *ValidTransaction) (common.Hash, error) {
	spq.Lock()
	defer spq.Unlock()

	hash := tx.Extrinsic.Hash()
	if _, ok := spq.txs[hash]; ok {
		return hash, ErrTransactionExists
	}

	it := &item{
		data:  tx,
		hash:  hash,
		order: spq.nextOrder,
	}
	spq.nextOrder++

	heap.Push(&spq.pq, it)
	spq.txs[hash] = it
	return hash, nil
}

// Pop removes and returns the head of the queue, or nil if empty
func (spq *PriorityQueue) Pop() *ValidTransaction {
	spq.Lock()
	defer spq.Unlock()

	if spq.pq.Len() == 0 {
		return nil
	}

	it := heap.Pop(&spq.pq).(*item)
	delete(spq.txs, it.hash)
	return it.data
}

// Peek returns the head of the queue without removing it, or nil if empty
func (spq *PriorityQueue) Peek() *ValidTransaction {
	spq.Lock()
	defer spq.Unlock()

	if spq.pq.Len() == 0 {
		return nil
	}
	return spq.pq[0].data
}

// Pending returns all the transactions currently in the queue
func (spq *PriorityQueue) Pending() []*ValidTransaction {
	spq.Lock()
	defer spq.Unlock()

	txs := make([]*ValidTransaction, 0, len(spq.txs))
	for _, it := range spq.txs {
		txs = append(txs, it.data)
	}
	return txs
}

// RemoveExtrinsic removes an extrinsic from the queue, if present
func (spq *PriorityQueue) RemoveExtrinsic(ext common.Hash) {
	spq.Lock()
	defer spq.Unlock()

	it, ok := spq.txs[ext]
	if !ok {
		return
	}

	heap.Remove(&spq.pq, it.index)
	delete(spq.txs, ext)
}

// Exists reports whether the given extrinsic hash is in the queue
func (spq *PriorityQueue) Exists(ext common.Hash) bool {
	spq.Lock()
	defer spq.Unlock()

	_, ok := spq.txs[ext]
	return ok
}
