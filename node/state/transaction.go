// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package state

import (
	"sync"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/lib/transaction"
	"github.com/tessera-net/tessera/node/types"
)

// TransactionState holds the pending extrinsics, split between the priority
// queue of transactions ready for inclusion and the pool of transactions
// waiting to be validated or re-validated.
type TransactionState struct {
	queue *transaction.PriorityQueue
	pool  *transaction.Pool

	// notifierChannels tracks status subscriptions, keyed by the channel
	// with the subscribed extrinsic hash as the value
	notifierChannels map[chan transaction.Status]common.Hash
	notifierLock     sync.RWMutex
}

// NewTransactionState returns a new TransactionState
func NewTransactionState() *TransactionState {
	return &TransactionState{
		queue:            transaction.NewPriorityQueue(),
		pool:             transaction.NewPool(),
		notifierChannels: make(map[chan transaction.Status]common.Hash),
	}
}

// Push adds a valid transaction to the queue and returns its hash
func (s *TransactionState) Push(vt *transaction.ValidTransaction) (common.Hash, error) {
	hash, err := s.queue.Push(vt)
	if err != nil {
		return hash, err
	}

	s.notifyStatus(hash, transaction.Ready)
	return hash, nil
}

// Pop removes and returns the head of the queue
func (s *TransactionState) Pop() *transaction.ValidTransaction {
	return s.queue.Pop()
}

// Peek returns the head of the queue without removing it
func (s *TransactionState) Peek() *transaction.ValidTransaction {
	return s.queue.Peek()
}

// Pending returns all the transactions currently in the queue
func (s *TransactionState) Pending() []*transaction.ValidTransaction {
	return s.queue.Pending()
}

// PendingInPool returns all the transactions currently in the pool
func (s *TransactionState) PendingInPool() []*transaction.ValidTransaction {
	return s.pool.Transactions()
}

// Exists returns true if the transaction is in the queue or the pool
func (s *TransactionState) Exists(ext types.Extrinsic) bool {
	hash := ext.Hash()
	if s.queue.Exists(hash) {
		return true
	}

	for _, vt := range s.pool.Transactions() {
		if vt.Extrinsic.Hash() == hash {
			return true
		}
	}

	return false
}

// RemoveExtrinsic removes an extrinsic from the queue and the pool
func (s *TransactionState) RemoveExtrinsic(ext types.Extrinsic) {
	hash := ext.Hash()
	s.pool.Remove(hash)
	s.queue.RemoveExtrinsic(hash)
}

// RemoveExtrinsicFromPool removes an extrinsic from the pool only
func (s *TransactionState) RemoveExtrinsicFromPool(ext types.Extrinsic) {
	s.pool.Remove(ext.Hash())
}

// AddToPool adds a transaction to the pool and returns its hash
func (s *TransactionState) AddToPool(vt *transaction.ValidTransaction) common.Hash {
	hash := s.pool.Insert(vt)
	s.notifyStatus(hash, transaction.Future)
	return hash
}

// GetStatusNotifierChannel returns a channel that receives status updates for
// the given extrinsic
func (s *TransactionState) GetStatusNotifierChannel(ext types.Extrinsic) chan transaction.Status {
	s.notifierLock.Lock()
	defer s.notifierLock.Unlock()

	ch := make(chan transaction.Status, defaultBufferSize)
	s.notifierChannels[ch] = ext.Hash()
	return ch
}

// FreeStatusNotifierChannel unregisters the given status channel
func (s *TransactionState) FreeStatusNotifierChannel(ch chan transaction.Status) {
	s.notifierLock.Lock()
	defer s.notifierLock.Unlock()
	delete(s.notifierChannels, ch)
}

func (s *TransactionState) notifyStatus(ext common.Hash, status transaction.Status) {
	s.notifierLock.RLock()
	defer s.notifierLock.RUnlock()

	if len(s.notifierChannels) == 0 {
		return
	}

	for ch, hash := range s.notifierChannels {
		if hash != ext {
			continue
		}

		go func(ch chan transaction.Status) {
			select {
			case ch <- status:
			default:
			}
		}(ch)
	}
}
