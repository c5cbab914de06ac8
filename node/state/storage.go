// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ChainSafe/chaindb"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/lib/runtime"
	"github.com/tessera-net/tessera/node/types"
)

// ErrNilTrieState is returned when a nil trie state is passed to the storage state
var ErrNilTrieState = errors.New("trie state is nil")

// StorageState is the chain's key-value state. Each block's post-state is kept
// as a trie state keyed by its root hash, so any recent block's state can be
// retrieved for execution or queries. Trie states are also persisted to the
// database so state survives restarts.
type StorageState struct {
	blockState *BlockState
	tries      map[common.Hash]*runtime.TrieState
	db         chaindb.Database
	lock       sync.RWMutex
}

// NewStorageState creates a new StorageState backed by the given trie state
func NewStorageState(db chaindb.Database, blockState *BlockState, t *runtime.TrieState) (*StorageState, error) {
	if db == nil {
		return nil, fmt.Errorf("database is nil")
	}

	if t == nil {
		return nil, ErrNilTrieState
	}

	tries := make(map[common.Hash]*runtime.TrieState)
	root, err := t.Root()
	if err != nil {
		return nil, err
	}
	tries[root] = t

	return &StorageState{
		blockState: blockState,
		tries:      tries,
		db:         chaindb.NewTable(db, "storage"),
	}, nil
}

// StoreTrie keeps the given trie state in memory keyed by its root and
// persists it to the database.
func (s *StorageState) StoreTrie(ts *runtime.TrieState) error {
	if ts == nil {
		return ErrNilTrieState
	}

	root, err := ts.Root()
	if err != nil {
		return err
	}

	s.lock.Lock()
	s.tries[root] = ts
	s.lock.Unlock()

	if err := s.StoreInDB(ts); err != nil {
		return err
	}

	logger.Trace("stored trie state", "root", root)
	return nil
}

// StoreInDB persists the trie state's entries in the database, keyed by its root
func (s *StorageState) StoreInDB(ts *runtime.TrieState) error {
	root, err := ts.Root()
	if err != nil {
		return err
	}

	enc, err := msgpack.Marshal(ts.Entries())
	if err != nil {
		return err
	}

	return s.db.Put(root.ToBytes(), enc)
}

// LoadFromDB loads the trie state with the given root from the database
// and keeps it in memory.
func (s *StorageState) LoadFromDB(root common.Hash) (*runtime.TrieState, error) {
	enc, err := s.db.Get(root.ToBytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTrieNotFound, root)
	}

	entries := make(map[string][]byte)
	if err = msgpack.Unmarshal(enc, &entries); err != nil {
		return nil, err
	}

	ts := runtime.NewTrieState()
	ts.LoadFromMap(entries)

	s.lock.Lock()
	s.tries[root] = ts
	s.lock.Unlock()

	return ts, nil
}

// TrieState returns a copy of the trie state for the given root, loading it
// from the database if it is not in memory. If root is nil, the state at the
// best block is returned. The copy can be freely mutated by the caller.
func (s *StorageState) TrieState(root *common.Hash) (*runtime.TrieState, error) {
	if root == nil {
		header, err := s.blockState.BestBlockHeader()
		if err != nil {
			return nil, err
		}
		root = &header.StateRoot
	}

	s.lock.RLock()
	ts, ok := s.tries[*root]
	s.lock.RUnlock()

	if !ok {
		var err error
		ts, err = s.LoadFromDB(*root)
		if err != nil {
			return nil, err
		}
	}

	return ts.Copy(), nil
}

// GetStorage gets the value for the given key under the given state root.
// If root is nil, the state at the best block is used.
func (s *StorageState) GetStorage(root *common.Hash, key []byte) ([]byte, error) {
	ts, err := s.TrieState(root)
	if err != nil {
		return nil, err
	}

	return ts.Get(key), nil
}

// GetStorageByBlockHash gets the value for the given key at the state of the given block
func (s *StorageState) GetStorageByBlockHash(bhash common.Hash, key []byte) ([]byte, error) {
	header, err := s.blockState.GetHeader(bhash)
	if err != nil {
		return nil, err
	}

	return s.GetStorage(&header.StateRoot, key)
}

// Entries returns all the key-value pairs under the given state root
func (s *StorageState) Entries(root *common.Hash) (map[string][]byte, error) {
	ts, err := s.TrieState(root)
	if err != nil {
		return nil, err
	}

	return ts.Entries(), nil
}

// StorageRoot returns the state root at the best block
func (s *StorageState) StorageRoot() (common.Hash, error) {
	header, err := s.blockState.BestBlockHeader()
	if err != nil {
		return common.EmptyHash, err
	}

	return header.StateRoot, nil
}

// pruneStorage drops the trie states of blocks discarded at finalisation.
// It runs until the close channel is closed.
func (s *StorageState) pruneStorage(closeCh chan interface{}) {
	for {
		select {
		case header := <-s.blockState.pruneKeyCh:
			logger.Trace("pruning storage", "block", header.Number, "root", header.StateRoot)
			s.pruneKey(header)
		case <-closeCh:
			return
		}
	}
}

func (s *StorageState) pruneKey(header *types.Header) {
	s.lock.Lock()
	delete(s.tries, header.StateRoot)
	s.lock.Unlock()

	if err := s.db.Del(header.StateRoot.ToBytes()); err != nil {
		logger.Warn("failed to prune trie from database", "root", header.StateRoot, "error", err)
	}
}
