// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package runtime

import (
	"bytes"
	"sort"
	"sync"

	"github.com/tessera-net/tessera/lib/common"

	"github.com/vmihailenco/msgpack/v5"
)

// TrieState is an in-memory implementation of Storage. The root is the
// blake2b hash of the msgpack encoding of the sorted key/value pairs, so
// two states with the same contents always have the same root.
type TrieState struct {
	lock sync.RWMutex
	kv   map[string][]byte
}

// NewTrieState returns a new empty TrieState
func NewTrieState() *TrieState {
	return &TrieState{
		kv: make(map[string][]byte),
	}
}

// Set sets a key/value pair. A copy of the value is stored.
func (ts *TrieState) Set(key, value []byte) {
	ts.lock.Lock()
	defer ts.lock.Unlock()

	v := make([]byte, len(value))
	copy(v, value)
	ts.kv[string(key)] = v
}

// Get retrieves the value for a key, or nil if it is not set
func (ts *TrieState) Get(key []byte) []byte {
	ts.lock.RLock()
	defer ts.lock.RUnlock()
	return ts.kv[string(key)]
}

// Delete removes a key/value pair
func (ts *TrieState) Delete(key []byte) {
	ts.lock.Lock()
	defer ts.lock.Unlock()
	delete(ts.kv, string(key))
}

type kvPair struct {
	Key   []byte
	Value []byte
}

// Root computes the deterministic root of the current state
func (ts *TrieState) Root() (common.Hash, error) {
	ts.lock.RLock()
	defer ts.lock.RUnlock()

	pairs := make([]kvPair, 0, len(ts.kv))
	for k, v := range ts.kv {
		pairs = append(pairs, kvPair{Key: []byte(k), Value: v})
	}

	sort.Slice(pairs, func(i, j int) bool {
		return bytes.Compare(pairs[i].Key, pairs[j].Key) < 0
	})

	enc, err := msgpack.Marshal(pairs)
	if err != nil {
		return common.EmptyHash, err
	}

	return common.Blake2bHash(enc)
}

// MustRoot computes the root, panicking on failure
func (ts *TrieState) MustRoot() common.Hash {
	root, err := ts.Root()
	if err != nil {
		panic(err)
	}
	return root
}

// Copy returns a state with the same contents sharing no memory with
// the original
func (ts *TrieState) Copy() *TrieState {
	ts.lock.RLock()
	defer ts.lock.RUnlock()

	cp := NewTrieState()
	for k, v := range ts.kv {
		value := make([]byte, len(v))
		copy(value, v)
		cp.kv[k] = value
	}
	return cp
}

// Entries returns all key/value pairs in the state
func (ts *TrieState) Entries() map[string][]byte {
	ts.lock.RLock()
	defer ts.lock.RUnlock()

	out := make(map[string][]byte, len(ts.kv))
	for k, v := range ts.kv {
		value := make([]byte, len(v))
		copy(value, v)
		out[k] = value
	}
	return out
}

// LoadFromMap replaces the state contents with the given key/value pairs
func (ts *TrieState) LoadFromMap(kv map[string][]byte) {
	ts.lock.Lock()
	defer ts.lock.Unlock()

	ts.kv = make(map[string][]byte, len(kv))
	for k, v := range kv {
		value := make([]byte, len(v))
		copy(value, v)
		ts.kv[k] = value
	}
}
