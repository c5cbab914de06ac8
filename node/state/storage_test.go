// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tessera-net/tessera/lib/runtime"
)

func TestStorageState_TrieState_Genesis(t *testing.T) {
	srv := NewTestService(t)

	ts, err := srv.Storage.TrieState(nil)
	require.NoError(t, err)

	// the genesis state carries the slot production configuration
	data := ts.Get(runtime.ModuleStorageKey("Babe", "Configuration"))
	require.NotNil(t, data)
}

func TestStorageState_TrieState_ReturnsCopy(t *testing.T) {
	srv := NewTestService(t)

	root, err := srv.Storage.StorageRoot()
	require.NoError(t, err)

	ts, err := srv.Storage.TrieState(&root)
	require.NoError(t, err)

	ts.Set([]byte("testkey"), []byte("testvalue"))

	// mutating the returned copy must not affect the stored state
	res, err := srv.Storage.GetStorage(&root, []byte("testkey"))
	require.NoError(t, err)
	require.Nil(t, res)
}

func TestStorageState_StoreAndLoad(t *testing.T) {
	srv := NewTestService(t)

	ts, err := srv.Storage.TrieState(nil)
	require.NoError(t, err)

	ts.Set([]byte("testkey"), []byte("testvalue"))
	root, err := ts.Root()
	require.NoError(t, err)

	err = srv.Storage.StoreTrie(ts)
	require.NoError(t, err)

	// a fresh storage state over the same database can load it back
	fresh, err := NewStorageState(srv.DB(), srv.Block, runtime.NewTrieState())
	require.NoError(t, err)

	loaded, err := fresh.LoadFromDB(root)
	require.NoError(t, err)
	require.Equal(t, []byte("testvalue"), loaded.Get([]byte("testkey")))
}

func TestStorageState_GetStorageByBlockHash(t *testing.T) {
	srv := NewTestService(t)

	best, err := srv.Block.BestBlockHeader()
	require.NoError(t, err)

	data, err := srv.Storage.GetStorageByBlockHash(best.Hash(),
		runtime.ModuleStorageKey("Grandpa", "Authorities"))
	require.NoError(t, err)
	require.NotNil(t, data)
}

func TestStorageState_Prune(t *testing.T) {
	srv := NewTestService(t)

	ts, err := srv.Storage.TrieState(nil)
	require.NoError(t, err)

	ts.Set([]byte("testkey"), []byte("testvalue"))
	root, err := ts.Root()
	require.NoError(t, err)

	err = srv.Storage.StoreTrie(ts)
	require.NoError(t, err)

	header := &BuildTestBlockWithSlot(t, srv.Block.GenesisHash(), 1, 101).Header
	header.StateRoot = root
	header.ClearCachedHash()

	srv.Storage.pruneKey(header)

	_, err = srv.Storage.TrieState(&root)
	require.ErrorIs(t, err, ErrTrieNotFound)
}
