// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package native

import (
	"testing"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/lib/runtime"
	"github.com/tessera-net/tessera/node/types"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func newTestInstance(t *testing.T) (*Instance, *runtime.TrieState) {
	t.Helper()

	storage := runtime.NewTrieState()
	in, err := NewInstance(&runtime.InstanceConfig{Storage: storage})
	require.NoError(t, err)
	return in, storage
}

func buildTestBlock(t *testing.T, in *Instance, parent common.Hash, number uint,
	exts []types.Extrinsic) *types.Block {
	t.Helper()

	header := types.NewHeader(parent, common.EmptyHash, common.EmptyHash, number, types.Digest{})
	require.NoError(t, in.InitializeBlock(header))

	inherents, err := in.InherentExtrinsics(1000*uint64(number), uint64(number))
	require.NoError(t, err)

	body := types.Body{}
	for _, ext := range append(inherents, exts...) {
		require.NoError(t, in.ApplyExtrinsic(ext))
		body = append(body, ext)
	}

	final, err := in.FinalizeBlock()
	require.NoError(t, err)

	return &types.Block{Header: *final, Body: body}
}

func TestInstance_BuildAndExecuteBlock(t *testing.T) {
	in, storage := newTestInstance(t)

	record, err := NewRecordExtrinsic([]byte("sensor reading"), 0, 0)
	require.NoError(t, err)

	parentState := storage.Copy()
	block := buildTestBlock(t, in, common.MustBlake2bHash([]byte("parent")), 1,
		[]types.Extrinsic{record})

	require.False(t, block.Header.StateRoot.IsEmpty())
	require.False(t, block.Header.ExtrinsicsRoot.IsEmpty())

	// re-execute against a copy of the parent state
	in.SetContextStorage(parentState.Copy())
	err = in.ExecuteBlock(block)
	require.NoError(t, err)
}

func TestInstance_ExecuteBlock_rootMismatch(t *testing.T) {
	in, storage := newTestInstance(t)

	parentState := storage.Copy()
	block := buildTestBlock(t, in, common.MustBlake2bHash([]byte("parent")), 1, nil)

	block.Header.StateRoot = common.MustBlake2bHash([]byte("wrong"))
	block.Header.ClearCachedHash()

	in.SetContextStorage(parentState.Copy())
	err := in.ExecuteBlock(block)
	require.ErrorIs(t, err, runtime.ErrExecutionFailed)
}

func TestInstance_ExecuteBlock_badExtrinsic(t *testing.T) {
	in, _ := newTestInstance(t)

	header := types.NewHeader(common.EmptyHash, common.EmptyHash, common.EmptyHash, 1, types.Digest{})
	block := &types.Block{Header: *header, Body: types.Body{types.Extrinsic("garbage")}}

	err := in.ExecuteBlock(block)
	require.ErrorIs(t, err, runtime.ErrInvalidTransaction)
}

func TestInstance_ValidateTransaction(t *testing.T) {
	in, _ := newTestInstance(t)

	record, err := NewRecordExtrinsic([]byte("data"), 0, 9)
	require.NoError(t, err)

	validity, err := in.ValidateTransaction(record)
	require.NoError(t, err)
	require.Equal(t, uint64(10), validity.Priority)
	require.True(t, validity.Propagate)
	require.NotEmpty(t, validity.Provides)
}

func TestInstance_ValidateTransaction_rejectsInherent(t *testing.T) {
	in, _ := newTestInstance(t)

	ts, err := NewTimestampExtrinsic(12345)
	require.NoError(t, err)

	_, err = in.ValidateTransaction(ts)
	require.ErrorIs(t, err, runtime.ErrInvalidTransaction)
}

func TestInstance_ValidateTransaction_malformed(t *testing.T) {
	in, _ := newTestInstance(t)

	_, err := in.ValidateTransaction(types.Extrinsic{0xff, 0x01, 0x02})
	require.ErrorIs(t, err, runtime.ErrInvalidTransaction)

	unknown := &Call{Module: "bogus", Method: "nope"}
	ext, err := unknown.Encode()
	require.NoError(t, err)

	_, err = in.ValidateTransaction(ext)
	require.ErrorIs(t, err, runtime.ErrInvalidTransaction)
}

func TestInstance_BabeConfiguration(t *testing.T) {
	in, storage := newTestInstance(t)

	cfg := &types.BabeConfiguration{
		SlotDuration: 3000,
		EpochLength:  200,
		C1:           1,
		C2:           4,
	}
	enc, err := msgpack.Marshal(cfg)
	require.NoError(t, err)
	storage.Set(runtime.ModuleStorageKey("Babe", "Configuration"), enc)

	got, err := in.BabeConfiguration()
	require.NoError(t, err)
	require.Equal(t, cfg, got)
}

func TestInstance_GrandpaAuthorities(t *testing.T) {
	in, storage := newTestInstance(t)

	_, err := in.GrandpaAuthorities()
	require.Error(t, err)

	voters := []types.GrandpaVoterRaw{{ID: 1}, {ID: 2}}
	enc, err := msgpack.Marshal(voters)
	require.NoError(t, err)
	storage.Set(runtime.ModuleStorageKey("Grandpa", "Authorities"), enc)

	got, err := in.GrandpaAuthorities()
	require.NoError(t, err)
	require.Equal(t, voters, got)
}

func TestInstance_DatalogState(t *testing.T) {
	in, storage := newTestInstance(t)

	header := types.NewHeader(common.EmptyHash, common.EmptyHash, common.EmptyHash, 1, types.Digest{})
	require.NoError(t, in.InitializeBlock(header))

	for i, data := range []string{"a", "b", "c"} {
		ext, err := NewRecordExtrinsic([]byte(data), uint64(i), 0)
		require.NoError(t, err)
		require.NoError(t, in.ApplyExtrinsic(ext))
	}

	_, err := in.FinalizeBlock()
	require.NoError(t, err)

	count := storage.Get(runtime.ModuleStorageKey("Datalog", "Count"))
	require.Equal(t, []byte{3, 0, 0, 0, 0, 0, 0, 0}, count)
}

func TestTrieState_RootDeterminism(t *testing.T) {
	a := runtime.NewTrieState()
	b := runtime.NewTrieState()

	a.Set([]byte("k1"), []byte("v1"))
	a.Set([]byte("k2"), []byte("v2"))
	b.Set([]byte("k2"), []byte("v2"))
	b.Set([]byte("k1"), []byte("v1"))

	require.Equal(t, a.MustRoot(), b.MustRoot())

	b.Delete([]byte("k2"))
	require.NotEqual(t, a.MustRoot(), b.MustRoot())
}
