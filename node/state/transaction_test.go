// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tessera-net/tessera/lib/transaction"
	"github.com/tessera-net/tessera/node/types"
)

func TestTransactionState_PushPop(t *testing.T) {
	ts := NewTransactionState()

	txs := []*transaction.ValidTransaction{
		transaction.NewValidTransaction(types.Extrinsic("a"), &transaction.Validity{Priority: 1}),
		transaction.NewValidTransaction(types.Extrinsic("b"), &transaction.Validity{Priority: 4}),
		transaction.NewValidTransaction(types.Extrinsic("c"), &transaction.Validity{Priority: 2}),
	}

	for _, tx := range txs {
		_, err := ts.Push(tx)
		require.NoError(t, err)
	}

	require.Equal(t, txs[1], ts.Pop())
	require.Equal(t, txs[2], ts.Peek())
	require.Len(t, ts.Pending(), 2)
}

func TestTransactionState_Pool(t *testing.T) {
	ts := NewTransactionState()

	tx := transaction.NewValidTransaction(types.Extrinsic("a"), &transaction.Validity{Priority: 1})
	hash := ts.AddToPool(tx)
	require.Equal(t, types.Extrinsic("a").Hash(), hash)

	require.Len(t, ts.PendingInPool(), 1)
	require.True(t, ts.Exists(types.Extrinsic("a")))

	ts.RemoveExtrinsicFromPool(types.Extrinsic("a"))
	require.Len(t, ts.PendingInPool(), 0)
	require.False(t, ts.Exists(types.Extrinsic("a")))
}

func TestTransactionState_RemoveExtrinsic(t *testing.T) {
	ts := NewTransactionState()

	_, err := ts.Push(transaction.NewValidTransaction(types.Extrinsic("a"), &transaction.Validity{Priority: 1}))
	require.NoError(t, err)
	ts.AddToPool(transaction.NewValidTransaction(types.Extrinsic("b"), &transaction.Validity{Priority: 1}))

	ts.RemoveExtrinsic(types.Extrinsic("a"))
	ts.RemoveExtrinsic(types.Extrinsic("b"))

	require.Nil(t, ts.Peek())
	require.Len(t, ts.PendingInPool(), 0)
}

func TestTransactionState_StatusNotifier(t *testing.T) {
	ts := NewTransactionState()

	ext := types.Extrinsic("watched")
	ch := ts.GetStatusNotifierChannel(ext)
	defer ts.FreeStatusNotifierChannel(ch)

	_, err := ts.Push(transaction.NewValidTransaction(ext, &transaction.Validity{Priority: 1}))
	require.NoError(t, err)

	select {
	case status := <-ch:
		require.Equal(t, transaction.Ready, status)
	case <-time.After(time.Second):
		t.Fatal("did not receive transaction status notification")
	}
}
