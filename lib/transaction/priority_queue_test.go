// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package transaction

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPriorityQueue(t *testing.T) {
	tests := []*ValidTransaction{
		{Extrinsic: []byte("a"), Validity: &Validity{Priority: 1}},
		{Extrinsic: []byte("b"), Validity: &Validity{Priority: 4}},
		{Extrinsic: []byte("c"), Validity: &Validity{Priority: 2}},
		{Extrinsic: []byte("d"), Validity: &Validity{Priority: 17}},
		{Extrinsic: []byte("e"), Validity: &Validity{Priority: 2}},
	}

	pq := NewPriorityQueue()
	for _, tx := range tests {
		_, err := pq.Push(tx)
		require.NoError(t, err)
	}

	expected := []int{3, 1, 2, 4, 0}
	for _, exp := range expected {
		tx := pq.Pop()
		require.Equal(t, tests[exp], tx)
	}
}

func TestPriorityQueue_FIFOWithinPriority(t *testing.T) {
	tests := []*ValidTransaction{
		{Extrinsic: []byte("a"), Validity: &Validity{Priority: 2}},
		{Extrinsic: []byte("b"), Validity: &Validity{Priority: 3}},
		{Extrinsic: []byte("c"), Validity: &Validity{Priority: 2}},
		{Extrinsic: []byte("d"), Validity: &Validity{Priority: 3}},
		{Extrinsic: []byte("e"), Validity: &Validity{Priority: 1}},
	}

	pq := NewPriorityQueue()
	for _, tx := range tests {
		_, err := pq.Push(tx)
		require.NoError(t, err)
	}

	expected := []int{1, 3, 0, 2, 4}
	for _, exp := range expected {
		tx := pq.Pop()
		require.Equal(t, tests[exp], tx)
	}
}

func TestPriorityQueue_Empty(t *testing.T) {
	pq := NewPriorityQueue()
	require.Nil(t, pq.Pop())
	require.Nil(t, pq.Peek())
}

func TestPriorityQueue_DuplicatePush(t *testing.T) {
	pq := NewPriorityQueue()
	tx := &ValidTransaction{Extrinsic: []byte("a"), Validity: &Validity{Priority: 1}}

	hash, err := pq.Push(tx)
	require.NoError(t, err)

	_, err = pq.Push(tx)
	require.ErrorIs(t, err, ErrTransactionExists)
	require.True(t, pq.Exists(hash))
	require.Len(t, pq.Pending(), 1)
}

func TestPriorityQueue_RemoveExtrinsic(t *testing.T) {
	pq := NewPriorityQueue()

	txA := &ValidTransaction{Extrinsic: []byte("a"), Validity: &Validity{Priority: 10}}
	txB := &ValidTransaction{Extrinsic: []byte("b"), Validity: &Validity{Priority: 1}}

	hashA, err := pq.Push(txA)
	require.NoError(t, err)
	_, err = pq.Push(txB)
	require.NoError(t, err)

	pq.RemoveExtrinsic(hashA)
	require.False(t, pq.Exists(hashA))
	require.Equal(t, txB, pq.Pop())
	require.Nil(t, pq.Pop())
}

func TestPool(t *testing.T) {
	p := NewPool()
	require.Empty(t, p.Transactions())

	tx := &ValidTransaction{Extrinsic: []byte("a"), Validity: &Validity{Priority: 1}}
	hash := p.Insert(tx)
	require.Equal(t, 1, p.Len())
	require.Equal(t, []*ValidTransaction{tx}, p.Transactions())

	p.Remove(hash)
	require.Empty(t, p.Transactions())
}
