// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package network

import (
	"sync"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/stretchr/testify/require"

	log "github.com/ChainSafe/log15"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/node/types"
)

type capturingHandler struct {
	mu        sync.Mutex
	announces []*BlockAnnounceMessage
	requests  []*BlockRequestMessage
	votes     [][]byte
	justs     []*JustificationMessage
	txs       []*TransactionMessage
}

func (h *capturingHandler) HandleBlockAnnounce(_ string, msg *BlockAnnounceMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.announces = append(h.announces, msg)
	return nil
}

func (h *capturingHandler) HandleBlockRequest(_ string, msg *BlockRequestMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, msg)
	return nil
}

func (h *capturingHandler) HandleNetworkMessage(_ string, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.votes = append(h.votes, data)
	return nil
}

func (h *capturingHandler) HandleJustificationMessage(_ string, msg *JustificationMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.justs = append(h.justs, msg)
	return nil
}

func (h *capturingHandler) HandleTransactionMessage(_ string, msg *TransactionMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.txs = append(h.txs, msg)
	return nil
}

func newTestService(t *testing.T) (*Service, *capturingHandler) {
	t.Helper()

	cfg := &Config{
		LogLvl:      log.LvlError,
		BasePath:    t.TempDir(),
		Roles:       types.FullNodeRole,
		Port:        0,
		ProtocolID:  "/tessera/test/0",
		NoBootstrap: true,
		NoDiscover:  true,
		NoMDNS:      true,
		MinPeers:    1,
		MaxPeers:    5,
	}

	s, err := NewService(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(func() {
		_ = s.Stop()
	})

	h := new(capturingHandler)
	s.SetBlockHandler(h)
	s.SetFinalityHandler(h)
	s.SetJustificationHandler(h)
	s.SetTransactionHandler(h)
	return s, h
}

func connectServices(t *testing.T, a, b *Service) {
	t.Helper()

	a.host.connect(peer.AddrInfo{
		ID:    b.host.id(),
		Addrs: b.host.h.Addrs(),
	})

	require.Eventually(t, func() bool {
		return a.PeerCount() > 0 && b.PeerCount() > 0
	}, time.Second*10, time.Millisecond*100)
}

func TestGossipBlockAnnounce(t *testing.T) {
	a, _ := newTestService(t)
	b, bh := newTestService(t)
	connectServices(t, a, b)

	announce := &BlockAnnounceMessage{
		Header: &types.Header{
			ParentHash: common.MustBlake2bHash([]byte("parent")),
			Number:     1,
		},
		Body:      types.Body{},
		BestBlock: true,
	}

	// gossipsub needs a moment to graft the topic mesh
	require.Eventually(t, func() bool {
		a.GossipBlockAnnounce(announce)

		bh.mu.Lock()
		defer bh.mu.Unlock()
		return len(bh.announces) > 0
	}, time.Second*30, time.Millisecond*500)

	bh.mu.Lock()
	defer bh.mu.Unlock()
	require.Equal(t, announce.Header.Hash(), bh.announces[0].Header.Hash())
}

func TestGossipTopicsAreIndependent(t *testing.T) {
	a, _ := newTestService(t)
	b, bh := newTestService(t)
	connectServices(t, a, b)

	vote := []byte("signed vote bytes")
	just := &JustificationMessage{Justification: []byte("justification bytes")}
	tx := &TransactionMessage{Extrinsics: []types.Extrinsic{types.Extrinsic("ext")}}

	require.Eventually(t, func() bool {
		a.GossipFinalityMessage(vote)
		a.GossipJustification(just)
		a.GossipTransaction(tx)

		bh.mu.Lock()
		defer bh.mu.Unlock()
		return len(bh.votes) > 0 && len(bh.justs) > 0 && len(bh.txs) > 0
	}, time.Second*30, time.Millisecond*500)

	bh.mu.Lock()
	defer bh.mu.Unlock()
	require.Equal(t, vote, bh.votes[0])
	require.Equal(t, just.Justification, bh.justs[0].Justification)
	require.Equal(t, tx.Extrinsics, bh.txs[0].Extrinsics)
	require.Empty(t, bh.announces)
	require.Empty(t, bh.requests)
}

func TestNetworkKeyPersists(t *testing.T) {
	basePath := t.TempDir()

	key, err := generateNetworkKey(basePath)
	require.NoError(t, err)

	loaded, err := loadNetworkKey(basePath)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.True(t, key.Equals(loaded))
}
