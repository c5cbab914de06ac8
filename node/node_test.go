// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package node

import (
	"testing"
	"time"

	log "github.com/ChainSafe/log15"
	"github.com/stretchr/testify/require"

	"github.com/tessera-net/tessera/lib/keystore"
	"github.com/tessera-net/tessera/node/types"
)

func newTestConfig(t *testing.T) *Config {
	cfg := DevConfig()
	cfg.Global.BasePath = t.TempDir()
	cfg.Global.LogLvl = log.LvlError
	cfg.Network.Port = 0
	cfg.Network.NoBootstrap = true
	cfg.Network.NoDiscover = true
	cfg.Network.NoMDNS = true
	return cfg
}

func newTestKeystore(t *testing.T) *keystore.GlobalKeystore {
	ks := keystore.NewGlobalKeystore()
	require.NoError(t, keystore.LoadKeystore("alice", ks.Babe, "", nil))
	require.NoError(t, keystore.LoadKeystore("alice", ks.Gran, "", nil))
	return ks
}

func TestInitNode(t *testing.T) {
	cfg := newTestConfig(t)
	require.False(t, NodeInitialised(cfg.Global.BasePath))

	require.NoError(t, InitNode(cfg))
	require.True(t, NodeInitialised(cfg.Global.BasePath))
}

func TestNewNodeNotInitialised(t *testing.T) {
	cfg := newTestConfig(t)

	_, err := NewNode(cfg, newTestKeystore(t))
	require.ErrorIs(t, err, ErrNodeNotInitialised)
}

func TestNewNodeAuthorityRequiresKeys(t *testing.T) {
	cfg := newTestConfig(t)
	require.NoError(t, InitNode(cfg))

	_, err := NewNode(cfg, keystore.NewGlobalKeystore())
	require.ErrorIs(t, err, ErrNoKeysProvided)
}

func TestNewNodeInvalidRole(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Core.Roles = 3
	require.NoError(t, InitNode(cfg))

	_, err := NewNode(cfg, newTestKeystore(t))
	require.ErrorIs(t, err, errInvalidRole)
}

func TestNewNodeAuthority(t *testing.T) {
	cfg := newTestConfig(t)
	require.NoError(t, InitNode(cfg))

	node, err := NewNode(cfg, newTestKeystore(t))
	require.NoError(t, err)
	require.Equal(t, cfg.Global.Name, node.Name)
	require.NotNil(t, node.networkService())

	go func() {
		_ = node.Start()
	}()

	select {
	case <-node.Started():
	case <-time.After(30 * time.Second):
		t.Fatal("node did not start")
	}

	node.Stop()
}

func TestNewNodeFull(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Core.Roles = types.FullNodeRole
	cfg.Core.BabeAuthority = false
	cfg.Core.GrandpaAuthority = false
	require.NoError(t, InitNode(cfg))

	// a full node needs no keys at all
	node, err := NewNode(cfg, keystore.NewGlobalKeystore())
	require.NoError(t, err)

	go func() {
		_ = node.Start()
	}()

	select {
	case <-node.Started():
	case <-time.After(30 * time.Second):
		t.Fatal("node did not start")
	}

	node.Stop()
}

func TestNewNodeLight(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Core.Roles = types.LightClientRole
	cfg.Core.BabeAuthority = false
	cfg.Core.GrandpaAuthority = false
	require.NoError(t, InitNode(cfg))

	node, err := NewNode(cfg, keystore.NewGlobalKeystore())
	require.NoError(t, err)

	go func() {
		_ = node.Start()
	}()

	select {
	case <-node.Started():
	case <-time.After(30 * time.Second):
		t.Fatal("node did not start")
	}

	node.Stop()
}
