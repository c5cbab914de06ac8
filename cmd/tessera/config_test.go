// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package main

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"

	"github.com/tessera-net/tessera/node"
	"github.com/tessera-net/tessera/node/types"
)

func newTestContext(t *testing.T, args ...string) *cli.Context {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range nodeFlags {
		f.Apply(set)
	}
	require.NoError(t, set.Parse(args))
	return cli.NewContext(app, set, nil)
}

func TestCreateNodeConfigDefaults(t *testing.T) {
	ctx := newTestContext(t)

	cfg, err := createNodeConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, types.AuthorityRole, cfg.Core.Roles)
	require.Equal(t, node.DefaultNetworkPort, cfg.Network.Port)
	require.NotEmpty(t, cfg.Global.BasePath)
}

func TestCreateNodeConfigFlags(t *testing.T) {
	ctx := newTestContext(t,
		"--roles", "full",
		"--port", "9000",
		"--bootnodes", "/ip4/10.0.0.1/tcp/7001/p2p/a,/ip4/10.0.0.2/tcp/7001/p2p/b",
		"--rpc",
		"--rpcport", "9933",
		"--bridge",
		"--bridge-endpoint", "localhost:9944",
	)

	cfg, err := createNodeConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, types.FullNodeRole, cfg.Core.Roles)
	require.False(t, cfg.Core.BabeAuthority)
	require.False(t, cfg.Core.GrandpaAuthority)
	require.Equal(t, uint16(9000), cfg.Network.Port)
	require.Len(t, cfg.Network.Bootnodes, 2)
	require.True(t, cfg.RPC.Enabled)
	require.Equal(t, uint32(9933), cfg.RPC.Port)
	require.True(t, cfg.Bridge.Enabled)
	require.Equal(t, "localhost:9944", cfg.Bridge.Endpoint)
}

func TestCreateNodeConfigFromFile(t *testing.T) {
	fileCfg := node.DevConfig()
	fileCfg.Global.Name = "frozen"
	fileCfg.Global.BasePath = t.TempDir()
	fileCfg.Core.JustificationPeriod = 128

	fp := fileCfg.Global.BasePath + "/config.toml"
	require.NoError(t, node.ExportConfig(fileCfg, fp))

	ctx := newTestContext(t, "--config", fp, "--name", "melted")

	cfg, err := createNodeConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, "melted", cfg.Global.Name)
	require.Equal(t, uint64(128), cfg.Core.JustificationPeriod)
}

func TestInvalidLogLevel(t *testing.T) {
	ctx := newTestContext(t, "--log", "shouting")

	_, err := createNodeConfig(ctx)
	require.Error(t, err)
}
