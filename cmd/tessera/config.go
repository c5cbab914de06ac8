// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package main

import (
	"fmt"
	"strings"

	log "github.com/ChainSafe/log15"
	"github.com/urfave/cli"

	"github.com/tessera-net/tessera/lib/utils"
	"github.com/tessera-net/tessera/node"
	"github.com/tessera-net/tessera/node/types"
)

// createNodeConfig builds the node configuration: defaults, then the
// configuration file, then command-line flags, each layer overriding the
// last
func createNodeConfig(ctx *cli.Context) (*node.Config, error) {
	cfg := node.DevConfig()

	if file := stringFlag(ctx, ConfigFlag.Name); file != "" {
		if err := node.ImportConfig(cfg, file); err != nil {
			return nil, err
		}
	}

	if err := applyGlobalFlags(ctx, cfg); err != nil {
		return nil, err
	}

	applyCoreFlags(ctx, cfg)
	applyNetworkFlags(ctx, cfg)
	applyRPCFlags(ctx, cfg)
	applyBridgeFlags(ctx, cfg)

	if cfg.Global.BasePath == "" {
		cfg.Global.BasePath = utils.BasePath(cfg.Global.ID)
	}
	cfg.Global.BasePath = utils.ExpandDir(cfg.Global.BasePath)

	return cfg, nil
}

func applyGlobalFlags(ctx *cli.Context, cfg *node.Config) error {
	if name := stringFlag(ctx, NameFlag.Name); name != "" {
		cfg.Global.Name = name
	}

	if basepath := stringFlag(ctx, BasePathFlag.Name); basepath != "" {
		cfg.Global.BasePath = basepath
	}

	if genesis := stringFlag(ctx, GenesisFlag.Name); genesis != "" {
		cfg.Init.Genesis = genesis
	}

	if key := stringFlag(ctx, KeyFlag.Name); key != "" {
		cfg.Account.Key = key
	}

	if unlock := stringFlag(ctx, UnlockFlag.Name); unlock != "" {
		cfg.Account.Unlock = unlock
	}

	if lvlStr := stringFlag(ctx, LogFlag.Name); lvlStr != "" {
		lvl, err := log.LvlFromString(lvlStr)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", lvlStr, err)
		}
		cfg.Global.LogLvl = lvl
	}

	return nil
}

func applyCoreFlags(ctx *cli.Context, cfg *node.Config) {
	if roles := stringFlag(ctx, RolesFlag.Name); roles != "" {
		cfg.Core.Roles = types.StringToRole(roles)
	}

	// only an authority produces blocks or votes
	if cfg.Core.Roles != types.AuthorityRole {
		cfg.Core.BabeAuthority = false
		cfg.Core.GrandpaAuthority = false
	}

	if boolFlag(ctx, ForceAuthoringFlag.Name) {
		cfg.Core.ForceAuthoring = true
	}

	if boolFlag(ctx, DisableGrandpaFlag.Name) {
		cfg.Core.DisableGrandpa = true
	}
}

func applyNetworkFlags(ctx *cli.Context, cfg *node.Config) {
	if port := uintFlag(ctx, PortFlag.Name); port != 0 {
		cfg.Network.Port = uint16(port)
	}

	if bootnodes := stringFlag(ctx, BootnodesFlag.Name); bootnodes != "" {
		cfg.Network.Bootnodes = strings.Split(bootnodes, ",")
	}

	if protocol := stringFlag(ctx, ProtocolFlag.Name); protocol != "" {
		cfg.Network.ProtocolID = protocol
	}

	if sentries := stringFlag(ctx, SentriesFlag.Name); sentries != "" {
		cfg.Network.Sentries = strings.Split(sentries, ",")
	}

	if publicIP := stringFlag(ctx, PublicIPFlag.Name); publicIP != "" {
		cfg.Network.PublicIP = publicIP
	}

	if boolFlag(ctx, NoBootstrapFlag.Name) {
		cfg.Network.NoBootstrap = true
	}

	if boolFlag(ctx, NoMDNSFlag.Name) {
		cfg.Network.NoMDNS = true
	}
}

func applyRPCFlags(ctx *cli.Context, cfg *node.Config) {
	if boolFlag(ctx, RPCEnabledFlag.Name) {
		cfg.RPC.Enabled = true
	}

	if boolFlag(ctx, RPCExternalFlag.Name) {
		cfg.RPC.Enabled = true
		cfg.RPC.External = true
	}

	if boolFlag(ctx, RPCUnsafeFlag.Name) {
		cfg.RPC.Unsafe = true
	}

	if port := uintFlag(ctx, RPCPortFlag.Name); port != 0 {
		cfg.RPC.Port = uint32(port)
	}

	if mods := stringFlag(ctx, RPCModulesFlag.Name); mods != "" {
		cfg.RPC.Modules = strings.Split(mods, ",")
	}

	if boolFlag(ctx, WSFlag.Name) {
		cfg.RPC.WS = true
	}

	if port := uintFlag(ctx, WSPortFlag.Name); port != 0 {
		cfg.RPC.WSPort = uint32(port)
	}
}

func applyBridgeFlags(ctx *cli.Context, cfg *node.Config) {
	if boolFlag(ctx, BridgeFlag.Name) {
		cfg.Bridge.Enabled = true
	}

	if adapter := stringFlag(ctx, BridgeAdapterFlag.Name); adapter != "" {
		cfg.Bridge.Adapter = adapter
	}

	if endpoint := stringFlag(ctx, BridgeEndpointFlag.Name); endpoint != "" {
		cfg.Bridge.Endpoint = endpoint
	}
}

// flag accessors that look at the subcommand's flag set first and fall
// back to the app-level one

func stringFlag(ctx *cli.Context, name string) string {
	if v := ctx.String(name); v != "" {
		return v
	}
	return ctx.GlobalString(name)
}

func boolFlag(ctx *cli.Context, name string) bool {
	return ctx.Bool(name) || ctx.GlobalBool(name)
}

func uintFlag(ctx *cli.Context, name string) uint {
	if v := ctx.Uint(name); v != 0 {
		return v
	}
	return ctx.GlobalUint(name)
}
