// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

// The tessera command assembles and runs a node on the tessera chain.
package main

import (
	"fmt"
	"os"

	log "github.com/ChainSafe/log15"
	"github.com/urfave/cli"

	"github.com/tessera-net/tessera/lib/keystore"
	"github.com/tessera-net/tessera/node"
)

var logger = log.New("pkg", "cmd")

var (
	app = cli.NewApp()

	nodeFlags = []cli.Flag{
		ConfigFlag,
		BasePathFlag,
		NameFlag,
		LogFlag,
		GenesisFlag,
		KeyFlag,
		UnlockFlag,
		PasswordFlag,
		RolesFlag,
		ForceAuthoringFlag,
		DisableGrandpaFlag,
		PortFlag,
		BootnodesFlag,
		ProtocolFlag,
		SentriesFlag,
		PublicIPFlag,
		NoBootstrapFlag,
		NoMDNSFlag,
		RPCEnabledFlag,
		RPCExternalFlag,
		RPCUnsafeFlag,
		RPCPortFlag,
		RPCModulesFlag,
		WSFlag,
		WSPortFlag,
		BridgeFlag,
		BridgeAdapterFlag,
		BridgeEndpointFlag,
	}

	accountFlags = []cli.Flag{
		BasePathFlag,
		GenerateFlag,
		AccountTypeFlag,
		ImportFlag,
		ListFlag,
		PasswordFlag,
	}

	initCommand = cli.Command{
		Action:    initAction,
		Name:      "init",
		Usage:     "Initialise node databases from a chain specification",
		Flags:     nodeFlags,
		Category:  "NODE",
		UsageText: "tessera init --genesis genesis.json",
	}

	accountCommand = cli.Command{
		Action:   handleAccounts,
		Name:     "account",
		Usage:    "Manage the node keystore",
		Flags:    accountFlags,
		Category: "KEYSTORE",
		Description: "The account command manages keys in the keystore.\n" +
			"\tTo generate a new sr25519 key: tessera account --generate\n" +
			"\tTo import a key file: tessera account --import=keyfile.key\n" +
			"\tTo list the keystore: tessera account --list",
	}

	exportCommand = cli.Command{
		Action:    exportAction,
		Name:      "export",
		Usage:     "Export the effective configuration as TOML",
		Flags:     nodeFlags,
		Category:  "NODE",
		UsageText: "tessera export --config config.toml --basepath /data/node",
	}
)

func init() {
	app.Action = runAction
	app.Copyright = "Copyright 2022 Tessera Network Authors"
	app.Name = "tessera"
	app.Usage = "Official tessera command-line interface"
	app.Author = "Tessera Network 2022"
	app.Version = node.SystemVersion
	app.Commands = []cli.Command{
		initCommand,
		accountCommand,
		exportCommand,
	}
	app.Flags = nodeFlags
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initAction initialises the chain databases at the base path
func initAction(ctx *cli.Context) error {
	cfg, err := createNodeConfig(ctx)
	if err != nil {
		return err
	}

	return node.InitNode(cfg)
}

// runAction initialises the node if needed, unlocks the keystore and runs
// the node until it is interrupted
func runAction(ctx *cli.Context) error {
	cfg, err := createNodeConfig(ctx)
	if err != nil {
		return err
	}

	if !node.NodeInitialised(cfg.Global.BasePath) {
		if err = node.InitNode(cfg); err != nil {
			return err
		}
	}

	ks := keystore.NewGlobalKeystore()
	err = unlockKeystore(ks, cfg.Global.BasePath, cfg.Account.Key,
		cfg.Account.Unlock, stringFlag(ctx, PasswordFlag.Name))
	if err != nil {
		return err
	}

	n, err := node.NewNode(cfg, ks)
	if err != nil {
		return err
	}

	return n.Start()
}

// exportAction writes the effective configuration to the base path
func exportAction(ctx *cli.Context) error {
	cfg, err := createNodeConfig(ctx)
	if err != nil {
		return err
	}

	fp := cfg.Global.BasePath + "/" + node.DefaultConfigFile
	if err := node.ExportConfig(cfg, fp); err != nil {
		return err
	}

	logger.Info("configuration exported", "file", fp)
	return nil
}
