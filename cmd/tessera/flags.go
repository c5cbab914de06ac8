// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package main

import "github.com/urfave/cli"

// Global configuration flags
var (
	// ConfigFlag is a TOML configuration file applied under the
	// command-line flags
	ConfigFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	// BasePathFlag is the data directory
	BasePathFlag = cli.StringFlag{
		Name:  "basepath",
		Usage: "Data directory for the node",
	}
	// NameFlag is the node name
	NameFlag = cli.StringFlag{
		Name:  "name",
		Usage: "Node name",
	}
	// LogFlag is the global log level
	LogFlag = cli.StringFlag{
		Name:  "log",
		Usage: "Global log level. Supports levels crit (silent), eror, warn, info, dbug and trce (trace)",
	}
)

// Initialisation flags
var (
	// GenesisFlag is the path to a chain specification file
	GenesisFlag = cli.StringFlag{
		Name:  "genesis",
		Usage: "Path to the chain specification file; omit for the dev chain",
	}
)

// Account flags
var (
	// KeyFlag selects a test keyring account
	KeyFlag = cli.StringFlag{
		Name:  "key",
		Usage: "Specify a test keyring account to use: eg --key=alice",
	}
	// UnlockFlag unlocks a stored key by public key or name
	UnlockFlag = cli.StringFlag{
		Name:  "unlock",
		Usage: "Unlock a key from the keystore. Prompts for the passphrase unless --password is given",
	}
	// PasswordFlag supplies the keystore passphrase without a prompt
	PasswordFlag = cli.StringFlag{
		Name:  "password",
		Usage: "Passphrase used to unlock the keystore",
	}
	// GenerateFlag generates a new keypair
	GenerateFlag = cli.BoolFlag{
		Name:  "generate",
		Usage: "Generate a new keypair and store it in the keystore",
	}
	// AccountTypeFlag selects the key scheme for generation
	AccountTypeFlag = cli.StringFlag{
		Name:  "type",
		Usage: "Key scheme to generate: sr25519 (default) or ed25519",
	}
	// ImportFlag imports an encrypted key file
	ImportFlag = cli.StringFlag{
		Name:  "import",
		Usage: "Import an encrypted key file into the keystore",
	}
	// ListFlag lists the keys in the keystore
	ListFlag = cli.BoolFlag{
		Name:  "list",
		Usage: "List the keys in the keystore",
	}
)

// Core flags
var (
	// RolesFlag sets the node role
	RolesFlag = cli.StringFlag{
		Name:  "roles",
		Usage: "Role of the node: authority, sentry, full or light",
	}
	// ForceAuthoringFlag builds blocks even with no peers
	ForceAuthoringFlag = cli.BoolFlag{
		Name:  "force-authoring",
		Usage: "Build blocks even when no peers are connected",
	}
	// DisableGrandpaFlag makes an authority observe finality instead of voting
	DisableGrandpaFlag = cli.BoolFlag{
		Name:  "disable-grandpa",
		Usage: "Do not vote in finality rounds; observe justifications instead",
	}
)

// Network flags
var (
	// PortFlag is the network listening port
	PortFlag = cli.UintFlag{
		Name:  "port",
		Usage: "Network listening port",
	}
	// BootnodesFlag is a comma-separated list of bootnode multiaddresses
	BootnodesFlag = cli.StringFlag{
		Name:  "bootnodes",
		Usage: "Comma separated node multiaddresses used for bootstrapping",
	}
	// ProtocolFlag overrides the protocol identifier
	ProtocolFlag = cli.StringFlag{
		Name:  "protocol",
		Usage: "Overrides the protocol identifier from the chain specification",
	}
	// SentriesFlag lists persistent sentry (or validator) peers
	SentriesFlag = cli.StringFlag{
		Name:  "sentries",
		Usage: "Comma separated multiaddresses of sentry nodes to keep connected (for a sentry: its validator)",
	}
	// PublicIPFlag sets the advertised address
	PublicIPFlag = cli.StringFlag{
		Name:  "public-ip",
		Usage: "Advertised public address: a literal IP, or \"auto\" to discover it",
	}
	// NoBootstrapFlag disables dialling bootnodes
	NoBootstrapFlag = cli.BoolFlag{
		Name:  "nobootstrap",
		Usage: "Do not dial the bootnodes on startup",
	}
	// NoMDNSFlag disables mDNS discovery
	NoMDNSFlag = cli.BoolFlag{
		Name:  "nomdns",
		Usage: "Disable mDNS peer discovery",
	}
)

// RPC flags
var (
	// RPCEnabledFlag enables the HTTP-RPC server
	RPCEnabledFlag = cli.BoolFlag{
		Name:  "rpc",
		Usage: "Enable the HTTP-RPC server",
	}
	// RPCExternalFlag exposes RPC beyond localhost
	RPCExternalFlag = cli.BoolFlag{
		Name:  "rpc-external",
		Usage: "Accept HTTP-RPC connections from non-local interfaces",
	}
	// RPCUnsafeFlag enables unsafe RPC methods
	RPCUnsafeFlag = cli.BoolFlag{
		Name:  "rpc-unsafe",
		Usage: "Enable unsafe RPC methods",
	}
	// RPCPortFlag is the HTTP-RPC port
	RPCPortFlag = cli.UintFlag{
		Name:  "rpcport",
		Usage: "HTTP-RPC server listening port",
	}
	// RPCModulesFlag selects the enabled RPC namespaces
	RPCModulesFlag = cli.StringFlag{
		Name:  "rpcmods",
		Usage: "Comma separated list of RPC namespaces to enable",
	}
	// WSFlag enables websocket subscriptions
	WSFlag = cli.BoolFlag{
		Name:  "ws",
		Usage: "Enable the websocket server",
	}
	// WSPortFlag is the websocket port
	WSPortFlag = cli.UintFlag{
		Name:  "wsport",
		Usage: "Websocket server listening port",
	}
)

// Bridge flags
var (
	// BridgeFlag enables the bridge
	BridgeFlag = cli.BoolFlag{
		Name:  "bridge",
		Usage: "Enable the external bridge",
	}
	// BridgeAdapterFlag selects the bridge adapter
	BridgeAdapterFlag = cli.StringFlag{
		Name:  "bridge-adapter",
		Usage: "Bridge adapter to run (eg. ws)",
	}
	// BridgeEndpointFlag is the adapter endpoint
	BridgeEndpointFlag = cli.StringFlag{
		Name:  "bridge-endpoint",
		Usage: "Endpoint the bridge adapter serves on",
	}
)
