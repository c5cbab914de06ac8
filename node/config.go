// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package node

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/ChainSafe/log15"
	"github.com/naoina/toml"

	"github.com/tessera-net/tessera/node/types"
)

// default ports
const (
	DefaultNetworkPort   = uint16(7001)
	DefaultRPCPort       = uint32(8545)
	DefaultWSPort        = uint32(8546)
	DefaultProtocolID    = "/tessera/dev/0"
	DefaultConfigFile    = "config.toml"
	DefaultBridgeAddress = "localhost:8549"
)

// DefaultRPCModules are the namespaces exposed when RPC is enabled
var DefaultRPCModules = []string{"system", "chain", "author", "grandpa"}

// GlobalConfig names the node and anchors its working directory
type GlobalConfig struct {
	Name     string
	ID       string
	BasePath string
	LogLvl   log.Lvl
}

// InitConfig configures node initialisation
type InitConfig struct {
	Genesis string
}

// AccountConfig selects the keys unlocked into the keystore
type AccountConfig struct {
	Key    string
	Unlock string
}

// CoreConfig configures block production, import and finality
type CoreConfig struct {
	Roles               byte
	BabeAuthority       bool
	GrandpaAuthority    bool
	ForceAuthoring      bool
	DisableGrandpa      bool
	GrandpaInterval     uint32 // seconds; zero means default
	JustificationPeriod uint64
	SlotDuration        uint64 // milliseconds, test override
}

// NetworkConfig configures the overlay
type NetworkConfig struct {
	Port        uint16
	Bootnodes   []string
	ProtocolID  string
	NoBootstrap bool
	NoDiscover  bool
	NoMDNS      bool
	MinPeers    int
	MaxPeers    int
	PublicIP    string
	Sentries    []string
}

// RPCConfig configures the HTTP/websocket surface
type RPCConfig struct {
	Enabled  bool
	External bool
	Unsafe   bool
	Port     uint32
	Host     string
	Modules  []string
	WS       bool
	WSPort   uint32
}

// BridgeConfig configures the external republisher
type BridgeConfig struct {
	Enabled  bool
	Adapter  string
	Endpoint string
}

// Config is the full node configuration
type Config struct {
	Global  GlobalConfig
	Init    InitConfig
	Account AccountConfig
	Core    CoreConfig
	Network NetworkConfig
	RPC     RPCConfig
	Bridge  BridgeConfig
}

// DevConfig returns the configuration for a single-node dev chain
func DevConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			Name:   "Tessera",
			ID:     "dev",
			LogLvl: log.LvlInfo,
		},
		Core: CoreConfig{
			Roles:            types.AuthorityRole,
			BabeAuthority:    true,
			GrandpaAuthority: true,
		},
		Network: NetworkConfig{
			Port:       DefaultNetworkPort,
			ProtocolID: DefaultProtocolID,
			MinPeers:   1,
			MaxPeers:   50,
		},
		RPC: RPCConfig{
			Port:    DefaultRPCPort,
			Host:    "localhost",
			Modules: DefaultRPCModules,
			WSPort:  DefaultWSPort,
		},
		Bridge: BridgeConfig{
			Adapter:  "ws",
			Endpoint: DefaultBridgeAddress,
		},
	}
}

// tomlConfig is the flat file form of Config; log levels are strings
type tomlConfig struct {
	Global  tomlGlobal    `toml:"global"`
	Init    InitConfig    `toml:"init"`
	Account AccountConfig `toml:"account"`
	Core    CoreConfig    `toml:"core"`
	Network NetworkConfig `toml:"network"`
	RPC     RPCConfig     `toml:"rpc"`
	Bridge  BridgeConfig  `toml:"bridge"`
}

type tomlGlobal struct {
	Name     string `toml:"name"`
	ID       string `toml:"id"`
	BasePath string `toml:"basepath"`
	LogLvl   string `toml:"log"`
}

// ExportConfig writes the configuration as TOML to the given file
func ExportConfig(cfg *Config, fp string) error {
	tc := &tomlConfig{
		Global: tomlGlobal{
			Name:     cfg.Global.Name,
			ID:       cfg.Global.ID,
			BasePath: cfg.Global.BasePath,
			LogLvl:   cfg.Global.LogLvl.String(),
		},
		Init:    cfg.Init,
		Account: cfg.Account,
		Core:    cfg.Core,
		Network: cfg.Network,
		RPC:     cfg.RPC,
		Bridge:  cfg.Bridge,
	}

	raw, err := toml.Marshal(tc)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(fp), 0o700); err != nil {
		return err
	}
	return os.WriteFile(fp, raw, 0o600)
}

// ImportConfig reads a TOML configuration file over the given defaults
func ImportConfig(cfg *Config, fp string) error {
	raw, err := os.ReadFile(filepath.Clean(fp))
	if err != nil {
		return fmt.Errorf("failed to read configuration: %w", err)
	}

	tc := new(tomlConfig)
	if err := toml.Unmarshal(raw, tc); err != nil {
		return fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	cfg.Global.Name = tc.Global.Name
	cfg.Global.ID = tc.Global.ID
	cfg.Global.BasePath = tc.Global.BasePath

	lvl, err := log.LvlFromString(tc.Global.LogLvl)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", tc.Global.LogLvl, err)
	}
	cfg.Global.LogLvl = lvl

	cfg.Init = tc.Init
	cfg.Account = tc.Account
	cfg.Core = tc.Core
	cfg.Network = tc.Network
	cfg.RPC = tc.RPC
	cfg.Bridge = tc.Bridge
	return nil
}
