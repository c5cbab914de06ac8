// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package node

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	log "github.com/ChainSafe/log15"

	"github.com/tessera-net/tessera/lib/genesis"
	"github.com/tessera-net/tessera/lib/keystore"
	"github.com/tessera-net/tessera/lib/runtime"
	"github.com/tessera-net/tessera/lib/services"
	"github.com/tessera-net/tessera/node/network"
	"github.com/tessera-net/tessera/node/rpc/modules"
	"github.com/tessera-net/tessera/node/state"
	"github.com/tessera-net/tessera/node/types"
)

var logger = log.New("pkg", "node")

// Node is an assembled tessera node: every service wired together and
// registered in start order
type Node struct {
	Name     string
	Services *services.ServiceRegistry
	wg       sync.WaitGroup
	started  chan struct{}
	stopOnce sync.Once
}

func setupLogger(cfg *Config) {
	handler := log.StreamHandler(os.Stdout, log.TerminalFormat())
	logger.SetHandler(log.LvlFilterHandler(cfg.Global.LogLvl, handler))
}

// InitNode loads the genesis, builds the genesis state trie and writes
// the genesis block and state to the database at the base path. It wipes
// any state already there.
func InitNode(cfg *Config) error {
	setupLogger(cfg)
	logger.Info("initialising node...",
		"name", cfg.Global.Name,
		"id", cfg.Global.ID,
		"basepath", cfg.Global.BasePath,
		"genesis", cfg.Init.Genesis,
	)

	gen, err := loadGenesis(cfg)
	if err != nil {
		return fmt.Errorf("failed to load genesis: %w", err)
	}

	ts, err := genesis.NewTrieStateFromGenesis(gen)
	if err != nil {
		return fmt.Errorf("failed to build genesis state: %w", err)
	}

	header, err := genesis.NewGenesisHeader(ts)
	if err != nil {
		return fmt.Errorf("failed to build genesis header: %w", err)
	}

	stateSrvc := state.NewService(cfg.Global.BasePath, cfg.Global.LogLvl)

	if err = stateSrvc.Initialise(gen, header, ts); err != nil {
		return fmt.Errorf("failed to initialise state: %w", err)
	}

	logger.Info("node initialised", "genesis hash", header.Hash())
	return nil
}

func loadGenesis(cfg *Config) (*genesis.Genesis, error) {
	if cfg.Init.Genesis == "" {
		return genesis.NewDevGenesis()
	}

	return genesis.NewGenesisFromJSON(cfg.Init.Genesis)
}

// NodeInitialised returns true when the base path holds an initialised
// state database
func NodeInitialised(basepath string) bool {
	registry := filepath.Join(basepath, "db", "KEYREGISTRY")

	if _, err := os.Stat(registry); os.IsNotExist(err) {
		return false
	}

	return true
}

// NewNode assembles the services for the configured role and returns a
// node ready to start. The keystore must already hold the keys the role
// requires.
func NewNode(cfg *Config, ks *keystore.GlobalKeystore) (*Node, error) {
	if ks == nil {
		return nil, errNilKeystore
	}

	setupLogger(cfg)

	if !NodeInitialised(cfg.Global.BasePath) {
		return nil, ErrNodeNotInitialised
	}

	switch cfg.Core.Roles {
	case types.AuthorityRole, types.SentryRole, types.FullNodeRole, types.LightClientRole:
	default:
		return nil, fmt.Errorf("%w: %d", errInvalidRole, cfg.Core.Roles)
	}

	authority := cfg.Core.Roles == types.AuthorityRole
	light := cfg.Core.Roles == types.LightClientRole

	if authority {
		if cfg.Core.BabeAuthority && ks.Babe.Size() == 0 {
			return nil, ErrNoKeysProvided
		}

		if cfg.Core.GrandpaAuthority && !cfg.Core.DisableGrandpa && ks.Gran.Size() == 0 {
			return nil, ErrNoKeysProvided
		}
	}

	logger.Info("assembling node...",
		"name", cfg.Global.Name,
		"role", cfg.Core.Roles,
		"basepath", cfg.Global.BasePath,
	)

	node := &Node{
		Name:     cfg.Global.Name,
		Services: services.NewServiceRegistry(),
		started:  make(chan struct{}),
	}

	stateSrvc, err := createStateService(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create state service: %w", err)
	}
	node.Services.RegisterService(stateSrvc)

	genData, err := stateSrvc.Base.LoadGenesisData()
	if err != nil {
		return nil, fmt.Errorf("failed to load genesis data: %w", err)
	}
	applyGenesisDefaults(cfg, genData)

	networkSrvc, err := createNetworkService(cfg, stateSrvc, ks)
	if err != nil {
		return nil, err
	}
	node.Services.RegisterService(networkSrvc)

	var rt runtime.Instance
	if !light {
		if rt, err = createRuntime(cfg, stateSrvc, ks); err != nil {
			return nil, fmt.Errorf("failed to create runtime: %w", err)
		}
	}

	verifier, err := createBlockVerifier(stateSrvc, rt)
	if err != nil {
		return nil, fmt.Errorf("failed to create block verifier: %w", err)
	}

	coreSrvc, err := createCoreService(cfg, stateSrvc, rt, verifier, networkSrvc)
	if err != nil {
		return nil, err
	}
	node.Services.RegisterService(coreSrvc)

	networkSrvc.SetBlockHandler(coreSrvc)
	networkSrvc.SetTransactionHandler(coreSrvc)
	networkSrvc.SetJustificationHandler(coreSrvc)

	dh, err := createDigestHandler(cfg, stateSrvc)
	if err != nil {
		return nil, err
	}
	node.Services.RegisterService(dh)

	if authority && cfg.Core.BabeAuthority {
		babeSrvc, err := createProductionService(cfg, stateSrvc, rt, ks.Babe, coreSrvc, networkSrvc)
		if err != nil {
			return nil, err
		}
		node.Services.RegisterService(babeSrvc)
	}

	var finalityAPI modules.BlockFinalityAPI
	if authority && cfg.Core.GrandpaAuthority && !cfg.Core.DisableGrandpa {
		grandpaSrvc, err := createFinalityService(cfg, stateSrvc, ks.Gran, coreSrvc, networkSrvc)
		if err != nil {
			return nil, err
		}
		node.Services.RegisterService(grandpaSrvc)
		networkSrvc.SetFinalityHandler(grandpaSrvc)
		finalityAPI = grandpaSrvc
	} else {
		observer, err := createFinalityObserver(cfg, stateSrvc, coreSrvc)
		if err != nil {
			return nil, err
		}
		node.Services.RegisterService(observer)
		networkSrvc.SetFinalityHandler(observer)
	}

	if cfg.RPC.Enabled {
		sysAPI := &systemInfo{chainName: genData.Name, properties: genData.Properties}
		rpcSrvc := createRPCService(cfg, stateSrvc, coreSrvc, networkSrvc, finalityAPI, sysAPI, ks)
		node.Services.RegisterService(rpcSrvc)
	}

	if cfg.Bridge.Enabled {
		bridgeSrvc := createBridgeService(cfg, stateSrvc, networkSrvc, ks, node.stop)
		if bridgeSrvc != nil {
			node.Services.RegisterService(bridgeSrvc)
		}
	}

	return node, nil
}

// applyGenesisDefaults fills network settings the flags left empty from
// the chain metadata stored at initialisation
func applyGenesisDefaults(cfg *Config, genData *genesis.GenesisData) {
	if cfg.Network.ProtocolID == "" {
		cfg.Network.ProtocolID = genData.ProtocolID
	}

	if len(cfg.Network.Bootnodes) == 0 {
		cfg.Network.Bootnodes = genData.Bootnodes
	}

	if cfg.Global.Name == "" {
		cfg.Global.Name = genData.Name
	}
}

// Start starts all node services and blocks until the node is stopped by
// a signal or a call to Stop
func (n *Node) Start() error {
	logger.Info("starting node services...")

	n.Services.StartAll()

	n.wg.Add(1)
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigc)
		<-sigc
		logger.Info("signal interrupt, shutting down...")
		n.Stop()
	}()

	close(n.started)
	n.wg.Wait()
	return nil
}

// Started is closed once all services have been started
func (n *Node) Started() <-chan struct{} {
	return n.started
}

// Stop stops all node services in reverse start order. It is safe to
// call more than once; the bridge shutdown hook re-enters it.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		n.Services.StopAll()
		n.wg.Done()
	})
}

func (n *Node) stop() {
	n.Stop()
}

// network service accessor used by tests
func (n *Node) networkService() *network.Service {
	srvc := n.Services.Get(&network.Service{})
	if srvc == nil {
		return nil
	}

	return srvc.(*network.Service)
}
