// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package node

import (
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/tessera-net/tessera/lib/babe"
	"github.com/tessera-net/tessera/lib/crypto/ed25519"
	"github.com/tessera-net/tessera/lib/crypto/sr25519"
	"github.com/tessera-net/tessera/lib/grandpa"
	"github.com/tessera-net/tessera/lib/keystore"
	"github.com/tessera-net/tessera/lib/runtime"
	"github.com/tessera-net/tessera/lib/runtime/native"
	"github.com/tessera-net/tessera/node/bridge"
	"github.com/tessera-net/tessera/node/core"
	"github.com/tessera-net/tessera/node/digest"
	"github.com/tessera-net/tessera/node/network"
	"github.com/tessera-net/tessera/node/rpc"
	"github.com/tessera-net/tessera/node/rpc/modules"
	"github.com/tessera-net/tessera/node/state"
	"github.com/tessera-net/tessera/node/types"
)

// createStateService opens the state database at the base path and starts
// all substates
func createStateService(cfg *Config) (*state.Service, error) {
	logger.Debug("creating state service...")

	stateSrvc := state.NewService(cfg.Global.BasePath, cfg.Global.LogLvl)

	if err := stateSrvc.Start(); err != nil {
		return nil, fmt.Errorf("failed to start state service: %w", err)
	}

	return stateSrvc, nil
}

// createRuntime instantiates the native runtime over the best block's
// state
func createRuntime(cfg *Config, st *state.Service, ks *keystore.GlobalKeystore) (runtime.Instance, error) {
	logger.Debug("creating runtime...")

	ts, err := st.Storage.TrieState(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load best state: %w", err)
	}

	return native.NewInstance(&runtime.InstanceConfig{
		Storage:  ts,
		Keystore: ks,
		LogLvl:   cfg.Global.LogLvl,
		Role:     cfg.Core.Roles,
	})
}

// createBlockVerifier builds the slot-lottery verifier. The lottery
// constants come from the runtime when one is available, otherwise they
// are read straight from storage so that light nodes can verify headers
// without executing blocks.
func createBlockVerifier(st *state.Service, rt runtime.Instance) (*babe.VerificationManager, error) {
	genCfg, err := loadSlotConfiguration(st, rt)
	if err != nil {
		return nil, err
	}

	return babe.NewVerificationManager(st.Block, st.Epoch, genCfg)
}

func loadSlotConfiguration(st *state.Service, rt runtime.Instance) (*types.BabeConfiguration, error) {
	if rt != nil {
		return rt.BabeConfiguration()
	}

	data, err := st.Storage.GetStorage(nil, runtime.ModuleStorageKey("Babe", "Configuration"))
	if err != nil {
		return nil, err
	}

	if data == nil {
		return nil, errNoSlotConfig
	}

	genCfg := new(types.BabeConfiguration)
	if err := msgpack.Unmarshal(data, genCfg); err != nil {
		return nil, err
	}

	return genCfg, nil
}

// createCoreService builds the import pipeline. Light nodes run it
// without a runtime, storage state or transaction state.
func createCoreService(cfg *Config, st *state.Service, rt runtime.Instance,
	verifier *babe.VerificationManager, net *network.Service) (*core.Service, error) {
	logger.Debug("creating core service...", "role", cfg.Core.Roles)

	coreConfig := &core.Config{
		LogLvl:              cfg.Global.LogLvl,
		Role:                cfg.Core.Roles,
		BlockState:          st.Block,
		EpochState:          st.Epoch,
		GrandpaState:        st.Grandpa,
		Verifier:            verifier,
		DigestHandler:       digest.NewBlockImportHandler(st.Epoch, st.Grandpa),
		JustificationPeriod: cfg.Core.JustificationPeriod,
	}

	if cfg.Core.Roles != types.LightClientRole {
		coreConfig.StorageState = st.Storage
		coreConfig.TransactionState = st.Transaction
		coreConfig.Runtime = rt
	}

	if net != nil {
		coreConfig.Network = net
	}

	coreSrvc, err := core.NewService(coreConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create core service: %w", err)
	}

	return coreSrvc, nil
}

// createDigestHandler builds the service that applies scheduled
// authority changes when their activation block is finalised
func createDigestHandler(cfg *Config, st *state.Service) (*digest.Handler, error) {
	dh, err := digest.NewHandler(cfg.Global.LogLvl, st.Block, st.Grandpa)
	if err != nil {
		return nil, fmt.Errorf("failed to create digest handler: %w", err)
	}

	return dh, nil
}

// createProductionService builds the slot-based block producer
func createProductionService(cfg *Config, st *state.Service, rt runtime.Instance,
	ks keystore.Keystore, coreSrvc *core.Service, net *network.Service) (*babe.Service, error) {
	logger.Debug("creating block production service...", "authority", cfg.Core.BabeAuthority)

	var kp *sr25519.Keypair
	if cfg.Core.BabeAuthority {
		kps := ks.Keypairs()
		if len(kps) == 0 {
			return nil, ErrNoKeysProvided
		}

		var ok bool
		if kp, ok = kps[0].(*sr25519.Keypair); !ok {
			return nil, errors.New("production keystore does not hold an sr25519 keypair")
		}
	}

	bcfg := &babe.ServiceConfig{
		LogLvl:             cfg.Global.LogLvl,
		BlockState:         st.Block,
		StorageState:       st.Storage,
		TransactionState:   st.Transaction,
		EpochState:         st.Epoch,
		BlockImportHandler: coreSrvc,
		Keypair:            kp,
		Runtime:            rt,
		Authority:          cfg.Core.BabeAuthority,
		ForceAuthoring:     cfg.Core.ForceAuthoring,
		SlotDuration:       cfg.Core.SlotDuration,
	}

	if net != nil {
		bcfg.Network = net
	}

	babeSrvc, err := babe.NewService(bcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create block production service: %w", err)
	}

	return babeSrvc, nil
}

// createFinalityService builds the voting gadget for an authority
func createFinalityService(cfg *Config, st *state.Service, ks keystore.Keystore,
	coreSrvc *core.Service, net *network.Service) (*grandpa.Service, error) {
	logger.Debug("creating finality voting service...")

	kps := ks.Keypairs()
	if len(kps) == 0 {
		return nil, ErrNoKeysProvided
	}

	kp, ok := kps[0].(*ed25519.Keypair)
	if !ok {
		return nil, errors.New("finality keystore does not hold an ed25519 keypair")
	}

	gcfg := &grandpa.Config{
		LogLvl:          cfg.Global.LogLvl,
		BlockState:      st.Block,
		GrandpaState:    st.Grandpa,
		FinalityHandler: coreSrvc,
		Keypair:         kp,
		GossipDuration:  time.Duration(cfg.Core.GrandpaInterval) * time.Second,
	}

	if net != nil {
		gcfg.Network = net
	}

	grandpaSrvc, err := grandpa.NewService(gcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create finality service: %w", err)
	}

	return grandpaSrvc, nil
}

// createFinalityObserver builds the observer that non-voting roles run
// in place of the voting gadget
func createFinalityObserver(cfg *Config, st *state.Service, coreSrvc *core.Service) (*grandpa.Observer, error) {
	logger.Debug("creating finality observer...")

	observer, err := grandpa.NewObserver(&grandpa.ObserverConfig{
		LogLvl:          cfg.Global.LogLvl,
		BlockState:      st.Block,
		GrandpaState:    st.Grandpa,
		FinalityHandler: coreSrvc,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create finality observer: %w", err)
	}

	return observer, nil
}

// epochAuthorityKeys adapts the epoch state to the authority-discovery
// resolve loop
type epochAuthorityKeys struct {
	epochState *state.EpochState
}

func (e epochAuthorityKeys) LatestAuthorityKeys() ([][]byte, error) {
	data, err := e.epochState.GetLatestEpochData()
	if err != nil {
		return nil, err
	}

	keys := make([][]byte, 0, len(data.Authorities))
	for i := range data.Authorities {
		keys = append(keys, data.Authorities[i].Key.Encode())
	}

	return keys, nil
}

// createNetworkService builds the gossip overlay. Authorities and
// sentries take part in authority discovery; an authority's sentries
// double as its persistent peers.
func createNetworkService(cfg *Config, st *state.Service, ks *keystore.GlobalKeystore) (*network.Service, error) {
	logger.Debug("creating network service...",
		"port", cfg.Network.Port, "bootnodes", cfg.Network.Bootnodes)

	netConfig := &network.Config{
		LogLvl:          cfg.Global.LogLvl,
		BasePath:        cfg.Global.BasePath,
		Roles:           cfg.Core.Roles,
		Port:            cfg.Network.Port,
		Bootnodes:       cfg.Network.Bootnodes,
		PersistentPeers: cfg.Network.Sentries,
		ProtocolID:      cfg.Network.ProtocolID,
		NoBootstrap:     cfg.Network.NoBootstrap,
		NoDiscover:      cfg.Network.NoDiscover,
		NoMDNS:          cfg.Network.NoMDNS,
		MinPeers:        cfg.Network.MinPeers,
		MaxPeers:        cfg.Network.MaxPeers,
		PublicIP:        cfg.Network.PublicIP,
	}

	if cfg.Core.Roles&types.AuthorityRole > 0 || cfg.Core.Roles&types.SentryRole > 0 {
		netConfig.AuthorityKeys = epochAuthorityKeys{epochState: st.Epoch}
	}

	if cfg.Core.BabeAuthority && ks.Babe.Size() > 0 {
		if kp, ok := ks.Babe.Keypairs()[0].(*sr25519.Keypair); ok {
			netConfig.PublishKeypair = kp
		}
	}

	networkSrvc, err := network.NewService(netConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create network service: %w", err)
	}

	return networkSrvc, nil
}

// createRPCService builds the HTTP/websocket JSON-RPC surface
func createRPCService(cfg *Config, st *state.Service, coreSrvc *core.Service,
	net *network.Service, finalityAPI modules.BlockFinalityAPI,
	sysAPI modules.SystemAPI, ks *keystore.GlobalKeystore) *rpc.HTTPServer {
	logger.Debug("creating rpc service...", "port", cfg.RPC.Port, "ws", cfg.RPC.WS)

	// external access binds all interfaces regardless of the host setting
	if cfg.RPC.External {
		cfg.RPC.Host = ""
	}

	rpcConfig := &rpc.HTTPServerConfig{
		LogLvl:              cfg.Global.LogLvl,
		BlockAPI:            st.Block,
		CoreAPI:             coreSrvc,
		TransactionQueueAPI: st.Transaction,
		BlockFinalityAPI:    finalityAPI,
		SystemAPI:           sysAPI,
		Keystore:            ks,
		RPCHost:             cfg.RPC.Host,
		RPCPort:             cfg.RPC.Port,
		RPCExternal:         cfg.RPC.External,
		RPCUnsafe:           cfg.RPC.Unsafe,
		WS:                  cfg.RPC.WS,
		WSPort:              cfg.RPC.WSPort,
		WSExternal:          cfg.RPC.External,
		Modules:             cfg.RPC.Modules,
	}

	if net != nil {
		rpcConfig.NetworkAPI = net
	}

	return rpc.NewHTTPServer(rpcConfig)
}

// createBridgeService builds the external republisher. A bridge that
// cannot be constructed is reported and skipped; it never blocks the
// node.
func createBridgeService(cfg *Config, st *state.Service, net *network.Service,
	ks *keystore.GlobalKeystore, onShutdown func()) *bridge.Service {
	logger.Debug("creating bridge service...", "adapter", cfg.Bridge.Adapter)

	snap := &bridge.Snapshot{
		BlockState:       st.Block,
		TransactionState: st.Transaction,
		PublicKeys:       sessionPublicKeys(ks),
		OnShutdown:       onShutdown,
	}

	if net != nil {
		snap.Network = net
	}

	bridgeSrvc, err := bridge.NewService(&bridge.Config{
		LogLvl:   cfg.Global.LogLvl,
		Enabled:  cfg.Bridge.Enabled,
		Adapter:  cfg.Bridge.Adapter,
		Endpoint: cfg.Bridge.Endpoint,
	}, snap)
	if err != nil {
		logger.Warn("continuing without bridge", "error", err)
		return nil
	}

	return bridgeSrvc
}

func sessionPublicKeys(ks *keystore.GlobalKeystore) []string {
	var out []string
	for _, store := range []keystore.Keystore{ks.Babe, ks.Gran, ks.Acco} {
		for _, pub := range store.PublicKeys() {
			out = append(out, pub.Hex())
		}
	}

	return out
}
