// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package bridge republishes chain events to external systems through
// runtime-pluggable adapters. A broken bridge never takes the node
// down: adapter failures are logged and the node runs on without it.
package bridge

import (
	"context"
	"fmt"
	"os"
	"sync"

	log "github.com/ChainSafe/log15"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/lib/transaction"
	"github.com/tessera-net/tessera/node/types"
)

var logger = log.New("pkg", "bridge")

// BlockState is the read-only chain surface handed to adapters
type BlockState interface {
	BestBlockHash() common.Hash
	GetHighestFinalisedHeader() (*types.Header, error)
	GetImportedBlockNotifierChannel() chan *types.Block
	FreeImportedBlockNotifierChannel(ch chan *types.Block)
	GetFinalisedNotifierChannel() chan *types.FinalisationInfo
	FreeFinalisedNotifierChannel(ch chan *types.FinalisationInfo)
}

// TransactionState is the read-only pool surface handed to adapters
type TransactionState interface {
	Pending() []*transaction.ValidTransaction
}

// Network is the read-only overlay surface handed to adapters
type Network interface {
	PeerCount() int
	NodeAddrs() []string
}

// Snapshot bundles the read-only node handles an adapter may use.
// Nothing here can mutate chain state.
type Snapshot struct {
	BlockState       BlockState
	TransactionState TransactionState
	Network          Network

	// PublicKeys are the hex session keys loaded in the keystore
	PublicKeys []string

	// OnShutdown runs when the adapter stops, before the node exits
	OnShutdown func()
}

// Adapter is an external republisher selected by name at runtime
type Adapter interface {
	Name() string
	Start(ctx context.Context, snap *Snapshot) error
	Stop() error
}

// Constructor builds an adapter from the bridge configuration
type Constructor func(cfg *Config) (Adapter, error)

// Config selects and configures the bridge adapter
type Config struct {
	LogLvl   log.Lvl
	Enabled  bool
	Adapter  string
	Endpoint string
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Constructor)
)

// Register makes an adapter constructor selectable by name
func Register(name string, c Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = c
}

func newAdapter(cfg *Config) (Adapter, error) {
	registryMu.RLock()
	c, ok := registry[cfg.Adapter]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown bridge adapter %q", cfg.Adapter)
	}
	return c(cfg)
}

// Service runs the configured adapter as a node service
type Service struct {
	ctx      context.Context
	cancel   context.CancelFunc
	adapter  Adapter
	snapshot *Snapshot
}

// NewService selects the configured adapter. A nil service (with a
// logged error) is never returned: construction failure yields an
// error the caller may downgrade to a warning.
func NewService(cfg *Config, snap *Snapshot) (*Service, error) {
	h := log.StreamHandler(os.Stdout, log.TerminalFormat())
	logger.SetHandler(log.LvlFilterHandler(cfg.LogLvl, h))

	adapter, err := newAdapter(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		ctx:      ctx,
		cancel:   cancel,
		adapter:  adapter,
		snapshot: snap,
	}, nil
}

// Start launches the adapter. A failing adapter is logged and skipped;
// the node keeps running without the bridge.
func (s *Service) Start() error {
	if err := s.adapter.Start(s.ctx, s.snapshot); err != nil {
		logger.Error("bridge adapter failed to start; continuing without bridge",
			"adapter", s.adapter.Name(), "error", err)
	} else {
		logger.Info("bridge adapter started", "adapter", s.adapter.Name())
	}
	return nil
}

// Stop shuts the adapter down and runs the shutdown hook
func (s *Service) Stop() error {
	s.cancel()
	err := s.adapter.Stop()

	if s.snapshot != nil && s.snapshot.OnShutdown != nil {
		s.snapshot.OnShutdown()
	}
	return err
}
