// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package network

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/ChainSafe/log15"
	badger "github.com/ipfs/go-ds-badger2"
	pubsub "github.com/libp2p/go-libp2p-pubsub"

	"github.com/tessera-net/tessera/lib/crypto/sr25519"
	"github.com/tessera-net/tessera/node/types"
)

var logger = log.New("pkg", "network")

// gossip topic name suffixes under the protocol ID
const (
	blocksTopic         = "blocks"
	votesTopic          = "votes"
	justificationsTopic = "justifications"
	transactionsTopic   = "transactions"
)

var gossipTimeout = time.Second * 10

// BlockHandler imports announced blocks and answers block requests
type BlockHandler interface {
	HandleBlockAnnounce(from string, msg *BlockAnnounceMessage) error
	HandleBlockRequest(from string, msg *BlockRequestMessage) error
}

// FinalityHandler consumes raw finality vote messages
type FinalityHandler interface {
	HandleNetworkMessage(from string, data []byte) error
}

// JustificationHandler imports gossiped finality justifications
type JustificationHandler interface {
	HandleJustificationMessage(from string, msg *JustificationMessage) error
}

// TransactionHandler pools gossiped extrinsics
type TransactionHandler interface {
	HandleTransactionMessage(from string, msg *TransactionMessage) error
}

// AuthorityKeyProvider yields the raw session keys of the current
// authority set, for authority discovery
type AuthorityKeyProvider interface {
	LatestAuthorityKeys() ([][]byte, error)
}

// Config holds the network service configuration
type Config struct {
	LogLvl   log.Lvl
	BasePath string
	Roles    byte

	Port      uint16
	Bootnodes []string
	// PersistentPeers are dialled at startup and protected from pruning.
	// An authority lists its sentries here; a sentry lists its authority.
	PersistentPeers []string
	ProtocolID      string
	NoBootstrap     bool
	NoDiscover      bool
	NoMDNS          bool
	MinPeers        int
	MaxPeers        int
	// PublicIP is the advertised address: empty for none, "auto" to
	// discover it via an external service, or a literal IP
	PublicIP string

	// PublishKeypair signs this authority's address record; nil for
	// non-authority roles
	PublishKeypair *sr25519.Keypair
	// AuthorityKeys drives the resolve side of authority discovery;
	// nil disables it
	AuthorityKeys AuthorityKeyProvider
}

// Service is the gossip overlay: a libp2p host with one gossipsub topic
// per message class, DHT peer discovery and authority discovery
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *Config

	host   *host
	ps     *pubsub.PubSub
	topics map[string]*pubsub.Topic

	ds            *badger.Datastore
	discovery     *discovery
	mdns          *mdns
	authDiscovery *authorityDiscovery

	handlerMu            sync.RWMutex
	blockHandler         BlockHandler
	finalityHandler      FinalityHandler
	justificationHandler JustificationHandler
	transactionHandler   TransactionHandler
}

// NewService creates the libp2p host and its supporting stores. Nothing
// dials out until Start.
func NewService(cfg *Config) (*Service, error) {
	if cfg.BasePath == "" {
		return nil, ErrNilBasePath
	}

	h := log.StreamHandler(os.Stdout, log.TerminalFormat())
	logger.SetHandler(log.LvlFilterHandler(cfg.LogLvl, h))

	ctx, cancel := context.WithCancel(context.Background())

	host, err := newHost(ctx, cfg)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &Service{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		host:   host,
		topics: make(map[string]*pubsub.Topic),
	}

	if !cfg.NoDiscover {
		ds, err := badger.NewDatastore(
			filepath.Join(cfg.BasePath, "dht"), &badger.DefaultOptions)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to open DHT datastore: %w", err)
		}

		s.ds = ds
		s.discovery = newDiscovery(ctx, host.h, host.bootnodes, ds,
			host.protocolID, cfg.MaxPeers)
	}

	return s, nil
}

// SetBlockHandler registers the block announce/request handler
func (s *Service) SetBlockHandler(h BlockHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.blockHandler = h
}

// SetFinalityHandler registers the finality vote handler
func (s *Service) SetFinalityHandler(h FinalityHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.finalityHandler = h
}

// SetJustificationHandler registers the justification handler
func (s *Service) SetJustificationHandler(h JustificationHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.justificationHandler = h
}

// SetTransactionHandler registers the transaction handler
func (s *Service) SetTransactionHandler(h TransactionHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.transactionHandler = h
}

// Start joins the gossip topics, begins discovery and dials the
// configured peers
func (s *Service) Start() error {
	ps, err := pubsub.NewGossipSub(s.ctx, s.host.h,
		pubsub.WithPeerExchange(true),
		pubsub.WithStrictSignatureVerification(true))
	if err != nil {
		return fmt.Errorf("failed to create gossipsub router: %w", err)
	}
	s.ps = ps

	for _, name := range []string{blocksTopic, votesTopic, justificationsTopic, transactionsTopic} {
		topic, err := ps.Join(s.topicID(name))
		if err != nil {
			return fmt.Errorf("failed to join topic %s: %w", name, err)
		}

		sub, err := topic.Subscribe()
		if err != nil {
			return fmt.Errorf("failed to subscribe to topic %s: %w", name, err)
		}

		s.topics[name] = topic
		go s.readLoop(name, sub)
	}

	if s.discovery != nil {
		if err := s.discovery.start(); err != nil {
			return err
		}
	}

	if !s.cfg.NoMDNS {
		s.mdns = newMDNS(s.host)
		if err := s.mdns.start(); err != nil {
			logger.Warn("failed to start mdns discovery", "error", err)
			s.mdns = nil
		}
	}

	if s.cfg.AuthorityKeys != nil && s.discovery != nil {
		sentried := s.cfg.Roles&types.AuthorityRole > 0 && len(s.cfg.PersistentPeers) > 0
		s.authDiscovery = newAuthorityDiscovery(s.ctx, s.host, s.discovery,
			s.cfg.AuthorityKeys, s.cfg.PublishKeypair, sentried)
		s.authDiscovery.start()
	}

	if !s.cfg.NoBootstrap {
		go s.host.bootstrap()
	}

	logger.Info("network started", "peer", s.host.id(), "addrs", s.host.multiaddrs())
	return nil
}

// Stop shuts down the overlay and closes the host
func (s *Service) Stop() error {
	s.cancel()

	if s.mdns != nil {
		if err := s.mdns.stop(); err != nil {
			logger.Warn("failed to stop mdns discovery", "error", err)
		}
	}

	if s.discovery != nil {
		if err := s.discovery.stop(); err != nil {
			logger.Warn("failed to stop discovery", "error", err)
		}
	}

	if s.ds != nil {
		if err := s.ds.Close(); err != nil {
			logger.Warn("failed to close DHT datastore", "error", err)
		}
	}

	return s.host.close()
}

func (s *Service) topicID(name string) string {
	return s.cfg.ProtocolID + "/" + name
}

func (s *Service) readLoop(name string, sub *pubsub.Subscription) {
	for {
		msg, err := sub.Next(s.ctx)
		if err != nil {
			// subscription closed with the context
			return
		}

		if msg.ReceivedFrom == s.host.id() {
			continue
		}

		from := msg.ReceivedFrom.String()
		if err := s.dispatch(name, from, msg.Data); err != nil {
			logger.Debug("failed to handle gossip message",
				"topic", name, "from", from, "error", err)
		}
	}
}

func (s *Service) dispatch(topic, from string, data []byte) error {
	s.handlerMu.RLock()
	blockHandler := s.blockHandler
	finalityHandler := s.finalityHandler
	justificationHandler := s.justificationHandler
	transactionHandler := s.transactionHandler
	s.handlerMu.RUnlock()

	switch topic {
	case blocksTopic:
		if blockHandler == nil {
			return errNoHandler
		}

		msg, err := decodeBlockMessage(data)
		if err != nil {
			return err
		}

		switch msg := msg.(type) {
		case *BlockAnnounceMessage:
			return blockHandler.HandleBlockAnnounce(from, msg)
		case *BlockRequestMessage:
			return blockHandler.HandleBlockRequest(from, msg)
		}
		return errInvalidMessageType
	case votesTopic:
		if finalityHandler == nil {
			return errNoHandler
		}
		return finalityHandler.HandleNetworkMessage(from, data)
	case justificationsTopic:
		if justificationHandler == nil {
			return errNoHandler
		}

		msg, err := decodeJustificationMessage(data)
		if err != nil {
			return err
		}
		return justificationHandler.HandleJustificationMessage(from, msg)
	case transactionsTopic:
		if transactionHandler == nil {
			return errNoHandler
		}

		msg, err := decodeTransactionMessage(data)
		if err != nil {
			return err
		}
		return transactionHandler.HandleTransactionMessage(from, msg)
	}

	return errNoHandler
}

// publish encodes and publishes without blocking the caller
func (s *Service) publish(topicName string, enc []byte, err error) {
	if err != nil {
		logger.Warn("failed to encode gossip message", "topic", topicName, "error", err)
		return
	}

	topic, ok := s.topics[topicName]
	if !ok {
		logger.Warn("gossip before network start", "topic", topicName)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, gossipTimeout)
		defer cancel()

		if err := topic.Publish(ctx, enc); err != nil {
			logger.Debug("failed to publish gossip message",
				"topic", topicName, "error", err)
		}
	}()
}

// GossipBlockAnnounce publishes a block announce on the blocks topic
func (s *Service) GossipBlockAnnounce(msg *BlockAnnounceMessage) {
	enc, err := msg.Encode()
	s.publish(blocksTopic, enc, err)
}

// GossipBlockRequest publishes a block request on the blocks topic
func (s *Service) GossipBlockRequest(msg *BlockRequestMessage) {
	enc, err := msg.Encode()
	s.publish(blocksTopic, enc, err)
}

// GossipFinalityMessage publishes an encoded vote message on the votes
// topic
func (s *Service) GossipFinalityMessage(data []byte) {
	s.publish(votesTopic, data, nil)
}

// GossipJustification publishes a justification on the justifications
// topic
func (s *Service) GossipJustification(msg *JustificationMessage) {
	enc, err := msg.Encode()
	s.publish(justificationsTopic, enc, err)
}

// GossipTransaction publishes pooled extrinsics on the transactions topic
func (s *Service) GossipTransaction(msg *TransactionMessage) {
	enc, err := msg.Encode()
	s.publish(transactionsTopic, enc, err)
}

// PeerCount returns the number of connected peers
func (s *Service) PeerCount() int {
	return s.host.peerCount()
}

// NodeAddrs returns the host's listening multiaddresses, for logging
// and for wiring sentries to their authority
func (s *Service) NodeAddrs() []string {
	var addrs []string
	for _, addr := range s.host.multiaddrs() {
		addrs = append(addrs, addr.String())
	}
	return addrs
}
