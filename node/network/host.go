// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package network

import (
	"context"
	"fmt"
	"time"

	"github.com/chyeh/pubip"
	"github.com/libp2p/go-libp2p"
	libp2phost "github.com/libp2p/go-libp2p-core/host"
	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/libp2p/go-libp2p-core/protocol"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	ma "github.com/multiformats/go-multiaddr"
)

var connectTimeout = time.Second * 5

// host wraps the libp2p host with the connection bookkeeping the
// service needs
type host struct {
	ctx             context.Context
	h               libp2phost.Host
	cm              *connmgr.BasicConnMgr
	bootnodes       []peer.AddrInfo
	persistentPeers []peer.AddrInfo
	protocolID      protocol.ID
	externalAddr    ma.Multiaddr
}

func newHost(ctx context.Context, cfg *Config) (*host, error) {
	key, err := loadNetworkKey(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load network key: %w", err)
	}

	if key == nil {
		key, err = generateNetworkKey(cfg.BasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to generate network key: %w", err)
		}
	}

	bootnodes, err := stringsToAddrInfos(cfg.Bootnodes)
	if err != nil {
		return nil, err
	}

	persistentPeers, err := stringsToAddrInfos(cfg.PersistentPeers)
	if err != nil {
		return nil, err
	}

	addr, err := ma.NewMultiaddr(fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("%w: %d", errCannotListenOnPort, cfg.Port)
	}

	externalAddr := resolveExternalAddr(cfg)

	cm, err := connmgr.NewConnManager(cfg.MinPeers, cfg.MaxPeers,
		connmgr.WithGracePeriod(time.Minute))
	if err != nil {
		return nil, err
	}

	// persistent peers (an authority's sentries) are protected from
	// connection-manager pruning
	for _, p := range persistentPeers {
		cm.Protect(p.ID, "persistent")
	}

	opts := []libp2p.Option{
		libp2p.ListenAddrs(addr),
		libp2p.Identity(key),
		libp2p.ConnectionManager(cm),
		libp2p.NATPortMap(),
		libp2p.AddrsFactory(func(addrs []ma.Multiaddr) []ma.Multiaddr {
			if externalAddr == nil {
				return addrs
			}
			return append(addrs, externalAddr)
		}),
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}

	return &host{
		ctx:             ctx,
		h:               h,
		cm:              cm,
		bootnodes:       bootnodes,
		persistentPeers: persistentPeers,
		protocolID:      protocol.ID(cfg.ProtocolID),
		externalAddr:    externalAddr,
	}, nil
}

// resolveExternalAddr builds the advertised public multiaddress. A
// literal IP is used as-is; "auto" asks an external service for it.
func resolveExternalAddr(cfg *Config) ma.Multiaddr {
	ip := cfg.PublicIP
	switch ip {
	case "":
		return nil
	case "auto":
		discovered, err := pubip.Get()
		if err != nil {
			logger.Warn("failed to discover public ip", "error", err)
			return nil
		}
		ip = discovered.String()
	}

	addr, err := ma.NewMultiaddr(fmt.Sprintf("/ip4/%s/tcp/%d", ip, cfg.Port))
	if err != nil {
		logger.Warn("invalid public ip", "ip", ip, "error", err)
		return nil
	}
	return addr
}

// bootstrap dials the configured bootnodes and persistent peers
func (h *host) bootstrap() {
	for _, p := range append(h.bootnodes, h.persistentPeers...) {
		h.connect(p)
	}
}

func (h *host) connect(p peer.AddrInfo) {
	h.h.Peerstore().AddAddrs(p.ID, p.Addrs, time.Hour)

	ctx, cancel := context.WithTimeout(h.ctx, connectTimeout)
	defer cancel()

	if err := h.h.Connect(ctx, p); err != nil {
		logger.Debug("failed to connect to peer", "peer", p.ID, "error", err)
	}
}

func (h *host) id() peer.ID {
	return h.h.ID()
}

func (h *host) peerCount() int {
	return len(h.h.Network().Peers())
}

func (h *host) multiaddrs() (addrs []ma.Multiaddr) {
	addrInfo := peer.AddrInfo{
		ID:    h.h.ID(),
		Addrs: h.h.Addrs(),
	}
	addrs, _ = peer.AddrInfoToP2pAddrs(&addrInfo)
	return addrs
}

func (h *host) close() error {
	return h.h.Close()
}
