// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package network

import (
	"github.com/libp2p/go-libp2p-core/peer"
	libp2pmdns "github.com/libp2p/go-libp2p/p2p/discovery/mdns"
)

// mdns finds peers on the local network, for development setups without
// bootnodes
type mdns struct {
	host    *host
	service libp2pmdns.Service
}

func newMDNS(h *host) *mdns {
	return &mdns{host: h}
}

// HandlePeerFound implements mdns.Notifee
func (m *mdns) HandlePeerFound(p peer.AddrInfo) {
	if p.ID == m.host.id() {
		return
	}

	logger.Debug("found peer via mdns", "peer", p.ID)
	m.host.connect(p)
}

func (m *mdns) start() error {
	m.service = libp2pmdns.NewMdnsService(m.host.h, string(m.host.protocolID), m)
	return m.service.Start()
}

func (m *mdns) stop() error {
	if m.service == nil {
		return nil
	}
	return m.service.Close()
}
