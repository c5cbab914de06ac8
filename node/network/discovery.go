// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package network

import (
	"context"
	"fmt"
	"time"

	badger "github.com/ipfs/go-ds-badger2"
	libp2phost "github.com/libp2p/go-libp2p-core/host"
	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/libp2p/go-libp2p-core/peerstore"
	"github.com/libp2p/go-libp2p-core/protocol"
	libp2pdiscovery "github.com/libp2p/go-libp2p-discovery"
	kaddht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p-kad-dht/dual"
)

var (
	initialAdvertisementTimeout = time.Millisecond
	retryAdvertiseTimeout       = time.Second * 10
	connectToPeersTimeout       = time.Minute
	findPeersTimeout            = time.Minute
)

// discovery finds new peers via the kademlia DHT and advertises this
// node under the chain's protocol ID
type discovery struct {
	ctx       context.Context
	dht       *dual.DHT
	rd        *libp2pdiscovery.RoutingDiscovery
	h         libp2phost.Host
	bootnodes []peer.AddrInfo
	ds        *badger.Datastore
	pid       protocol.ID
	maxPeers  int
}

func newDiscovery(ctx context.Context, h libp2phost.Host,
	bootnodes []peer.AddrInfo, ds *badger.Datastore,
	pid protocol.ID, maxPeers int) *discovery {
	return &discovery{
		ctx:       ctx,
		h:         h,
		bootnodes: bootnodes,
		ds:        ds,
		pid:       pid,
		maxPeers:  maxPeers,
	}
}

// start builds the DHT and begins to advertise and find peers
func (d *discovery) start() error {
	dhtOpts := []dual.Option{
		dual.DHTOption(kaddht.Datastore(d.ds)),
		dual.DHTOption(kaddht.BootstrapPeers(d.bootnodes...)),
		dual.DHTOption(kaddht.V1ProtocolOverride(d.pid + "/kad")),
		dual.DHTOption(kaddht.Mode(kaddht.ModeAutoServer)),
		dual.DHTOption(kaddht.NamespacedValidator(authorityNamespace,
			authorityRecordValidator{})),
	}

	dht, err := dual.New(d.ctx, d.h, dhtOpts...)
	if err != nil {
		return fmt.Errorf("failed to create DHT: %w", err)
	}

	d.dht = dht
	d.rd = libp2pdiscovery.NewRoutingDiscovery(dht)

	go d.advertise()
	go d.checkPeerCount()
	return nil
}

func (d *discovery) stop() error {
	if d.dht == nil {
		return nil
	}
	return d.dht.Close()
}

func (d *discovery) advertise() {
	bootstrapTimer := time.NewTimer(initialAdvertisementTimeout)
	advertiseTimer := time.NewTimer(initialAdvertisementTimeout)
	defer bootstrapTimer.Stop()
	defer advertiseTimer.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-bootstrapTimer.C:
			if err := d.dht.Bootstrap(d.ctx); err != nil {
				logger.Warn("failed to bootstrap DHT", "error", err)
			}
			bootstrapTimer.Reset(retryAdvertiseTimeout)
		case <-advertiseTimer.C:
			ttl, err := d.rd.Advertise(d.ctx, string(d.pid))
			if err != nil {
				logger.Debug("failed to advertise in the DHT", "error", err)
				ttl = retryAdvertiseTimeout
			}
			advertiseTimer.Reset(ttl)
		}
	}
}

// checkPeerCount finds more peers whenever the connection count drops
// below the configured maximum
func (d *discovery) checkPeerCount() {
	ticker := time.NewTicker(connectToPeersTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if len(d.h.Network().Peers()) >= d.maxPeers {
				continue
			}
			d.findPeers()
		}
	}
}

func (d *discovery) findPeers() {
	logger.Debug("attempting to find DHT peers...")

	peerCh, err := d.rd.FindPeers(d.ctx, string(d.pid))
	if err != nil {
		logger.Warn("failed to begin finding peers via DHT", "error", err)
		return
	}

	timer := time.NewTimer(findPeersTimeout)
	defer timer.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-timer.C:
			return
		case p := <-peerCh:
			if p.ID == d.h.ID() || p.ID == "" {
				continue
			}

			logger.Trace("found new peer via DHT", "peer", p.ID)
			d.h.Peerstore().AddAddrs(p.ID, p.Addrs, peerstore.PermanentAddrTTL)

			ctx, cancel := context.WithTimeout(d.ctx, connectTimeout)
			if err := d.h.Connect(ctx, p); err != nil {
				logger.Trace("failed to connect to discovered peer",
					"peer", p.ID, "error", err)
			}
			cancel()
		}
	}
}
