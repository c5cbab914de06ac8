// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package network

import (
	"context"
	"fmt"
	"strings"
	"time"

	corenetwork "github.com/libp2p/go-libp2p-core/network"
	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/libp2p/go-libp2p-core/peerstore"
	record "github.com/libp2p/go-libp2p-record"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tessera-net/tessera/lib/crypto"
	"github.com/tessera-net/tessera/lib/crypto/sr25519"
)

// authorityNamespace is the DHT namespace for authority address records
const authorityNamespace = "authd"

var (
	publishInterval    = time.Minute * 10
	resolveInterval    = time.Minute * 5
	resolveTimeout     = time.Second * 30
	recordMaxClockSkew = time.Minute * 5
)

// AuthorityRecord is the signed address record an authority publishes
// to the DHT under /authd/<its address>
type AuthorityRecord struct {
	PeerID    string
	Addrs     []string
	Timestamp int64
	Signature []byte
}

// signingPayload is the portion of the record covered by the signature
type signingPayload struct {
	PeerID    string
	Addrs     []string
	Timestamp int64
}

func (r *AuthorityRecord) payload() ([]byte, error) {
	return msgpack.Marshal(&signingPayload{
		PeerID:    r.PeerID,
		Addrs:     r.Addrs,
		Timestamp: r.Timestamp,
	})
}

// sign sets the record's signature using the authority's session keypair
func (r *AuthorityRecord) sign(kp *sr25519.Keypair) error {
	msg, err := r.payload()
	if err != nil {
		return err
	}

	sig, err := kp.Sign(msg)
	if err != nil {
		return err
	}

	r.Signature = sig
	return nil
}

// verify checks the record signature against the authority public key
func (r *AuthorityRecord) verify(pub *sr25519.PublicKey) error {
	msg, err := r.payload()
	if err != nil {
		return err
	}

	ok, err := pub.Verify(msg, r.Signature)
	if err != nil {
		return err
	}
	if !ok {
		return errInvalidSignature
	}
	return nil
}

// authorityRecordValidator validates records stored under /authd/ before
// the DHT accepts or serves them
type authorityRecordValidator struct{}

var _ record.Validator = authorityRecordValidator{}

// Validate implements record.Validator. The key suffix must be the
// base58 address of the authority key that signed the record.
func (authorityRecordValidator) Validate(key string, value []byte) error {
	suffix, err := recordKeySuffix(key)
	if err != nil {
		return err
	}

	raw := crypto.PublicAddressToByteArray(crypto.Address(suffix))
	if raw == nil {
		return fmt.Errorf("%w: %s", errRecordKeyMismatch, suffix)
	}

	pub, err := sr25519.NewPublicKey(raw)
	if err != nil {
		return fmt.Errorf("%w: %s", errRecordKeyMismatch, suffix)
	}

	rec := new(AuthorityRecord)
	if err := msgpack.Unmarshal(value, rec); err != nil {
		return fmt.Errorf("failed to decode authority record: %w", err)
	}

	if time.Unix(rec.Timestamp, 0).After(time.Now().Add(recordMaxClockSkew)) {
		return errRecordFromFuture
	}

	if _, err := peer.Decode(rec.PeerID); err != nil {
		return fmt.Errorf("invalid peer id in authority record: %w", err)
	}

	return rec.verify(pub)
}

// Select implements record.Validator, preferring the freshest record
func (authorityRecordValidator) Select(_ string, values [][]byte) (int, error) {
	if len(values) == 0 {
		return 0, errNoRecords
	}

	best := 0
	var bestTS int64 = -1

	for i, value := range values {
		rec := new(AuthorityRecord)
		if err := msgpack.Unmarshal(value, rec); err != nil {
			continue
		}

		if rec.Timestamp > bestTS {
			best = i
			bestTS = rec.Timestamp
		}
	}

	return best, nil
}

func recordKeySuffix(key string) (string, error) {
	prefix := "/" + authorityNamespace + "/"
	if !strings.HasPrefix(key, prefix) || len(key) == len(prefix) {
		return "", fmt.Errorf("%w: %s", errInvalidRecordKey, key)
	}
	return key[len(prefix):], nil
}

func recordKey(addr crypto.Address) string {
	return "/" + authorityNamespace + "/" + string(addr)
}

// authorityDiscovery publishes this node's (or its sentries') signed
// address record and resolves the records of the other authorities in
// the current set
type authorityDiscovery struct {
	ctx       context.Context
	host      *host
	discovery *discovery
	provider  epochDataProvider

	// set for authorities; nil on sentry and full nodes, which only resolve
	keypair *sr25519.Keypair

	// an authority fronted by sentries does not publish itself
	sentried bool
}

// epochDataProvider yields the current authority set's raw session keys
type epochDataProvider interface {
	LatestAuthorityKeys() ([][]byte, error)
}

func newAuthorityDiscovery(ctx context.Context, h *host, d *discovery,
	provider epochDataProvider, kp *sr25519.Keypair, sentried bool) *authorityDiscovery {
	return &authorityDiscovery{
		ctx:       ctx,
		host:      h,
		discovery: d,
		provider:  provider,
		keypair:   kp,
		sentried:  sentried,
	}
}

func (ad *authorityDiscovery) start() {
	if ad.keypair != nil && !ad.sentried {
		go ad.publishLoop()
	}
	go ad.resolveLoop()
}

func (ad *authorityDiscovery) publishLoop() {
	timer := time.NewTimer(initialAdvertisementTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ad.ctx.Done():
			return
		case <-timer.C:
			if err := ad.publish(); err != nil {
				logger.Warn("failed to publish authority record", "error", err)
				timer.Reset(retryAdvertiseTimeout)
				continue
			}
			timer.Reset(publishInterval)
		}
	}
}

// publish signs and stores this authority's address record in the DHT
func (ad *authorityDiscovery) publish() error {
	if ad.keypair == nil {
		return errNoPublishKey
	}

	var addrs []string
	for _, addr := range ad.host.multiaddrs() {
		addrs = append(addrs, addr.String())
	}

	rec := &AuthorityRecord{
		PeerID:    ad.host.id().String(),
		Addrs:     addrs,
		Timestamp: time.Now().Unix(),
	}

	if err := rec.sign(ad.keypair); err != nil {
		return err
	}

	enc, err := msgpack.Marshal(rec)
	if err != nil {
		return err
	}

	pub := ad.keypair.Public().(*sr25519.PublicKey)
	key := recordKey(pub.Address())

	ctx, cancel := context.WithTimeout(ad.ctx, resolveTimeout)
	defer cancel()

	logger.Debug("publishing authority record", "key", key, "addrs", len(addrs))
	return ad.discovery.dht.PutValue(ctx, key, enc)
}

func (ad *authorityDiscovery) resolveLoop() {
	timer := time.NewTimer(resolveInterval)
	defer timer.Stop()

	for {
		select {
		case <-ad.ctx.Done():
			return
		case <-timer.C:
			ad.resolveAuthorities()
			timer.Reset(resolveInterval)
		}
	}
}

// resolveAuthorities looks up the address record of every authority in
// the current set and dials any we are not yet connected to
func (ad *authorityDiscovery) resolveAuthorities() {
	keys, err := ad.provider.LatestAuthorityKeys()
	if err != nil {
		logger.Warn("failed to load authority set for discovery", "error", err)
		return
	}

	var own []byte
	if ad.keypair != nil {
		own = ad.keypair.Public().Encode()
	}

	for _, key := range keys {
		if own != nil && string(key) == string(own) {
			continue
		}

		infos, err := ad.resolve(key)
		if err != nil {
			logger.Debug("failed to resolve authority", "error", err)
			continue
		}

		for _, info := range infos {
			ad.host.h.Peerstore().AddAddrs(info.ID, info.Addrs, peerstore.PermanentAddrTTL)
			ad.host.cm.Protect(info.ID, authorityNamespace)

			if ad.host.h.Network().Connectedness(info.ID) == corenetwork.Connected {
				continue
			}
			ad.host.connect(info)
		}
	}
}

// resolve fetches and decodes the address record for one authority key.
// A sentried authority's record yields one AddrInfo per sentry.
func (ad *authorityDiscovery) resolve(authorityKey []byte) ([]peer.AddrInfo, error) {
	pub, err := sr25519.NewPublicKey(authorityKey)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ad.ctx, resolveTimeout)
	defer cancel()

	value, err := ad.discovery.dht.GetValue(ctx, recordKey(pub.Address()))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch authority record: %w", err)
	}

	rec := new(AuthorityRecord)
	if err := msgpack.Unmarshal(value, rec); err != nil {
		return nil, err
	}

	infos, err := stringsToAddrInfos(rec.Addrs)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, errNoRecords
	}

	return infos, nil
}
