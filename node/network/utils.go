// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package network

import (
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/libp2p/go-libp2p-core/crypto"
	"github.com/libp2p/go-libp2p-core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// DefaultKeyFile is the node key file under the network base path
const DefaultKeyFile = "node.key"

// loadNetworkKey reads the hex-encoded ed25519 node key from the base
// path, or returns nil if no key file exists yet.
func loadNetworkKey(basePath string) (crypto.PrivKey, error) {
	pth := filepath.Join(filepath.Clean(basePath), DefaultKeyFile)
	if _, err := os.Stat(pth); os.IsNotExist(err) {
		return nil, nil
	}

	keyData, err := os.ReadFile(filepath.Clean(pth))
	if err != nil {
		return nil, err
	}

	dec := make([]byte, hex.DecodedLen(len(keyData)))
	if _, err = hex.Decode(dec, keyData); err != nil {
		return nil, err
	}

	return crypto.UnmarshalEd25519PrivateKey(dec)
}

// generateNetworkKey creates a new ed25519 node key and persists it to
// the base path so the peer ID survives restarts.
func generateNetworkKey(basePath string) (crypto.PrivKey, error) {
	key, _, err := crypto.GenerateEd25519Key(crand.Reader)
	if err != nil {
		return nil, err
	}

	raw, err := key.Raw()
	if err != nil {
		return nil, err
	}

	if err = os.MkdirAll(filepath.Clean(basePath), 0o700); err != nil {
		return nil, err
	}

	enc := make([]byte, hex.EncodedLen(len(raw)))
	hex.Encode(enc, raw)

	pth := filepath.Join(filepath.Clean(basePath), DefaultKeyFile)
	if err = os.WriteFile(pth, enc, 0o600); err != nil {
		return nil, err
	}

	return key, nil
}

// stringsToAddrInfos converts multiaddress strings to peer AddrInfos
func stringsToAddrInfos(peers []string) ([]peer.AddrInfo, error) {
	addrInfos := make([]peer.AddrInfo, len(peers))
	for i, p := range peers {
		maddr, err := ma.NewMultiaddr(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", errInvalidBootnode, p)
		}

		addrInfo, err := peer.AddrInfoFromP2pAddr(maddr)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", errInvalidBootnode, p)
		}

		addrInfos[i] = *addrInfo
	}
	return addrInfos, nil
}
