// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package modules

import (
	"net/http"
)

// SystemModule is the system_* RPC namespace
type SystemModule struct {
	networkAPI NetworkAPI
	systemAPI  SystemAPI
	txStateAPI TransactionStateAPI
}

// NewSystemModule creates the system_* handler
func NewSystemModule(networkAPI NetworkAPI, systemAPI SystemAPI,
	txStateAPI TransactionStateAPI) *SystemModule {
	return &SystemModule{
		networkAPI: networkAPI,
		systemAPI:  systemAPI,
		txStateAPI: txStateAPI,
	}
}

// EmptyRequest is used by methods that take no parameters
type EmptyRequest struct{}

// StringResponse is a bare string result
type StringResponse string

// SystemHealthResponse is the node health summary
type SystemHealthResponse struct {
	Peers           int  `json:"peers"`
	IsSyncing       bool `json:"isSyncing"`
	ShouldHavePeers bool `json:"shouldHavePeers"`
}

// SystemNetworkStateResponse is the node's network identity
type SystemNetworkStateResponse struct {
	NetworkState struct {
		PeerAddrs []string `json:"multiaddresses"`
	} `json:"networkState"`
}

// SystemPropertiesResponse is the chain's property map
type SystemPropertiesResponse map[string]interface{}

// Health returns the peer count and sync status
func (sm *SystemModule) Health(r *http.Request, req *EmptyRequest, res *SystemHealthResponse) error {
	peers := 0
	if sm.networkAPI != nil {
		peers = sm.networkAPI.PeerCount()
	}

	*res = SystemHealthResponse{
		Peers:           peers,
		ShouldHavePeers: sm.networkAPI != nil,
	}
	return nil
}

// Name returns the node implementation name
func (sm *SystemModule) Name(r *http.Request, req *EmptyRequest, res *StringResponse) error {
	*res = StringResponse(sm.systemAPI.SystemName())
	return nil
}

// Version returns the node implementation version
func (sm *SystemModule) Version(r *http.Request, req *EmptyRequest, res *StringResponse) error {
	*res = StringResponse(sm.systemAPI.SystemVersion())
	return nil
}

// Chain returns the chain name
func (sm *SystemModule) Chain(r *http.Request, req *EmptyRequest, res *StringResponse) error {
	*res = StringResponse(sm.systemAPI.ChainName())
	return nil
}

// Properties returns the chain property map
func (sm *SystemModule) Properties(r *http.Request, req *EmptyRequest, res *SystemPropertiesResponse) error {
	*res = sm.systemAPI.Properties()
	return nil
}

// NetworkState returns the node's listening multiaddresses
func (sm *SystemModule) NetworkState(r *http.Request, req *EmptyRequest, res *SystemNetworkStateResponse) error {
	if sm.networkAPI != nil {
		res.NetworkState.PeerAddrs = sm.networkAPI.NodeAddrs()
	}
	return nil
}
