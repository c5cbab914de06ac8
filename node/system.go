// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package node

// system identity reported over RPC
const (
	SystemName    = "tessera"
	SystemVersion = "0.1.0"
)

// systemInfo answers the system_* RPC queries
type systemInfo struct {
	chainName  string
	properties map[string]interface{}
}

func (s *systemInfo) SystemName() string                 { return SystemName }
func (s *systemInfo) SystemVersion() string              { return SystemVersion }
func (s *systemInfo) ChainName() string                  { return s.chainName }
func (s *systemInfo) Properties() map[string]interface{} { return s.properties }
