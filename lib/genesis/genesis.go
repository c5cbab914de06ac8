// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package genesis parses chain specification files and turns them into the
// genesis storage state and header the node boots from.
package genesis

import (
	"encoding/json"
	"fmt"
	"os"
)

// Genesis stores the data parsed from the chain specification file
type Genesis struct {
	Name       string                 `json:"name"`
	ID         string                 `json:"id"`
	ChainType  string                 `json:"chainType"`
	Bootnodes  []string               `json:"bootNodes"`
	ProtocolID string                 `json:"protocolId"`
	Genesis    Fields                 `json:"genesis"`
	Properties map[string]interface{} `json:"properties"`
}

// Fields holds the runtime section of the chain specification
type Fields struct {
	Runtime *Runtime `json:"runtime"`
}

// Runtime holds the per-module genesis configuration
type Runtime struct {
	Babe    *Babe    `json:"babe"`
	Grandpa *Grandpa `json:"grandpa"`
	Datalog *Datalog `json:"datalog,omitempty"`
}

// Babe is the genesis block production configuration
type Babe struct {
	SlotDuration uint64             `json:"slotDuration"`
	EpochLength  uint64             `json:"epochLength"`
	C            [2]uint64          `json:"c"`
	Authorities  []AuthorityAddress `json:"authorities"`
}

// Grandpa is the genesis finality voter configuration
type Grandpa struct {
	Authorities []AuthorityAddress `json:"authorities"`
}

// Datalog seeds the datalog module with initial records
type Datalog struct {
	Records []string `json:"records"`
}

// AuthorityAddress is a hex encoded public key together with its weight
type AuthorityAddress struct {
	Key    string `json:"key"`
	Weight uint64 `json:"weight"`
}

// GenesisData is the subset of the chain specification the network layer
// needs at runtime
type GenesisData struct {
	Name       string
	ID         string
	ChainType  string
	Bootnodes  []string
	ProtocolID string
	Properties map[string]interface{}
}

// GenesisData returns the network-facing chain metadata
func (g *Genesis) GenesisData() *GenesisData {
	return &GenesisData{
		Name:       g.Name,
		ID:         g.ID,
		ChainType:  g.ChainType,
		Bootnodes:  g.Bootnodes,
		ProtocolID: g.ProtocolID,
		Properties: g.Properties,
	}
}

// NewGenesisFromJSON parses a chain specification file
func NewGenesisFromJSON(file string) (*Genesis, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("cannot read genesis file: %w", err)
	}

	g := new(Genesis)
	if err := json.Unmarshal(data, g); err != nil {
		return nil, fmt.Errorf("cannot parse genesis file: %w", err)
	}

	if err := g.validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Genesis) validate() error {
	if g.Genesis.Runtime == nil {
		return ErrNoRuntime
	}
	if g.Genesis.Runtime.Babe == nil || len(g.Genesis.Runtime.Babe.Authorities) == 0 {
		return ErrNoBabeAuthorities
	}
	if g.Genesis.Runtime.Grandpa == nil || len(g.Genesis.Runtime.Grandpa.Authorities) == 0 {
		return ErrNoGrandpaAuthorities
	}
	if g.Genesis.Runtime.Babe.C[1] == 0 || g.Genesis.Runtime.Babe.C[0] > g.Genesis.Runtime.Babe.C[1] {
		return ErrInvalidSlotFraction
	}
	return nil
}
