// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package state

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/ChainSafe/chaindb"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/lib/genesis"
)

// BaseState is a wrapper for the chain database used to store
// global node information such as the genesis data and node name.
type BaseState struct {
	db chaindb.Database
}

// NewBaseState returns a new BaseState
func NewBaseState(db chaindb.Database) *BaseState {
	return &BaseState{
		db: db,
	}
}

// StoreGenesisData stores the given genesis data at the known GenesisDataKey.
func (s *BaseState) StoreGenesisData(gen *genesis.GenesisData) error {
	enc, err := json.Marshal(gen)
	if err != nil {
		return fmt.Errorf("cannot marshal genesis data: %w", err)
	}

	return s.db.Put(common.GenesisDataKey, enc)
}

// LoadGenesisData retrieves the genesis data stored at the known GenesisDataKey.
func (s *BaseState) LoadGenesisData() (*genesis.GenesisData, error) {
	enc, err := s.db.Get(common.GenesisDataKey)
	if err != nil {
		return nil, err
	}

	data := &genesis.GenesisData{}
	if err = json.Unmarshal(enc, data); err != nil {
		return nil, err
	}

	return data, nil
}

// StoreNodeGlobalName stores the current node name to avoid regenerating it on each start
func (s *BaseState) StoreNodeGlobalName(name string) error {
	return s.db.Put(common.NodeNameKey, []byte(name))
}

// LoadNodeGlobalName loads the latest stored node global name
func (s *BaseState) LoadNodeGlobalName() (string, error) {
	name, err := s.db.Get(common.NodeNameKey)
	if err != nil {
		return "", err
	}

	return string(name), nil
}

func (s *BaseState) storeFirstSlot(slot uint64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, slot)
	return s.db.Put(common.FirstSlotKey, buf)
}

func (s *BaseState) loadFirstSlot() (uint64, error) {
	data, err := s.db.Get(common.FirstSlotKey)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint64(data), nil
}
