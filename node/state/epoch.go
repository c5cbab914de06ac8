// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ChainSafe/chaindb"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tessera-net/tessera/node/types"
)

var (
	currentEpochKey = []byte("current_epoch")
	epochLengthKey  = []byte("epoch_length")
	slotDurationKey = []byte("slot_duration")
	epochDataPrefix = []byte("epochdata") // epochDataPrefix + LE(epoch) -> epoch data
)

var errSlotBeforeFirst = errors.New("slot is before the first slot")

func epochDataKey(epoch uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, epoch)
	return append(epochDataPrefix, buf...)
}

// EpochState tracks the slot-production epochs: which authority set and
// randomness apply to each epoch, and how slots map onto epochs.
type EpochState struct {
	db           chaindb.Database
	baseState    *BaseState
	blockState   *BlockState
	epochLength  uint64 // in slots
	slotDuration uint64 // in milliseconds
}

// NewEpochStateFromGenesis returns a new EpochState given the genesis BABE configuration
func NewEpochStateFromGenesis(db chaindb.Database, genesisConfig *types.BabeConfiguration) (*EpochState, error) {
	if genesisConfig.EpochLength == 0 {
		return nil, errors.New("epoch length is 0")
	}

	s := &EpochState{
		db:           chaindb.NewTable(db, "epoch"),
		baseState:    NewBaseState(db),
		epochLength:  genesisConfig.EpochLength,
		slotDuration: genesisConfig.SlotDuration,
	}

	if err := s.storeUint64(epochLengthKey, genesisConfig.EpochLength); err != nil {
		return nil, err
	}

	if err := s.storeUint64(slotDurationKey, genesisConfig.SlotDuration); err != nil {
		return nil, err
	}

	if err := s.SetCurrentEpoch(0); err != nil {
		return nil, err
	}

	auths, err := types.AuthoritiesFromRaw(genesisConfig.GenesisAuthorities)
	if err != nil {
		return nil, err
	}

	err = s.SetEpochData(0, &types.EpochData{
		Authorities: auths,
		Randomness:  genesisConfig.Randomness,
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}

// NewEpochState returns a new EpochState loaded from the database
func NewEpochState(db chaindb.Database) (*EpochState, error) {
	s := &EpochState{
		db:        chaindb.NewTable(db, "epoch"),
		baseState: NewBaseState(db),
	}

	var err error
	if s.epochLength, err = s.loadUint64(epochLengthKey); err != nil {
		return nil, fmt.Errorf("cannot load epoch length: %w", err)
	}

	if s.slotDuration, err = s.loadUint64(slotDurationKey); err != nil {
		return nil, fmt.Errorf("cannot load slot duration: %w", err)
	}

	return s, nil
}

func (s *EpochState) storeUint64(key []byte, value uint64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, value)
	return s.db.Put(key, buf)
}

func (s *EpochState) loadUint64(key []byte) (uint64, error) {
	data, err := s.db.Get(key)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint64(data), nil
}

// GetEpochLength returns the length of an epoch in slots
func (s *EpochState) GetEpochLength() uint64 {
	return s.epochLength
}

// GetSlotDuration returns the duration of a slot
func (s *EpochState) GetSlotDuration() time.Duration {
	return time.Duration(s.slotDuration) * time.Millisecond
}

// SetCurrentEpoch sets the current epoch
func (s *EpochState) SetCurrentEpoch(epoch uint64) error {
	return s.storeUint64(currentEpochKey, epoch)
}

// GetCurrentEpoch returns the current epoch
func (s *EpochState) GetCurrentEpoch() (uint64, error) {
	return s.loadUint64(currentEpochKey)
}

// SetEpochData sets the authority set and randomness for the given epoch
func (s *EpochState) SetEpochData(epoch uint64, info *types.EpochData) error {
	raw := info.ToEpochDataRaw()

	enc, err := msgpack.Marshal(raw)
	if err != nil {
		return err
	}

	return s.db.Put(epochDataKey(epoch), enc)
}

// GetEpochData returns the authority set and randomness for the given epoch.
// It returns ErrEpochNotFound if no data has been set for the epoch, which
// callers should treat as transient: the data may arrive with a later block.
func (s *EpochState) GetEpochData(epoch uint64) (*types.EpochData, error) {
	enc, err := s.db.Get(epochDataKey(epoch))
	if err != nil {
		return nil, fmt.Errorf("%w: epoch %d", ErrEpochNotFound, epoch)
	}

	raw := new(types.EpochDataRaw)
	if err = msgpack.Unmarshal(enc, raw); err != nil {
		return nil, err
	}

	return raw.ToEpochData()
}

// HasEpochData returns true if epoch data has been set for the given epoch
func (s *EpochState) HasEpochData(epoch uint64) (bool, error) {
	return s.db.Has(epochDataKey(epoch))
}

// GetLatestEpochData returns the epoch data for the current epoch
func (s *EpochState) GetLatestEpochData() (*types.EpochData, error) {
	curr, err := s.GetCurrentEpoch()
	if err != nil {
		return nil, err
	}

	return s.GetEpochData(curr)
}

// GetEpochForBlock returns the epoch the given block belongs to, based on the
// slot in its pre-runtime digest. Slot zero of epoch zero is the slot of the
// first block built on genesis; it is anchored the first time it is needed.
func (s *EpochState) GetEpochForBlock(header *types.Header) (uint64, error) {
	if header == nil {
		return 0, errNilHeader
	}

	if header.Number == 0 {
		return 0, nil
	}

	slot, err := types.GetSlotFromHeader(header)
	if err != nil {
		return 0, err
	}

	firstSlot, err := s.firstSlot(header, slot)
	if err != nil {
		return 0, err
	}

	if slot < firstSlot {
		return 0, fmt.Errorf("%w: slot %d, first slot %d", errSlotBeforeFirst, slot, firstSlot)
	}

	return (slot - firstSlot) / s.epochLength, nil
}

// GetStartSlotForEpoch returns the first slot of the given epoch
func (s *EpochState) GetStartSlotForEpoch(epoch uint64) (uint64, error) {
	firstSlot, err := s.baseState.loadFirstSlot()
	if err != nil {
		return 0, fmt.Errorf("first slot is not set: %w", err)
	}

	return firstSlot + epoch*s.epochLength, nil
}

func (s *EpochState) firstSlot(header *types.Header, slot uint64) (uint64, error) {
	firstSlot, err := s.baseState.loadFirstSlot()
	if err == nil {
		return firstSlot, nil
	}

	// not anchored yet; block 1 defines the first slot
	if header.Number == 1 {
		if err := s.baseState.storeFirstSlot(slot); err != nil {
			return 0, err
		}
		return slot, nil
	}

	if s.blockState == nil {
		return 0, errNilBlockTree
	}

	first, err := s.blockState.GetHeaderByNumber(1)
	if err != nil {
		return 0, fmt.Errorf("cannot determine first slot: %w", err)
	}

	firstSlot, err = types.GetSlotFromHeader(first)
	if err != nil {
		return 0, err
	}

	if err := s.baseState.storeFirstSlot(firstSlot); err != nil {
		return 0, err
	}

	return firstSlot, nil
}
