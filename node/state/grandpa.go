// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package state

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ChainSafe/chaindb"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tessera-net/tessera/lib/crypto/ed25519"
	"github.com/tessera-net/tessera/node/types"
)

var (
	authoritiesPrefix  = []byte("auth")   // authoritiesPrefix + LE(setID) -> voter set
	setIDChangePrefix  = []byte("change") // setIDChangePrefix + LE(setID) -> block number the set becomes active at
	equivocationPrefix = []byte("equiv")  // equivocationPrefix + LE(setID) + LE(round) -> offender keys
	currentSetIDKey    = []byte("setID")
	latestRoundKey     = []byte("latest_round")
)

// GrandpaState tracks the finality voter sets: which voters belong to each
// set ID and at which block each set becomes active.
type GrandpaState struct {
	db chaindb.Database
}

// NewGrandpaStateFromGenesis returns a new GrandpaState with the genesis voter set as set 0
func NewGrandpaStateFromGenesis(db chaindb.Database, genesisAuthorities types.GrandpaVoters) (*GrandpaState, error) {
	s := &GrandpaState{
		db: chaindb.NewTable(db, "grandpa"),
	}

	if err := s.setCurrentSetID(0); err != nil {
		return nil, err
	}

	if err := s.SetAuthorities(0, genesisAuthorities); err != nil {
		return nil, err
	}

	if err := s.setSetIDChangeAtBlock(0, 0); err != nil {
		return nil, err
	}

	if err := s.SetLatestRound(0); err != nil {
		return nil, err
	}

	return s, nil
}

// NewGrandpaState returns a new GrandpaState backed by the database
func NewGrandpaState(db chaindb.Database) *GrandpaState {
	return &GrandpaState{
		db: chaindb.NewTable(db, "grandpa"),
	}
}

func authoritiesKey(setID uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, setID)
	return append(authoritiesPrefix, buf...)
}

func setIDChangeKey(setID uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, setID)
	return append(setIDChangePrefix, buf...)
}

// SetAuthorities sets the voter set for the given set ID
func (s *GrandpaState) SetAuthorities(setID uint64, authorities types.GrandpaVoters) error {
	enc, err := msgpack.Marshal(types.GrandpaVotersToRaw(authorities))
	if err != nil {
		return err
	}

	return s.db.Put(authoritiesKey(setID), enc)
}

// GetAuthorities returns the voter set for the given set ID
func (s *GrandpaState) GetAuthorities(setID uint64) (types.GrandpaVoters, error) {
	enc, err := s.db.Get(authoritiesKey(setID))
	if err != nil {
		return nil, fmt.Errorf("%w: set ID %d", ErrSetIDNotFound, setID)
	}

	var raw []types.GrandpaVoterRaw
	if err = msgpack.Unmarshal(enc, &raw); err != nil {
		return nil, err
	}

	return types.GrandpaVotersFromRaw(raw)
}

func (s *GrandpaState) setCurrentSetID(setID uint64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, setID)
	return s.db.Put(currentSetIDKey, buf)
}

// GetCurrentSetID returns the current voter set ID
func (s *GrandpaState) GetCurrentSetID() (uint64, error) {
	data, err := s.db.Get(currentSetIDKey)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint64(data), nil
}

// SetNextChange stores a scheduled voter set change: the given voters become
// the next set, active from the given block number.
func (s *GrandpaState) SetNextChange(authorities types.GrandpaVoters, number uint64) error {
	currSetID, err := s.GetCurrentSetID()
	if err != nil {
		return err
	}

	nextSetID := currSetID + 1
	if err := s.SetAuthorities(nextSetID, authorities); err != nil {
		return err
	}

	return s.setSetIDChangeAtBlock(nextSetID, number)
}

// IncrementSetID increments the current set ID and returns the new value
func (s *GrandpaState) IncrementSetID() (uint64, error) {
	currSetID, err := s.GetCurrentSetID()
	if err != nil {
		return 0, err
	}

	nextSetID := currSetID + 1
	if err := s.setCurrentSetID(nextSetID); err != nil {
		return 0, err
	}

	return nextSetID, nil
}

func (s *GrandpaState) setSetIDChangeAtBlock(setID, number uint64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, number)
	return s.db.Put(setIDChangeKey(setID), buf)
}

// GetSetIDChange returns the block number at which the given set ID becomes active
func (s *GrandpaState) GetSetIDChange(setID uint64) (uint64, error) {
	data, err := s.db.Get(setIDChangeKey(setID))
	if err != nil {
		return 0, fmt.Errorf("%w: set ID %d", ErrSetIDNotFound, setID)
	}

	return binary.LittleEndian.Uint64(data), nil
}

// GetSetIDByBlockNumber returns the set ID that is active at the given block number
func (s *GrandpaState) GetSetIDByBlockNumber(number uint64) (uint64, error) {
	curr, err := s.GetCurrentSetID()
	if err != nil {
		return 0, err
	}

	for setID := curr; ; setID-- {
		activeFrom, err := s.GetSetIDChange(setID)
		if err != nil {
			return 0, err
		}

		if number >= activeFrom {
			return setID, nil
		}

		if setID == 0 {
			return 0, nil
		}
	}
}

// ApplyScheduledChange activates a scheduled voter set change once a block
// at or past its activation number has been finalised. It is a no-op when
// no change is scheduled or finalisation has not reached the change yet.
func (s *GrandpaState) ApplyScheduledChange(finalisedHeader *types.Header) error {
	curr, err := s.GetCurrentSetID()
	if err != nil {
		return err
	}

	activeAt, err := s.GetSetIDChange(curr + 1)
	if errors.Is(err, ErrSetIDNotFound) {
		// nothing scheduled
		return nil
	} else if err != nil {
		return err
	}

	if uint64(finalisedHeader.Number) < activeAt {
		return nil
	}

	newSetID, err := s.IncrementSetID()
	if err != nil {
		return err
	}

	logger.Info("changed finality voter set", "set", newSetID, "active from block", activeAt)
	return nil
}

func equivocationKey(setID, round uint64) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf, setID)
	binary.LittleEndian.PutUint64(buf[8:], round)
	return append(equivocationPrefix, buf...)
}

// ReportEquivocation records that the given voter equivocated in the
// given round. Reports accumulate per round; reporting the same offender
// twice is a no-op.
func (s *GrandpaState) ReportEquivocation(setID, round uint64, offender ed25519.PublicKeyBytes) error {
	offenders, err := s.GetEquivocationReports(setID, round)
	if err != nil {
		return err
	}

	for _, o := range offenders {
		if o == offender {
			return nil
		}
	}

	enc, err := msgpack.Marshal(append(offenders, offender))
	if err != nil {
		return err
	}

	return s.db.Put(equivocationKey(setID, round), enc)
}

// GetEquivocationReports returns the voters reported for equivocating in
// the given round
func (s *GrandpaState) GetEquivocationReports(setID, round uint64) ([]ed25519.PublicKeyBytes, error) {
	enc, err := s.db.Get(equivocationKey(setID, round))
	if err != nil {
		// no reports for this round
		return nil, nil
	}

	var offenders []ed25519.PublicKeyBytes
	if err := msgpack.Unmarshal(enc, &offenders); err != nil {
		return nil, err
	}

	return offenders, nil
}

// SetLatestRound stores the most recently completed finality round
func (s *GrandpaState) SetLatestRound(round uint64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, round)
	return s.db.Put(latestRoundKey, buf)
}

// GetLatestRound returns the most recently completed finality round
func (s *GrandpaState) GetLatestRound() (uint64, error) {
	data, err := s.db.Get(latestRoundKey)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint64(data), nil
}
