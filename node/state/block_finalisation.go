// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package state

import (
	"encoding/binary"
	"fmt"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/node/types"
)

var (
	finalisedHeadPrefix     = []byte("finalised_head") // finalisedHeadPrefix + round + setID -> finalised hash
	highestRoundAndSetIDKey = []byte("hrs")
)

// finalisedHashKey returns the database key for the block finalised at the
// given round and set ID.
func finalisedHashKey(round, setID uint64) []byte {
	key := append([]byte{}, finalisedHeadPrefix...)
	key = append(key, encodeRoundAndSetID(round, setID)...)
	return key
}

func encodeRoundAndSetID(round, setID uint64) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf, round)
	binary.LittleEndian.PutUint64(buf[8:], setID)
	return buf
}

// GetFinalisedHash returns the hash of the block finalised at the given round and set ID
func (bs *BlockState) GetFinalisedHash(round, setID uint64) (common.Hash, error) {
	data, err := bs.db.Get(finalisedHashKey(round, setID))
	if err != nil {
		return common.EmptyHash, err
	}

	return common.NewHash(data), nil
}

// GetFinalisedHeader returns the header of the block finalised at the given round and set ID
func (bs *BlockState) GetFinalisedHeader(round, setID uint64) (*types.Header, error) {
	hash, err := bs.GetFinalisedHash(round, setID)
	if err != nil {
		return nil, err
	}

	return bs.GetHeader(hash)
}

// GetHighestRoundAndSetID returns the highest round and set ID for which a block was finalised
func (bs *BlockState) GetHighestRoundAndSetID() (uint64, uint64, error) {
	data, err := bs.db.Get(highestRoundAndSetIDKey)
	if err != nil {
		return 0, 0, fmt.Errorf("cannot get highest round and set ID: %w", err)
	}

	round := binary.LittleEndian.Uint64(data[:8])
	setID := binary.LittleEndian.Uint64(data[8:16])
	return round, setID, nil
}

func (bs *BlockState) storeHighestRoundAndSetID(round, setID uint64) error {
	return bs.db.Put(highestRoundAndSetIDKey, encodeRoundAndSetID(round, setID))
}

// setHighestRoundAndSetID updates the highest seen round and set ID. Finality
// only ever moves forward: a lower set ID, or a lower round within the same
// set ID, is rejected.
func (bs *BlockState) setHighestRoundAndSetID(round, setID uint64) error {
	currRound, currSetID, err := bs.GetHighestRoundAndSetID()
	if err != nil {
		return err
	}

	if setID < currSetID {
		return fmt.Errorf("%w: got %d, highest %d", ErrSetIDLowerThanHighest, setID, currSetID)
	}

	if setID == currSetID && round < currRound {
		return fmt.Errorf("%w: got %d, highest %d", ErrRoundLowerThanHighest, round, currRound)
	}

	return bs.storeHighestRoundAndSetID(round, setID)
}

// GetHighestFinalisedHash returns the hash of the most recently finalised block
func (bs *BlockState) GetHighestFinalisedHash() (common.Hash, error) {
	round, setID, err := bs.GetHighestRoundAndSetID()
	if err != nil {
		return common.EmptyHash, err
	}

	return bs.GetFinalisedHash(round, setID)
}

// GetHighestFinalisedHeader returns the header of the most recently finalised block
func (bs *BlockState) GetHighestFinalisedHeader() (*types.Header, error) {
	hash, err := bs.GetHighestFinalisedHash()
	if err != nil {
		return nil, err
	}

	return bs.GetHeader(hash)
}

// NumberIsFinalised checks if the block with the given number is finalised
func (bs *BlockState) NumberIsFinalised(number uint64) (bool, error) {
	header, err := bs.GetHighestFinalisedHeader()
	if err != nil {
		return false, err
	}

	return number <= uint64(header.Number), nil
}

// SetFinalisedHash marks the block with the given hash as finalised at the given
// round and set ID. The blocktree is re-rooted at the finalised block and the
// hashes of all blocks on discarded forks are returned, so the caller can
// return their extrinsics to the transaction pool. Finalising a block below
// the current finalised head is an error.
func (bs *BlockState) SetFinalisedHash(hash common.Hash, round, setID uint64) ([]common.Hash, error) {
	bs.lock.Lock()
	defer bs.lock.Unlock()

	has, err := bs.HasHeader(hash)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, fmt.Errorf("cannot finalise unknown block %s", hash)
	}

	// finality is monotonic: the new block must extend the chain already
	// finalised, even when the blocktree has pruned its branch
	currFinalised, err := bs.GetHighestFinalisedHash()
	if err != nil {
		return nil, err
	}

	if hash != currFinalised {
		isDescendant, err := bs.IsDescendantOf(currFinalised, hash)
		if err != nil {
			return nil, err
		}
		if !isDescendant {
			return nil, fmt.Errorf("%w: %s does not extend %s", ErrNotDescendantOfFinalised, hash, currFinalised)
		}
	}

	if err := bs.setHighestRoundAndSetID(round, setID); err != nil {
		return nil, err
	}

	header, err := bs.GetHeader(hash)
	if err != nil {
		return nil, err
	}

	if round > 0 {
		go bs.notifyFinalized(&types.FinalisationInfo{
			Header: *header,
			Round:  round,
			SetID:  setID,
		})
	}

	pruned := bs.bt.Prune(hash)
	for _, prunedHash := range pruned {
		prunedHeader, err := bs.GetHeader(prunedHash)
		if err != nil {
			continue
		}

		// non-blocking send; the storage state prunes the tries for
		// discarded blocks in the background
		select {
		case bs.pruneKeyCh <- prunedHeader:
		default:
		}
	}

	if err := bs.db.Put(finalisedHashKey(round, setID), hash.ToBytes()); err != nil {
		return nil, err
	}

	if err := bs.remapCanonicalChain(); err != nil {
		return nil, err
	}

	if err := bs.setFirstSlotOnFinalisation(header); err != nil {
		return nil, err
	}

	return pruned, nil
}

// remapCanonicalChain rewrites the number-to-hash mapping after finalisation
// in case the finalised chain differs from the previously tracked best chain.
// It walks from the new best block towards genesis and stops at the first
// block whose mapping is already correct.
func (bs *BlockState) remapCanonicalChain() error {
	best := bs.bt.BestBlockHash()
	if err := bs.db.Put(common.BestBlockHashKey, best.ToBytes()); err != nil {
		return err
	}

	cur, err := bs.GetHeader(best)
	if err != nil {
		return err
	}

	for {
		stored, err := bs.GetHashByNumber(uint64(cur.Number))
		if err == nil && stored == cur.Hash() {
			return nil
		}

		if err := bs.db.Put(headerHashKey(uint64(cur.Number)), cur.Hash().ToBytes()); err != nil {
			return err
		}

		if cur.Number == 0 {
			return nil
		}

		cur, err = bs.GetHeader(cur.ParentHash)
		if err != nil {
			return err
		}
	}
}

// setFirstSlotOnFinalisation stores the slot of block 1 the first time a
// non-genesis block is finalised. The first slot anchors the epoch arithmetic.
func (bs *BlockState) setFirstSlotOnFinalisation(header *types.Header) error {
	if header.Number == 0 {
		return nil
	}

	if _, err := bs.baseState.loadFirstSlot(); err == nil {
		return nil
	}

	firstHash, err := bs.GetHashByNumber(1)
	if err != nil {
		return err
	}

	firstHeader, err := bs.GetHeader(firstHash)
	if err != nil {
		return err
	}

	slot, err := types.GetSlotFromHeader(firstHeader)
	if err != nil {
		return err
	}

	return bs.baseState.storeFirstSlot(slot)
}
