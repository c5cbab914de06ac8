// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package state

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/ChainSafe/chaindb"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tessera-net/tessera/lib/blocktree"
	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/node/types"
)

const pruneKeyBufferSize = 1000

var (
	headerPrefix        = []byte("hdr") // headerPrefix + hash -> header
	blockBodyPrefix     = []byte("blb") // blockBodyPrefix + hash -> body
	headerHashPrefix    = []byte("hsh") // headerHashPrefix + encodedBlockNumber -> hash
	arrivalTimePrefix   = []byte("arr") // arrivalTimePrefix + hash -> arrivalTime
	justificationPrefix = []byte("jcp") // justificationPrefix + hash -> justification
	blockTreeKey        = []byte("block_tree")
)

// BlockState contains the historical block data of the blockchain, including block headers and bodies.
// It wraps the blocktree, which tracks the chain since the last finalised block,
// and contains methods for accessing and modifying both.
type BlockState struct {
	bt          *blocktree.BlockTree
	baseState   *BaseState
	db          chaindb.Database
	lock        sync.RWMutex
	genesisHash common.Hash

	// block notifiers
	imported      map[chan *types.Block]struct{}
	finalised     map[chan *types.FinalisationInfo]struct{}
	importedLock  sync.RWMutex
	finalisedLock sync.RWMutex

	pruneKeyCh chan *types.Header
}

// NewBlockState will create a new BlockState backed by the database.
// The block state must have been previously initialised with genesis data.
func NewBlockState(db chaindb.Database) (*BlockState, error) {
	bs := &BlockState{
		baseState:  NewBaseState(db),
		db:         chaindb.NewTable(db, "block"),
		imported:   make(map[chan *types.Block]struct{}),
		finalised:  make(map[chan *types.FinalisationInfo]struct{}),
		pruneKeyCh: make(chan *types.Header, pruneKeyBufferSize),
	}

	if err := bs.loadBlockTree(); err != nil {
		return nil, fmt.Errorf("failed to load block tree: %w", err)
	}

	genesisHash, err := bs.GetHashByNumber(0)
	if err != nil {
		return nil, fmt.Errorf("failed to get genesis hash: %w", err)
	}
	bs.genesisHash = genesisHash

	return bs, nil
}

// NewBlockStateFromGenesis initialises a BlockState from a genesis header,
// storing the header and setting it as both the best and the finalised block.
func NewBlockStateFromGenesis(db chaindb.Database, header *types.Header) (*BlockState, error) {
	bs := &BlockState{
		bt:          blocktree.NewBlockTreeFromRoot(header),
		baseState:   NewBaseState(db),
		db:          chaindb.NewTable(db, "block"),
		genesisHash: header.Hash(),
		imported:    make(map[chan *types.Block]struct{}),
		finalised:   make(map[chan *types.FinalisationInfo]struct{}),
		pruneKeyCh:  make(chan *types.Header, pruneKeyBufferSize),
	}

	if err := bs.SetHeader(header); err != nil {
		return nil, err
	}

	if err := bs.db.Put(headerHashKey(uint64(header.Number)), header.Hash().ToBytes()); err != nil {
		return nil, err
	}

	if err := bs.SetBlockBody(header.Hash(), types.NewBody(nil)); err != nil {
		return nil, err
	}

	if err := bs.setArrivalTime(header.Hash(), time.Now()); err != nil {
		return nil, err
	}

	if err := bs.db.Put(common.BestBlockHashKey, header.Hash().ToBytes()); err != nil {
		return nil, err
	}

	// the genesis block is finalised at round 0, set ID 0
	if err := bs.db.Put(finalisedHashKey(0, 0), header.Hash().ToBytes()); err != nil {
		return nil, err
	}

	if err := bs.storeHighestRoundAndSetID(0, 0); err != nil {
		return nil, err
	}

	return bs, nil
}

func headerKey(hash common.Hash) []byte {
	return append(headerPrefix, hash.ToBytes()...)
}

func blockBodyKey(hash common.Hash) []byte {
	return append(blockBodyPrefix, hash.ToBytes()...)
}

// headerHashKey returns the database key for the canonical chain's
// number-to-hash mapping. The number is big endian so keys iterate in order.
func headerHashKey(number uint64) []byte {
	return append(headerHashPrefix, encodeBlockNumber(number)...)
}

func arrivalTimeKey(hash common.Hash) []byte {
	return append(arrivalTimePrefix, hash.ToBytes()...)
}

func justificationKey(hash common.Hash) []byte {
	return append(justificationPrefix, hash.ToBytes()...)
}

func encodeBlockNumber(number uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, number)
	return buf
}

// GenesisHash returns the hash of the genesis block
func (bs *BlockState) GenesisHash() common.Hash {
	return bs.genesisHash
}

// HasHeader returns true if the database contains a header with the given hash
func (bs *BlockState) HasHeader(hash common.Hash) (bool, error) {
	return bs.db.Has(headerKey(hash))
}

// GetHeader returns the block header with the given hash
func (bs *BlockState) GetHeader(hash common.Hash) (*types.Header, error) {
	if bs.db == nil {
		return nil, fmt.Errorf("database is nil")
	}

	data, err := bs.db.Get(headerKey(hash))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrHeaderNotFound, hash)
	}

	header, err := types.DecodeHeader(data)
	if err != nil {
		return nil, err
	}

	header.Hash()
	return header, nil
}

// SetHeader stores the given header in the database, keyed by its hash.
func (bs *BlockState) SetHeader(header *types.Header) error {
	if header == nil {
		return errNilHeader
	}

	enc, err := header.Encode()
	if err != nil {
		return err
	}

	return bs.db.Put(headerKey(header.Hash()), enc)
}

// GetHashByNumber returns the canonical chain block hash for the given number
func (bs *BlockState) GetHashByNumber(number uint64) (common.Hash, error) {
	data, err := bs.db.Get(headerHashKey(number))
	if err != nil {
		return common.EmptyHash, fmt.Errorf("cannot get hash for block number %d: %w", number, err)
	}

	return common.NewHash(data), nil
}

// GetHeaderByNumber returns the canonical chain block header for the given number
func (bs *BlockState) GetHeaderByNumber(number uint64) (*types.Header, error) {
	hash, err := bs.GetHashByNumber(number)
	if err != nil {
		return nil, err
	}

	return bs.GetHeader(hash)
}

// HasBlockBody returns true if the database contains a block body with the given hash
func (bs *BlockState) HasBlockBody(hash common.Hash) (bool, error) {
	return bs.db.Has(blockBodyKey(hash))
}

// GetBlockBody returns the block body with the given hash
func (bs *BlockState) GetBlockBody(hash common.Hash) (*types.Body, error) {
	data, err := bs.db.Get(blockBodyKey(hash))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBodyNotFound, hash)
	}

	body := new(types.Body)
	if err = msgpack.Unmarshal(data, body); err != nil {
		return nil, err
	}

	return body, nil
}

// SetBlockBody stores the given block body in the database, keyed by the block's hash.
func (bs *BlockState) SetBlockBody(hash common.Hash, body *types.Body) error {
	if body == nil {
		return errNilBlockBody
	}

	enc, err := msgpack.Marshal(body)
	if err != nil {
		return err
	}

	return bs.db.Put(blockBodyKey(hash), enc)
}

// GetBlockByHash returns the block with the given hash
func (bs *BlockState) GetBlockByHash(hash common.Hash) (*types.Block, error) {
	header, err := bs.GetHeader(hash)
	if err != nil {
		return nil, err
	}

	body, err := bs.GetBlockBody(hash)
	if err != nil {
		return nil, err
	}

	return &types.Block{Header: *header, Body: *body}, nil
}

// GetBlockByNumber returns the canonical chain block at the given number
func (bs *BlockState) GetBlockByNumber(number uint64) (*types.Block, error) {
	hash, err := bs.GetHashByNumber(number)
	if err != nil {
		return nil, err
	}

	return bs.GetBlockByHash(hash)
}

// AddBlock adds a block to the blocktree and stores it in the database with the current time as arrival time
func (bs *BlockState) AddBlock(block *types.Block) error {
	return bs.AddBlockWithArrivalTime(block, time.Now())
}

// AddBlockWithArrivalTime adds a block to the blocktree and stores it in the database with the given arrival time
func (bs *BlockState) AddBlockWithArrivalTime(block *types.Block, arrivalTime time.Time) error {
	bs.lock.Lock()
	defer bs.lock.Unlock()

	if bs.bt == nil {
		return errNilBlockTree
	}

	prev := bs.bt.BestBlockHash()

	// add block to blocktree; if the parent is not in the tree the block
	// cannot be imported yet and the caller is expected to retry later
	if err := bs.bt.AddBlock(&block.Header, arrivalTime); err != nil {
		return err
	}

	if err := bs.SetHeader(&block.Header); err != nil {
		return err
	}

	if err := bs.SetBlockBody(block.Header.Hash(), &block.Body); err != nil {
		return err
	}

	if err := bs.setArrivalTime(block.Header.Hash(), arrivalTime); err != nil {
		return err
	}

	curr := bs.bt.BestBlockHash()
	if err := bs.db.Put(common.BestBlockHashKey, curr.ToBytes()); err != nil {
		return err
	}

	if err := bs.handleAddedBlock(prev, curr); err != nil {
		return fmt.Errorf("failed to update canonical chain mapping: %w", err)
	}

	go bs.notifyImported(block)
	return nil
}

// handleAddedBlock re-maps the canonical number-to-hash entries after the best
// block moved from prev to curr. If prev is an ancestor of curr only the new
// section needs to be written, otherwise the chain re-organised and everything
// past the highest common ancestor is re-mapped.
func (bs *BlockState) handleAddedBlock(prev, curr common.Hash) error {
	if prev == curr {
		return nil
	}

	ancestor, err := bs.bt.HighestCommonAncestor(prev, curr)
	if err != nil {
		return err
	}

	subchain, err := bs.bt.SubBlockchain(ancestor, curr)
	if err != nil {
		return err
	}

	batch := bs.db.NewBatch()
	for _, hash := range subchain {
		header, err := bs.GetHeader(hash)
		if err != nil {
			return err
		}

		if err := batch.Put(headerHashKey(uint64(header.Number)), hash.ToBytes()); err != nil {
			return err
		}
	}

	return batch.Flush()
}

// GetArrivalTime returns the arrival time of a block given its hash
func (bs *BlockState) GetArrivalTime(hash common.Hash) (time.Time, error) {
	data, err := bs.db.Get(arrivalTimeKey(hash))
	if err != nil {
		return time.Time{}, err
	}

	ns := binary.LittleEndian.Uint64(data)
	return time.Unix(0, int64(ns)), nil
}

func (bs *BlockState) setArrivalTime(hash common.Hash, arrivalTime time.Time) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(arrivalTime.UnixNano()))
	return bs.db.Put(arrivalTimeKey(hash), buf)
}

// SetJustification stores a finality justification for the block with the given hash
func (bs *BlockState) SetJustification(hash common.Hash, data []byte) error {
	return bs.db.Put(justificationKey(hash), data)
}

// GetJustification returns the stored finality justification for the block with the given hash
func (bs *BlockState) GetJustification(hash common.Hash) ([]byte, error) {
	return bs.db.Get(justificationKey(hash))
}

// HasJustification returns true if a justification is stored for the block with the given hash
func (bs *BlockState) HasJustification(hash common.Hash) (bool, error) {
	return bs.db.Has(justificationKey(hash))
}

// BestBlockHash returns the hash of the head of the current canonical chain
func (bs *BlockState) BestBlockHash() common.Hash {
	if bs.bt == nil {
		return common.EmptyHash
	}

	return bs.bt.BestBlockHash()
}

// BestBlockHeader returns the header of the head of the current canonical chain
func (bs *BlockState) BestBlockHeader() (*types.Header, error) {
	return bs.GetHeader(bs.BestBlockHash())
}

// BestBlockNumber returns the number of the head of the current canonical chain
func (bs *BlockState) BestBlockNumber() (uint64, error) {
	header, err := bs.BestBlockHeader()
	if err != nil {
		return 0, err
	}

	return uint64(header.Number), nil
}

// BestBlock returns the current head of the canonical chain
func (bs *BlockState) BestBlock() (*types.Block, error) {
	return bs.GetBlockByHash(bs.BestBlockHash())
}

// HasBlock returns true if the block with the given hash is in the blocktree
func (bs *BlockState) HasBlock(hash common.Hash) bool {
	if bs.bt == nil {
		return false
	}

	return bs.bt.HasBlock(hash)
}

// SubChain returns the path from the block with the given start hash to the block with the end hash
func (bs *BlockState) SubChain(start, end common.Hash) ([]common.Hash, error) {
	if bs.bt == nil {
		return nil, errNilBlockTree
	}

	return bs.bt.SubBlockchain(start, end)
}

// GetAllBlocksAtNumber returns all unfinalised block hashes with the given number
func (bs *BlockState) GetAllBlocksAtNumber(number uint64) []common.Hash {
	if bs.bt == nil {
		return nil
	}

	return bs.bt.GetAllBlocksAtNumber(uint(number))
}

// IsDescendantOf returns true if child is a descendant of parent. It first checks
// the blocktree; if either block has already been pruned from the tree, it walks
// the database headers instead.
func (bs *BlockState) IsDescendantOf(parent, child common.Hash) (bool, error) {
	if bs.bt == nil {
		return false, errNilBlockTree
	}

	is, err := bs.bt.IsDescendantOf(parent, child)
	if err == nil {
		return is, nil
	}

	parentHeader, err := bs.GetHeader(parent)
	if err != nil {
		return false, err
	}

	current, err := bs.GetHeader(child)
	if err != nil {
		return false, err
	}

	for current.Number > parentHeader.Number {
		if current.ParentHash == parent {
			return true, nil
		}

		current, err = bs.GetHeader(current.ParentHash)
		if err != nil {
			return false, err
		}
	}

	return current.Hash() == parent, nil
}

// HighestCommonAncestor returns the block with the highest number that is an ancestor of both a and b
func (bs *BlockState) HighestCommonAncestor(a, b common.Hash) (common.Hash, error) {
	if bs.bt == nil {
		return common.EmptyHash, errNilBlockTree
	}

	return bs.bt.HighestCommonAncestor(a, b)
}

// Leaves returns the leaves of the blocktree
func (bs *BlockState) Leaves() []common.Hash {
	if bs.bt == nil {
		return nil
	}

	return bs.bt.Leaves()
}

// BlocktreeAsString returns the blocktree as a string
func (bs *BlockState) BlocktreeAsString() string {
	if bs.bt == nil {
		return ""
	}

	return bs.bt.String()
}

// blockTreeData is the serialised form of the in-memory blocktree. Blocks are
// stored in insertion order so the tree can be rebuilt by re-adding them; the
// headers and arrival times themselves are already in the database.
type blockTreeData struct {
	Root   common.Hash
	Blocks []common.Hash
}

// storeBlockTree writes the current blocktree to the database so it can be
// reloaded on the next start.
func (bs *BlockState) storeBlockTree() error {
	bs.lock.RLock()
	defer bs.lock.RUnlock()

	if bs.bt == nil {
		return errNilBlockTree
	}

	data := blockTreeData{
		Root:   bs.bt.GenesisHash(),
		Blocks: bs.bt.GetAllBlocks(),
	}

	enc, err := msgpack.Marshal(data)
	if err != nil {
		return err
	}

	return bs.db.Put(blockTreeKey, enc)
}

// loadBlockTree rebuilds the blocktree from the database. If no tree was
// stored, the tree is rooted at the highest finalised block.
func (bs *BlockState) loadBlockTree() error {
	enc, err := bs.db.Get(blockTreeKey)
	if err != nil {
		// no stored tree; start from the last finalised block
		head, err := bs.GetHighestFinalisedHeader()
		if err != nil {
			return fmt.Errorf("cannot get highest finalised header: %w", err)
		}

		bs.bt = blocktree.NewBlockTreeFromRoot(head)
		return nil
	}

	data := new(blockTreeData)
	if err = msgpack.Unmarshal(enc, data); err != nil {
		return err
	}

	root, err := bs.GetHeader(data.Root)
	if err != nil {
		return err
	}

	bs.bt = blocktree.NewBlockTreeFromRoot(root)

	for _, hash := range data.Blocks {
		if hash == data.Root {
			continue
		}

		header, err := bs.GetHeader(hash)
		if err != nil {
			return err
		}

		arrivalTime, err := bs.GetArrivalTime(hash)
		if err != nil {
			return err
		}

		if err := bs.bt.AddBlock(header, arrivalTime); err != nil {
			return fmt.Errorf("cannot re-add block %s to tree: %w", hash, err)
		}
	}

	return nil
}
