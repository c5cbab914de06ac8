// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package core runs the import pipeline: the single serialised path every
// block and every justification passes through before it is committed to
// the chain database. Locally produced blocks, peer-announced blocks and
// finality justifications all end up in the same queue, and one worker
// applies them in order so a child is never imported before its parent and
// a justification never lands on an unimported block.
package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	log "github.com/ChainSafe/log15"

	"github.com/tessera-net/tessera/lib/babe"
	"github.com/tessera-net/tessera/lib/blocktree"
	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/lib/grandpa"
	"github.com/tessera-net/tessera/lib/runtime"
	"github.com/tessera-net/tessera/lib/transaction"
	"github.com/tessera-net/tessera/node/network"
	"github.com/tessera-net/tessera/node/types"
)

var logger = log.New("pkg", "core")

const defaultJustificationPeriod = 512

// item provenance
type blockOrigin byte

const (
	originLocal blockOrigin = iota
	originNetwork
)

// importItem is one unit of work for the pipeline: a block or a
// justification, never both. resp is non-nil when the submitter wants the
// outcome synchronously.
type importItem struct {
	block         *types.Block
	trieState     *runtime.TrieState
	justification *grandpa.Justification
	origin        blockOrigin
	from          string
	resp          chan error
}

// Service owns the import queue. It is the only writer of block imports
// and finalisations; every other service reads the chain through the
// state interfaces and submits changes here.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc

	role byte

	blockState       BlockState
	storageState     StorageState
	transactionState TransactionState
	epochState       EpochState
	grandpaState     GrandpaState
	verifier         Verifier
	digestHandler    DigestHandler
	rt               runtime.Instance
	net              Network

	// locally produced items jump the network queue
	localQueue   chan *importItem
	networkQueue chan *importItem

	pending *pendingBlockSet

	justificationPeriod uint64
	done                chan struct{}
}

// Config holds the configuration for the import pipeline
type Config struct {
	LogLvl log.Lvl
	Role   byte

	BlockState       BlockState
	StorageState     StorageState
	TransactionState TransactionState
	EpochState       EpochState
	GrandpaState     GrandpaState
	Verifier         Verifier
	DigestHandler    DigestHandler
	Runtime          runtime.Instance
	Network          Network

	// PendingBlocksLimit bounds the parked-ancestor set; zero means the
	// default
	PendingBlocksLimit int

	// JustificationPeriod is the block interval at which announces carry
	// the stored justification; zero means the default
	JustificationPeriod uint64
}

// NewService returns a new import pipeline service. Light nodes skip the
// state-transition check and may run without a runtime, storage state or
// transaction state; every other role requires all three.
func NewService(cfg *Config) (*Service, error) {
	if cfg.BlockState == nil {
		return nil, ErrNilBlockState
	}

	if cfg.EpochState == nil {
		return nil, ErrNilEpochState
	}

	if cfg.GrandpaState == nil {
		return nil, ErrNilGrandpaState
	}

	if cfg.Verifier == nil {
		return nil, ErrNilVerifier
	}

	if cfg.DigestHandler == nil {
		return nil, ErrNilDigestHandler
	}

	light := cfg.Role == types.LightClientRole
	if !light {
		if cfg.StorageState == nil {
			return nil, ErrNilStorageState
		}

		if cfg.TransactionState == nil {
			return nil, ErrNilTransactionState
		}

		if cfg.Runtime == nil {
			return nil, ErrNilRuntime
		}
	}

	h := log.StreamHandler(os.Stdout, log.TerminalFormat())
	logger.SetHandler(log.LvlFilterHandler(cfg.LogLvl, h))

	period := cfg.JustificationPeriod
	if period == 0 {
		period = defaultJustificationPeriod
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		ctx:                 ctx,
		cancel:              cancel,
		role:                cfg.Role,
		blockState:          cfg.BlockState,
		storageState:        cfg.StorageState,
		transactionState:    cfg.TransactionState,
		epochState:          cfg.EpochState,
		grandpaState:        cfg.GrandpaState,
		verifier:            cfg.Verifier,
		digestHandler:       cfg.DigestHandler,
		rt:                  cfg.Runtime,
		net:                 cfg.Network,
		localQueue:          make(chan *importItem, 16),
		networkQueue:        make(chan *importItem, 256),
		pending:             newPendingBlockSet(cfg.PendingBlocksLimit),
		justificationPeriod: period,
		done:                make(chan struct{}),
	}, nil
}

// Start launches the import worker
func (s *Service) Start() error {
	go s.worker()
	return nil
}

// Stop tears the pipeline down. In-flight items are abandoned; nothing is
// partially committed because each item commits atomically on the worker.
func (s *Service) Stop() error {
	s.cancel()
	<-s.done
	return nil
}

// worker drains the queues one item at a time, preferring locally
// produced items so our own blocks are not stuck behind network traffic
func (s *Service) worker() {
	defer close(s.done)

	for {
		select {
		case <-s.ctx.Done():
			return
		case it := <-s.localQueue:
			s.process(it)
		default:
		}

		select {
		case <-s.ctx.Done():
			return
		case it := <-s.localQueue:
			s.process(it)
		case it := <-s.networkQueue:
			s.process(it)
		}
	}
}

func (s *Service) process(it *importItem) {
	var err error
	if it.block != nil {
		err = s.processBlock(it)
	} else if it.justification != nil {
		err = s.processJustification(it)
	}

	if err != nil {
		logger.Warn("import failed", "origin", originString(it.origin),
			"from", it.from, "error", err)
	}

	if it.resp != nil {
		it.resp <- err
	}
}

func originString(o blockOrigin) string {
	if o == originLocal {
		return "local"
	}
	return "network"
}

// submit enqueues an item and, when wait is set, blocks until the worker
// reports the outcome
func (s *Service) submit(it *importItem, wait bool) error {
	queue := s.networkQueue
	if it.origin == originLocal {
		queue = s.localQueue
	}

	if wait {
		it.resp = make(chan error, 1)
	}

	select {
	case queue <- it:
	case <-s.ctx.Done():
		return ErrServiceStopped
	}

	if !wait {
		return nil
	}

	select {
	case err := <-it.resp:
		return err
	case <-s.ctx.Done():
		return ErrServiceStopped
	}
}

// trySubmit is the worker-side enqueue: it must never block, or a release
// cascade could deadlock the pipeline on its own queue. A dropped item is
// re-requested through the pending-block path when a descendant arrives.
func (s *Service) trySubmit(it *importItem) {
	select {
	case s.networkQueue <- it:
	default:
		logger.Debug("import queue full, dropping re-queued item")
	}
}

// HandleBlockProduced submits a locally built block together with its
// post-state. The block is announced to peers and then goes through the
// same pipeline as any network block. Implements babe.BlockImportHandler.
func (s *Service) HandleBlockProduced(block *types.Block, ts *runtime.TrieState) error {
	if s.net != nil {
		header, err := block.Header.DeepCopy()
		if err == nil {
			s.net.GossipBlockAnnounce(&network.BlockAnnounceMessage{
				Header:    header,
				Body:      block.Body.DeepCopy(),
				BestBlock: true,
			})
		}
	}

	return s.submit(&importItem{
		block:     block,
		trieState: ts,
		origin:    originLocal,
	}, true)
}

// HandleJustification submits a justification assembled by the finality
// engine, or one verified by the observer, and waits for it to commit.
// Implements grandpa.FinalityHandler.
func (s *Service) HandleJustification(just *grandpa.Justification) error {
	if just == nil || just.Commit.Hash.IsEmpty() {
		return nil
	}

	return s.submit(&importItem{
		justification: just,
		origin:        originLocal,
	}, true)
}

// HandleBlockAnnounce enqueues a block received from a peer. Implements
// network.BlockHandler.
func (s *Service) HandleBlockAnnounce(from string, msg *network.BlockAnnounceMessage) error {
	if msg == nil || msg.Header == nil {
		return nil
	}

	block := &types.Block{
		Header: *msg.Header,
		Body:   msg.Body,
	}

	if err := s.submit(&importItem{
		block:  block,
		origin: originNetwork,
		from:   from,
	}, false); err != nil {
		return err
	}

	if len(msg.Justification) == 0 {
		return nil
	}

	just := new(grandpa.Justification)
	if err := just.Decode(msg.Justification); err != nil {
		return fmt.Errorf("%w: bad justification on announce: %s", ErrInvalidJustification, err)
	}

	return s.submit(&importItem{
		justification: just,
		origin:        originNetwork,
		from:          from,
	}, false)
}

// HandleJustificationMessage enqueues a justification gossiped by a
// peer. Implements network.JustificationHandler.
func (s *Service) HandleJustificationMessage(from string, msg *network.JustificationMessage) error {
	if msg == nil || len(msg.Justification) == 0 {
		return nil
	}

	just := new(grandpa.Justification)
	if err := just.Decode(msg.Justification); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidJustification, err)
	}

	return s.submit(&importItem{
		justification: just,
		origin:        originNetwork,
		from:          from,
	}, false)
}

// HandleBlockRequest answers a peer's request for a block this node has.
// Blocks on a justification-period boundary, and finalised blocks with a
// stored justification, are re-announced with the justification attached
// so light and lagging peers can advance their finalised pointer.
func (s *Service) HandleBlockRequest(from string, msg *network.BlockRequestMessage) error {
	if msg == nil || s.net == nil {
		return nil
	}

	block, err := s.blockState.GetBlockByHash(msg.Hash)
	if err != nil {
		// not having the block is not an error; someone else may answer
		return nil
	}

	header, err := block.Header.DeepCopy()
	if err != nil {
		return err
	}

	announce := &network.BlockAnnounceMessage{
		Header: header,
		Body:   block.Body.DeepCopy(),
	}

	just, err := s.blockState.GetJustification(msg.Hash)
	if err == nil {
		announce.Justification = just
	}

	s.net.GossipBlockAnnounce(announce)
	return nil
}

// processBlock runs one block through the pipeline: ancestor check, slot
// claim verification, state transition, commit, then the import side
// effects. The caller is the worker goroutine, never anything else.
func (s *Service) processBlock(it *importItem) error {
	block := it.block
	hash := block.Header.Hash()

	// re-import of a known block is a success and must not re-execute
	// the state transition
	if has, _ := s.blockState.HasHeader(hash); has {
		s.enqueueParkedJustification(hash)
		s.pending.remove(hash)
		return nil
	}

	// only the stored genesis block carries number 0; anything else
	// claiming it would underflow the parent request number
	if block.Header.Number == 0 {
		return fmt.Errorf("%w: unexpected block with number 0: %s", ErrMalformedBlock, hash)
	}

	hasParent, err := s.blockState.HasHeader(block.Header.ParentHash)
	if err != nil {
		return fmt.Errorf("cannot check parent: %w", err)
	}

	if !hasParent {
		s.park(it)
		return nil
	}

	if err := s.verifier.VerifyBlock(&block.Header); err != nil {
		if errors.Is(err, babe.ErrEpochDataNotFound) {
			// transient: the epoch data travels in an ancestor we have
			// not imported yet
			s.park(it)
			return nil
		}
		return fmt.Errorf("%w: %s", ErrMalformedBlock, err)
	}

	ts := it.trieState
	if ts == nil && s.role != types.LightClientRole {
		ts, err = s.executeBlock(block)
		if err != nil {
			return err
		}
	}

	if ts != nil {
		if err := s.storageState.StoreTrie(ts); err != nil {
			return fmt.Errorf("cannot store state trie: %w", err)
		}
	}

	err = s.blockState.AddBlockWithArrivalTime(block, time.Now())
	if errors.Is(err, blocktree.ErrBlockExists) {
		err = nil
	}
	if err != nil {
		return fmt.Errorf("cannot add block to chain: %w", err)
	}

	logger.Info("imported block", "number", block.Header.Number, "hash", hash,
		"origin", originString(it.origin))

	if err := s.digestHandler.HandleDigests(&block.Header); err != nil {
		logger.Warn("failed to handle block digests", "block", hash, "error", err)
	}

	if err := s.handleEpochTransition(&block.Header); err != nil {
		logger.Warn("failed to handle epoch transition", "block", hash, "error", err)
	}

	if s.transactionState != nil {
		s.maintainTransactionPool(block)
	}

	s.enqueueParkedJustification(hash)
	s.pending.remove(hash)
	s.releaseChildren(hash)
	return nil
}

// enqueueParkedJustification re-queues a justification that arrived before
// its target block did
func (s *Service) enqueueParkedJustification(hash common.Hash) {
	pb := s.pending.getBlock(hash)
	if pb == nil || len(pb.justification) == 0 {
		return
	}

	just := new(grandpa.Justification)
	if err := just.Decode(pb.justification); err != nil {
		return
	}

	s.trySubmit(&importItem{
		justification: just,
		origin:        originNetwork,
		from:          pb.from,
	})
}

// executeBlock replays the block body on top of the parent's state and
// returns the resulting trie. A runtime rejection is permanent.
func (s *Service) executeBlock(block *types.Block) (*runtime.TrieState, error) {
	parent, err := s.blockState.GetHeader(block.Header.ParentHash)
	if err != nil {
		return nil, fmt.Errorf("cannot get parent header: %w", err)
	}

	ts, err := s.storageState.TrieState(&parent.StateRoot)
	if err != nil {
		return nil, fmt.Errorf("cannot get parent state: %w", err)
	}

	s.rt.SetContextStorage(ts)
	if err := s.rt.ExecuteBlock(block); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrExecutionFailed, err)
	}

	return ts, nil
}

// park stores a block whose ancestor chain is incomplete and asks the
// network for the missing parent
func (s *Service) park(it *importItem) {
	block := it.block
	s.pending.addBlock(block, it.from)

	logger.Debug("parked block with missing ancestor",
		"number", block.Header.Number, "hash", block.Header.Hash(),
		"parent", block.Header.ParentHash, "pending", s.pending.size())

	if s.net != nil {
		s.net.GossipBlockRequest(&network.BlockRequestMessage{
			Hash:   block.Header.ParentHash,
			Number: uint64(block.Header.Number) - 1,
		})
	}
}

// releaseChildren re-queues the parked blocks that were waiting on the
// newly imported block
func (s *Service) releaseChildren(parent common.Hash) {
	for _, pb := range s.pending.childrenOf(parent) {
		if pb.block == nil {
			continue
		}

		child := pb
		s.pending.remove(child.hash)

		s.trySubmit(&importItem{
			block:  child.block,
			origin: originNetwork,
			from:   child.from,
		})

		if len(child.justification) != 0 {
			just := new(grandpa.Justification)
			if err := just.Decode(child.justification); err == nil {
				s.trySubmit(&importItem{
					justification: just,
					origin:        originNetwork,
					from:          child.from,
				})
			}
		}
	}
}

// handleEpochTransition moves the current epoch pointer forward when the
// new chain head crosses an epoch boundary
func (s *Service) handleEpochTransition(header *types.Header) error {
	if header.Hash() != s.blockState.BestBlockHash() {
		return nil
	}

	epoch, err := s.epochState.GetEpochForBlock(header)
	if err != nil {
		return err
	}

	curr, err := s.epochState.GetCurrentEpoch()
	if err != nil {
		return err
	}

	if curr == epoch {
		return nil
	}

	logger.Debug("epoch transition", "from", curr, "to", epoch)
	return s.epochState.SetCurrentEpoch(epoch)
}

// processJustification verifies a justification against the voter set
// active at its round and finalises its target. The target must already
// be imported; otherwise the justification is parked with a block request.
func (s *Service) processJustification(it *importItem) error {
	just := it.justification
	target := just.Commit.Hash

	has, err := s.blockState.HasHeader(target)
	if err != nil {
		return fmt.Errorf("cannot check justification target: %w", err)
	}

	if !has {
		enc, err := just.Encode()
		if err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidJustification, err)
		}

		s.pending.addJustification(target, just.Commit.Number, enc)
		if s.net != nil {
			s.net.GossipBlockRequest(&network.BlockRequestMessage{
				Hash:   target,
				Number: just.Commit.Number,
			})
		}
		return nil
	}

	// a justification is never regenerated or replaced for the same target
	if has, _ := s.blockState.HasJustification(target); has {
		return nil
	}

	setID, err := s.grandpaState.GetSetIDByBlockNumber(just.Commit.Number)
	if err != nil {
		return fmt.Errorf("cannot get set ID for justification: %w", err)
	}

	voters, err := s.grandpaState.GetAuthorities(setID)
	if err != nil {
		return fmt.Errorf("cannot get voters for set %d: %w", setID, err)
	}

	if err := grandpa.VerifyJustification(s.blockState, voters, setID, just); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidJustification, err)
	}

	pruned, err := s.blockState.SetFinalisedHash(target, just.Round, setID)
	if err != nil {
		return fmt.Errorf("cannot finalise block %s: %w", target, err)
	}

	enc, err := just.Encode()
	if err != nil {
		return err
	}

	if err := s.blockState.SetJustification(target, enc); err != nil {
		return fmt.Errorf("cannot store justification: %w", err)
	}

	logger.Info("finalised block", "number", just.Commit.Number, "hash", target,
		"round", just.Round, "set", setID)

	// freshly produced justifications at a period boundary are gossiped so
	// light clients can advance without following the round
	if it.origin == originLocal && s.net != nil &&
		just.Commit.Number%s.justificationPeriod == 0 {
		s.net.GossipJustification(&network.JustificationMessage{Justification: enc})
	}

	s.handlePrunedForks(pruned)
	s.pending.removeLowerBlocks(just.Commit.Number)
	return nil
}

// handlePrunedForks returns the extrinsics of discarded competing
// branches to the pool so they can be included again on the canonical
// chain
func (s *Service) handlePrunedForks(pruned []common.Hash) {
	if s.transactionState == nil || s.rt == nil {
		return
	}

	for _, hash := range pruned {
		body, err := s.blockState.GetBlockBody(hash)
		if err != nil {
			continue
		}

		for _, ext := range *body {
			if s.transactionState.Exists(ext) {
				continue
			}

			val, err := s.validateTransaction(ext)
			if err != nil {
				continue
			}

			s.transactionState.AddToPool(transaction.NewValidTransaction(ext, val))
		}
	}
}

// maintainTransactionPool drops the extrinsics the new block included and
// revalidates what remains in the pool, promoting the still-valid ones
// into the ready queue
func (s *Service) maintainTransactionPool(block *types.Block) {
	for _, ext := range block.Body {
		s.transactionState.RemoveExtrinsic(ext)
	}

	for _, vt := range s.transactionState.PendingInPool() {
		val, err := s.validateTransaction(vt.Extrinsic)
		if err != nil {
			s.transactionState.RemoveExtrinsic(vt.Extrinsic)
			continue
		}

		s.transactionState.RemoveExtrinsicFromPool(vt.Extrinsic)
		if _, err := s.transactionState.Push(transaction.NewValidTransaction(vt.Extrinsic, val)); err != nil {
			logger.Debug("failed to re-queue transaction", "error", err)
		}
	}
}

// validateTransaction checks an extrinsic against the best block's state
func (s *Service) validateTransaction(ext types.Extrinsic) (*transaction.Validity, error) {
	best, err := s.blockState.BestBlockHeader()
	if err != nil {
		return nil, err
	}

	ts, err := s.storageState.TrieState(&best.StateRoot)
	if err != nil {
		return nil, err
	}

	s.rt.SetContextStorage(ts)
	val, err := s.rt.ValidateTransaction(ext)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTransaction, err)
	}

	return val, nil
}

// HandleSubmittedExtrinsic validates an extrinsic submitted through the
// RPC surface, queues it and gossips it to peers
func (s *Service) HandleSubmittedExtrinsic(ext types.Extrinsic) error {
	if s.transactionState == nil {
		return ErrNilTransactionState
	}

	if s.transactionState.Exists(ext) {
		return nil
	}

	val, err := s.validateTransaction(ext)
	if err != nil {
		return err
	}

	if _, err := s.transactionState.Push(transaction.NewValidTransaction(ext, val)); err != nil {
		return err
	}

	if s.net != nil {
		s.net.GossipTransaction(&network.TransactionMessage{
			Extrinsics: []types.Extrinsic{ext},
		})
	}
	return nil
}

// HandleTransactionMessage pools the extrinsics gossiped by a peer.
// Implements network.TransactionHandler. Invalid extrinsics are dropped;
// the malformed-input penalty is the network layer's concern.
func (s *Service) HandleTransactionMessage(from string, msg *network.TransactionMessage) error {
	if s.transactionState == nil || msg == nil {
		return nil
	}

	for _, ext := range msg.Extrinsics {
		if s.transactionState.Exists(ext) {
			continue
		}

		val, err := s.validateTransaction(ext)
		if err != nil {
			logger.Debug("dropping invalid gossiped transaction", "from", from, "error", err)
			continue
		}

		s.transactionState.AddToPool(transaction.NewValidTransaction(ext, val))
	}
	return nil
}

// PendingBlocks reports how many blocks are parked waiting for ancestors
func (s *Service) PendingBlocks() int {
	return s.pending.size()
}
