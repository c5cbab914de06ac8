// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package babe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	log "github.com/ChainSafe/log15"

	"github.com/tessera-net/tessera/lib/crypto/sr25519"
	"github.com/tessera-net/tessera/lib/runtime"
	"github.com/tessera-net/tessera/node/types"
)

var logger = log.New("pkg", "babe")

// Service drives slot-based block production: it runs the slot lottery for
// each slot of the current epoch and builds, seals and submits a block for
// every slot it wins.
type Service struct {
	ctx            context.Context
	cancel         context.CancelFunc
	authority      bool
	forceAuthoring bool

	blockState       BlockState
	storageState     StorageState
	transactionState TransactionState
	epochState       EpochState
	network          Network

	blockImportHandler BlockImportHandler

	// production VRF keypair
	keypair *sr25519.Keypair

	rt runtime.Instance

	slotDuration time.Duration
	epochLength  uint64
	c1, c2       uint64
	epochData    *epochData
	slotToProof  map[uint64]*sr25519.VrfOutputAndProof

	sync.RWMutex
	pause chan struct{}
}

// ServiceConfig is the configuration for the production service
type ServiceConfig struct {
	LogLvl             log.Lvl
	BlockState         BlockState
	StorageState       StorageState
	TransactionState   TransactionState
	EpochState         EpochState
	BlockImportHandler BlockImportHandler
	Network            Network
	Keypair            *sr25519.Keypair
	Runtime            runtime.Instance
	Authority          bool
	ForceAuthoring     bool

	// test overrides; zero means use the values from the runtime
	SlotDuration uint64 // in milliseconds
	EpochLength  uint64 // in slots
}

// NewService returns a new production service
func NewService(cfg *ServiceConfig) (*Service, error) {
	if cfg.Keypair == nil && cfg.Authority {
		return nil, errNoAuthorityKey
	}

	if cfg.BlockState == nil {
		return nil, errNilBlockState
	}

	if cfg.StorageState == nil {
		return nil, errNilStorageState
	}

	if cfg.EpochState == nil {
		return nil, errNilEpochState
	}

	if cfg.Runtime == nil {
		return nil, errNilRuntime
	}

	if cfg.BlockImportHandler == nil {
		return nil, errNilBlockImportHandler
	}

	h := log.StreamHandler(os.Stdout, log.TerminalFormat())
	logger.SetHandler(log.LvlFilterHandler(cfg.LogLvl, h))

	ctx, cancel := context.WithCancel(context.Background())

	b := &Service{
		ctx:                ctx,
		cancel:             cancel,
		blockState:         cfg.BlockState,
		storageState:       cfg.StorageState,
		transactionState:   cfg.TransactionState,
		epochState:         cfg.EpochState,
		network:            cfg.Network,
		blockImportHandler: cfg.BlockImportHandler,
		keypair:            cfg.Keypair,
		rt:                 cfg.Runtime,
		authority:          cfg.Authority,
		forceAuthoring:     cfg.ForceAuthoring,
		slotToProof:        make(map[uint64]*sr25519.VrfOutputAndProof),
		pause:              make(chan struct{}),
	}

	genCfg, err := b.rt.BabeConfiguration()
	if err != nil {
		return nil, err
	}

	if err := b.setEpochData(cfg, genCfg); err != nil {
		return nil, err
	}

	logger.Debug("created production service",
		"authority", cfg.Authority,
		"slot duration", b.slotDuration,
		"epoch length (slots)", b.epochLength,
		"authorities", Authorities(b.epochData.authorities),
		"authority index", b.epochData.authorityIndex,
		"threshold", b.epochData.threshold,
	)
	return b, nil
}

func (b *Service) setEpochData(cfg *ServiceConfig, genCfg *types.BabeConfiguration) error {
	b.epochData = &epochData{
		randomness: genCfg.Randomness,
	}

	if cfg.SlotDuration > 0 {
		b.slotDuration = time.Duration(cfg.SlotDuration) * time.Millisecond
	} else {
		b.slotDuration = time.Duration(genCfg.SlotDuration) * time.Millisecond
	}

	if cfg.EpochLength > 0 {
		b.epochLength = cfg.EpochLength
	} else {
		b.epochLength = genCfg.EpochLength
	}

	b.c1 = genCfg.C1
	b.c2 = genCfg.C2

	var err error
	b.epochData.authorities, err = types.AuthoritiesFromRaw(genCfg.GenesisAuthorities)
	if err != nil {
		return err
	}

	if cfg.Authority {
		b.epochData.authorityIndex, err = b.getAuthorityIndex(b.epochData.authorities)
		if err != nil {
			return err
		}
	}

	b.epochData.threshold, err = CalculateThreshold(genCfg.C1, genCfg.C2, len(b.epochData.authorities))
	return err
}

// Start starts slot-based block authoring
func (b *Service) Start() error {
	if !b.authority {
		return nil
	}

	epoch, err := b.epochState.GetCurrentEpoch()
	if err != nil {
		return fmt.Errorf("failed to get current epoch: %w", err)
	}

	go b.initiate(epoch)
	return nil
}

// Stop stops the service. Once stopped it cannot be resumed.
func (b *Service) Stop() error {
	if b.ctx.Err() != nil {
		return errors.New("service already stopped")
	}

	b.cancel()
	return nil
}

// SlotDuration returns the slot duration in milliseconds
func (b *Service) SlotDuration() uint64 {
	return uint64(b.slotDuration.Milliseconds())
}

// EpochLength returns the epoch length in slots
func (b *Service) EpochLength() uint64 {
	return b.epochLength
}

// Pause halts block production until Resume is called
func (b *Service) Pause() error {
	b.Lock()
	defer b.Unlock()

	if b.IsPaused() {
		return nil
	}

	close(b.pause)
	return nil
}

// Resume resumes block production after a Pause
func (b *Service) Resume() error {
	b.Lock()
	defer b.Unlock()

	if !b.IsPaused() {
		return nil
	}

	b.pause = make(chan struct{})

	epoch, err := b.epochState.GetCurrentEpoch()
	if err != nil {
		return fmt.Errorf("failed to get current epoch: %w", err)
	}

	go b.initiate(epoch)
	logger.Info("service resumed", "epoch", epoch)
	return nil
}

// IsPaused returns true if block production is paused
func (b *Service) IsPaused() bool {
	select {
	case <-b.pause:
		return true
	default:
		return false
	}
}

// IsStopped returns true if the service has been stopped
func (b *Service) IsStopped() bool {
	return b.ctx.Err() != nil
}

// Authorities returns the current epoch's production authorities
func (b *Service) Authorities() []types.Authority {
	return b.epochData.authorities
}

func (b *Service) getAuthorityIndex(auths []types.Authority) (uint32, error) {
	if !b.authority {
		return 0, ErrNotAuthority
	}

	pub := b.keypair.Public()
	for i, auth := range auths {
		if bytes.Equal(pub.Encode(), auth.Key.Encode()) {
			return uint32(i), nil
		}
	}

	return 0, fmt.Errorf("%w: key not in authority set", ErrNotAuthority)
}

func (b *Service) initiate(epoch uint64) {
	if err := b.invokeBlockAuthoring(epoch); err != nil {
		logger.Crit("block authoring error", "error", err)
	}
}

func (b *Service) invokeBlockAuthoring(epoch uint64) error {
	for {
		head, err := b.blockState.BestBlockHeader()
		if err != nil {
			return fmt.Errorf("failed to get best block header: %w", err)
		}

		var epochStart uint64
		if head.Number == 0 {
			// at genesis the network's first slot is the current one
			epochStart = getCurrentSlot(b.slotDuration)
		} else {
			epochStart, err = b.epochState.GetStartSlotForEpoch(epoch)
			if err != nil {
				return fmt.Errorf("failed to get start slot for epoch %d: %w", epoch, err)
			}
		}

		if err := b.initiateEpoch(epoch, epochStart); err != nil {
			return fmt.Errorf("failed to initiate epoch %d: %w", epoch, err)
		}

		epochStartTime := getSlotStartTime(epochStart, b.slotDuration)
		if time.Until(epochStartTime) > 0 {
			logger.Debug("waiting for epoch to start", "epoch start", epochStartTime)
			select {
			case <-time.After(time.Until(epochStartTime)):
			case <-b.ctx.Done():
				return nil
			case <-b.pause:
				return nil
			}
		}

		startSlot := getCurrentSlot(b.slotDuration)
		intoEpoch := startSlot - epochStart
		if intoEpoch >= b.epochLength {
			// went offline for longer than an epoch; realign rather than
			// replaying historical slots
			intoEpoch = intoEpoch % b.epochLength
		}

		logger.Info("initiating epoch", "epoch", epoch, "start slot", epochStart, "slots into epoch", intoEpoch)

		slotDone := make([]<-chan time.Time, b.epochLength-intoEpoch)
		for i := 0; i < int(b.epochLength-intoEpoch); i++ {
			slotDone[i] = time.After(b.slotDuration * time.Duration(i))
		}

		for i := 0; i < int(b.epochLength-intoEpoch); i++ {
			select {
			case <-b.ctx.Done():
				return nil
			case <-b.pause:
				return nil
			case <-slotDone[i]:
				slotNum := startSlot + uint64(i)
				err = b.handleSlot(slotNum)
				switch {
				case errors.Is(err, ErrNotAuthorized):
					logger.Trace("not authorized to produce a block in this slot", "slot", slotNum)
				case errors.Is(err, errNoPeersToAuthor):
					logger.Debug("skipping slot", "slot", slotNum, "error", err)
				case err != nil:
					logger.Warn("failed to handle slot", "slot", slotNum, "error", err)
				}
			}
		}

		next, err := b.incrementEpoch()
		if err != nil {
			return fmt.Errorf("failed to increment epoch: %w", err)
		}

		logger.Info("epoch complete", "completed epoch", epoch, "upcoming epoch", next)
		epoch = next
	}
}

// handleSlot builds and submits a block for the given slot, if this node won
// the slot's lottery.
func (b *Service) handleSlot(slotNum uint64) error {
	proof, has := b.slotToProof[slotNum]
	if !has {
		return ErrNotAuthorized
	}

	// a block built with no peers would fork the node away from the
	// network; standalone development chains force authoring instead
	if !b.forceAuthoring && (b.network == nil || b.network.PeerCount() == 0) {
		return errNoPeersToAuthor
	}

	parentHeader, err := b.blockState.BestBlockHeader()
	if err != nil {
		return err
	}

	if parentHeader == nil {
		return errNilParentHeader
	}

	// the best block may change while building, so work on a copy
	parent, err := parentHeader.DeepCopy()
	if err != nil {
		return fmt.Errorf("failed to copy parent header: %w", err)
	}

	currentSlot := Slot{
		start:    time.Now(),
		duration: b.slotDuration,
		number:   slotNum,
	}

	// build against the parent's post-state; if building succeeds the
	// resulting state is handed off with the block
	ts, err := b.storageState.TrieState(&parent.StateRoot)
	if err != nil {
		return fmt.Errorf("failed to get parent trie state: %w", err)
	}

	b.rt.SetContextStorage(ts)

	block, err := b.buildBlock(parent, currentSlot, proof)
	if err != nil {
		return err
	}

	logger.Info("built block",
		"hash", block.Header.Hash(),
		"number", block.Header.Number,
		"slot", slotNum,
		"extrinsics", len(block.Body),
	)

	if err := b.blockImportHandler.HandleBlockProduced(block, ts); err != nil {
		return fmt.Errorf("failed to submit built block: %w", err)
	}

	return nil
}

func getCurrentSlot(slotDuration time.Duration) uint64 {
	return uint64(time.Now().UnixNano()) / uint64(slotDuration.Nanoseconds())
}

func getSlotStartTime(slot uint64, slotDuration time.Duration) time.Time {
	return time.Unix(0, int64(slot)*slotDuration.Nanoseconds())
}
