// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ChainSafe/chaindb"
	log "github.com/ChainSafe/log15"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tessera-net/tessera/lib/genesis"
	"github.com/tessera-net/tessera/lib/runtime"
	"github.com/tessera-net/tessera/node/types"
)

var logger = log.New("pkg", "state")

// Service is the overall service that manages the node's persistent state:
// blocks, chain storage, epochs, finality voter sets and pending transactions.
type Service struct {
	dbPath  string
	logLvl  log.Lvl
	db      chaindb.Database
	isMemDB bool
	closeCh chan interface{}

	Base        *BaseState
	Block       *BlockState
	Storage     *StorageState
	Transaction *TransactionState
	Epoch       *EpochState
	Grandpa     *GrandpaState
}

// NewService creates a new state service to be stored at the given path
func NewService(path string, lvl log.Lvl) *Service {
	handler := log.StreamHandler(os.Stdout, log.TerminalFormat())
	logger.SetHandler(log.LvlFilterHandler(lvl, handler))

	return &Service{
		dbPath:  path,
		logLvl:  lvl,
		closeCh: make(chan interface{}),
	}
}

// UseMemDB tells the service to use an in-memory database. It must be called
// before Initialise; it is only used for testing.
func (s *Service) UseMemDB() {
	s.isMemDB = true
}

// DB returns the database underlying the service
func (s *Service) DB() chaindb.Database {
	return s.db
}

// Initialise writes the genesis block and genesis state to the database.
// It wipes any existing database at the service's path.
func (s *Service) Initialise(gen *genesis.Genesis, header *types.Header, t *runtime.TrieState) error {
	var db chaindb.Database
	var err error

	if s.isMemDB {
		db, err = chaindb.NewBadgerDB(&chaindb.Config{
			DataDir:  s.dbPath,
			InMemory: true,
		})
	} else {
		if err = os.RemoveAll(filepath.Join(s.dbPath, "db")); err != nil {
			return fmt.Errorf("failed to remove existing database: %w", err)
		}
		db, err = SetupDatabase(s.dbPath, false)
	}
	if err != nil {
		return err
	}
	s.db = db

	base := NewBaseState(db)
	if err = base.StoreGenesisData(gen.GenesisData()); err != nil {
		return fmt.Errorf("failed to store genesis data: %w", err)
	}

	blockState, err := NewBlockStateFromGenesis(db, header)
	if err != nil {
		return fmt.Errorf("failed to initialise block state: %w", err)
	}

	storageState, err := NewStorageState(db, blockState, t)
	if err != nil {
		return fmt.Errorf("failed to initialise storage state: %w", err)
	}

	if err = storageState.StoreTrie(t); err != nil {
		return fmt.Errorf("failed to store genesis state: %w", err)
	}

	babeCfg, err := loadBabeConfiguration(t)
	if err != nil {
		return err
	}

	if _, err = NewEpochStateFromGenesis(db, babeCfg); err != nil {
		return fmt.Errorf("failed to initialise epoch state: %w", err)
	}

	voters, err := loadGrandpaAuthorities(t)
	if err != nil {
		return err
	}

	if _, err = NewGrandpaStateFromGenesis(db, voters); err != nil {
		return fmt.Errorf("failed to initialise grandpa state: %w", err)
	}

	if !s.isMemDB {
		if err = db.Flush(); err != nil {
			return err
		}

		if err = db.Close(); err != nil {
			return err
		}
		s.db = nil
	}

	logger.Info("state initialised", "genesis hash", header.Hash())
	return nil
}

// Start starts all the substates of the service. The state must have been
// previously initialised with genesis data.
func (s *Service) Start() error {
	if s.Block != nil || s.Storage != nil {
		// already started
		return nil
	}

	db := s.db
	if db == nil {
		var err error
		db, err = SetupDatabase(s.dbPath, false)
		if err != nil {
			return err
		}
		s.db = db
	}

	s.Base = NewBaseState(db)

	var err error
	if s.Block, err = NewBlockState(db); err != nil {
		return fmt.Errorf("failed to create block state: %w", err)
	}

	if s.Storage, err = NewStorageState(db, s.Block, runtime.NewTrieState()); err != nil {
		return fmt.Errorf("failed to create storage state: %w", err)
	}

	bestHeader, err := s.Block.BestBlockHeader()
	if err != nil {
		return fmt.Errorf("failed to get best block header: %w", err)
	}

	if _, err = s.Storage.LoadFromDB(bestHeader.StateRoot); err != nil {
		return fmt.Errorf("failed to load best block state: %w", err)
	}

	s.Transaction = NewTransactionState()

	if s.Epoch, err = NewEpochState(db); err != nil {
		return fmt.Errorf("failed to create epoch state: %w", err)
	}
	s.Epoch.blockState = s.Block

	s.Grandpa = NewGrandpaState(db)

	go s.Storage.pruneStorage(s.closeCh)

	num, _ := s.Block.BestBlockNumber()
	logger.Info("state service started", "best block", num, "hash", s.Block.BestBlockHash())
	return nil
}

// Stop stores the blocktree and closes the database
func (s *Service) Stop() error {
	if s.Block == nil || s.db == nil {
		return errors.New("service is not started")
	}

	if err := s.Block.storeBlockTree(); err != nil {
		return err
	}

	close(s.closeCh)

	if err := s.db.Flush(); err != nil {
		return err
	}

	return s.db.Close()
}

func loadBabeConfiguration(t *runtime.TrieState) (*types.BabeConfiguration, error) {
	data := t.Get(runtime.ModuleStorageKey("Babe", "Configuration"))
	if data == nil {
		return nil, errors.New("slot production configuration not found in genesis state")
	}

	cfg := new(types.BabeConfiguration)
	if err := msgpack.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadGrandpaAuthorities(t *runtime.TrieState) (types.GrandpaVoters, error) {
	data := t.Get(runtime.ModuleStorageKey("Grandpa", "Authorities"))
	if data == nil {
		return nil, errors.New("finality voter set not found in genesis state")
	}

	var raw []types.GrandpaVoterRaw
	if err := msgpack.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	return types.GrandpaVotersFromRaw(raw)
}
