// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package genesis

import (
	"encoding/binary"
	"fmt"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/lib/crypto/ed25519"
	"github.com/tessera-net/tessera/lib/crypto/sr25519"
	"github.com/tessera-net/tessera/lib/runtime"
	"github.com/tessera-net/tessera/lib/runtime/native"
	"github.com/tessera-net/tessera/node/types"

	"github.com/vmihailenco/msgpack/v5"
)

// NewTrieStateFromGenesis builds the genesis storage state from the
// parsed chain specification
func NewTrieStateFromGenesis(g *Genesis) (*runtime.TrieState, error) {
	ts := runtime.NewTrieState()

	babeCfg, err := babeConfiguration(g.Genesis.Runtime.Babe)
	if err != nil {
		return nil, err
	}

	enc, err := msgpack.Marshal(babeCfg)
	if err != nil {
		return nil, err
	}
	ts.Set(runtime.ModuleStorageKey("Babe", "Configuration"), enc)

	voters, err := grandpaVoters(g.Genesis.Runtime.Grandpa)
	if err != nil {
		return nil, err
	}

	enc, err = msgpack.Marshal(voters)
	if err != nil {
		return nil, err
	}
	ts.Set(runtime.ModuleStorageKey("Grandpa", "Authorities"), enc)

	if g.Genesis.Runtime.Datalog != nil {
		seedDatalog(ts, g.Genesis.Runtime.Datalog)
	}

	return ts, nil
}

// NewGenesisHeader builds the genesis block header from the genesis state
func NewGenesisHeader(ts *runtime.TrieState) (*types.Header, error) {
	stateRoot, err := ts.Root()
	if err != nil {
		return nil, err
	}

	extRoot, err := native.ExtrinsicsRoot(nil)
	if err != nil {
		return nil, err
	}

	return types.NewHeader(common.EmptyHash, stateRoot, extRoot, 0, types.Digest{}), nil
}

// NewGenesisBlock builds the full genesis block
func NewGenesisBlock(ts *runtime.TrieState) (*types.Block, error) {
	header, err := NewGenesisHeader(ts)
	if err != nil {
		return nil, err
	}
	return &types.Block{Header: *header, Body: types.Body{}}, nil
}

func babeConfiguration(b *Babe) (*types.BabeConfiguration, error) {
	auths := make([]types.AuthorityRaw, len(b.Authorities))
	for i, a := range b.Authorities {
		keyBytes, err := common.HexToBytes(a.Key)
		if err != nil {
			return nil, fmt.Errorf("babe authority %d: %w", i, err)
		}

		// validate the key decodes
		if _, err := sr25519.NewPublicKey(keyBytes); err != nil {
			return nil, fmt.Errorf("babe authority %d: %w", i, err)
		}

		copy(auths[i].Key[:], keyBytes)
		auths[i].Weight = a.Weight
	}

	return &types.BabeConfiguration{
		SlotDuration:       b.SlotDuration,
		EpochLength:        b.EpochLength,
		C1:                 b.C[0],
		C2:                 b.C[1],
		GenesisAuthorities: auths,
	}, nil
}

func grandpaVoters(g *Grandpa) ([]types.GrandpaVoterRaw, error) {
	voters := make([]types.GrandpaVoterRaw, len(g.Authorities))
	for i, a := range g.Authorities {
		keyBytes, err := common.HexToBytes(a.Key)
		if err != nil {
			return nil, fmt.Errorf("grandpa authority %d: %w", i, err)
		}

		if _, err := ed25519.NewPublicKey(keyBytes); err != nil {
			return nil, fmt.Errorf("grandpa authority %d: %w", i, err)
		}

		copy(voters[i].Key[:], keyBytes)
		voters[i].ID = uint64(i)
	}
	return voters, nil
}

func seedDatalog(ts *runtime.TrieState, d *Datalog) {
	countKey := runtime.ModuleStorageKey("Datalog", "Count")
	recordKey := runtime.ModuleStorageKey("Datalog", "Record")

	for i, record := range d.Records {
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(i))
		ts.Set(append(recordKey, buf...), []byte(record))
	}

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(len(d.Records)))
	ts.Set(countKey, buf)
}
