// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package genesis

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/tessera-net/tessera/lib/runtime"

	"github.com/stretchr/testify/require"
)

func TestNewDevGenesis(t *testing.T) {
	g, err := NewDevGenesis()
	require.NoError(t, err)
	require.NoError(t, g.validate())
	require.Len(t, g.Genesis.Runtime.Babe.Authorities, DevAuthorityCount)
	require.Len(t, g.Genesis.Runtime.Grandpa.Authorities, DevAuthorityCount)

	// deterministic: a second build yields the same keys
	g2, err := NewDevGenesis()
	require.NoError(t, err)
	require.Equal(t, g.Genesis.Runtime.Babe.Authorities, g2.Genesis.Runtime.Babe.Authorities)
}

func TestNewGenesisFromJSON(t *testing.T) {
	g, err := NewDevGenesis()
	require.NoError(t, err)

	data, err := json.Marshal(g)
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "genesis.json")
	require.NoError(t, os.WriteFile(file, data, 0o600))

	loaded, err := NewGenesisFromJSON(file)
	require.NoError(t, err)
	require.Equal(t, g.Name, loaded.Name)
	require.Equal(t, g.Genesis.Runtime.Babe, loaded.Genesis.Runtime.Babe)
}

func TestNewGenesisFromJSON_invalid(t *testing.T) {
	file := filepath.Join(t.TempDir(), "genesis.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"name":"x","genesis":{}}`), 0o600))

	_, err := NewGenesisFromJSON(file)
	require.ErrorIs(t, err, ErrNoRuntime)
}

func TestNewTrieStateFromGenesis(t *testing.T) {
	g, err := NewDevGenesis()
	require.NoError(t, err)

	ts, err := NewTrieStateFromGenesis(g)
	require.NoError(t, err)

	require.NotNil(t, ts.Get(runtime.ModuleStorageKey("Babe", "Configuration")))
	require.NotNil(t, ts.Get(runtime.ModuleStorageKey("Grandpa", "Authorities")))

	header, err := NewGenesisHeader(ts)
	require.NoError(t, err)
	require.Equal(t, uint(0), header.Number)
	require.False(t, header.StateRoot.IsEmpty())

	// same spec, same genesis hash
	ts2, err := NewTrieStateFromGenesis(g)
	require.NoError(t, err)
	header2, err := NewGenesisHeader(ts2)
	require.NoError(t, err)
	require.Equal(t, header.Hash(), header2.Hash())
}

func TestNewTrieStateFromGenesis_datalogSeed(t *testing.T) {
	g, err := NewDevGenesis()
	require.NoError(t, err)
	g.Genesis.Runtime.Datalog = &Datalog{Records: []string{"boot"}}

	ts, err := NewTrieStateFromGenesis(g)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 0, 0, 0, 0, 0, 0, 0},
		ts.Get(runtime.ModuleStorageKey("Datalog", "Count")))
}
