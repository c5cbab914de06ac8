// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package state

import (
	"fmt"
	"path/filepath"

	"github.com/ChainSafe/chaindb"
)

// SetupDatabase opens a badger database at the given path. If inMemory is
// true the database lives entirely in memory and is discarded on close.
func SetupDatabase(path string, inMemory bool) (chaindb.Database, error) {
	db, err := chaindb.NewBadgerDB(&chaindb.Config{
		DataDir:  filepath.Join(path, "db"),
		InMemory: inMemory,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}

	return db, nil
}
