// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package common

var (
	// BestBlockHashKey is the database key for the hash at the head of the canonical chain.
	BestBlockHashKey = []byte("best_hash")
	// GenesisDataKey is the database key for the chain's genesis data.
	GenesisDataKey = []byte("genesis_data")
	// NodeNameKey is the database key for the node's global name.
	NodeNameKey = []byte("node_name")
	// FirstSlotKey is the database key for the slot number of the first produced block.
	FirstSlotKey = []byte("first_slot")
)
