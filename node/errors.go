// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package node

import "errors"

var (
	// ErrNoKeysProvided is returned when an authority node starts with
	// an empty keystore
	ErrNoKeysProvided = errors.New("no keys provided for authority node")

	// ErrNodeNotInitialised is returned when starting a node whose base
	// path has no initialised state database
	ErrNodeNotInitialised = errors.New("node has not been initialised")

	errNilKeystore    = errors.New("nil keystore")
	errInvalidRole    = errors.New("invalid node role")
	errNilBlockState  = errors.New("nil block state")
	errNoSlotConfig   = errors.New("slot production configuration not found in state")
	errServiceMissing = errors.New("required service missing from registry")
)
