// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package genesis

import "errors"

var (
	// ErrNoRuntime is returned when the spec file has no runtime section
	ErrNoRuntime = errors.New("genesis file has no runtime section")

	// ErrNoBabeAuthorities is returned when the spec configures no block
	// production authorities
	ErrNoBabeAuthorities = errors.New("genesis file has no babe authorities")

	// ErrNoGrandpaAuthorities is returned when the spec configures no
	// finality voters
	ErrNoGrandpaAuthorities = errors.New("genesis file has no grandpa authorities")

	// ErrInvalidSlotFraction is returned when c1/c2 is not a valid
	// probability
	ErrInvalidSlotFraction = errors.New("genesis slot fraction is invalid")
)
