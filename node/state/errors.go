// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package state

import "errors"

var (
	// ErrNilChannel is returned when a nil channel is passed to a notifier registration.
	ErrNilChannel = errors.New("cannot register nil channel")

	// ErrHeaderNotFound is returned when no header exists for a requested hash or number.
	ErrHeaderNotFound = errors.New("header not found")

	// ErrBodyNotFound is returned when no block body exists for a requested hash.
	ErrBodyNotFound = errors.New("block body not found")

	// ErrBlockNotFound is returned when a block is missing from both the tree and the database.
	ErrBlockNotFound = errors.New("block not found")

	// ErrEpochNotFound is returned when no epoch data is stored for a requested epoch.
	ErrEpochNotFound = errors.New("epoch data not found")

	// ErrSetIDNotFound is returned when no authority set is stored for a requested set ID.
	ErrSetIDNotFound = errors.New("authority set not found")

	// ErrSetIDLowerThanHighest is returned when a finalisation request carries a
	// set ID lower than the highest one already finalised.
	ErrSetIDLowerThanHighest = errors.New("set ID lower than highest saved set ID")

	// ErrRoundLowerThanHighest is returned when a finalisation request carries a
	// round lower than the highest one already finalised for the same set ID.
	ErrRoundLowerThanHighest = errors.New("round lower than highest saved round for set ID")

	// ErrNotDescendantOfFinalised is returned when a finalisation request names a
	// block on a branch that does not contain the current finalised head.
	ErrNotDescendantOfFinalised = errors.New("block is not a descendant of the finalised head")

	// ErrTrieNotFound is returned when no trie state exists for a requested state root.
	ErrTrieNotFound = errors.New("trie state not found for root")

	errNilBlockTree = errors.New("blocktree is nil")
	errNilHeader    = errors.New("header is nil")
	errNilBlockBody = errors.New("block body is nil")
)
