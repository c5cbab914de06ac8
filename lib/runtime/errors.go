// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package runtime

import "errors"

var (
	// ErrInvalidTransaction is returned when the runtime rejects an
	// extrinsic as permanently invalid; it can never be included
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrUnknownTransaction is returned when the validity of an
	// extrinsic cannot be determined in the current context
	ErrUnknownTransaction = errors.New("unknown transaction")

	// ErrNilStorage is returned when an instance is used before
	// SetContextStorage
	ErrNilStorage = errors.New("storage context is not set")

	// ErrExecutionFailed is returned when re-executing a block produces
	// state that does not match the header
	ErrExecutionFailed = errors.New("block execution failed")
)
