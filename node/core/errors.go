// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package core

import (
	"errors"
)

var (
	// ErrNilBlockState is returned when the service is built without a block state
	ErrNilBlockState = errors.New("cannot have nil block state")

	// ErrNilStorageState is returned when the service is built without a storage state
	ErrNilStorageState = errors.New("cannot have nil storage state")

	// ErrNilTransactionState is returned when the service is built without a transaction state
	ErrNilTransactionState = errors.New("cannot have nil transaction state")

	// ErrNilEpochState is returned when the service is built without an epoch state
	ErrNilEpochState = errors.New("cannot have nil epoch state")

	// ErrNilGrandpaState is returned when the service is built without a grandpa state
	ErrNilGrandpaState = errors.New("cannot have nil grandpa state")

	// ErrNilRuntime is returned when the service is built without a runtime
	ErrNilRuntime = errors.New("cannot have nil runtime instance")

	// ErrNilVerifier is returned when the service is built without a block verifier
	ErrNilVerifier = errors.New("cannot have nil block verifier")

	// ErrNilDigestHandler is returned when the service is built without a digest handler
	ErrNilDigestHandler = errors.New("cannot have nil digest handler")

	// ErrMalformedBlock marks a block that failed verification and must
	// never be retried
	ErrMalformedBlock = errors.New("malformed block")

	// ErrExecutionFailed marks a block the runtime refused; the block is
	// rejected permanently
	ErrExecutionFailed = errors.New("block execution failed")

	// ErrInvalidJustification marks a justification that failed
	// verification and must never be retried
	ErrInvalidJustification = errors.New("invalid justification")

	// ErrInvalidTransaction is returned when a submitted extrinsic fails
	// runtime validation
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrServiceStopped is returned when an item is submitted after the
	// import pipeline shut down
	ErrServiceStopped = errors.New("import pipeline is stopped")
)
