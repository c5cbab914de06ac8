// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package modules

import "errors"

var (
	// ErrInvalidBlockHash is returned when a request carries an unparseable hash
	ErrInvalidBlockHash = errors.New("invalid block hash")

	// ErrCouldNotDecodeExtrinsic is returned when a submitted extrinsic is
	// not valid hex
	ErrCouldNotDecodeExtrinsic = errors.New("could not decode extrinsic")
)

// unsafeMethods are only callable when the server runs with unsafe RPC
// enabled
var unsafeMethods = []string{
	"author_insertKey",
}

// IsUnsafe reports whether the method is gated behind the unsafe flag
func IsUnsafe(method string) bool {
	for _, m := range unsafeMethods {
		if m == method {
			return true
		}
	}
	return false
}
