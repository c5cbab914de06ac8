// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package runtime

import (
	"github.com/tessera-net/tessera/lib/common"
)

// ModuleStorageKey returns the storage key for an item owned by a module:
// the twox128 hash of the module name followed by the twox128 hash of the
// item name
func ModuleStorageKey(module, item string) []byte {
	modHash, err := common.Twox128([]byte(module))
	if err != nil {
		panic(err)
	}

	itemHash, err := common.Twox128([]byte(item))
	if err != nil {
		panic(err)
	}

	key := make([]byte, 0, len(modHash)+len(itemHash))
	key = append(key, modHash...)
	return append(key, itemHash...)
}

// ModulePrefix returns the storage key prefix owned by a module
func ModulePrefix(module string) []byte {
	prefix, err := common.Twox128([]byte(module))
	if err != nil {
		panic(err)
	}
	return prefix
}
