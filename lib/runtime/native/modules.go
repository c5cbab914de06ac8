// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package native

import (
	"encoding/binary"
	"fmt"

	"github.com/tessera-net/tessera/lib/runtime"
)

// module dispatch table; each module maps method names to the number of
// arguments the call must carry
var dispatchTable = map[string]map[string]int{
	"system": {
		"remark": 1,
	},
	"timestamp": {
		"set": 1,
	},
	"slot": {
		"set": 1,
	},
	"datalog": {
		"record": 1,
		"erase":  0,
	},
}

// inherent-only modules may never be submitted through the pool
var inherentModules = map[string]bool{
	"timestamp": true,
	"slot":      true,
}

func isInherentModule(module string) bool {
	return inherentModules[module]
}

func checkDispatch(call *Call) error {
	methods, ok := dispatchTable[call.Module]
	if !ok {
		return fmt.Errorf("%w: %s: %s", runtime.ErrInvalidTransaction,
			errUnknownModule, call.Module)
	}

	argc, ok := methods[call.Method]
	if !ok {
		return fmt.Errorf("%w: %s: %s.%s", runtime.ErrInvalidTransaction,
			errUnknownMethod, call.Module, call.Method)
	}

	if len(call.Args) != argc {
		return fmt.Errorf("%w: %s.%s expects %d args, got %d",
			runtime.ErrInvalidTransaction, call.Module, call.Method, argc, len(call.Args))
	}

	return nil
}

// dispatch executes a call against storage. The caller holds in.lock.
func (in *Instance) dispatch(call *Call) error {
	if err := checkDispatch(call); err != nil {
		return err
	}

	switch call.Module {
	case "system":
		// remark carries data in the block without touching state
		return nil

	case "timestamp":
		in.storage.Set(runtime.ModuleStorageKey("Timestamp", "Now"), call.Args[0])
		return nil

	case "slot":
		in.storage.Set(runtime.ModuleStorageKey("Slot", "Current"), call.Args[0])
		return nil

	case "datalog":
		return in.dispatchDatalog(call)

	default:
		return fmt.Errorf("%w: %s", errUnknownModule, call.Module)
	}
}

// dispatchDatalog appends records to an indexed log in storage
func (in *Instance) dispatchDatalog(call *Call) error {
	countKey := runtime.ModuleStorageKey("Datalog", "Count")

	switch call.Method {
	case "record":
		var count uint64
		if enc := in.storage.Get(countKey); enc != nil {
			count = binary.LittleEndian.Uint64(enc)
		}

		in.storage.Set(datalogRecordKey(count), call.Args[0])

		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, count+1)
		in.storage.Set(countKey, buf)
		return nil

	case "erase":
		var count uint64
		if enc := in.storage.Get(countKey); enc != nil {
			count = binary.LittleEndian.Uint64(enc)
		}

		for i := uint64(0); i < count; i++ {
			in.storage.Delete(datalogRecordKey(i))
		}
		in.storage.Delete(countKey)
		return nil

	default:
		return fmt.Errorf("%w: datalog.%s", errUnknownMethod, call.Method)
	}
}

func datalogRecordKey(index uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, index)
	return append(runtime.ModuleStorageKey("Datalog", "Record"), buf...)
}
