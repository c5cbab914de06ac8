// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package transaction

import "errors"

// ErrTransactionExists is returned when a transaction is pushed to the
// queue a second time
var ErrTransactionExists = errors.New("transaction is already in queue")
