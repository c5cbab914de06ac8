// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package network

import "errors"

var (
	// ErrNilBasePath is returned when the network config has no base path
	ErrNilBasePath = errors.New("nil base path")

	// ErrServiceStopped is returned when a message is gossiped after Stop
	ErrServiceStopped = errors.New("network service stopped")

	errNoHandler          = errors.New("no handler registered for topic")
	errInvalidBootnode    = errors.New("invalid bootnode address")
	errInvalidRecordKey   = errors.New("invalid authority record key")
	errRecordKeyMismatch  = errors.New("record key does not match authority id")
	errInvalidSignature   = errors.New("invalid authority record signature")
	errNoRecords          = errors.New("no authority records found")
	errNoPublishKey       = errors.New("no authority key to publish with")
	errRecordFromFuture   = errors.New("authority record timestamp in the future")
	errCannotListenOnPort = errors.New("cannot listen on configured port")
)
