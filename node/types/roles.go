// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package types

// Role values. The role decides which services the node assembles.
const (
	// NoNetworkRole runs a node without networking
	NoNetworkRole = byte(0)
	// FullNodeRole runs a full node
	FullNodeRole = byte(1)
	// LightClientRole runs a light client
	LightClientRole = byte(2)
	// AuthorityRole runs the node as a block producer and finality voter
	AuthorityRole = byte(4)
	// SentryRole runs a full node that fronts an authority on the
	// public network
	SentryRole = byte(8)
)

// RoleToString returns the name of a role value
func RoleToString(role byte) string {
	switch role {
	case NoNetworkRole:
		return "none"
	case FullNodeRole:
		return "full"
	case LightClientRole:
		return "light"
	case AuthorityRole:
		return "authority"
	case SentryRole:
		return "sentry"
	default:
		return "unknown"
	}
}

// StringToRole maps a role name to its value. Unknown names map to
// FullNodeRole.
func StringToRole(s string) byte {
	switch s {
	case "none":
		return NoNetworkRole
	case "light":
		return LightClientRole
	case "authority":
		return AuthorityRole
	case "sentry":
		return SentryRole
	default:
		return FullNodeRole
	}
}
