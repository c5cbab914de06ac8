// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package genesis

import (
	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/lib/keystore"
)

// DevAuthorityCount is the number of keyring authorities in the dev chain
const DevAuthorityCount = 3

// NewDevGenesis builds a chain specification for local development: the
// first keyring accounts act as both block producers and finality voters.
func NewDevGenesis() (*Genesis, error) {
	srKeyring, err := keystore.NewSr25519Keyring()
	if err != nil {
		return nil, err
	}

	edKeyring, err := keystore.NewEd25519Keyring()
	if err != nil {
		return nil, err
	}

	babeAuths := make([]AuthorityAddress, DevAuthorityCount)
	granAuths := make([]AuthorityAddress, DevAuthorityCount)
	for i := 0; i < DevAuthorityCount; i++ {
		babeAuths[i] = AuthorityAddress{
			Key:    common.BytesToHex(srKeyring.Keys[i].Public().Encode()),
			Weight: 1,
		}
		granAuths[i] = AuthorityAddress{
			Key:    common.BytesToHex(edKeyring.Keys[i].Public().Encode()),
			Weight: 1,
		}
	}

	return &Genesis{
		Name:       "Tessera Dev",
		ID:         "tessera_dev",
		ChainType:  "Development",
		ProtocolID: "/tessera/dev",
		Genesis: Fields{
			Runtime: &Runtime{
				Babe: &Babe{
					SlotDuration: 3000,
					EpochLength:  200,
					C:            [2]uint64{1, 4},
					Authorities:  babeAuths,
				},
				Grandpa: &Grandpa{
					Authorities: granAuths,
				},
			},
		},
	}, nil
}
