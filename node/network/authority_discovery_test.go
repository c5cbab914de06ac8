// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package network

import (
	crand "crypto/rand"
	"fmt"
	"testing"
	"time"

	libp2pcrypto "github.com/libp2p/go-libp2p-core/crypto"
	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tessera-net/tessera/lib/crypto/sr25519"
)

func newTestRecord(t *testing.T, kp *sr25519.Keypair, ts time.Time) (string, []byte) {
	t.Helper()

	priv, _, err := libp2pcrypto.GenerateEd25519Key(crand.Reader)
	require.NoError(t, err)

	id, err := peer.IDFromPrivateKey(priv)
	require.NoError(t, err)

	rec := &AuthorityRecord{
		PeerID:    id.String(),
		Addrs:     []string{fmt.Sprintf("/ip4/10.0.0.1/tcp/7001/p2p/%s", id)},
		Timestamp: ts.Unix(),
	}
	require.NoError(t, rec.sign(kp))

	enc, err := msgpack.Marshal(rec)
	require.NoError(t, err)

	pub := kp.Public().(*sr25519.PublicKey)
	return recordKey(pub.Address()), enc
}

func TestAuthorityRecordValidator(t *testing.T) {
	kp, err := sr25519.GenerateKeypair()
	require.NoError(t, err)

	key, enc := newTestRecord(t, kp, time.Now())
	require.NoError(t, authorityRecordValidator{}.Validate(key, enc))
}

func TestAuthorityRecordValidatorRejectsWrongSigner(t *testing.T) {
	signer, err := sr25519.GenerateKeypair()
	require.NoError(t, err)

	other, err := sr25519.GenerateKeypair()
	require.NoError(t, err)

	// record signed by one authority stored under another's key
	_, enc := newTestRecord(t, signer, time.Now())
	otherPub := other.Public().(*sr25519.PublicKey)

	err = authorityRecordValidator{}.Validate(recordKey(otherPub.Address()), enc)
	require.ErrorIs(t, err, errInvalidSignature)
}

func TestAuthorityRecordValidatorRejectsFutureTimestamp(t *testing.T) {
	kp, err := sr25519.GenerateKeypair()
	require.NoError(t, err)

	key, enc := newTestRecord(t, kp, time.Now().Add(time.Hour))
	err = authorityRecordValidator{}.Validate(key, enc)
	require.ErrorIs(t, err, errRecordFromFuture)
}

func TestAuthorityRecordValidatorRejectsBadKey(t *testing.T) {
	kp, err := sr25519.GenerateKeypair()
	require.NoError(t, err)

	_, enc := newTestRecord(t, kp, time.Now())

	err = authorityRecordValidator{}.Validate("/authd/", enc)
	require.ErrorIs(t, err, errInvalidRecordKey)

	err = authorityRecordValidator{}.Validate("/other/abc", enc)
	require.ErrorIs(t, err, errInvalidRecordKey)
}

func TestAuthorityRecordSelectPrefersFreshest(t *testing.T) {
	kp, err := sr25519.GenerateKeypair()
	require.NoError(t, err)

	_, stale := newTestRecord(t, kp, time.Now().Add(-time.Hour))
	_, fresh := newTestRecord(t, kp, time.Now())

	i, err := authorityRecordValidator{}.Select("", [][]byte{stale, fresh})
	require.NoError(t, err)
	require.Equal(t, 1, i)

	i, err = authorityRecordValidator{}.Select("", [][]byte{fresh, stale})
	require.NoError(t, err)
	require.Equal(t, 0, i)

	_, err = authorityRecordValidator{}.Select("", nil)
	require.ErrorIs(t, err, errNoRecords)
}
