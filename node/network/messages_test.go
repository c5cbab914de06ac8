// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package network

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/node/types"
)

func TestBlockTopicEnvelopeDispatch(t *testing.T) {
	announce := &BlockAnnounceMessage{
		Header: &types.Header{
			ParentHash: common.MustBlake2bHash([]byte("parent")),
			Number:     7,
		},
		Body:      types.Body{types.Extrinsic("ext")},
		BestBlock: true,
	}

	enc, err := announce.Encode()
	require.NoError(t, err)

	msg, err := decodeBlockMessage(enc)
	require.NoError(t, err)

	dec, ok := msg.(*BlockAnnounceMessage)
	require.True(t, ok)
	require.Equal(t, announce.Header.Number, dec.Header.Number)
	require.Equal(t, announce.Header.Hash(), dec.Header.Hash())
	require.Equal(t, announce.Body, dec.Body)
	require.True(t, dec.BestBlock)

	request := &BlockRequestMessage{
		Hash:   common.MustBlake2bHash([]byte("missing")),
		Number: 9,
	}

	enc, err = request.Encode()
	require.NoError(t, err)

	msg, err = decodeBlockMessage(enc)
	require.NoError(t, err)

	decReq, ok := msg.(*BlockRequestMessage)
	require.True(t, ok)
	require.Equal(t, request.Hash, decReq.Hash)
	require.Equal(t, request.Number, decReq.Number)
}

func TestDecodeBlockMessageInvalidType(t *testing.T) {
	_, err := decodeBlockMessage([]byte{0xff, 0x01, 0x02})
	require.ErrorIs(t, err, errInvalidMessageType)

	_, err = decodeBlockMessage([]byte{blockAnnounceType})
	require.ErrorIs(t, err, errInvalidMessageType)
}
