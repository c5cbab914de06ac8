// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package modules

import (
	"testing"

	log "github.com/ChainSafe/log15"
	"github.com/stretchr/testify/require"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/lib/crypto/sr25519"
	"github.com/tessera-net/tessera/lib/keystore"
	"github.com/tessera-net/tessera/lib/transaction"
	"github.com/tessera-net/tessera/node/state"
	"github.com/tessera-net/tessera/node/types"
)

type poolingCore struct {
	txState *state.TransactionState
	errNext error
}

func (c *poolingCore) HandleSubmittedExtrinsic(ext types.Extrinsic) error {
	if c.errNext != nil {
		return c.errNext
	}

	c.txState.AddToPool(transaction.NewValidTransaction(ext, &transaction.Validity{Priority: 1}))
	return nil
}

func newTestAuthorModule(t *testing.T) (*AuthorModule, *poolingCore) {
	t.Helper()

	stateSrvc := state.NewTestService(t)
	core := &poolingCore{txState: stateSrvc.Transaction}

	mod := NewAuthorModule(log.New("pkg", "test"), core,
		stateSrvc.Transaction, keystore.NewGlobalKeystore())
	return mod, core
}

func TestAuthorModule_SubmitExtrinsic(t *testing.T) {
	mod, _ := newTestAuthorModule(t)

	ext := []byte("transfer alice bob 100")
	req := ExtrinsicRequest(common.BytesToHex(ext))

	var res ExtrinsicHashResponse
	require.NoError(t, mod.SubmitExtrinsic(nil, &req, &res))

	hash, err := common.Blake2bHash(ext)
	require.NoError(t, err)
	require.Equal(t, hash.String(), string(res))

	var pending PendingExtrinsicsResponse
	require.NoError(t, mod.PendingExtrinsics(nil, &EmptyRequest{}, &pending))
	require.Equal(t, []string{common.BytesToHex(ext)}, []string(pending))
}

func TestAuthorModule_SubmitExtrinsicInvalidHex(t *testing.T) {
	mod, _ := newTestAuthorModule(t)

	req := ExtrinsicRequest("zz")
	var res ExtrinsicHashResponse
	err := mod.SubmitExtrinsic(nil, &req, &res)
	require.ErrorIs(t, err, ErrCouldNotDecodeExtrinsic)
}

func TestAuthorModule_InsertKey(t *testing.T) {
	mod, _ := newTestAuthorModule(t)

	seed := common.MustHexToBytes("0x00000000000000000000000000000000000000000000000000000000000000ab")
	kp, err := sr25519.NewKeypairFromSeed(seed)
	require.NoError(t, err)

	req := &KeyInsertRequest{
		Type:      string(keystore.BabeName),
		Seed:      common.BytesToHex(seed),
		PublicKey: kp.Public().Hex(),
	}

	require.NoError(t, mod.InsertKey(nil, req, &KeyInsertResponse{}))
	require.Equal(t, 1, mod.keystore.Babe.Size())

	// mismatched public key is rejected
	other, err := sr25519.GenerateKeypair()
	require.NoError(t, err)
	req.PublicKey = other.Public().Hex()
	require.Error(t, mod.InsertKey(nil, req, &KeyInsertResponse{}))
}
