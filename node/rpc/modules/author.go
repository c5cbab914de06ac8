// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package modules

import (
	"fmt"
	"net/http"

	log "github.com/ChainSafe/log15"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/lib/crypto"
	"github.com/tessera-net/tessera/lib/crypto/ed25519"
	"github.com/tessera-net/tessera/lib/crypto/sr25519"
	"github.com/tessera-net/tessera/lib/keystore"
	"github.com/tessera-net/tessera/node/types"
)

// AuthorModule is the author_* RPC namespace
type AuthorModule struct {
	logger     log.Logger
	coreAPI    CoreAPI
	txStateAPI TransactionStateAPI
	keystore   *keystore.GlobalKeystore
}

// NewAuthorModule creates the author_* handler
func NewAuthorModule(logger log.Logger, coreAPI CoreAPI,
	txStateAPI TransactionStateAPI, ks *keystore.GlobalKeystore) *AuthorModule {
	return &AuthorModule{
		logger:     logger.New("module", "author"),
		coreAPI:    coreAPI,
		txStateAPI: txStateAPI,
		keystore:   ks,
	}
}

// ExtrinsicRequest is a hex-encoded extrinsic
type ExtrinsicRequest string

// ExtrinsicHashResponse is the hash the pool indexed the extrinsic under
type ExtrinsicHashResponse string

// PendingExtrinsicsResponse lists the hex-encoded pool contents
type PendingExtrinsicsResponse []string

// KeyInsertRequest inserts a session key into the keystore
type KeyInsertRequest struct {
	Type      string `json:"type" validate:"required"`
	Seed      string `json:"seed" validate:"required,hexadecimal"`
	PublicKey string `json:"publicKey" validate:"required,hexadecimal"`
}

// KeyInsertResponse is empty on success
type KeyInsertResponse struct{}

// SubmitExtrinsic validates the extrinsic, pools it and gossips it
func (am *AuthorModule) SubmitExtrinsic(r *http.Request, req *ExtrinsicRequest, res *ExtrinsicHashResponse) error {
	ext, err := common.HexToBytes(string(*req))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrCouldNotDecodeExtrinsic, err)
	}

	if err := am.coreAPI.HandleSubmittedExtrinsic(types.Extrinsic(ext)); err != nil {
		return err
	}

	hash, err := common.Blake2bHash(ext)
	if err != nil {
		return err
	}

	*res = ExtrinsicHashResponse(hash.String())
	return nil
}

// PendingExtrinsics returns the extrinsics waiting in the pool
func (am *AuthorModule) PendingExtrinsics(r *http.Request, req *EmptyRequest, res *PendingExtrinsicsResponse) error {
	pending := am.txStateAPI.PendingInPool()

	out := make([]string, 0, len(pending))
	for _, vt := range pending {
		out = append(out, common.BytesToHex(vt.Extrinsic))
	}

	*res = out
	return nil
}

// InsertKey adds a session keypair to the keystore. Unsafe; only
// reachable when the server runs with unsafe RPC enabled.
func (am *AuthorModule) InsertKey(r *http.Request, req *KeyInsertRequest, res *KeyInsertResponse) error {
	seed, err := common.HexToBytes(req.Seed)
	if err != nil {
		return err
	}

	ks, err := am.keystore.GetKeystore([]byte(req.Type))
	if err != nil {
		return err
	}

	var kp crypto.Keypair
	switch req.Type {
	case string(keystore.GranName):
		kp, err = ed25519.NewKeypairFromSeed(seed)
	default:
		kp, err = sr25519.NewKeypairFromSeed(seed)
	}
	if err != nil {
		return err
	}

	if kp.Public().Hex() != req.PublicKey {
		return fmt.Errorf("generated public key does not equal provided public key")
	}

	if err := ks.Insert(kp); err != nil {
		return err
	}

	am.logger.Info("inserted key into keystore", "type", req.Type, "key", kp.Public().Hex())
	return nil
}
