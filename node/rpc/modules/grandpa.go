// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package modules

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tessera-net/tessera/lib/common"
)

// GrandpaModule is the grandpa_* RPC namespace
type GrandpaModule struct {
	blockAPI         BlockAPI
	blockFinalityAPI BlockFinalityAPI
}

// NewGrandpaModule creates the grandpa_* handler
func NewGrandpaModule(blockAPI BlockAPI, finalityAPI BlockFinalityAPI) *GrandpaModule {
	return &GrandpaModule{
		blockAPI:         blockAPI,
		blockFinalityAPI: finalityAPI,
	}
}

// RoundStateResponse is the voter's view of the current round
type RoundStateResponse struct {
	SetID  uint64   `json:"setId"`
	Round  uint64   `json:"round"`
	Voters []string `json:"voters"`
}

// ProveFinalityRequest asks for the stored justification of a block
type ProveFinalityRequest string

// ProveFinalityResponse is the hex-encoded justification, if stored
type ProveFinalityResponse string

// RoundState returns the current round, set ID and voter set
func (gm *GrandpaModule) RoundState(r *http.Request, req *EmptyRequest, res *RoundStateResponse) error {
	if gm.blockFinalityAPI == nil {
		return errors.New("round state is only available on voting nodes")
	}

	voters := gm.blockFinalityAPI.Voters()

	out := RoundStateResponse{
		SetID:  gm.blockFinalityAPI.SetID(),
		Round:  gm.blockFinalityAPI.Round(),
		Voters: make([]string, 0, len(voters)),
	}

	for i := range voters {
		out.Voters = append(out.Voters, voters[i].PublicKeyBytes().String())
	}

	*res = out
	return nil
}

// ProveFinality returns the justification stored for the given block hash
func (gm *GrandpaModule) ProveFinality(r *http.Request, req *ProveFinalityRequest, res *ProveFinalityResponse) error {
	hash, err := common.HexToHash(string(*req))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidBlockHash, err)
	}

	just, err := gm.blockAPI.GetJustification(hash)
	if err != nil {
		return err
	}

	*res = ProveFinalityResponse(common.BytesToHex(just))
	return nil
}
