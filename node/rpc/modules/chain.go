// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package modules

import (
	"fmt"
	"net/http"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/node/types"
)

// ChainModule is the chain_* RPC namespace
type ChainModule struct {
	blockAPI BlockAPI
}

// NewChainModule creates the chain_* handler
func NewChainModule(blockAPI BlockAPI) *ChainModule {
	return &ChainModule{blockAPI: blockAPI}
}

// ChainHashRequest is an optional block hash; empty selects the best block
type ChainHashRequest string

// ChainBlockNumberRequest is a block number
type ChainBlockNumberRequest uint64

// ChainHashResponse is a hex-encoded hash
type ChainHashResponse string

// ChainBlockHeaderResponse is the JSON form of a header
type ChainBlockHeaderResponse struct {
	ParentHash     string                `json:"parentHash"`
	Number         string                `json:"number"`
	StateRoot      string                `json:"stateRoot"`
	ExtrinsicsRoot string                `json:"extrinsicsRoot"`
	Digest         ChainBlockHeaderDigest `json:"digest"`
}

// ChainBlockHeaderDigest holds the hex-encoded digest items
type ChainBlockHeaderDigest struct {
	Logs []string `json:"logs"`
}

// ChainBlockResponse is the JSON form of a block
type ChainBlockResponse struct {
	Block ChainBlock `json:"block"`
}

// ChainBlock is a header with its extrinsics
type ChainBlock struct {
	Header     ChainBlockHeaderResponse `json:"header"`
	Extrinsics []string                 `json:"extrinsics"`
}

// GetHeader returns the header for the given hash, or the best header
// when no hash is given
func (cm *ChainModule) GetHeader(r *http.Request, req *ChainHashRequest, res *ChainBlockHeaderResponse) error {
	hash, err := cm.hashOrBest(*req)
	if err != nil {
		return err
	}

	header, err := cm.blockAPI.GetHeader(hash)
	if err != nil {
		return err
	}

	*res = HeaderToResponse(header)
	return nil
}

// GetBlock returns the full block for the given hash, or the best block
// when no hash is given
func (cm *ChainModule) GetBlock(r *http.Request, req *ChainHashRequest, res *ChainBlockResponse) error {
	hash, err := cm.hashOrBest(*req)
	if err != nil {
		return err
	}

	block, err := cm.blockAPI.GetBlockByHash(hash)
	if err != nil {
		return err
	}

	res.Block.Header = HeaderToResponse(&block.Header)
	res.Block.Extrinsics = make([]string, 0, len(block.Body))
	for _, ext := range block.Body {
		res.Block.Extrinsics = append(res.Block.Extrinsics, common.BytesToHex(ext))
	}
	return nil
}

// GetBlockHash returns the canonical-chain hash at the given number
func (cm *ChainModule) GetBlockHash(r *http.Request, req *ChainBlockNumberRequest, res *ChainHashResponse) error {
	hash, err := cm.blockAPI.GetHashByNumber(uint64(*req))
	if err != nil {
		return err
	}

	*res = ChainHashResponse(hash.String())
	return nil
}

// GetFinalizedHead returns the hash of the highest finalised block
func (cm *ChainModule) GetFinalizedHead(r *http.Request, req *EmptyRequest, res *ChainHashResponse) error {
	header, err := cm.blockAPI.GetHighestFinalisedHeader()
	if err != nil {
		return err
	}

	*res = ChainHashResponse(header.Hash().String())
	return nil
}

func (cm *ChainModule) hashOrBest(req ChainHashRequest) (common.Hash, error) {
	if req == "" {
		return cm.blockAPI.BestBlockHash(), nil
	}

	hash, err := common.HexToHash(string(req))
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrInvalidBlockHash, err)
	}
	return hash, nil
}

// HeaderToResponse converts a header to its JSON response form
func HeaderToResponse(header *types.Header) ChainBlockHeaderResponse {
	res := ChainBlockHeaderResponse{
		ParentHash:     header.ParentHash.String(),
		Number:         fmt.Sprintf("0x%x", header.Number),
		StateRoot:      header.StateRoot.String(),
		ExtrinsicsRoot: header.ExtrinsicsRoot.String(),
	}

	res.Digest.Logs = make([]string, 0, len(header.Digest))
	for _, item := range header.Digest {
		enc, err := msgpack.Marshal(item)
		if err != nil {
			continue
		}
		res.Digest.Logs = append(res.Digest.Logs, common.BytesToHex(enc))
	}
	return res
}
