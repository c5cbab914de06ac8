// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package core

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	log "github.com/ChainSafe/log15"
	"github.com/stretchr/testify/require"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/lib/crypto/ed25519"
	"github.com/tessera-net/tessera/lib/grandpa"
	"github.com/tessera-net/tessera/lib/keystore"
	"github.com/tessera-net/tessera/lib/runtime"
	"github.com/tessera-net/tessera/lib/runtime/native"
	"github.com/tessera-net/tessera/lib/transaction"
	"github.com/tessera-net/tessera/node/digest"
	"github.com/tessera-net/tessera/node/network"
	"github.com/tessera-net/tessera/node/state"
	"github.com/tessera-net/tessera/node/types"
)

// acceptAllVerifier stands in for the slot claim verifier; claim
// verification itself is covered by the production engine's tests
type acceptAllVerifier struct{}

func (acceptAllVerifier) VerifyBlock(*types.Header) error { return nil }

// recordingNetwork captures gossip calls
type recordingNetwork struct {
	mu        sync.Mutex
	announces []*network.BlockAnnounceMessage
	requests  []*network.BlockRequestMessage
	justs     []*network.JustificationMessage
	txs       []*network.TransactionMessage
}

func (n *recordingNetwork) GossipBlockAnnounce(msg *network.BlockAnnounceMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.announces = append(n.announces, msg)
}

func (n *recordingNetwork) GossipBlockRequest(msg *network.BlockRequestMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requests = append(n.requests, msg)
}

func (n *recordingNetwork) GossipJustification(msg *network.JustificationMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.justs = append(n.justs, msg)
}

func (n *recordingNetwork) GossipTransaction(msg *network.TransactionMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.txs = append(n.txs, msg)
}

func (n *recordingNetwork) announceCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.announces)
}

func (n *recordingNetwork) requestCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.requests)
}

// commitRecorder wraps the chain database and records the order in which
// blocks commit
type commitRecorder struct {
	BlockState
	mu    sync.Mutex
	order []common.Hash
}

func (r *commitRecorder) AddBlockWithArrivalTime(block *types.Block, arrivalTime time.Time) error {
	err := r.BlockState.AddBlockWithArrivalTime(block, arrivalTime)
	if err == nil {
		r.mu.Lock()
		r.order = append(r.order, block.Header.Hash())
		r.mu.Unlock()
	}
	return err
}

// commitIndex returns each committed hash's position in commit order
func (r *commitRecorder) commitIndex() map[common.Hash]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := make(map[common.Hash]int, len(r.order))
	for i, h := range r.order {
		idx[h] = i
	}
	return idx
}

// countingRuntime counts state-transition executions to assert that
// re-imports never re-execute
type countingRuntime struct {
	runtime.Instance
	mu       sync.Mutex
	executed int
}

func (r *countingRuntime) ExecuteBlock(block *types.Block) error {
	r.mu.Lock()
	r.executed++
	r.mu.Unlock()
	return r.Instance.ExecuteBlock(block)
}

func (r *countingRuntime) executions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.executed
}

func newTestRuntime(t *testing.T, stateSrvc *state.Service) runtime.Instance {
	t.Helper()

	ts, err := stateSrvc.Storage.TrieState(nil)
	require.NoError(t, err)

	rt, err := native.NewInstance(&runtime.InstanceConfig{
		Storage: ts,
		LogLvl:  log.LvlCrit,
	})
	require.NoError(t, err)
	return rt
}

func newTestCore(t *testing.T, stateSrvc *state.Service, rt runtime.Instance,
	net Network) *Service {
	t.Helper()

	cfg := &Config{
		LogLvl:           log.LvlCrit,
		Role:             types.FullNodeRole,
		BlockState:       stateSrvc.Block,
		StorageState:     stateSrvc.Storage,
		TransactionState: stateSrvc.Transaction,
		EpochState:       stateSrvc.Epoch,
		GrandpaState:     stateSrvc.Grandpa,
		Verifier:         acceptAllVerifier{},
		DigestHandler:    digest.NewBlockImportHandler(stateSrvc.Epoch, stateSrvc.Grandpa),
		Runtime:          rt,
		Network:          net,
	}

	s, err := NewService(cfg)
	require.NoError(t, err)

	err = s.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Stop()
	})

	return s
}

// buildExecutableChain builds depth blocks on top of the current best
// block, executing each through the runtime so the chain can be replayed
// by the import pipeline. The post-state tries are stored so successive
// blocks can build on each other; re-storing them at import is a no-op.
func buildExecutableChain(t *testing.T, stateSrvc *state.Service,
	rt runtime.Instance, depth int, exts ...types.Extrinsic) []*types.Block {
	t.Helper()

	parent, err := stateSrvc.Block.BestBlockHeader()
	require.NoError(t, err)

	return buildExecutableChainFrom(t, stateSrvc, rt, parent, depth,
		1000+uint64(parent.Number), exts...)
}

// buildExecutableChainFrom builds depth blocks on top of the given parent.
// Distinct slot bases keep sibling branches from colliding.
func buildExecutableChainFrom(t *testing.T, stateSrvc *state.Service,
	rt runtime.Instance, parent *types.Header, depth int, slotBase uint64,
	exts ...types.Extrinsic) []*types.Block {
	t.Helper()

	var blocks []*types.Block
	for i := 0; i < depth; i++ {
		slot := slotBase + uint64(i)

		ts, err := stateSrvc.Storage.TrieState(&parent.StateRoot)
		require.NoError(t, err)
		rt.SetContextStorage(ts)

		pre := &types.BabePreDigest{AuthorityIndex: 0, SlotNumber: slot}
		item, err := pre.ToPreRuntimeDigest()
		require.NoError(t, err)

		header := types.NewHeader(parent.Hash(), common.EmptyHash, common.EmptyHash,
			parent.Number+1, types.Digest{item})

		err = rt.InitializeBlock(header)
		require.NoError(t, err)

		inherents, err := rt.InherentExtrinsics(slot, slot)
		require.NoError(t, err)

		body := make(types.Body, 0, len(inherents)+len(exts))
		for _, inh := range inherents {
			require.NoError(t, rt.ApplyExtrinsic(inh))
			body = append(body, inh)
		}

		if i == 0 {
			for _, ext := range exts {
				require.NoError(t, rt.ApplyExtrinsic(ext))
				body = append(body, ext)
			}
		}

		final, err := rt.FinalizeBlock()
		require.NoError(t, err)

		err = stateSrvc.Storage.StoreTrie(ts)
		require.NoError(t, err)

		block := &types.Block{Header: *final, Body: body}
		blocks = append(blocks, block)
		parent = final
	}

	return blocks
}

func TestHandleBlockProduced(t *testing.T) {
	stateSrvc := state.NewTestService(t)
	rt := newTestRuntime(t, stateSrvc)
	net := &recordingNetwork{}
	s := newTestCore(t, stateSrvc, rt, net)

	blocks := buildExecutableChain(t, stateSrvc, rt, 1)
	block := blocks[0]

	ts, err := stateSrvc.Storage.TrieState(&block.Header.StateRoot)
	require.NoError(t, err)

	err = s.HandleBlockProduced(block, ts)
	require.NoError(t, err)

	has, err := stateSrvc.Block.HasHeader(block.Header.Hash())
	require.NoError(t, err)
	require.True(t, has)
	require.Equal(t, block.Header.Hash(), stateSrvc.Block.BestBlockHash())

	// the block was announced as the new best block
	require.Equal(t, 1, net.announceCount())
	require.True(t, net.announces[0].BestBlock)
}

func TestImportOutOfOrder(t *testing.T) {
	stateSrvc := state.NewTestService(t)
	rt := newTestRuntime(t, stateSrvc)
	net := &recordingNetwork{}
	s := newTestCore(t, stateSrvc, rt, net)

	const depth = 8
	blocks := buildExecutableChain(t, stateSrvc, rt, depth)

	shuffled := make([]*types.Block, depth)
	copy(shuffled, blocks)
	rand.New(rand.NewSource(42)).Shuffle(depth, func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	for _, block := range shuffled {
		err := s.submit(&importItem{
			block:  block,
			origin: originNetwork,
			from:   "peer",
		}, true)
		require.NoError(t, err)
	}

	// parked descendants are released asynchronously once their
	// ancestors commit
	require.Eventually(t, func() bool {
		has, err := stateSrvc.Block.HasHeader(blocks[depth-1].Header.Hash())
		return err == nil && has
	}, 10*time.Second, 10*time.Millisecond)

	// every block landed as a descendant of its parent; the tip is the
	// end of the chain
	require.Equal(t, blocks[depth-1].Header.Hash(), stateSrvc.Block.BestBlockHash())

	require.Eventually(t, func() bool {
		return s.PendingBlocks() == 0
	}, 10*time.Second, 10*time.Millisecond)
}

func TestImportShuffledForkedDAG(t *testing.T) {
	for seed := int64(1); seed <= 4; seed++ {
		seed := seed
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			stateSrvc := state.NewTestService(t)
			rt := newTestRuntime(t, stateSrvc)
			net := &recordingNetwork{}
			recorder := &commitRecorder{BlockState: stateSrvc.Block}

			cfg := &Config{
				LogLvl:           log.LvlCrit,
				Role:             types.FullNodeRole,
				BlockState:       recorder,
				StorageState:     stateSrvc.Storage,
				TransactionState: stateSrvc.Transaction,
				EpochState:       stateSrvc.Epoch,
				GrandpaState:     stateSrvc.Grandpa,
				Verifier:         acceptAllVerifier{},
				DigestHandler:    digest.NewBlockImportHandler(stateSrvc.Epoch, stateSrvc.Grandpa),
				Runtime:          rt,
				Network:          net,
			}

			s, err := NewService(cfg)
			require.NoError(t, err)
			require.NoError(t, s.Start())
			t.Cleanup(func() {
				_ = s.Stop()
			})

			// a trunk with two forks hanging off its early blocks
			trunk := buildExecutableChain(t, stateSrvc, rt, 5)
			forkA := buildExecutableChainFrom(t, stateSrvc, rt, &trunk[1].Header, 3, 2000)
			forkB := buildExecutableChainFrom(t, stateSrvc, rt, &trunk[2].Header, 2, 3000)

			dag := make([]*types.Block, 0, len(trunk)+len(forkA)+len(forkB))
			dag = append(dag, trunk...)
			dag = append(dag, forkA...)
			dag = append(dag, forkB...)

			shuffled := make([]*types.Block, len(dag))
			copy(shuffled, dag)
			rand.New(rand.NewSource(seed)).Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})

			for _, block := range shuffled {
				err := s.submit(&importItem{
					block:  block,
					origin: originNetwork,
					from:   "peer",
				}, true)
				require.NoError(t, err)
			}

			require.Eventually(t, func() bool {
				for _, block := range dag {
					has, err := stateSrvc.Block.HasHeader(block.Header.Hash())
					if err != nil || !has {
						return false
					}
				}
				return s.PendingBlocks() == 0
			}, 10*time.Second, 10*time.Millisecond)

			// causal order held on every branch: each block committed
			// after its parent
			idx := recorder.commitIndex()
			for _, block := range dag {
				pos, ok := idx[block.Header.Hash()]
				require.True(t, ok, "block %d was never committed", block.Header.Number)

				parentPos, inDag := idx[block.Header.ParentHash]
				if inDag {
					require.Less(t, parentPos, pos,
						"block %d committed before its parent", block.Header.Number)
				}
			}
		})
	}
}

func TestRejectsFabricatedGenesisBlock(t *testing.T) {
	stateSrvc := state.NewTestService(t)
	rt := newTestRuntime(t, stateSrvc)
	net := &recordingNetwork{}
	s := newTestCore(t, stateSrvc, rt, net)

	// a block claiming number 0 with an unknown parent must be rejected,
	// not parked with a parent request for number -1
	header := types.NewHeader(common.Hash{0xbe, 0xef}, common.EmptyHash,
		common.EmptyHash, 0, types.Digest{})
	block := &types.Block{Header: *header, Body: types.Body{}}

	err := s.submit(&importItem{block: block, origin: originNetwork, from: "peer"}, true)
	require.ErrorIs(t, err, ErrMalformedBlock)

	require.Equal(t, 0, net.requestCount())
	require.Equal(t, 0, s.PendingBlocks())
}

func TestReimportIsIdempotent(t *testing.T) {
	stateSrvc := state.NewTestService(t)
	rt := &countingRuntime{Instance: newTestRuntime(t, stateSrvc)}
	s := newTestCore(t, stateSrvc, rt, nil)

	blocks := buildExecutableChain(t, stateSrvc, rt.Instance, 1)
	block := blocks[0]

	it := &importItem{block: block, origin: originNetwork, from: "peer"}
	require.NoError(t, s.submit(it, true))
	require.Equal(t, 1, rt.executions())

	// same outcome, but the state transition must not run again
	it2 := &importItem{block: block, origin: originNetwork, from: "peer"}
	require.NoError(t, s.submit(it2, true))
	require.Equal(t, 1, rt.executions())
}

func TestMissingParentRequested(t *testing.T) {
	stateSrvc := state.NewTestService(t)
	rt := newTestRuntime(t, stateSrvc)
	net := &recordingNetwork{}
	s := newTestCore(t, stateSrvc, rt, net)

	blocks := buildExecutableChain(t, stateSrvc, rt, 2)

	// the child arrives first: it is parked, its parent requested
	err := s.submit(&importItem{block: blocks[1], origin: originNetwork, from: "peer"}, true)
	require.NoError(t, err)

	require.Equal(t, 1, s.PendingBlocks())
	require.Equal(t, 1, net.requestCount())
	require.Equal(t, blocks[0].Header.Hash(), net.requests[0].Hash)

	has, err := stateSrvc.Block.HasHeader(blocks[1].Header.Hash())
	require.NoError(t, err)
	require.False(t, has)
}

func signVote(t *testing.T, kp *ed25519.Keypair, vote *grandpa.Vote,
	round, setID uint64) grandpa.SignedVote {
	t.Helper()

	full := &grandpa.FullVote{Round: round, SetID: setID, Vote: *vote}
	enc, err := full.Encode()
	require.NoError(t, err)

	sig, err := kp.Sign(enc)
	require.NoError(t, err)

	return grandpa.SignedVote{
		Vote:        *vote,
		Signature:   ed25519.NewSignatureBytes(sig),
		AuthorityID: kp.Public().(*ed25519.PublicKey).AsBytes(),
	}
}

func buildJustification(t *testing.T, target *types.Header, round uint64,
	keypairs ...*ed25519.Keypair) *grandpa.Justification {
	t.Helper()

	vote := grandpa.NewVoteFromHeader(target)
	votes := make([]grandpa.SignedVote, 0, len(keypairs))
	for _, kp := range keypairs {
		votes = append(votes, signVote(t, kp, vote, round, 0))
	}

	return &grandpa.Justification{
		Round: round,
		Commit: grandpa.Commit{
			Hash:   target.Hash(),
			Number: uint64(target.Number),
			Votes:  votes,
		},
	}
}

func TestHandleJustification(t *testing.T) {
	stateSrvc := state.NewTestService(t)
	rt := newTestRuntime(t, stateSrvc)
	s := newTestCore(t, stateSrvc, rt, nil)

	blocks := buildExecutableChain(t, stateSrvc, rt, 3)
	for _, block := range blocks {
		require.NoError(t, s.submit(&importItem{block: block, origin: originNetwork}, true))
	}

	kr, err := keystore.NewEd25519Keyring()
	require.NoError(t, err)

	// dev chain has 3 voters of weight 1; two reach the 2/3 threshold
	target := &blocks[1].Header
	just := buildJustification(t, target, 1, kr.Alice(), kr.Bob())

	err = s.HandleJustification(just)
	require.NoError(t, err)

	final, err := stateSrvc.Block.GetHighestFinalisedHeader()
	require.NoError(t, err)
	require.Equal(t, target.Hash(), final.Hash())

	stored, err := stateSrvc.Block.GetJustification(target.Hash())
	require.NoError(t, err)
	require.NotEmpty(t, stored)

	// a justification is formed once per target; replays are no-ops
	err = s.HandleJustification(just)
	require.NoError(t, err)
}

func TestHandleJustification_BelowThreshold(t *testing.T) {
	stateSrvc := state.NewTestService(t)
	rt := newTestRuntime(t, stateSrvc)
	s := newTestCore(t, stateSrvc, rt, nil)

	blocks := buildExecutableChain(t, stateSrvc, rt, 1)
	require.NoError(t, s.submit(&importItem{block: blocks[0], origin: originNetwork}, true))

	kr, err := keystore.NewEd25519Keyring()
	require.NoError(t, err)

	just := buildJustification(t, &blocks[0].Header, 1, kr.Alice())

	err = s.HandleJustification(just)
	require.ErrorIs(t, err, ErrInvalidJustification)

	final, err := stateSrvc.Block.GetHighestFinalisedHeader()
	require.NoError(t, err)
	require.Equal(t, uint(0), final.Number)
}

func TestJustificationForUnimportedBlockParked(t *testing.T) {
	stateSrvc := state.NewTestService(t)
	rt := newTestRuntime(t, stateSrvc)
	net := &recordingNetwork{}
	s := newTestCore(t, stateSrvc, rt, net)

	blocks := buildExecutableChain(t, stateSrvc, rt, 2)
	require.NoError(t, s.submit(&importItem{block: blocks[0], origin: originNetwork}, true))

	kr, err := keystore.NewEd25519Keyring()
	require.NoError(t, err)

	// justification targets a block this node has not imported yet
	target := &blocks[1].Header
	just := buildJustification(t, target, 1, kr.Alice(), kr.Bob())

	require.NoError(t, s.HandleJustification(just))

	final, err := stateSrvc.Block.GetHighestFinalisedHeader()
	require.NoError(t, err)
	require.Equal(t, uint(0), final.Number)
	require.Equal(t, 1, net.requestCount())

	// once the target arrives the parked justification is applied
	require.NoError(t, s.submit(&importItem{block: blocks[1], origin: originNetwork}, true))

	require.Eventually(t, func() bool {
		final, err := stateSrvc.Block.GetHighestFinalisedHeader()
		return err == nil && final.Hash() == target.Hash()
	}, 10*time.Second, 10*time.Millisecond)
}

func TestLightRoleImportsHeadersOnly(t *testing.T) {
	fullState := state.NewTestService(t)
	rt := newTestRuntime(t, fullState)
	blocks := buildExecutableChain(t, fullState, rt, 2)

	// the light node sees headers and one justification, never a body
	lightState := state.NewTestService(t)
	cfg := &Config{
		LogLvl:        log.LvlCrit,
		Role:          types.LightClientRole,
		BlockState:    lightState.Block,
		EpochState:    lightState.Epoch,
		GrandpaState:  lightState.Grandpa,
		Verifier:      acceptAllVerifier{},
		DigestHandler: digest.NewBlockImportHandler(lightState.Epoch, lightState.Grandpa),
	}

	s, err := NewService(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })

	for _, block := range blocks {
		headerOnly := &types.Block{Header: block.Header, Body: types.Body{}}
		require.NoError(t, s.submit(&importItem{block: headerOnly, origin: originNetwork}, true))
	}

	kr, err := keystore.NewEd25519Keyring()
	require.NoError(t, err)

	target := &blocks[1].Header
	just := buildJustification(t, target, 1, kr.Alice(), kr.Bob())

	require.NoError(t, s.HandleJustification(just))

	final, err := lightState.Block.GetHighestFinalisedHeader()
	require.NoError(t, err)
	require.Equal(t, target.Hash(), final.Hash())
}

func TestHandleSubmittedExtrinsic(t *testing.T) {
	stateSrvc := state.NewTestService(t)
	rt := newTestRuntime(t, stateSrvc)
	net := &recordingNetwork{}
	s := newTestCore(t, stateSrvc, rt, net)

	ext, err := native.NewRecordExtrinsic([]byte("payload"), 0, 0)
	require.NoError(t, err)

	err = s.HandleSubmittedExtrinsic(ext)
	require.NoError(t, err)
	require.True(t, stateSrvc.Transaction.Exists(ext))

	net.mu.Lock()
	require.Len(t, net.txs, 1)
	net.mu.Unlock()

	// garbage fails runtime validation and is rejected
	err = s.HandleSubmittedExtrinsic(types.Extrinsic{0xff, 0xff})
	require.ErrorIs(t, err, ErrInvalidTransaction)
}

func TestMaintainTransactionPool(t *testing.T) {
	stateSrvc := state.NewTestService(t)
	rt := newTestRuntime(t, stateSrvc)
	s := newTestCore(t, stateSrvc, rt, nil)

	ext, err := native.NewRecordExtrinsic([]byte("included"), 0, 0)
	require.NoError(t, err)
	_, err = stateSrvc.Transaction.Push(transaction.NewValidTransaction(ext,
		&transaction.Validity{Priority: 1}))
	require.NoError(t, err)

	blocks := buildExecutableChain(t, stateSrvc, rt, 1, ext)
	require.NoError(t, s.submit(&importItem{block: blocks[0], origin: originNetwork}, true))

	// the included extrinsic is pruned from the intake
	require.False(t, stateSrvc.Transaction.Exists(ext))
}

func TestHandleTransactionMessage(t *testing.T) {
	stateSrvc := state.NewTestService(t)
	rt := newTestRuntime(t, stateSrvc)
	s := newTestCore(t, stateSrvc, rt, nil)

	good, err := native.NewRecordExtrinsic([]byte("gossiped"), 0, 0)
	require.NoError(t, err)

	err = s.HandleTransactionMessage("peer", &network.TransactionMessage{
		Extrinsics: []types.Extrinsic{good, {0xff}},
	})
	require.NoError(t, err)

	require.True(t, stateSrvc.Transaction.Exists(good))
	require.False(t, stateSrvc.Transaction.Exists(types.Extrinsic{0xff}))
}
