// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package grandpa

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	log "github.com/ChainSafe/log15"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/lib/crypto/ed25519"
	"github.com/tessera-net/tessera/node/types"
)

var logger = log.New("pkg", "grandpa")

const (
	// defaultGossipDuration is the base interval the round engine scales
	// its timers from
	defaultGossipDuration = 333 * time.Millisecond

	// a fresh round times out after baseRoundFactor gossip intervals
	// without quorum; every quorumless round doubles the timeout of the
	// next one, up to maxRoundFactor intervals
	baseRoundFactor = 8
	maxRoundFactor  = 64

	// our own vote is regossiped every rebroadcastFactor intervals
	rebroadcastFactor = 5

	// capacity of the parked-votes tracker
	defaultVotesCapacity = 1000
)

// Service runs the finality voting protocol: once per round it votes for
// its preferred chain head, collects votes from the other voters and,
// when a block gathers two thirds of the voter weight, assembles a
// justification and hands it to the finality handler. It only ever reads
// the chain; all finalisation writes go through the handler.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc

	state           *State
	blockState      BlockState
	grandpaState    GrandpaState
	finalityHandler FinalityHandler
	network         Network
	keypair         *ed25519.Keypair
	interval        time.Duration

	roundLock     sync.Mutex
	votes         map[ed25519.PublicKeyBytes]*SignedVote
	equivocations map[ed25519.PublicKeyBytes][]*SignedVote
	tracker       votesTracker
	lastVoteMsg   []byte

	importedBlocks chan *types.Block
}

// Config is the configuration for the finality service
type Config struct {
	LogLvl          log.Lvl
	BlockState      BlockState
	GrandpaState    GrandpaState
	FinalityHandler FinalityHandler
	Keypair         *ed25519.Keypair

	// Network may be nil, in which case messages are not gossiped; a
	// single-voter chain still finalises on its own vote.
	Network Network

	// GossipDuration overrides the base round interval; zero means the
	// default
	GossipDuration time.Duration
}

// NewService returns a new finality service. The voter set, set ID and
// round are restored from the grandpa state; voting resumes at the round
// after the last completed one.
func NewService(cfg *Config) (*Service, error) {
	if cfg.BlockState == nil {
		return nil, errNilBlockState
	}

	if cfg.GrandpaState == nil {
		return nil, errNilGrandpaState
	}

	if cfg.FinalityHandler == nil {
		return nil, errNilFinalityHandler
	}

	if cfg.Keypair == nil {
		return nil, errNilKeypair
	}

	h := log.StreamHandler(os.Stdout, log.TerminalFormat())
	logger.SetHandler(log.LvlFilterHandler(cfg.LogLvl, h))

	interval := cfg.GossipDuration
	if interval == 0 {
		interval = defaultGossipDuration
	}

	setID, err := cfg.GrandpaState.GetCurrentSetID()
	if err != nil {
		return nil, fmt.Errorf("cannot get current set ID: %w", err)
	}

	voters, err := cfg.GrandpaState.GetAuthorities(setID)
	if err != nil {
		return nil, fmt.Errorf("cannot get voters for set %d: %w", setID, err)
	}

	latestRound, err := cfg.GrandpaState.GetLatestRound()
	if err != nil {
		return nil, fmt.Errorf("cannot get latest round: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		ctx:             ctx,
		cancel:          cancel,
		state:           NewState(voters, setID, latestRound+1),
		blockState:      cfg.BlockState,
		grandpaState:    cfg.GrandpaState,
		finalityHandler: cfg.FinalityHandler,
		network:         cfg.Network,
		keypair:         cfg.Keypair,
		interval:        interval,
		votes:           make(map[ed25519.PublicKeyBytes]*SignedVote),
		equivocations:   make(map[ed25519.PublicKeyBytes][]*SignedVote),
		tracker:         newVotesTracker(defaultVotesCapacity),
	}

	logger.Debug("created finality service",
		"set ID", setID,
		"round", latestRound+1,
		"voters", voters,
		"interval", interval,
	)
	return s, nil
}

// Start begins the round loop and the imported-block watcher
func (s *Service) Start() error {
	if s.ctx.Err() != nil {
		return errServiceStopped
	}

	s.importedBlocks = s.blockState.GetImportedBlockNotifierChannel()

	go s.watchImportedBlocks()
	go s.initiate()
	return nil
}

// Stop tears the service down; any in-flight round is abandoned
func (s *Service) Stop() error {
	if s.ctx.Err() != nil {
		return errServiceStopped
	}

	s.cancel()

	if s.importedBlocks != nil {
		s.blockState.FreeImportedBlockNotifierChannel(s.importedBlocks)
	}
	return nil
}

// Round returns the round the service is currently voting in
func (s *Service) Round() uint64 {
	s.roundLock.Lock()
	defer s.roundLock.Unlock()
	return s.state.round
}

// SetID returns the ID of the voter set the service is voting with
func (s *Service) SetID() uint64 {
	s.roundLock.Lock()
	defer s.roundLock.Unlock()
	return s.state.setID
}

// Voters returns the current voter set
func (s *Service) Voters() types.GrandpaVoters {
	s.roundLock.Lock()
	defer s.roundLock.Unlock()
	return s.state.voters
}

// initiate drives rounds until the service is stopped. A finalised round
// resets the round timeout; a quorumless round doubles it, capped at
// maxRoundFactor intervals.
func (s *Service) initiate() {
	timeout := s.interval * baseRoundFactor

	for {
		if s.ctx.Err() != nil {
			return
		}

		err := s.playGrandpaRound(timeout)
		switch {
		case err == nil:
			timeout = s.interval * baseRoundFactor
		case errors.Is(err, errRoundTimeout):
			timeout *= 2
			if max := s.interval * maxRoundFactor; timeout > max {
				timeout = max
			}
		case errors.Is(err, context.Canceled):
			return
		default:
			logger.Crit("round failed", "round", s.Round(), "error", err)
			return
		}

		s.roundLock.Lock()
		s.state.round++
		s.roundLock.Unlock()
	}
}

// playGrandpaRound plays a single round: cast our vote, then poll the
// collected votes until a block above the last finalised one reaches
// quorum or the round times out
func (s *Service) playGrandpaRound(timeout time.Duration) error {
	s.roundLock.Lock()
	s.refreshVoters()
	round := s.state.round
	setID := s.state.setID
	s.votes = make(map[ed25519.PublicKeyBytes]*SignedVote)
	s.equivocations = make(map[ed25519.PublicKeyBytes][]*SignedVote)
	s.lastVoteMsg = nil
	s.roundLock.Unlock()

	logger.Debug("starting round", "round", round, "set ID", setID, "timeout", timeout)

	s.retryParkedVotes()

	err := s.castVote(round, setID)
	if err != nil && !errors.Is(err, ErrVoterNotFound) {
		return err
	}

	roundTimer := time.NewTimer(timeout)
	defer roundTimer.Stop()

	finalizeTicker := time.NewTicker(s.interval / 2)
	defer finalizeTicker.Stop()

	rebroadcastTicker := time.NewTicker(s.interval * rebroadcastFactor)
	defer rebroadcastTicker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		case <-roundTimer.C:
			logger.Debug("round timed out without quorum", "round", round)
			return errRoundTimeout
		case <-rebroadcastTicker.C:
			s.gossip(s.lastVoteMsg)
		case <-finalizeTicker.C:
			finalised, err := s.attemptToFinalize(round, setID)
			if err != nil {
				return err
			}
			if finalised {
				return nil
			}
		}
	}
}

// refreshVoters reloads the voter set if the set ID has changed since the
// previous round. Rounds restart at 1 for a new set. Caller holds the
// round lock.
func (s *Service) refreshVoters() {
	setID, err := s.grandpaState.GetCurrentSetID()
	if err != nil || setID == s.state.setID {
		return
	}

	voters, err := s.grandpaState.GetAuthorities(setID)
	if err != nil {
		logger.Warn("cannot load voters for new set", "set ID", setID, "error", err)
		return
	}

	logger.Info("voter set changed", "set ID", setID, "voters", voters)
	s.state = NewState(voters, setID, 1)
}

// castVote determines our preferred head, signs a vote for it and
// gossips the vote message. Returns ErrVoterNotFound without voting when
// our key is not in the voter set.
func (s *Service) castVote(round, setID uint64) error {
	s.roundLock.Lock()
	defer s.roundLock.Unlock()

	pub := s.keypair.Public().(*ed25519.PublicKey)
	voter, err := s.state.pubkeyToVoter(pub.AsBytes())
	if err != nil {
		logger.Warn("not in voter set, collecting votes only", "round", round, "key", pub.Hex())
		return err
	}

	vote, err := s.determineVote()
	if err != nil {
		return err
	}

	sv, msg, err := s.createSignedVote(vote, round, setID)
	if err != nil {
		return err
	}

	s.votes[voter.PublicKeyBytes()] = sv

	enc, err := msg.Encode()
	if err != nil {
		return err
	}

	s.lastVoteMsg = enc
	s.gossip(enc)

	logger.Debug("cast vote", "round", round, "vote", vote)
	return nil
}

// determineVote returns the vote for this round: the best block, which
// by fork choice is always a descendant of the last finalised block
func (s *Service) determineVote() (*Vote, error) {
	best, err := s.blockState.BestBlockHeader()
	if err != nil {
		return nil, fmt.Errorf("cannot get best block: %w", err)
	}

	return NewVoteFromHeader(best), nil
}

// createSignedVote signs the full vote for the given round and set ID
func (s *Service) createSignedVote(vote *Vote, round, setID uint64) (*SignedVote, *VoteMessage, error) {
	full := &FullVote{
		Round: round,
		SetID: setID,
		Vote:  *vote,
	}

	enc, err := full.Encode()
	if err != nil {
		return nil, nil, err
	}

	sig, err := s.keypair.Sign(enc)
	if err != nil {
		return nil, nil, err
	}

	pub := s.keypair.Public().(*ed25519.PublicKey)

	sv := &SignedVote{
		Vote:        *vote,
		Signature:   ed25519.NewSignatureBytes(sig),
		AuthorityID: pub.AsBytes(),
	}

	msg := &VoteMessage{
		Round:       round,
		SetID:       setID,
		Vote:        *vote,
		Signature:   sv.Signature,
		AuthorityID: sv.AuthorityID,
	}
	return sv, msg, nil
}

// attemptToFinalize checks whether any block above the last finalised
// one has reached quorum; if so it finalises that block and completes
// the round
func (s *Service) attemptToFinalize(round, setID uint64) (bool, error) {
	s.roundLock.Lock()
	defer s.roundLock.Unlock()

	if uint64(len(s.votes)+len(s.equivocations)) < s.state.threshold() {
		return false, nil
	}

	head, err := s.blockState.GetHighestFinalisedHeader()
	if err != nil {
		return false, fmt.Errorf("cannot get finalised header: %w", err)
	}

	candidate, err := s.bestFinalCandidate()
	if err != nil {
		return false, err
	}

	if candidate == nil || candidate.Number <= uint64(head.Number) {
		return false, nil
	}

	if err := s.finalise(round, setID, candidate); err != nil {
		return false, err
	}
	return true, nil
}

// finalise assembles the justification for the candidate and hands it to
// the finality handler, then records the completed round and gossips the
// commit. Caller holds the round lock.
func (s *Service) finalise(round, setID uint64, candidate *Vote) error {
	just := s.newJustification(round, candidate)

	if err := s.finalityHandler.HandleJustification(just); err != nil {
		return fmt.Errorf("cannot apply justification: %w", err)
	}

	if err := s.grandpaState.SetLatestRound(round); err != nil {
		return err
	}

	if enc, err := newCommitMessage(just, setID).Encode(); err == nil {
		s.gossip(enc)
	}

	logger.Info("finalised block",
		"round", round,
		"hash", candidate.Hash,
		"number", candidate.Number,
		"votes", len(just.Commit.Votes),
	)
	return nil
}

// newJustification collects every vote backing the candidate, namely the
// votes for the candidate block or a descendant of it, with equivocation
// evidence appended. Caller holds the round lock.
func (s *Service) newJustification(round uint64, candidate *Vote) *Justification {
	votes := make([]SignedVote, 0, len(s.votes))

	for _, sv := range s.votes {
		if sv.Vote.Hash != candidate.Hash {
			isDescendant, err := s.blockState.IsDescendantOf(candidate.Hash, sv.Vote.Hash)
			if err != nil || !isDescendant {
				continue
			}
		}
		votes = append(votes, *sv)
	}

	for _, evidence := range s.equivocations {
		for _, sv := range evidence {
			votes = append(votes, *sv)
		}
	}

	return &Justification{
		Round: round,
		Commit: Commit{
			Hash:   candidate.Hash,
			Number: candidate.Number,
			Votes:  votes,
		},
	}
}

// bestFinalCandidate returns the highest block whose chain has gathered
// at least threshold weight, or nil if no block has. Candidates are the
// voted blocks and the common ancestors of every pair of them, so a
// round whose votes split across forks can still settle on the ancestor.
// Caller holds the round lock.
func (s *Service) bestFinalCandidate() (*Vote, error) {
	directVotes := s.getDirectVotes()
	if len(directVotes) == 0 {
		return nil, nil
	}

	candidates := make(map[common.Hash]uint64, len(directVotes))
	distinct := make([]Vote, 0, len(directVotes))
	for v := range directVotes {
		candidates[v.Hash] = v.Number
		distinct = append(distinct, v)
	}

	for i := 0; i < len(distinct); i++ {
		for j := i + 1; j < len(distinct); j++ {
			ancestor, err := s.blockState.HighestCommonAncestor(distinct[i].Hash, distinct[j].Hash)
			if err != nil {
				continue
			}

			if _, has := candidates[ancestor]; has {
				continue
			}

			header, err := s.blockState.GetHeader(ancestor)
			if err != nil {
				continue
			}
			candidates[ancestor] = uint64(header.Number)
		}
	}

	threshold := s.state.threshold()

	var best *Vote
	for hash, number := range candidates {
		total, err := s.getTotalVotesForBlock(hash)
		if err != nil {
			return nil, err
		}

		if total < threshold {
			continue
		}

		if best == nil || number > best.Number ||
			(number == best.Number && bytes.Compare(hash[:], best.Hash[:]) < 0) {
			best = NewVote(hash, number)
		}
	}
	return best, nil
}

// getDirectVotes returns the weight of the votes cast for each exact
// block. Caller holds the round lock.
func (s *Service) getDirectVotes() map[Vote]uint64 {
	votes := make(map[Vote]uint64, len(s.votes))
	for _, sv := range s.votes {
		votes[sv.Vote]++
	}
	return votes
}

// getTotalVotesForBlock returns the vote weight for the chain containing
// hash: the votes for hash or a descendant of it, plus one per
// equivocating voter. An equivocator contributes at most one weight to
// any block however many votes it cast. Caller holds the round lock.
func (s *Service) getTotalVotesForBlock(hash common.Hash) (uint64, error) {
	var count uint64
	for _, sv := range s.votes {
		if sv.Vote.Hash == hash {
			count++
			continue
		}

		isDescendant, err := s.blockState.IsDescendantOf(hash, sv.Vote.Hash)
		if err != nil {
			// vote for a branch pruned since the vote was validated
			continue
		}

		if isDescendant {
			count++
		}
	}

	return count + uint64(len(s.equivocations)), nil
}

// watchImportedBlocks retries parked votes whenever their block arrives
func (s *Service) watchImportedBlocks() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case block := <-s.importedBlocks:
			if block == nil {
				return
			}
			s.handleImportedBlock(block)
		}
	}
}

func (s *Service) handleImportedBlock(block *types.Block) {
	hash := block.Header.Hash()

	s.roundLock.Lock()
	parked := s.tracker.messages(hash)
	s.tracker.delete(hash)
	s.roundLock.Unlock()

	for _, pv := range parked {
		if err := s.handleVoteMessage(pv.from, pv.msg); err != nil {
			logger.Debug("parked vote rejected on retry", "peer", pv.from, "error", err)
		}
	}
}

// retryParkedVotes revalidates every parked vote at the start of a round
// so votes parked for the previous next round are counted
func (s *Service) retryParkedVotes() {
	s.roundLock.Lock()
	parked := s.tracker.all()
	s.tracker.clear()
	s.roundLock.Unlock()

	for _, pv := range parked {
		if err := s.handleVoteMessage(pv.from, pv.msg); err != nil {
			logger.Trace("parked vote dropped", "peer", pv.from, "error", err)
		}
	}
}

func (s *Service) gossip(data []byte) {
	if s.network == nil || data == nil {
		return
	}
	s.network.GossipFinalityMessage(data)
}
