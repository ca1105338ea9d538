package voting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/curatelabs/tcr-middleware/pkg/bank"
	"github.com/curatelabs/tcr-middleware/pkg/clock"
)

type commitment struct {
	hash     [32]byte
	tokens   decimal.Decimal
	revealed bool
	choice   Choice
}

type poll struct {
	commitEnd    time.Time
	revealEnd    time.Time
	commitments  map[string]*commitment
	votesFor     decimal.Decimal
	votesAgainst decimal.Decimal
}

// PollService runs commit-reveal polls in process. Vote weight is capped by
// the voter's current token balance at commit time; the tokens themselves
// stay in the voter's account.
type PollService struct {
	ledger bank.Ledger
	clock  clock.Clock
	logger *zap.Logger

	mu    sync.Mutex
	polls map[string]*poll
}

// NewPollService creates a poll service.
func NewPollService(ledger bank.Ledger, clk clock.Clock, logger *zap.Logger) *PollService {
	return &PollService{
		ledger: ledger,
		clock:  clk,
		logger: logger,
		polls:  make(map[string]*poll),
	}
}

// StartPoll opens a new poll.
func (s *PollService) StartPoll(_ context.Context, commitDuration, revealDuration time.Duration) (string, error) {
	if commitDuration <= 0 || revealDuration <= 0 {
		return "", fmt.Errorf("stage durations must be positive, got commit=%s reveal=%s", commitDuration, revealDuration)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	now := s.clock.Now()
	s.polls[id] = &poll{
		commitEnd:   now.Add(commitDuration),
		revealEnd:   now.Add(commitDuration + revealDuration),
		commitments: make(map[string]*commitment),
	}

	s.logger.Info("Poll started",
		zap.String("poll_id", id),
		zap.Time("commit_end", now.Add(commitDuration)),
		zap.Time("reveal_end", now.Add(commitDuration+revealDuration)))

	return id, nil
}

// Commit records a voter's commitment hash and token weight. A voter may
// re-commit before the commit stage ends; the latest commitment wins.
func (s *PollService) Commit(ctx context.Context, pollID, voter string, secretHash [32]byte, tokens decimal.Decimal) error {
	if !tokens.IsPositive() {
		return fmt.Errorf("%w: weight must be positive, got %s", ErrInsufficientWeight, tokens)
	}

	balance, err := s.ledger.BalanceOf(ctx, voter)
	if err != nil {
		return fmt.Errorf("check voter balance: %w", err)
	}
	if balance.LessThan(tokens) {
		return fmt.Errorf("%w: balance %s, weight %s", ErrInsufficientWeight, balance, tokens)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.polls[pollID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchPoll, pollID)
	}
	if s.clock.Now().After(p.commitEnd) {
		return ErrCommitStageOver
	}

	p.commitments[voter] = &commitment{hash: secretHash, tokens: tokens}
	return nil
}

// Reveal discloses a committed vote. The revealed (choice, salt) pair must
// hash to the committed secret.
func (s *PollService) Reveal(_ context.Context, pollID, voter string, choice Choice, salt []byte) error {
	if choice != ChoiceFor && choice != ChoiceAgainst {
		return fmt.Errorf("%w: %d", ErrInvalidChoice, choice)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.polls[pollID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchPoll, pollID)
	}

	now := s.clock.Now()
	if !now.After(p.commitEnd) || now.After(p.revealEnd) {
		return ErrRevealStageInactive
	}

	c, ok := p.commitments[voter]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoCommitment, voter)
	}
	if c.revealed {
		return ErrAlreadyRevealed
	}
	if SecretHash(choice, salt) != c.hash {
		return ErrSecretMismatch
	}

	c.revealed = true
	c.choice = choice
	if choice == ChoiceFor {
		p.votesFor = p.votesFor.Add(c.tokens)
	} else {
		p.votesAgainst = p.votesAgainst.Add(c.tokens)
	}
	return nil
}

// IsPassed reports whether revealed for-votes strictly outweigh
// against-votes. It reflects the tally revealed so far; callers gate on
// RevealEndTime before treating the result as final.
func (s *PollService) IsPassed(_ context.Context, pollID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.polls[pollID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNoSuchPoll, pollID)
	}
	return p.votesFor.GreaterThan(p.votesAgainst), nil
}

// WinningTokens returns the total revealed weight on the currently winning
// side.
func (s *PollService) WinningTokens(_ context.Context, pollID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.polls[pollID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoSuchPoll, pollID)
	}
	if p.votesFor.GreaterThan(p.votesAgainst) {
		return p.votesFor, nil
	}
	return p.votesAgainst, nil
}

// WinningTokensFor returns the weight a voter revealed on the winning side.
func (s *PollService) WinningTokensFor(_ context.Context, pollID, voter string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.polls[pollID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoSuchPoll, pollID)
	}

	winner := ChoiceAgainst
	if p.votesFor.GreaterThan(p.votesAgainst) {
		winner = ChoiceFor
	}

	c, ok := p.commitments[voter]
	if !ok || !c.revealed || c.choice != winner {
		return decimal.Zero, nil
	}
	return c.tokens, nil
}

// RevealEndTime returns the end of the poll's reveal stage.
func (s *PollService) RevealEndTime(_ context.Context, pollID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.polls[pollID]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrNoSuchPoll, pollID)
	}
	return p.revealEnd, nil
}
