// Package voting implements a commit-reveal poll service.
//
// A poll runs a two-stage vote: during the commit stage voters submit a
// Keccak-256 hash of (choice, salt) together with their token weight; during
// the reveal stage they disclose choice and salt, and only revealed votes
// count toward the tally. Vote choices stay hidden during the commit stage
// to prevent herding.
package voting

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// Choice is a vote option.
type Choice uint8

const (
	// ChoiceAgainst votes against the proposition (for the registry this
	// means siding with the challenger).
	ChoiceAgainst Choice = 0
	// ChoiceFor votes in favor of the proposition (keep the listing).
	ChoiceFor Choice = 1
)

var (
	ErrNoSuchPoll          = errors.New("no such poll")
	ErrCommitStageOver     = errors.New("commit stage has ended")
	ErrRevealStageInactive = errors.New("reveal stage is not active")
	ErrNoCommitment        = errors.New("no commitment for voter")
	ErrAlreadyRevealed     = errors.New("vote already revealed")
	ErrSecretMismatch      = errors.New("revealed vote does not match commitment")
	ErrInsufficientWeight  = errors.New("vote weight exceeds token balance")
	ErrInvalidChoice       = errors.New("invalid vote choice")
)

// Poller is the poll surface the registry consumes. Commit and Reveal are
// voter-facing and exposed by the concrete service.
type Poller interface {
	// StartPoll opens a new poll and returns its ID. The commit stage runs
	// from now for commitDuration, the reveal stage for revealDuration after
	// that.
	StartPoll(ctx context.Context, commitDuration, revealDuration time.Duration) (string, error)

	// IsPassed reports whether revealed for-votes outweigh against-votes.
	IsPassed(ctx context.Context, pollID string) (bool, error)

	// WinningTokens returns the total revealed token weight on the winning
	// side.
	WinningTokens(ctx context.Context, pollID string) (decimal.Decimal, error)

	// WinningTokensFor returns the revealed token weight a voter contributed
	// to the winning side, zero if they voted the other way or never
	// revealed.
	WinningTokensFor(ctx context.Context, pollID, voter string) (decimal.Decimal, error)

	// RevealEndTime returns when the poll's reveal stage ends.
	RevealEndTime(ctx context.Context, pollID string) (time.Time, error)
}

// SecretHash computes the commitment hash for a choice and salt. Voters call
// this client-side and submit only the hash during the commit stage.
func SecretHash(choice Choice, salt []byte) [32]byte {
	return crypto.Keccak256Hash([]byte{byte(choice)}, salt)
}
