// Package registry defines the domain model of the token-curated registry:
// listings contending for inclusion, and the challenges staked against them.
package registry

import (
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// Listing is an entry contending for (or holding) a place in the registry.
//
// A listing is whitelisted iff it has never lost a challenge and either its
// application window elapsed unchallenged or a challenge against it was
// resolved in its favor. Deposit always equals the stake currently escrowed
// on the listing's behalf.
type Listing struct {
	ID                string
	Name              string
	Owner             string
	Deposit           decimal.Decimal
	ApplicationExpiry time.Time
	Whitelisted       bool
	// ChallengeID references the open or most recently resolved challenge,
	// empty if the listing has never been challenged.
	ChallengeID string
}

// Challenge is a staked contest against a listing, one-to-one with a poll.
type Challenge struct {
	ID         string
	ListingID  string
	Challenger string
	// Stake is the amount the challenger escrowed, matching the listing's
	// deposit at challenge time.
	Stake decimal.Decimal
	// RewardPool is the total at risk: challenger stake plus listing deposit.
	RewardPool decimal.Decimal
	PollID     string

	// Resolution state. Resolved transitions false -> true exactly once.
	Resolved           bool
	WinnerIsChallenger bool
	// VoterPool is the slice of RewardPool reserved for winning voters, set
	// at resolution. VoterPoolRemaining decreases as voters claim.
	VoterPool          decimal.Decimal
	VoterPoolRemaining decimal.Decimal
	// TotalWinningTokens snapshots the winning side's revealed weight at
	// resolution, the denominator for pro-rata voter claims.
	TotalWinningTokens decimal.Decimal
}

// Open reports whether the challenge is awaiting resolution.
func (c *Challenge) Open() bool {
	return c != nil && !c.Resolved
}

// ListingID derives the registry identifier for a listing name: the
// Keccak-256 content hash of the name, 0x-prefixed hex.
func ListingID(name string) string {
	return crypto.Keccak256Hash([]byte(name)).Hex()
}
