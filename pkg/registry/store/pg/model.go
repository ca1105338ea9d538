package pg

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/curatelabs/tcr-middleware/pkg/registry"
)

// ListingDao is a data access object that maps directly to the 'listings' table in PostgreSQL.
type ListingDao struct {
	bun.BaseModel     `bun:"table:listings,alias:l"`
	ID                string    `bun:"id,pk,type:varchar(66)"`
	Name              string    `bun:"name,notnull,type:varchar(255)"`
	Owner             string    `bun:"owner,notnull,type:varchar(255)"`
	Deposit           string    `bun:"deposit,notnull,type:numeric(38,18)"`
	ApplicationExpiry time.Time `bun:"application_expiry,notnull"`
	Whitelisted       bool      `bun:"whitelisted,notnull,default:false"`
	ChallengeID       *string   `bun:"challenge_id,type:varchar(36)"`
	CreatedAt         time.Time `bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt         time.Time `bun:"updated_at,nullzero,default:current_timestamp"`
}

// ChallengeDao is a data access object that maps directly to the 'challenges' table in PostgreSQL.
type ChallengeDao struct {
	bun.BaseModel      `bun:"table:challenges,alias:c"`
	ID                 string    `bun:"id,pk,type:varchar(36)"`
	ListingID          string    `bun:"listing_id,notnull,type:varchar(66)"`
	Challenger         string    `bun:"challenger,notnull,type:varchar(255)"`
	Stake              string    `bun:"stake,notnull,type:numeric(38,18)"`
	RewardPool         string    `bun:"reward_pool,notnull,type:numeric(38,18)"`
	PollID             string    `bun:"poll_id,notnull,type:varchar(36)"`
	Resolved           bool      `bun:"resolved,notnull,default:false"`
	WinnerIsChallenger bool      `bun:"winner_is_challenger,notnull,default:false"`
	VoterPool          string    `bun:"voter_pool,notnull,default:'0'"`
	VoterPoolRemaining string    `bun:"voter_pool_remaining,notnull,default:'0'"`
	TotalWinningTokens string    `bun:"total_winning_tokens,notnull,default:'0'"`
	CreatedAt          time.Time `bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt          time.Time `bun:"updated_at,nullzero,default:current_timestamp"`
}

// RewardClaimDao is a data access object that maps directly to the 'reward_claims' table in PostgreSQL.
type RewardClaimDao struct {
	bun.BaseModel `bun:"table:reward_claims,alias:rc"`
	ChallengeID   string    `bun:"challenge_id,pk,type:varchar(36)"`
	Voter         string    `bun:"voter,pk,type:varchar(255)"`
	CreatedAt     time.Time `bun:"created_at,nullzero,default:current_timestamp"`
}

// toListingDao converts a registry.Listing to ListingDao.
func toListingDao(l *registry.Listing) *ListingDao {
	dao := &ListingDao{
		ID:                l.ID,
		Name:              l.Name,
		Owner:             l.Owner,
		Deposit:           l.Deposit.String(),
		ApplicationExpiry: l.ApplicationExpiry,
		Whitelisted:       l.Whitelisted,
	}
	if l.ChallengeID != "" {
		dao.ChallengeID = &l.ChallengeID
	}
	return dao
}

// toListing converts a ListingDao to registry.Listing.
func toListing(dao *ListingDao) (*registry.Listing, error) {
	deposit, err := decimal.NewFromString(dao.Deposit)
	if err != nil {
		return nil, err
	}
	l := &registry.Listing{
		ID:                dao.ID,
		Name:              dao.Name,
		Owner:             dao.Owner,
		Deposit:           deposit,
		ApplicationExpiry: dao.ApplicationExpiry,
		Whitelisted:       dao.Whitelisted,
	}
	if dao.ChallengeID != nil {
		l.ChallengeID = *dao.ChallengeID
	}
	return l, nil
}

// toChallengeDao converts a registry.Challenge to ChallengeDao.
func toChallengeDao(c *registry.Challenge) *ChallengeDao {
	return &ChallengeDao{
		ID:                 c.ID,
		ListingID:          c.ListingID,
		Challenger:         c.Challenger,
		Stake:              c.Stake.String(),
		RewardPool:         c.RewardPool.String(),
		PollID:             c.PollID,
		Resolved:           c.Resolved,
		WinnerIsChallenger: c.WinnerIsChallenger,
		VoterPool:          c.VoterPool.String(),
		VoterPoolRemaining: c.VoterPoolRemaining.String(),
		TotalWinningTokens: c.TotalWinningTokens.String(),
	}
}

// toChallenge converts a ChallengeDao to registry.Challenge.
func toChallenge(dao *ChallengeDao) (*registry.Challenge, error) {
	c := &registry.Challenge{
		ID:                 dao.ID,
		ListingID:          dao.ListingID,
		Challenger:         dao.Challenger,
		PollID:             dao.PollID,
		Resolved:           dao.Resolved,
		WinnerIsChallenger: dao.WinnerIsChallenger,
	}

	var err error
	if c.Stake, err = decimal.NewFromString(dao.Stake); err != nil {
		return nil, err
	}
	if c.RewardPool, err = decimal.NewFromString(dao.RewardPool); err != nil {
		return nil, err
	}
	if c.VoterPool, err = decimal.NewFromString(dao.VoterPool); err != nil {
		return nil, err
	}
	if c.VoterPoolRemaining, err = decimal.NewFromString(dao.VoterPoolRemaining); err != nil {
		return nil, err
	}
	if c.TotalWinningTokens, err = decimal.NewFromString(dao.TotalWinningTokens); err != nil {
		return nil, err
	}

	return c, nil
}
