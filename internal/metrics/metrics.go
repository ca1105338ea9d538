package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ApplicationsTotal counts listing applications accepted
	ApplicationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "registry_applications_total",
			Help: "Total number of listing applications accepted",
		},
	)

	// ChallengesTotal counts challenges opened against listings
	ChallengesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "registry_challenges_total",
			Help: "Total number of challenges opened",
		},
	)

	// ResolutionsTotal counts challenge resolutions by winner
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_challenge_resolutions_total",
			Help: "Total number of challenges resolved",
		},
		[]string{"winner"},
	)

	// RewardAmount tracks winner reward sizes in token units
	RewardAmount = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "registry_reward_amount",
			Help:    "Reward paid to challenge winners in token units",
			Buckets: []float64{1, 10, 100, 1000, 10000, 100000},
		},
		[]string{"winner"},
	)

	// WhitelistedListings tracks the current number of whitelisted listings
	WhitelistedListings = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "registry_whitelisted_listings",
			Help: "Current number of whitelisted listings",
		},
	)

	// OpenChallenges tracks challenges awaiting resolution
	OpenChallenges = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "registry_open_challenges",
			Help: "Current number of unresolved challenges",
		},
	)

	// EscrowImbalance reports the difference between the escrow account
	// balance and the obligations derived from registry state. Zero when
	// funds are conserved.
	EscrowImbalance = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "registry_escrow_imbalance",
			Help: "Escrow balance minus outstanding obligations in token units",
		},
	)
)
