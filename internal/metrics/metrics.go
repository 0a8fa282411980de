package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QuotesTotal counts quote requests by outcome (ok, no_route, unreachable, invalid)
	QuotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_quotes_total",
			Help: "Total number of aggregator quote requests",
		},
		[]string{"outcome"},
	)

	// QuoteLatency tracks aggregator quote round trips
	QuoteLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "swap_quote_latency_seconds",
			Help:    "Aggregator quote latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ApprovalsTotal counts ERC20 approvals sent before a swap
	ApprovalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_approvals_total",
			Help: "Total number of token approvals submitted",
		},
		[]string{"chain", "outcome"},
	)

	// TransactionRewrites counts account-model transactions recompiled to create a destination account
	TransactionRewrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_tx_rewrites_total",
			Help: "Total number of transactions rewritten before signing",
		},
		[]string{"chain", "outcome"},
	)

	// BroadcastsTotal counts submissions per chain and outcome
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_broadcasts_total",
			Help: "Total number of signed transactions submitted",
		},
		[]string{"chain", "outcome"},
	)

	// PollsTotal counts settlement status polls by reported status
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_status_polls_total",
			Help: "Total number of settlement status polls",
		},
		[]string{"status"},
	)

	// SettlementsTotal counts applied terminal transitions
	SettlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_settlements_total",
			Help: "Total number of swaps reaching a terminal state",
		},
		[]string{"status"},
	)

	// TrackedSwaps is the number of active settlement tracking loops
	TrackedSwaps = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "swap_tracked_active",
			Help: "Number of swaps currently being tracked",
		},
	)
)
