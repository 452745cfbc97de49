package txretry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// attemptsTotal counts attempts by terminal outcome
	attemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorelist_txn_attempts_total",
			Help: "Total number of transaction attempts",
		},
		[]string{"outcome"},
	)

	// retriesTotal counts scheduled retries by error kind
	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorelist_txn_retries_total",
			Help: "Total number of retries scheduled after a transient failure",
		},
		[]string{"kind"},
	)

	// runsTotal counts Run calls by final result
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorelist_txn_runs_total",
			Help: "Total number of Run calls by final result",
		},
		[]string{"result"},
	)

	// runDuration tracks end-to-end Run latency including backoff sleeps
	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chorelist_txn_run_duration_seconds",
			Help:    "End-to-end Run latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// backoffSeconds tracks the delays slept between attempts
	backoffSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chorelist_txn_backoff_seconds",
			Help:    "Backoff delay between attempts in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)
)
