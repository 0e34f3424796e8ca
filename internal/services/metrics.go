package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	oracleCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chronocharm_oracle_calls_total",
		Help: "Oracle invocations by operation and outcome (ok, fallback).",
	}, []string{"operation", "outcome"})

	oracleLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chronocharm_oracle_duration_seconds",
		Help:    "Oracle call latency by operation.",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
	}, []string{"operation"})

	sparseBreakdowns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chronocharm_breakdown_sparse_total",
		Help: "Oracle breakdowns that produced fewer than three tasks.",
	})

	wagersOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chronocharm_wagers_opened_total",
		Help: "Wagers accepted.",
	})

	wagersSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chronocharm_wagers_settled_total",
		Help: "Wagers settled by outcome (won, lost, expired).",
	}, []string{"outcome"})

	stakesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chronocharm_stakes_rejected_total",
		Help: "Stakes rejected for insufficient Mana.",
	})

	manaFlow = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chronocharm_mana_total",
		Help: "Mana moved through the ledger by direction (staked, awarded, forfeited).",
	}, []string{"direction"})
)
