// Package metrics contains the prometheus metrics exported by the remy
// controller and the tools built around it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for whisker lookups and control decisions.
var (
	WhiskerLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remy_whisker_lookups_total",
			Help: "Number of whisker tree lookups by result (match, ambiguous, miss, overlap).",
		},
		[]string{"result"},
	)
	Decisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remy_decisions_total",
			Help: "Number of window and pacing decisions by source (table, bootstrap, idle).",
		},
		[]string{"source"},
	)
	FlowAborts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remy_flow_aborts_total",
			Help: "Number of flows whose control loop was aborted, by reason.",
		},
		[]string{"reason"},
	)
	CongestionWindow = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "remy_congestion_window_segments",
			Help:    "A histogram of congestion windows chosen from the whisker table.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 15),
		},
	)
	PacingRate = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "remy_pacing_rate_mbps",
			Help: "A histogram of pacing rates chosen from the whisker table.",
			Buckets: []float64{
				.1, .15, .25, .4, .6,
				1, 1.5, 2.5, 4, 6,
				10, 15, 25, 40, 60,
				100, 150, 250, 400, 600,
				1000, 10000},
		},
	)
	ReplayFlows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remy_replay_flows_total",
			Help: "Number of flows replayed from traces, by status.",
		},
		[]string{"status"},
	)
)
