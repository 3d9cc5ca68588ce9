package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Broadcaster metrics
	Broadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchlist_broadcasts_total",
			Help: "Snapshots fanned out, by trigger (tick, mutation, register)",
		}, []string{"trigger"})
	BroadcastErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watchlist_broadcast_errors_total",
			Help: "Broadcast cycles skipped because the store read failed",
		})
	BroadcastLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "watchlist_broadcast_latency_seconds",
			Help:    "Time to compute and push one snapshot",
			Buckets: prometheus.DefBuckets,
		})
	SinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchlist_sink_errors_total",
			Help: "Snapshot sink publish failures",
		}, []string{"sink"})

	// Session metrics
	Sessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "watchlist_sessions",
			Help: "Currently registered viewer sessions",
		})
	DroppedSessions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watchlist_sessions_dropped_total",
			Help: "Sessions removed because a push found them closed",
		})
	SkippedPushes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watchlist_pushes_skipped_total",
			Help: "Payloads dropped for a slow session",
		})

	// API metrics
	Mutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchlist_mutations_total",
			Help: "Watchlist mutations by operation and outcome",
		}, []string{"op", "outcome"})
)
