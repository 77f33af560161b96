// Package metrics exposes Prometheus instrumentation for the Slate server:
// connection and room gauges, history mutation counters, and persistence
// latency. Served on /metrics via promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectedClients tracks currently open websocket sessions.
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slate_connected_clients",
			Help: "Current number of connected websocket clients",
		},
	)

	// OpenRooms tracks rooms currently held in memory.
	OpenRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slate_open_rooms",
			Help: "Current number of rooms held in memory",
		},
	)

	// ActionsCommitted counts committed actions by kind ("stroke" or "shape").
	ActionsCommitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slate_actions_committed_total",
			Help: "Total number of committed draw actions",
		},
		[]string{"kind"},
	)

	// HistoryOps counts undo/redo/clear operations that changed room state.
	HistoryOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slate_history_ops_total",
			Help: "Total number of applied history operations",
		},
		[]string{"op"}, // "undo", "redo", "clear"
	)

	// PersistFailures counts room document writes that failed.
	PersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slate_persist_failures_total",
			Help: "Total number of failed room document writes",
		},
	)

	// PersistDuration observes room document write latency.
	PersistDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "slate_persist_duration_seconds",
			Help:    "Room document write duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
