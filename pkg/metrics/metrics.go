// Package metrics exposes Prometheus instrumentation for the database
// layer. Metrics register themselves through promauto; embedding
// applications scrape them from their own registry handler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalVectors tracks the number of live records per collection.
	TotalVectors = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oasysdb_vectors_total",
			Help: "Number of live vector records per collection",
		},
		[]string{"collection"},
	)

	// SnapshotDuration measures how long collection snapshots take to
	// write or load.
	SnapshotDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oasysdb_snapshot_duration_seconds",
			Help:    "Duration of collection snapshot writes and loads",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"collection", "op"},
	)

	// SnapshotBytes records the size of the last written snapshot per
	// collection.
	SnapshotBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oasysdb_snapshot_bytes",
			Help: "Size in bytes of the last written collection snapshot",
		},
		[]string{"collection"},
	)
)
