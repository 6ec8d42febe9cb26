// Package metrics defines the prometheus collectors shared across the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ComposeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "compose_duration_seconds",
		Help:    "Wall time to fetch and splice one composed stream",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	ComposeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "compose_errors_total",
		Help: "Compositions aborted by a critical failure",
	})

	AssetFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asset_fetches_total",
		Help: "Asset lookups by kind and where they were served from",
	}, []string{"kind", "source"})

	AssetFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asset_fetch_failures_total",
		Help: "Asset fetch failures by kind and criticality",
	}, []string{"kind", "critical"})

	ResumePaths = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playback_resume_total",
		Help: "Resumes by the fallback step that succeeded",
	}, []string{"path"})

	PlaybackErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playback_errors_total",
		Help: "Playback start refusals and decode errors",
	}, []string{"type"})

	BlobsLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playback_blobs_live",
		Help: "Playable objects currently registered",
	})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sessions_active",
		Help: "Sessions currently in the active state",
	})

	SessionsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sessions_completed_total",
		Help: "Sessions that played through to the closing cue",
	})
)
