package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job metrics
var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipbot_jobs_total",
			Help: "Total number of transformation jobs by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipbot_job_duration_seconds",
			Help:    "Transformation job duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"kind"},
	)

	JobsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipbot_jobs_in_progress",
			Help: "Number of jobs currently dispatched to the transcode engine",
		},
	)

	MergeStrategyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipbot_merge_strategy_total",
			Help: "Merge path selections (copy = lossless concat, reencode = canonical fallback)",
		},
		[]string{"strategy"},
	)
)

// Session metrics
var (
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipbot_active_sessions",
			Help: "Number of user sessions currently resident",
		},
	)

	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipbot_events_total",
			Help: "Total number of inbound chat events by kind",
		},
		[]string{"kind"},
	)

	StateRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clipbot_state_rejections_total",
			Help: "Events rejected before any work ran (state mismatch or invalid input)",
		},
	)
)

// Transfer metrics
var (
	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipbot_transfers_total",
			Help: "Total number of media transfers by direction and outcome",
		},
		[]string{"direction", "status"},
	)

	TransferBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipbot_transfer_bytes_total",
			Help: "Total bytes transferred by direction",
		},
		[]string{"direction"},
	)
)
