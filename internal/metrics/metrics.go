package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PublishRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proplist_publish_runs_total",
			Help: "Total number of property publish runs by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	PublishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "proplist_publish_duration_seconds",
			Help:    "Duration of property publish runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	UploadAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proplist_image_upload_attempts_total",
			Help: "Total number of image upload requests sent to the backend",
		},
	)

	UploadFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proplist_image_upload_failures_total",
			Help: "Total number of images that failed every upload attempt",
		},
	)

	AgentResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proplist_agent_resolutions_total",
			Help: "Agent id resolutions by source",
		},
		[]string{"source"},
	)

	SampleFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proplist_sample_fallbacks_total",
			Help: "Times the listing fell back to built-in sample properties",
		},
	)
)

// Outcome labels for PublishRuns.
const (
	OutcomeOK      = "ok"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)
