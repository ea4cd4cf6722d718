package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kevin_http_request_duration_seconds",
			Help:    "HTTP request latency by route template and status class",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	HTTPPanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kevin_http_panics_total",
		Help: "Handler panics recovered by the error middleware",
	})

	LocationDetections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kevin_location_detections_total",
			Help: "Location detection attempts by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	LocationDetectionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kevin_location_detection_duration_seconds",
			Help:    "Duration of location detection attempts in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method"},
	)

	FingerprintCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kevin_fingerprint_cache_lookups_total",
			Help: "Fingerprint cache lookups by result (hit, partial, miss, error)",
		},
		[]string{"result"},
	)

	ProposalsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kevin_proposals_generated_total",
			Help: "AI proposals produced by engine",
		},
		[]string{"engine"},
	)

	ProposalDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kevin_proposal_decisions_total",
			Help: "Proposal accept and dismiss decisions",
		},
		[]string{"decision"},
	)

	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kevin_worker_jobs_completed_total",
			Help: "Total number of jobs completed by the worker",
		},
		[]string{"job_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kevin_worker_jobs_failed_total",
			Help: "Total number of jobs failed by the worker",
		},
		[]string{"job_type", "reason"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "kevin_worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"job_type"},
	)
)
