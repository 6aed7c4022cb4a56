// Package metrics registers the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckIns counts recorded arrivals by method and resulting status.
	CheckIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "staffattend_checkins_total",
		Help: "Attendance check-ins recorded.",
	}, []string{"method", "status"})

	// MatchOutcomes counts recognition attempts by outcome.
	MatchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "staffattend_match_outcomes_total",
		Help: "Face recognition attempts by outcome.",
	}, []string{"outcome"})

	Enrollments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "staffattend_enrollments_total",
		Help: "Face embeddings enrolled.",
	})

	// CaptureJobs counts processed capture jobs by final status.
	CaptureJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "staffattend_capture_jobs_total",
		Help: "Capture jobs processed by the worker.",
	}, []string{"status"})

	FaceServiceLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "staffattend_face_service_seconds",
		Help:    "Latency of face service calls.",
		Buckets: prometheus.DefBuckets,
	})

	// SyncMutations counts replayed offline mutations by table and result.
	SyncMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "staffattend_sync_mutations_total",
		Help: "Offline mutations replayed through /v1/sync.",
	}, []string{"table", "result"})

	HTTPRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "staffattend_http_request_seconds",
		Help:    "HTTP request latency by route and status code.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "code"})
)
