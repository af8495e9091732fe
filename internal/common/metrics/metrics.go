// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "validation_sessions_created_total",
			Help: "Total number of validation sessions created",
		},
	)

	SessionsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "validation_sessions_completed_total",
			Help: "Total number of validation sessions completed",
		},
	)

	SessionsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "validation_sessions_expired_total",
			Help: "Total number of validation sessions expired",
		},
	)

	ResponsesSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validation_responses_submitted_total",
			Help: "Total number of responses submitted by question type",
		},
		[]string{"question_type"},
	)

	SyncAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_sync_attempts_total",
			Help: "Total number of CRM sync attempts by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "crm_sync_duration_seconds",
			Help: "Duration of CRM sync calls in seconds",
		},
		[]string{"provider"},
	)

	RateLimitWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_rate_limit_waits_total",
			Help: "Number of calls that blocked on the provider rate limiter",
		},
		[]string{"provider"},
	)

	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)
