// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
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

var (
	LifecycleTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "endorsement_transitions_total",
			Help: "Total number of committed endorsement state transitions",
		},
		[]string{"transition"},
	)

	LifecycleConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "endorsement_transition_conflicts_total",
			Help: "Total number of transitions rejected because the record state changed",
		},
		[]string{"transition"},
	)

	NotificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "endorsement_notifications_total",
			Help: "Notification delivery outcomes by kind",
		},
		[]string{"kind", "result"},
	)

	NotificationDispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "endorsement_notification_dispatch_seconds",
			Help:    "Duration of a single notification delivery including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	ShowcaseCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "endorsement_showcase_cache_lookups_total",
			Help: "Showcase cache lookups by result",
		},
		[]string{"result"},
	)
)
