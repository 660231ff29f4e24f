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

	PipelineEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_events_total",
			Help: "Domain events handled by the pipeline, by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	FanoutRecipients = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_fanout_recipients",
			Help:    "Recipient copies written per notification record",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"kind"},
	)

	DispatchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_dispatch_requests_total",
			Help: "Dispatch requests processed, by outcome and target type",
		},
		[]string{"outcome", "target_type"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "push_dispatch_duration_seconds",
			Help: "Push provider send latency",
		},
		[]string{"target_type"},
	)

	DispatchInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "push_dispatch_in_flight",
			Help: "Dispatch requests currently being processed",
		},
	)

	TopicSubscriptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_topic_subscriptions_total",
			Help: "Topic subscription attempts, by result",
		},
		[]string{"result"},
	)

	ExternalRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "external_requests_total",
			Help: "Outbound HTTP calls, by service and status class",
		},
		[]string{"service", "status"},
	)
)
