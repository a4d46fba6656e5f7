package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_notification_requests_total",
			Help: "Total number of notification requests by overall status",
		},
		[]string{"status"},
	)

	ChannelResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_channel_results_total",
			Help: "Per-channel fan-out results",
		},
		[]string{"channel", "status"},
	)

	JobsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_jobs_executed_total",
			Help: "Total number of job executions by resulting status",
		},
		[]string{"channel", "status"},
	)

	JobExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulse_job_execution_duration_seconds",
			Help:    "Duration of one job execution in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	DispatchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulse_dispatch_queue_depth",
			Help: "Jobs waiting in the dispatch queue",
		},
	)

	RoutingCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_routing_cache_total",
			Help: "Routing resolution cache lookups by result",
		},
		[]string{"result"},
	)

	SweeperJobs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_sweeper_jobs_total",
			Help: "Jobs reclaimed by the retry sweeper",
		},
	)
)
