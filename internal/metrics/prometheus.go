package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remixengine_jobs_processed_total",
		Help: "Total number of jobs processed, by queue, type and outcome",
	}, []string{"queue", "type", "status"})

	JobProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "remixengine_job_processing_duration_seconds",
		Help:    "Duration of a single job execution",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"type"})

	ActiveWorkers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "remixengine_active_workers",
		Help: "Number of workers currently executing a job",
	}, []string{"queue"})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remixengine_retry_total",
		Help: "Total number of scheduled retries",
	}, []string{"queue", "attempt"})

	DeadLetterTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remixengine_dead_letter_total",
		Help: "Total number of jobs moved to the dead-letter list",
	}, []string{"queue"})

	RecoveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remixengine_recovered_jobs_total",
		Help: "Jobs moved back to the wait list from a dead consumer",
	}, []string{"queue"})

	BookkeepingFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remixengine_bookkeeping_failures_total",
		Help: "Fire-and-forget persistence writes that failed",
	}, []string{"task"})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "remixengine_queue_depth",
		Help: "Number of jobs per queue and state",
	}, []string{"queue", "state"})
)
