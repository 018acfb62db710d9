package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChangesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "binsync_changes_received_total",
		Help: "Total number of row changes read from the binlog.",
	}, []string{"kind"})

	OperationsNormalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "binsync_operations_normalized_total",
		Help: "Total number of index operations produced by the normalizer.",
	}, []string{"action"})

	ChangesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "binsync_changes_skipped_total",
		Help: "Total number of row changes skipped by the normalizer.",
	}, []string{"reason"})

	BatchesCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "binsync_batches_committed_total",
		Help: "Total number of batches committed to the sink.",
	}, []string{"sink"})

	OperationsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "binsync_operations_committed_total",
		Help: "Total number of index operations committed to the sink.",
	}, []string{"sink"})

	CommitErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "binsync_commit_errors_total",
		Help: "Total number of failed batch commits.",
	}, []string{"sink"})

	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "binsync_batch_size",
		Help:    "Number of operations per committed batch.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	CommitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "binsync_commit_duration_seconds",
		Help:    "Duration of batch commits to the sink.",
		Buckets: prometheus.DefBuckets,
	})

	SinkRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "binsync_sink_http_retries_total",
		Help: "Total number of HTTP-level retries against the sink.",
	}, []string{"sink"})

	CheckpointSaves = promauto.NewCounter(prometheus.CounterOpts{
		Name: "binsync_checkpoint_saves_total",
		Help: "Total number of checkpoint writes.",
	})

	CheckpointErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "binsync_checkpoint_errors_total",
		Help: "Total number of failed checkpoint writes.",
	})

	CheckpointPosition = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "binsync_checkpoint_log_pos",
		Help: "Binlog offset of the last saved checkpoint.",
	})

	PipelineState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "binsync_pipeline_state",
		Help: "Current driver state (0=initializing 1=streaming 2=draining 3=failing 4=terminated).",
	})

	NotifyAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "binsync_notify_attempts_total",
		Help: "Total number of failure notifications attempted, by result.",
	}, []string{"result"})

	SinkThrottled = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "binsync_sink_throttled_seconds",
		Help:    "Time sink requests spent waiting on the request rate limit.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"sink"})

	WebhookRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "binsync_webhook_retries_total",
		Help: "Total number of alert webhook delivery retries.",
	})

	BinlogEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "binsync_binlog_events_total",
		Help: "Total number of raw binlog events read, by event type.",
	}, []string{"type"})

	PanicsRecovered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "binsync_panics_recovered_total",
		Help: "Total number of panics recovered in background goroutines, by goroutine.",
	}, []string{"goroutine"})
)
