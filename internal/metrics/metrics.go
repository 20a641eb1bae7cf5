// Package metrics holds the Prometheus collectors of the sync pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "nftsync"

var (
	EventsDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "decoded_total",
		Help:      "Events handed to a decoder, by sub kind",
	}, []string{"sub_kind"})

	EventsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "skipped_total",
		Help:      "Matched events skipped as malformed, by sub kind",
	}, []string{"sub_kind"})

	BatchesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "batches",
		Name:      "processed_total",
		Help:      "Event batches processed, by outcome",
	}, []string{"outcome"})

	RowsPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "batches",
		Name:      "rows_total",
		Help:      "Rows submitted for persistence, by table",
	}, []string{"table"})

	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "batches",
		Name:      "duration_seconds",
		Help:      "Time to dispatch and persist one batch",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "processed_total",
		Help:      "Job executions, by queue and outcome",
	}, []string{"queue", "outcome"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "duration_seconds",
		Help:      "Job execution time",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
	}, []string{"queue"})

	JobsDeadLettered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "dead_lettered_total",
		Help:      "Jobs that exhausted their retries",
	}, []string{"queue"})

	JobsInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "in_flight",
		Help:      "Jobs currently executing in this process",
	}, []string{"queue"})

	QueuePaused = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "queue_paused",
		Help:      "1 when the queue is paused",
	}, []string{"queue"})

	ReorgRowsDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reorg",
		Name:      "rows_deleted_total",
		Help:      "Rows removed for orphaned blocks, by table",
	}, []string{"table"})

	ReorgsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reorg",
		Name:      "orphaned_blocks_total",
		Help:      "Orphaned block hashes scheduled for cleanup",
	})

	LastProcessedBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "last_processed_block",
		Help:      "Highest block fully processed, by driver",
	}, []string{"driver"})

	ReconcileGroups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "groups_total",
		Help:      "Fill groups produced by payment reconciliation",
	}, []string{"bundle", "reliable"})
)
