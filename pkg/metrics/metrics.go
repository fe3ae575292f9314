package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Extraction metrics
	ExtractionsTotal  *prometheus.CounterVec
	ExtractionLatency prometheus.Histogram
	FallbackRecords   prometheus.Counter

	// Merge metrics
	MergesTotal      prometheus.Counter
	MedicinesTracked prometheus.Histogram

	// Job queue metrics
	JobsProcessed prometheus.Counter
	JobsFailed    prometheus.Counter
	JobRetries    *prometheus.CounterVec
	JobQueueSize  prometheus.Gauge
	JobLatency    prometheus.Histogram

	// Sharing metrics
	RecordsShared prometheus.Counter
}

// NewMetrics creates and registers all application metrics on the
// default registerer.
func NewMetrics(namespace, subsystem string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace, subsystem)
}

// NewMetricsWith registers on an explicit registerer; tests pass a
// fresh registry to avoid duplicate-registration panics.
func NewMetricsWith(reg prometheus.Registerer, namespace, subsystem string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ExtractionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "extractions_total",
			Help:      "Total number of image extraction calls by status",
		}, []string{"status"}),
		ExtractionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "extraction_duration_seconds",
			Help:      "Time spent on vision model extraction calls",
			Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		FallbackRecords: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "extraction_fallback_records_total",
			Help:      "Total number of unparseable model responses replaced with the fallback record",
		}),
		MergesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "record_merges_total",
			Help:      "Total number of candidate records merged into session records",
		}),
		MedicinesTracked: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "medicines_per_record",
			Help:      "Number of medicine entries in merged records",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		}),
		JobsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "extraction_jobs_processed_total",
			Help:      "Total number of successfully processed extraction jobs",
		}),
		JobsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "extraction_jobs_failed_total",
			Help:      "Total number of extraction jobs that exhausted retries",
		}),
		JobRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "extraction_job_retry_attempts_total",
			Help:      "Total number of retry attempts for extraction jobs",
		}, []string{"reason"}),
		JobQueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "extraction_job_queue_size",
			Help:      "Current number of pending extraction jobs",
		}),
		JobLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "extraction_job_duration_seconds",
			Help:      "Time between job submission and completed merge",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		RecordsShared: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "records_shared_total",
			Help:      "Total number of consolidated records shared by email",
		}),
	}
}
