// Package metrics provides Prometheus collectors for import observability.
//
// All collectors register automatically via promauto and are safe for
// concurrent use, though the importer itself runs single-threaded.
//
//	metrics.RecordsImported.Inc()
//	metrics.ImportsTotal.WithLabelValues(metrics.StatusSuccess).Inc()
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Import outcome labels for ImportsTotal.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

var (
	// RecordsImported counts source records fully converted and submitted
	// to the destination.
	RecordsImported = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "treeport",
		Name:      "records_imported_total",
		Help:      "Total number of records imported",
	})

	// BytesWritten counts bytes written to destination objects, measured
	// after compression.
	BytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "treeport",
		Name:      "bytes_written_total",
		Help:      "Total bytes written to destination objects",
	})

	// ImportsTotal counts completed import runs by outcome.
	ImportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "treeport",
		Name:      "imports_total",
		Help:      "Total import runs by status",
	}, []string{"status"})

	// ImportDuration tracks wall-clock time of whole import runs.
	ImportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "treeport",
		Name:      "import_duration_seconds",
		Help:      "Duration of import runs in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	})

	// TransformFailures counts per-record value transformations that
	// returned an error.
	TransformFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "treeport",
		Name:      "transform_failures_total",
		Help:      "Total number of failed value transformations",
	})
)
