package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector provides application metrics collection
type Collector struct {
	// Cycle Metrics
	CyclesTotal      prometheus.Counter
	CycleDuration    prometheus.Histogram
	CycleErrorsTotal *prometheus.CounterVec

	// Extraction Metrics
	APICallsTotal         *prometheus.CounterVec
	APICallDuration       *prometheus.HistogramVec
	ExtractionErrorsTotal *prometheus.CounterVec

	// Transformation Metrics
	TransformErrorsTotal *prometheus.CounterVec

	// Load Metrics
	RecordsLoadedTotal prometheus.Counter
	LoadBatchSize      prometheus.Histogram
	LoadErrorsTotal    *prometheus.CounterVec

	// Export Metrics
	ExportDuration    *prometheus.HistogramVec
	ExportRowsTotal   *prometheus.CounterVec
	ExportErrorsTotal *prometheus.CounterVec

	// Database Metrics
	DBQueryDuration *prometheus.HistogramVec
	DBErrorsTotal   *prometheus.CounterVec
}

// NewCollector creates a new metrics collector
func NewCollector(namespace string) *Collector {
	return &Collector{
		CyclesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_total",
				Help:      "Total number of pipeline cycles started",
			},
		),

		CycleDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Duration of one full extract-transform-load-export cycle",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),

		CycleErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycle_errors_total",
				Help:      "Total number of cycle-level errors by type",
			},
			[]string{"error_type"},
		),

		APICallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Total number of weather provider calls by status",
			},
			[]string{"status"},
		),

		APICallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_call_duration_seconds",
				Help:      "Weather provider call duration in seconds by status",
				Buckets:   []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 15},
			},
			[]string{"status"},
		),

		ExtractionErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "extraction_errors_total",
				Help:      "Total number of per-location extraction failures by reason",
			},
			[]string{"reason"},
		),

		TransformErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transform_errors_total",
				Help:      "Total number of per-location transformation failures by reason",
			},
			[]string{"reason"},
		),

		RecordsLoadedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_loaded_total",
				Help:      "Total number of canonical records appended to the row store",
			},
		),

		LoadBatchSize: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "load_batch_size",
				Help:      "Number of records per batch appended to the row store",
				Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
		),

		LoadErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "load_errors_total",
				Help:      "Total number of load failures by type",
			},
			[]string{"error_type"},
		),

		ExportDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "export_duration_seconds",
				Help:      "Export duration in seconds by format",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"format"},
		),

		ExportRowsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "export_rows_total",
				Help:      "Total number of rows written to export artifacts by format",
			},
			[]string{"format"},
		),

		ExportErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "export_errors_total",
				Help:      "Total number of export failures by format",
			},
			[]string{"format"},
		),

		DBQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Database query duration in seconds by query type",
				Buckets:   []float64{0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5},
			},
			[]string{"query_type"},
		),

		DBErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_errors_total",
				Help:      "Total number of database errors by type",
			},
			[]string{"error_type"},
		),
	}
}

// Timer provides timing functionality for operations
type Timer struct {
	start    time.Time
	observer prometheus.Observer
}

// NewTimer creates a new timer
func (c *Collector) NewTimer(histogram prometheus.Observer) *Timer {
	return &Timer{
		start:    time.Now(),
		observer: histogram,
	}
}

// ObserveDuration records the elapsed time since timer creation
func (t *Timer) ObserveDuration() time.Duration {
	duration := time.Since(t.start)
	if t.observer != nil {
		t.observer.Observe(duration.Seconds())
	}
	return duration
}

// RecordExtractionError increments the extraction error counter
func (c *Collector) RecordExtractionError(reason string) {
	c.ExtractionErrorsTotal.WithLabelValues(reason).Inc()
}

// RecordTransformError increments the transformation error counter
func (c *Collector) RecordTransformError(reason string) {
	c.TransformErrorsTotal.WithLabelValues(reason).Inc()
}

// RecordLoadError increments the load error counter
func (c *Collector) RecordLoadError(errorType string) {
	c.LoadErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordExportError increments the export error counter
func (c *Collector) RecordExportError(format string) {
	c.ExportErrorsTotal.WithLabelValues(format).Inc()
}

// RecordCycleError increments the cycle error counter
func (c *Collector) RecordCycleError(errorType string) {
	c.CycleErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordDBError increments the database error counter
func (c *Collector) RecordDBError(errorType string) {
	c.DBErrorsTotal.WithLabelValues(errorType).Inc()
}
