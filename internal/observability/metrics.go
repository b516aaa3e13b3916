package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "firms_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ingestion pipeline.
type Metrics struct {
	RunsTotal            *prometheus.CounterVec // labels: outcome={success,error}
	RunDuration          prometheus.Histogram
	PipelineRunning      prometheus.Gauge
	LastSuccessTimestamp prometheus.Gauge

	// Upstream fetch metrics.
	FetchRequests *prometheus.CounterVec   // labels: source, outcome={success,empty,timeout,network,http_status,format}
	FetchDuration *prometheus.HistogramVec // labels: source
	FetchRetries  prometheus.Counter

	// Record flow metrics.
	RowsFetched    prometheus.Counter
	RowsRejected   *prometheus.CounterVec // labels: reason
	RecordsUnique  prometheus.Counter
	PointsInserted prometheus.Counter
	PointsSkipped  prometheus.Counter

	// Store and publisher metrics.
	StoreBatchDuration prometheus.Histogram
	PublishErrors      prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// multiple tests can each build their own set.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Ingestion runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of a complete ingestion run.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while the scheduler loop is active, 0 when shut down.",
		}),
		LastSuccessTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful ingestion run.",
		}),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "FIRMS API requests by source and outcome.",
		}, []string{"source", "outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "FIRMS API request duration in seconds, retries included.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 60},
		}, []string{"source"}),
		FetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_retries_total",
			Help:      "FIRMS API request retries.",
		}),
		RowsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_fetched_total",
			Help:      "CSV rows received from the FIRMS API.",
		}),
		RowsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_rejected_total",
			Help:      "Rows dropped by normalization, by reason.",
		}, []string{"reason"}),
		RecordsUnique: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_unique_total",
			Help:      "Records remaining after per-run deduplication.",
		}),
		PointsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_inserted_total",
			Help:      "Fire points newly written to the store.",
		}),
		PointsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_skipped_total",
			Help:      "Fire points already present in the store.",
		}),
		StoreBatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_upsert_duration_seconds",
			Help:      "Duration of a complete UpsertMany call.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed attempts to publish inserted points to Kafka.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RunsTotal,
		m.RunDuration,
		m.PipelineRunning,
		m.LastSuccessTimestamp,
		m.FetchRequests,
		m.FetchDuration,
		m.FetchRetries,
		m.RowsFetched,
		m.RowsRejected,
		m.RecordsUnique,
		m.PointsInserted,
		m.PointsSkipped,
		m.StoreBatchDuration,
		m.PublishErrors,
	}
}
