package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for PerpRisk.
type Metrics struct {
	// --- Ingestion ---
	RecordsIngested *prometheus.CounterVec
	IngestErrors    *prometheus.CounterVec
	NATSPullLatency *prometheus.HistogramVec

	// --- Evaluation ---
	EvaluationsTotal     prometheus.Counter
	EvaluationErrors     *prometheus.CounterVec
	EvaluationDuration   prometheus.Histogram
	AccountsTracked      prometheus.Gauge
	LiquidatableAccounts prometheus.Gauge
	AlertsPublished      prometheus.Counter

	// --- Persistence ---
	PersistRowsWritten prometheus.Counter
	PersistBatchSize   prometheus.Histogram
	PersistBatchDur    prometheus.Histogram
	PersistErrors      *prometheus.CounterVec
	PersistRetry       prometheus.Counter

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	evalBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		// Ingestion
		RecordsIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_records_ingested_total",
			Help: "Upstream records applied to the state store",
		}, []string{"record_type"}),

		IngestErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_ingest_errors_total",
			Help: "Records rejected during parsing or apply",
		}, []string{"record_type", "reason"}),

		NATSPullLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "risk_nats_pull_latency_seconds",
			Help:    "NATS pull request latency",
			Buckets: evalBuckets,
		}, []string{"subject"}),

		// Evaluation
		EvaluationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "risk_evaluations_total",
			Help: "Account risk evaluations performed",
		}),

		EvaluationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_evaluation_errors_total",
			Help: "Evaluations aborted (missing market, bank, or feed)",
		}, []string{"reason"}),

		EvaluationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_evaluation_duration_seconds",
			Help:    "Time to evaluate one account",
			Buckets: evalBuckets,
		}),

		AccountsTracked: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "risk_accounts_tracked",
			Help: "Accounts currently in the state store",
		}),

		LiquidatableAccounts: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "risk_liquidatable_accounts",
			Help: "Accounts below partial margin requirement at last pass",
		}),

		AlertsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "risk_alerts_published_total",
			Help: "Liquidation alerts published to NATS",
		}),

		// Persistence
		PersistRowsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "risk_persist_rows_written_total",
			Help: "Risk history rows written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_persist_batch_size",
			Help:    "Rows per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "risk_persist_retry_total",
			Help: "Persistence retries",
		}),

		// Query API
		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "risk_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}
