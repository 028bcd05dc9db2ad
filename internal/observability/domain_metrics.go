package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ingestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdata_ingest_total",
			Help: "Total number of upload ingestions by format and outcome.",
		},
		[]string{"format", "status"},
	)
	ingestTables = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "askdata_ingest_tables",
			Help: "Number of tables materialized by the most recent ingestion.",
		},
	)
	ingestStatementFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdata_ingest_statement_failures_total",
			Help: "Total number of SQL script statements that failed during ingestion.",
		},
	)
	askTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdata_ask_total",
			Help: "Total number of questions by outcome.",
		},
		[]string{"status"},
	)
	generationLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askdata_generation_latency_ms",
			Help:    "SQL generation backend latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 20000, 30000},
		},
	)
	executionLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askdata_execution_latency_ms",
			Help:    "Generated SQL execution latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
	)
	deletedTablesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdata_deleted_tables_total",
			Help: "Total number of tables dropped by data deletion.",
		},
	)
	registryVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "askdata_registry_version",
			Help: "Current schema registry version.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ingestTotal,
		ingestTables,
		ingestStatementFailuresTotal,
		askTotal,
		generationLatencyMs,
		executionLatencyMs,
		deletedTablesTotal,
		registryVersion,
	)
}

func ObserveIngest(format, status string, tables, statementFailures int) {
	ingestTotal.WithLabelValues(format, status).Inc()
	if status == "ok" {
		ingestTables.Set(float64(tables))
	}
	if statementFailures > 0 {
		ingestStatementFailuresTotal.Add(float64(statementFailures))
	}
}

func ObserveAsk(status string) {
	askTotal.WithLabelValues(status).Inc()
}

func ObserveGenerationLatency(elapsed time.Duration) {
	generationLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveExecutionLatency(elapsed time.Duration) {
	executionLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func AddDeletedTables(count int) {
	if count > 0 {
		deletedTablesTotal.Add(float64(count))
	}
}

func SetRegistryVersion(version uint64) {
	registryVersion.Set(float64(version))
}
