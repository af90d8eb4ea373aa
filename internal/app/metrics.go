package app

import (
	"net/http"

	"TableSync/internal/sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of one process.
type Metrics struct {
	registry *prometheus.Registry

	rowsSynced    *prometheus.CounterVec
	rowsDeleted   *prometheus.CounterVec
	tableOutcomes *prometheus.CounterVec
	tableDuration *prometheus.HistogramVec
	runs          *prometheus.CounterVec
	lastRun       prometheus.Gauge
	progress      prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.rowsSynced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablesync",
			Name:      "rows_synced_total",
			Help:      "Rows upserted into destination tables",
		},
		[]string{"table"},
	)
	m.rowsDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablesync",
			Name:      "rows_deleted_total",
			Help:      "Destination rows removed by deletion reconciliation",
		},
		[]string{"table"},
	)
	m.tableOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablesync",
			Name:      "table_runs_total",
			Help:      "Per-table sync outcomes",
		},
		[]string{"table", "status"},
	)
	m.tableDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tablesync",
			Name:      "table_duration_seconds",
			Help:      "Time spent syncing one table",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		},
		[]string{"table"},
	)
	m.runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablesync",
			Name:      "runs_total",
			Help:      "Sync runs by result",
		},
		[]string{"result"},
	)
	m.lastRun = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tablesync",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the last run finished",
	})

	m.progress = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tablesync",
		Name:      "run_progress_percent",
		Help:      "Share of configured tables processed by the current run",
	})

	m.registry.MustRegister(m.rowsSynced, m.rowsDeleted, m.tableOutcomes, m.tableDuration, m.runs, m.lastRun, m.progress)
	return m
}

// ObserveTable records one table report.
func (m *Metrics) ObserveTable(rep sync.TableReport) {
	m.tableOutcomes.WithLabelValues(rep.Dest, string(rep.Status)).Inc()
	if rep.Status == sync.StateSkipped {
		return
	}
	m.rowsSynced.WithLabelValues(rep.Dest).Add(float64(rep.RowsSynced))
	m.rowsDeleted.WithLabelValues(rep.Dest).Add(float64(rep.RowsDeleted))
	m.tableDuration.WithLabelValues(rep.Dest).Observe(rep.Duration.Seconds())
}

// ObserveRun records the run-level result; tables are counted by ObserveTable.
func (m *Metrics) ObserveRun(report sync.SyncRunReport) {
	result := "success"
	switch {
	case !report.Success:
		result = "failed"
	case report.Count(sync.StateFailed) > 0:
		result = "partial"
	}
	m.runs.WithLabelValues(result).Inc()
	if !report.FinishedAt.IsZero() {
		m.lastRun.Set(float64(report.FinishedAt.Unix()))
	}
}

func (m *Metrics) ObserveProgress(ev sync.SyncProgressEvent) {
	m.progress.Set(float64(ev.Percent))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
