package metrics

import "github.com/prometheus/client_golang/prometheus"

// RefreshMetrics covers the fetch, normalize and change-detection cycle.
type RefreshMetrics struct {
	FetchAttempts  prometheus.Counter
	FetchFailures  prometheus.Counter
	Cycles         *prometheus.CounterVec
	CycleDuration  prometheus.Histogram
	RowsSkipped    prometheus.Counter
	CachedRecords  prometheus.Gauge
	LastSuccessful prometheus.Gauge
}

func NewRefreshMetrics(reg prometheus.Registerer) *RefreshMetrics {
	m := &RefreshMetrics{
		FetchAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "fetch_attempts_total",
			Help:      "HTTP attempts made against the sheet source, retries included.",
		}),
		FetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "fetch_attempt_failures_total",
			Help:      "HTTP attempts that failed.",
		}),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "cycles_total",
			Help:      "Refresh cycles by result (changed, unchanged, failed, aborted).",
		}, []string{"result"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a refresh cycle, including retries.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		RowsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "rows_skipped_total",
			Help:      "Rows dropped because they could not be normalized.",
		}),
		CachedRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "cached_records",
			Help:      "Number of records in the current snapshot.",
		}),
		LastSuccessful: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful refresh.",
		}),
	}

	reg.MustRegister(m.FetchAttempts, m.FetchFailures, m.Cycles, m.CycleDuration, m.RowsSkipped, m.CachedRecords, m.LastSuccessful)
	return m
}
