package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulerMetrics tracks periodic job runs, labelled by job name.
type SchedulerMetrics struct {
	Runs         *prometheus.CounterVec
	SkippedTicks *prometheus.CounterVec
	RunDuration  *prometheus.HistogramVec
}

func NewSchedulerMetrics(reg prometheus.Registerer) *SchedulerMetrics {
	m := &SchedulerMetrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Job runs by job and outcome.",
		}, []string{"job", "outcome"}),
		SkippedTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "skipped_ticks_total",
			Help:      "Ticks skipped because the previous run was still in flight.",
		}, []string{"job"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "run_duration_seconds",
			Help:      "Duration of job runs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
	}

	reg.MustRegister(m.Runs, m.SkippedTicks, m.RunDuration)
	return m
}
