package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts consistency scan runs and the drift they find.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	drift       *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

var (
	processOnce    sync.Once
	processMetrics *Metrics
)

// NewMetrics registers the collectors on reg. A nil reg shares one
// process-wide set on the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg != nil {
		return register(reg)
	}
	processOnce.Do(func() { processMetrics = register(prometheus.DefaultRegisterer) })
	return processMetrics
}

// Run is one in-flight scan.
type Run struct {
	m       *Metrics
	job     string
	started time.Time
}

// Begin starts timing job. It is safe on a nil receiver.
func (m *Metrics) Begin(job string) Run {
	return Run{m: m, job: job, started: time.Now()}
}

// Finish records the outcome of the run and hands err back.
func (r Run) Finish(err error) error {
	if r.m == nil {
		return err
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
		r.m.failures.WithLabelValues(r.job).Inc()
	} else {
		r.m.lastSuccess.WithLabelValues(r.job).SetToCurrentTime()
	}
	r.m.runs.WithLabelValues(r.job, outcome).Inc()
	r.m.duration.WithLabelValues(r.job).Observe(time.Since(r.started).Seconds())
	return err
}

// AddDrift counts rows a scan found out of step.
func (m *Metrics) AddDrift(job string, rows int) {
	if m == nil || rows <= 0 {
		return
	}
	m.drift.WithLabelValues(job).Add(float64(rows))
}

func register(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_jobs_total",
			Help: "Consistency scan runs by job and status.",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_jobs_failures_total",
			Help: "Consistency scan runs that returned an error.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "odyssey_job_duration_seconds",
			Help:    "Wall time of consistency scan runs.",
			Buckets: []float64{.05, .1, .5, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		drift: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_consistency_drift_total",
			Help: "Rows found out of step by stock and ledger consistency scans.",
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "odyssey_job_last_success_timestamp_seconds",
			Help: "Unix time of the last scan run that finished without error.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.runs, m.failures, m.duration, m.drift, m.lastSuccess)
	return m
}
