package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics records sweeper job runs and the findings they report.
type CronJobMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	findings *prometheus.CounterVec
}

// NewCronJobMetrics registers the sweeper metrics. A nil registerer yields a
// no-op collector.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sweeper_job_duration_seconds",
		Help:    "Duration of sweeper jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweeper_job_runs_total",
		Help: "Sweeper job executions by outcome.",
	}, []string{"job", "outcome"})
	findings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweeper_job_findings_total",
		Help: "Items a sweeper job acted on or flagged, such as drifted wallets.",
	}, []string{"job", "kind"})
	reg.MustRegister(duration, runs, findings)
	return &CronJobMetrics{duration: duration, runs: runs, findings: findings}
}

// ObserveRun records the duration and outcome of one job execution.
func (c *CronJobMetrics) ObserveRun(job string, duration time.Duration, err error) {
	if c == nil || c.duration == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
	c.runs.WithLabelValues(normalizeLabel(job), outcome).Inc()
}

// AddFindings counts n items of kind reported by job.
func (c *CronJobMetrics) AddFindings(job, kind string, n int) {
	if c == nil || c.findings == nil || n <= 0 {
		return
	}
	c.findings.WithLabelValues(normalizeLabel(job), normalizeLabel(kind)).Add(float64(n))
}
