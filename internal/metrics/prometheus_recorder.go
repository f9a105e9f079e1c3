// Package metrics exports executor activity to Prometheus.
package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	cron "github.com/kaiserkarel/mcron"
)

// PrometheusRecorder implements cron.Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	fired    *prom.CounterVec
	results  *prom.CounterVec
	duration *prom.HistogramVec
	reloads  *prom.CounterVec
	jobs     prom.Gauge
}

// NewPrometheusRecorder constructs and registers the metrics on reg.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		fired: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "mcron",
			Name:      "jobs_fired_total",
			Help:      "Job activations by list",
		}, []string{"list"}),
		results: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "mcron",
			Name:      "job_results_total",
			Help:      "Finished job runs by list and outcome",
		}, []string{"list", "result"}),
		duration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "mcron",
			Name:      "job_duration_seconds",
			Help:      "Duration of job runs",
			Buckets:   prom.DefBuckets,
		}, []string{"list"}),
		reloads: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "mcron",
			Name:      "reloads_total",
			Help:      "List reloads by list and outcome",
		}, []string{"list", "result"}),
		jobs: prom.NewGauge(prom.GaugeOpts{
			Namespace: "mcron",
			Name:      "jobs",
			Help:      "Entries currently in the table",
		}),
	}
	reg.MustRegister(pr.fired, pr.results, pr.duration, pr.reloads, pr.jobs)
	return pr
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// JobFired implements cron.Recorder.
func (p *PrometheusRecorder) JobFired(list cron.ListTag) {
	p.fired.WithLabelValues(list.String()).Inc()
}

// JobFinished implements cron.Recorder.
func (p *PrometheusRecorder) JobFinished(list cron.ListTag, d time.Duration, err error) {
	p.results.WithLabelValues(list.String(), result(err)).Inc()
	p.duration.WithLabelValues(list.String()).Observe(d.Seconds())
}

// Reloaded implements cron.Recorder.
func (p *PrometheusRecorder) Reloaded(list cron.ListTag, _ int, err error) {
	p.reloads.WithLabelValues(list.String(), result(err)).Inc()
}

// SetJobs implements cron.Recorder.
func (p *PrometheusRecorder) SetJobs(n int) {
	p.jobs.Set(float64(n))
}

var _ cron.Recorder = (*PrometheusRecorder)(nil)
