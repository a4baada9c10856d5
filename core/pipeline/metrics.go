package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "ltcombine"

// Metrics are the pipeline's prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	processed *prometheus.CounterVec
	blocking  *prometheus.CounterVec
	failures  *prometheus.CounterVec
	runs      *prometheus.CounterVec
	duration  prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg
// (prometheus.DefaultRegisterer when nil).
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pipeline",
			Name:      "branches_processed_total",
			Help:      "Combined branches processed, per processor",
		}, []string{"processor"}),
		blocking: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pipeline",
			Name:      "blocking_seconds_total",
			Help:      "Time the coordinator spent waiting on each processor",
		}, []string{"processor"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pipeline",
			Name:      "processor_failures_total",
			Help:      "Processor failures that aborted a run",
		}, []string{"processor"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Wall time of completed pipeline runs",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
	}
	for _, c := range []prometheus.Collector{m.processed, m.blocking, m.failures, m.runs, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) branchProcessed(processor string) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(processor).Inc()
}

func (m *Metrics) processorFailed(processor string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(processor).Inc()
}

func (m *Metrics) runFinished(r Report, err error) {
	if m == nil {
		return
	}
	for _, p := range r.Processors {
		m.blocking.WithLabelValues(p.Name).Add(p.Blocking.Seconds())
	}
	if err != nil {
		m.runs.WithLabelValues("failed").Inc()
		return
	}
	m.runs.WithLabelValues("ok").Inc()
	m.duration.Observe(r.Elapsed.Seconds())
}
