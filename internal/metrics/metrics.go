// Package metrics exports benchmark progress as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"TokenBench/internal/bench"
)

const namespace = "tokenbench"

// Collector is a bench.Observer backed by its own registry.
type Collector struct {
	registry *prometheus.Registry

	latency  *prometheus.HistogramVec
	samples  *prometheus.CounterVec
	failures *prometheus.CounterVec
	active   *prometheus.GaugeVec
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "confirmation_seconds",
			Help:      "Submit-and-confirm latency per transaction.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"stage"}),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_confirmed_total",
			Help:      "Confirmed transactions per stage.",
		}, []string{"stage"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Stages that ended with an error.",
		}, []string{"stage"}),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_active",
			Help:      "1 while the stage is running.",
		}, []string{"stage"}),
	}
	c.registry.MustRegister(
		c.latency, c.samples, c.failures, c.active,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) StageStarted(stage bench.Stage, _ int) {
	c.active.WithLabelValues(string(stage)).Set(1)
}

func (c *Collector) SampleRecorded(s bench.Sample) {
	c.latency.WithLabelValues(string(s.Stage)).Observe(s.Duration.Seconds())
	c.samples.WithLabelValues(string(s.Stage)).Inc()
}

func (c *Collector) StageFinished(stage bench.Stage, err error) {
	c.active.WithLabelValues(string(stage)).Set(0)
	if err != nil {
		c.failures.WithLabelValues(string(stage)).Inc()
	}
}
