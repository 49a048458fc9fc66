package mdk

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusStatter is a Statter exporting to Prometheus. Stat names become
// the "stat" label of one metric family per kind.
type PrometheusStatter struct {
	counts  *prometheus.CounterVec
	gauges  *prometheus.GaugeVec
	hists   *prometheus.HistogramVec
	timings *prometheus.HistogramVec
}

// NewPrometheusStatter creates the metric families under namespace and
// registers them with reg.
func NewPrometheusStatter(namespace string, reg prometheus.Registerer) (*PrometheusStatter, error) {
	p := &PrometheusStatter{
		counts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Pipeline event counts by stat name",
		}, []string{"stat"}),
		gauges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gauge",
			Help:      "Pipeline gauges by stat name",
		}, []string{"stat"}),
		hists: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "values",
			Help:      "Pipeline value distributions by stat name",
		}, []string{"stat"}),
		timings: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "duration_seconds",
			Help:      "Time spent per stat name",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}, []string{"stat"}),
	}
	for _, c := range []prometheus.Collector{p.counts, p.gauges, p.hists, p.timings} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "registering metrics")
		}
	}
	return p, nil
}

// Count implements Statter.
func (p *PrometheusStatter) Count(name string, value int64, rate float64, tags ...string) {
	p.counts.WithLabelValues(name).Add(float64(value))
}

// Gauge implements Statter.
func (p *PrometheusStatter) Gauge(name string, value float64, rate float64, tags ...string) {
	p.gauges.WithLabelValues(name).Set(value)
}

// Histogram implements Statter.
func (p *PrometheusStatter) Histogram(name string, value float64, rate float64, tags ...string) {
	p.hists.WithLabelValues(name).Observe(value)
}

// Set does nothing; Prometheus has no set type.
func (p *PrometheusStatter) Set(name string, value string, rate float64, tags ...string) {}

// Timing implements Statter.
func (p *PrometheusStatter) Timing(name string, value time.Duration, rate float64, tags ...string) {
	p.timings.WithLabelValues(name).Observe(value.Seconds())
}

// MultiStatter reports to several Statters.
type MultiStatter []Statter

// Count implements Statter.
func (m MultiStatter) Count(name string, value int64, rate float64, tags ...string) {
	for _, s := range m {
		s.Count(name, value, rate, tags...)
	}
}

// Gauge implements Statter.
func (m MultiStatter) Gauge(name string, value float64, rate float64, tags ...string) {
	for _, s := range m {
		s.Gauge(name, value, rate, tags...)
	}
}

// Histogram implements Statter.
func (m MultiStatter) Histogram(name string, value float64, rate float64, tags ...string) {
	for _, s := range m {
		s.Histogram(name, value, rate, tags...)
	}
}

// Set implements Statter.
func (m MultiStatter) Set(name string, value string, rate float64, tags ...string) {
	for _, s := range m {
		s.Set(name, value, rate, tags...)
	}
}

// Timing implements Statter.
func (m MultiStatter) Timing(name string, value time.Duration, rate float64, tags ...string) {
	for _, s := range m {
		s.Timing(name, value, rate, tags...)
	}
}
