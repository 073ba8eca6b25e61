// Package metrics defines the sink the core reports counters to. Components
// receive a Sink instead of mutating process-wide state, so tests can inject
// a recording fake and production wires Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sink receives operational counters from the core.
type Sink interface {
	// IncCounter increments a named counter with optional label values.
	IncCounter(name string, labels ...string)
	// ObserveDuration records how long a named operation took.
	ObserveDuration(name string, d time.Duration, labels ...string)
}

// Counter and histogram names reported by the core.
const (
	CacheHit     = "cache_hit"
	CacheMiss    = "cache_miss"
	CacheError   = "cache_error"
	HTTPRequests = "http_requests"
	HTTPDuration = "http_request_duration"
)

var metricLabels = map[string][]string{
	CacheHit:     {"key_kind"},
	CacheMiss:    {"key_kind"},
	CacheError:   {"key_kind"},
	HTTPRequests: {"method", "path", "status"},
	HTTPDuration: {"method", "path"},
}

// Nop is a Sink that discards everything.
type Nop struct{}

func (Nop) IncCounter(string, ...string)                     {}
func (Nop) ObserveDuration(string, time.Duration, ...string) {}

// Prometheus is a Sink backed by collectors on a dedicated registry.
type Prometheus struct {
	registry   *prometheus.Registry
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheus registers the core's collectors and returns the sink.
func NewPrometheus(namespace string) *Prometheus {
	p := &Prometheus{
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}

	for _, name := range []string{CacheHit, CacheMiss, CacheError, HTTPRequests} {
		p.counters[name] = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name + "_total",
		}, metricLabels[name])
		p.registry.MustRegister(p.counters[name])
	}

	p.histograms[HTTPDuration] = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      HTTPDuration + "_seconds",
		Buckets:   prometheus.DefBuckets,
	}, metricLabels[HTTPDuration])
	p.registry.MustRegister(p.histograms[HTTPDuration])

	return p
}

// Registry exposes the underlying registry for the /metrics handler.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

func (p *Prometheus) IncCounter(name string, labels ...string) {
	c, ok := p.counters[name]
	if !ok {
		return
	}
	c.WithLabelValues(pad(labels, len(metricLabels[name]))...).Inc()
}

func (p *Prometheus) ObserveDuration(name string, d time.Duration, labels ...string) {
	h, ok := p.histograms[name]
	if !ok {
		return
	}
	h.WithLabelValues(pad(labels, len(metricLabels[name]))...).Observe(d.Seconds())
}

// pad truncates or right-pads labels so WithLabelValues always receives the
// declared cardinality.
func pad(labels []string, n int) []string {
	if len(labels) == n {
		return labels
	}
	if len(labels) > n {
		return labels[:n]
	}
	padded := make([]string, n)
	copy(padded, labels)
	return padded
}
