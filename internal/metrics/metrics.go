// Package metrics exposes Prometheus instrumentation for recipe evaluation.
//
// A Collector registers its metrics on its own registry, so every CLI run or
// test starts from zero. A nil *Collector is valid and records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "semantique"

// Collector holds the evaluation metrics.
type Collector struct {
	registry *prometheus.Registry

	// resolutions counts references resolved by kind (a cache hit is not a resolution).
	resolutions *prometheus.CounterVec
	// cacheHits counts memo cache hits by kind.
	cacheHits *prometheus.CounterVec
	// failures counts failed resolutions by kind.
	failures *prometheus.CounterVec
	// fetches counts data cube fetches.
	fetches prometheus.Counter
	// verbCalls counts verb applications by verb name.
	verbCalls *prometheus.CounterVec
	// entryDuration observes the wall time of each recipe entry.
	entryDuration *prometheus.HistogramVec
}

// New creates a collector backed by a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "resolutions_total",
			Help:      "References resolved, by reference kind",
		}, []string{"kind"}),
		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "cache_hits_total",
			Help:      "Memo cache hits, by reference kind",
		}, []string{"kind"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "failures_total",
			Help:      "Failed resolutions, by reference kind",
		}, []string{"kind"}),
		fetches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "datacube",
			Name:      "fetches_total",
			Help:      "Layer fetches issued to the data cube",
		}),
		verbCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "verb_calls_total",
			Help:      "Verb applications, by verb",
		}, []string{"verb"}),
		entryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "recipe",
			Name:      "entry_duration_seconds",
			Help:      "Wall time of recipe entry evaluation",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"status"}),
	}
}

// Registry returns the registry the metrics are registered on.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Resolved records a computed resolution.
func (c *Collector) Resolved(kind string) {
	if c == nil {
		return
	}
	c.resolutions.WithLabelValues(kind).Inc()
}

// CacheHit records a memo hit.
func (c *Collector) CacheHit(kind string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(kind).Inc()
}

// Failed records a failed resolution.
func (c *Collector) Failed(kind string) {
	if c == nil {
		return
	}
	c.failures.WithLabelValues(kind).Inc()
}

// Fetched records a data cube fetch.
func (c *Collector) Fetched() {
	if c == nil {
		return
	}
	c.fetches.Inc()
}

// VerbApplied records a verb application.
func (c *Collector) VerbApplied(verb string) {
	if c == nil {
		return
	}
	c.verbCalls.WithLabelValues(verb).Inc()
}

// EntryFinished records the duration of a recipe entry.
func (c *Collector) EntryFinished(d time.Duration, failed bool) {
	if c == nil {
		return
	}
	status := "ok"
	if failed {
		status = "error"
	}
	c.entryDuration.WithLabelValues(status).Observe(d.Seconds())
}

// WriteTextfile writes the metrics in the node_exporter textfile format.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
