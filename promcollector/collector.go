// Package promcollector exports interndir metrics to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	mc, _ := promcollector.New(reg, "jvm")
//	c, _ := interndir.New(cfg, interndir.WithMetricsCollector(mc))
//	_ = promcollector.RegisterStats(reg, "jvm", c)
package promcollector

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/hupe1980/interndir"
)

const subsystem = "interndir"

// Collector implements interndir.MetricsCollector with Prometheus counters
// and histograms.
type Collector struct {
	lookups        *prometheus.CounterVec
	interns        *prometheus.CounterVec
	promotions     *prometheus.CounterVec
	promotedWeight prometheus.Histogram
	evictions      *prometheus.CounterVec
	sweeps         prometheus.Counter
	sweptEntries   prometheus.Counter
	sweepDuration  prometheus.Histogram
	corruptions    *prometheus.CounterVec
}

var _ interndir.MetricsCollector = (*Collector)(nil)

// New creates a Collector and registers its metrics with reg.
func New(reg prometheus.Registerer, namespace string) (*Collector, error) {
	c := &Collector{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "lookups_total",
			Help:      "Lookups by answering tier and result",
		}, []string{"tier", "result"}),
		interns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "interns_total",
			Help:      "Interns by tier and result",
		}, []string{"tier", "result"}),
		promotions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "promotions_total",
			Help:      "Local entries moved to the shared tier",
		}, []string{"displaced"}),
		promotedWeight: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "promoted_weight",
			Help:      "Weight carried into the shared tier on promotion",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 6),
		}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "evictions_total",
			Help:      "Entries evicted to make room",
		}, []string{"tier"}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sweeps_total",
			Help:      "Dead owner sweeps",
		}),
		sweptEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "swept_entries_total",
			Help:      "Local entries removed by dead owner sweeps",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sweep_duration_seconds",
			Help:      "Latency of dead owner sweeps",
			Buckets:   prometheus.DefBuckets,
		}),
		corruptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "corruptions_total",
			Help:      "Components failing a consistency check",
		}, []string{"component"}),
	}

	var errs error
	for _, m := range []prometheus.Collector{
		c.lookups, c.interns, c.promotions, c.promotedWeight, c.evictions,
		c.sweeps, c.sweptEntries, c.sweepDuration, c.corruptions,
	} {
		errs = multierr.Append(errs, reg.Register(m))
	}
	if errs != nil {
		return nil, errs
	}
	return c, nil
}

// RecordLookup implements interndir.MetricsCollector.
func (c *Collector) RecordLookup(tier interndir.Tier, hit bool) {
	if !hit {
		c.lookups.WithLabelValues("none", "miss").Inc()
		return
	}
	c.lookups.WithLabelValues(tier.String(), "hit").Inc()
}

// RecordIntern implements interndir.MetricsCollector.
func (c *Collector) RecordIntern(tier interndir.Tier, inserted bool) {
	result := "existing"
	if inserted {
		result = "inserted"
	}
	c.interns.WithLabelValues(tier.String(), result).Inc()
}

// RecordPromotion implements interndir.MetricsCollector.
func (c *Collector) RecordPromotion(weight uint16, displaced bool) {
	label := "false"
	if displaced {
		label = "true"
	}
	c.promotions.WithLabelValues(label).Inc()
	c.promotedWeight.Observe(float64(weight))
}

// RecordEviction implements interndir.MetricsCollector.
func (c *Collector) RecordEviction(tier interndir.Tier) {
	c.evictions.WithLabelValues(tier.String()).Inc()
}

// RecordSweep implements interndir.MetricsCollector.
func (c *Collector) RecordSweep(removed int, d time.Duration) {
	c.sweeps.Inc()
	c.sweptEntries.Add(float64(removed))
	c.sweepDuration.Observe(d.Seconds())
}

// RecordCorruption implements interndir.MetricsCollector.
func (c *Collector) RecordCorruption(component string) {
	c.corruptions.WithLabelValues(component).Inc()
}

// RegisterStats registers gauges reading the occupancy of cache at scrape
// time. The cache must not be mutated concurrently with a scrape unless the
// host serializes both.
func RegisterStats(reg prometheus.Registerer, namespace string, cache *interndir.Cache) error {
	gauge := func(name, help string, fn func(interndir.Stats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, func() float64 { return fn(cache.Stats()) })
	}

	var errs error
	for _, m := range []prometheus.Collector{
		gauge("local_entries", "Entries in the local tier", func(s interndir.Stats) float64 { return float64(s.LocalEntries) }),
		gauge("local_capacity", "Capacity of the local tier", func(s interndir.Stats) float64 { return float64(s.LocalCapacity) }),
		gauge("local_memory_bytes", "Process memory charged to the local tier", func(s interndir.Stats) float64 { return float64(s.LocalMemory) }),
		gauge("shared_entries", "Entries in the shared tier", func(s interndir.Stats) float64 { return float64(s.SharedEntries) }),
		gauge("shared_capacity", "Capacity of the shared tier", func(s interndir.Stats) float64 { return float64(s.SharedCapacity) }),
		gauge("shared_total_weight", "Sum of shared entry weights", func(s interndir.Stats) float64 { return float64(s.SharedTotalWeight) }),
	} {
		errs = multierr.Append(errs, reg.Register(m))
	}
	return errs
}
