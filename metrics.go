package interndir

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; see the
// promcollector package for a Prometheus implementation.
type MetricsCollector interface {
	// RecordLookup is called after each lookup. tier is meaningful only
	// when hit is true.
	RecordLookup(tier Tier, hit bool)

	// RecordIntern is called after each intern. inserted is false when an
	// existing entry was returned or nothing was stored.
	RecordIntern(tier Tier, inserted bool)

	// RecordPromotion is called when a local entry reaches the shared tier.
	// displaced reports whether the shared tail was evicted to make room.
	RecordPromotion(weight uint16, displaced bool)

	// RecordEviction is called for every entry evicted from a tier.
	RecordEviction(tier Tier)

	// RecordSweep is called after each dead-owner sweep.
	RecordSweep(removed int, duration time.Duration)

	// RecordCorruption is called for every component failing a check.
	RecordCorruption(component string)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordLookup(Tier, bool)        {}
func (NoopMetricsCollector) RecordIntern(Tier, bool)        {}
func (NoopMetricsCollector) RecordPromotion(uint16, bool)   {}
func (NoopMetricsCollector) RecordEviction(Tier)            {}
func (NoopMetricsCollector) RecordSweep(int, time.Duration) {}
func (NoopMetricsCollector) RecordCorruption(string)        {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	LookupCount      atomic.Int64
	LocalHits        atomic.Int64
	SharedHits       atomic.Int64
	InternCount      atomic.Int64
	LocalInserts     atomic.Int64
	SharedInserts    atomic.Int64
	Promotions       atomic.Int64
	Displacements    atomic.Int64
	LocalEvictions   atomic.Int64
	SharedEvictions  atomic.Int64
	SweepCount       atomic.Int64
	SweptEntries     atomic.Int64
	SweepTotalNanos  atomic.Int64
	CorruptionEvents atomic.Int64
}

// RecordLookup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLookup(tier Tier, hit bool) {
	b.LookupCount.Add(1)
	if !hit {
		return
	}
	if tier == TierShared {
		b.SharedHits.Add(1)
	} else {
		b.LocalHits.Add(1)
	}
}

// RecordIntern implements MetricsCollector.
func (b *BasicMetricsCollector) RecordIntern(tier Tier, inserted bool) {
	b.InternCount.Add(1)
	if !inserted {
		return
	}
	if tier == TierShared {
		b.SharedInserts.Add(1)
	} else {
		b.LocalInserts.Add(1)
	}
}

// RecordPromotion implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPromotion(_ uint16, displaced bool) {
	b.Promotions.Add(1)
	if displaced {
		b.Displacements.Add(1)
	}
}

// RecordEviction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEviction(tier Tier) {
	if tier == TierShared {
		b.SharedEvictions.Add(1)
	} else {
		b.LocalEvictions.Add(1)
	}
}

// RecordSweep implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSweep(removed int, duration time.Duration) {
	b.SweepCount.Add(1)
	b.SweptEntries.Add(int64(removed))
	b.SweepTotalNanos.Add(duration.Nanoseconds())
}

// RecordCorruption implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCorruption(string) {
	b.CorruptionEvents.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	lookups := b.LookupCount.Load()
	hits := b.LocalHits.Load() + b.SharedHits.Load()

	var hitRate float64
	if lookups > 0 {
		hitRate = float64(hits) / float64(lookups)
	}

	return BasicMetricsStats{
		LookupCount:      lookups,
		LocalHits:        b.LocalHits.Load(),
		SharedHits:       b.SharedHits.Load(),
		HitRate:          hitRate,
		InternCount:      b.InternCount.Load(),
		LocalInserts:     b.LocalInserts.Load(),
		SharedInserts:    b.SharedInserts.Load(),
		Promotions:       b.Promotions.Load(),
		Displacements:    b.Displacements.Load(),
		LocalEvictions:   b.LocalEvictions.Load(),
		SharedEvictions:  b.SharedEvictions.Load(),
		SweepCount:       b.SweepCount.Load(),
		SweptEntries:     b.SweptEntries.Load(),
		SweepAvgNanos:    b.getAvgSweepNanos(),
		CorruptionEvents: b.CorruptionEvents.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgSweepNanos() int64 {
	count := b.SweepCount.Load()
	if count == 0 {
		return 0
	}
	return b.SweepTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	LookupCount      int64
	LocalHits        int64
	SharedHits       int64
	HitRate          float64
	InternCount      int64
	LocalInserts     int64
	SharedInserts    int64
	Promotions       int64
	Displacements    int64
	LocalEvictions   int64
	SharedEvictions  int64
	SweepCount       int64
	SweptEntries     int64
	SweepAvgNanos    int64
	CorruptionEvents int64
}
