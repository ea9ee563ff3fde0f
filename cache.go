package interndir

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/dustin/go-humanize"
	"go.uber.org/multierr"

	"github.com/hupe1980/interndir/internal/cache"
)

// Config is the construction configuration of a Cache.
type Config struct {
	// LocalCapacity is the maximum number of local entries. 0 disables the
	// local tier.
	LocalCapacity int
	// Shared is the optional shared tier.
	Shared *SharedDirectory
}

// Cache is the two-tier intern cache. It does not lock; see the package
// documentation.
type Cache struct {
	opts   options
	local  *cache.LRU[localKey, *localEntry]
	shared *SharedDirectory
}

// localEntrySize estimates the process memory charged for one local entry.
var localEntrySize = int64(unsafe.Sizeof(localEntry{}))

// New creates a Cache.
func New(cfg Config, optFns ...Option) (*Cache, error) {
	if cfg.LocalCapacity < 0 {
		return nil, fmt.Errorf("%w: negative local capacity %d", ErrConfiguration, cfg.LocalCapacity)
	}
	o := applyOptions(optFns)

	sizeOf := func(k localKey, _ *localEntry) int64 {
		// The key copies the bytes; the payload is the caller's.
		return localEntrySize + int64(len(k.data))
	}

	return &Cache{
		opts:   o,
		local:  cache.NewLRU(cfg.LocalCapacity, o.memory, sizeOf),
		shared: cfg.Shared,
	}, nil
}

// Lookup searches the shared tier, then the local tier under q.Owner, then
// the local tier under the default owner. Candidates the consumer cannot
// use are skipped as misses.
func (c *Cache) Lookup(q Query) (Entry, bool) {
	if c.shared != nil && q.Reach != FullyUnreachable {
		if e, ok := c.shared.Find(q.Data); ok && c.usable(q, e) {
			c.opts.metricsCollector.RecordLookup(TierShared, true)
			return e, true
		}
	}

	if e, ok := c.lookupLocal(q, q.Owner); ok {
		c.opts.metricsCollector.RecordLookup(TierLocal, true)
		return e, true
	}

	if c.opts.hasDefaultOwner && c.opts.defaultOwner != q.Owner {
		if e, ok := c.lookupLocal(q, c.opts.defaultOwner); ok {
			c.opts.metricsCollector.RecordLookup(TierLocal, true)
			return e, true
		}
	}

	c.opts.metricsCollector.RecordLookup(TierLocal, false)
	return Entry{}, false
}

func (c *Cache) lookupLocal(q Query, owner Owner) (Entry, bool) {
	le, ok := c.local.Get(localKey{owner: owner, data: string(q.Data)})
	if !ok {
		return Entry{}, false
	}
	e := Entry{local: le}
	return e, c.usable(q, e)
}

// usable applies the consumer's constraints to a candidate. Reachability
// only concerns payloads in the shared region.
func (c *Cache) usable(q Query, e Entry) bool {
	if !e.Durable() {
		return !q.SharedResident && e.Tier() == TierLocal
	}
	return q.Reach.Reaches(e.Payload().Addr)
}

// MarkUsed records one use of e and returns its current handle, which
// differs from e when the entry was promoted. An invalid handle yields the
// zero Entry.
func (c *Cache) MarkUsed(e Entry) Entry {
	switch {
	case e.local != nil && e.local.live:
		return c.markLocal(e.local)
	case e.dir != nil && e.dir == c.shared && e.dir.live(e.node):
		if c.sharedWritable() {
			c.shared.touch(e.node, weightFor(len(e.Data())))
		}
		return e
	default:
		return Entry{}
	}
}

func (c *Cache) markLocal(le *localEntry) Entry {
	le.weight = addWeight(le.weight, weightFor(len(le.payload.Data)))

	if c.promotable(le) {
		if e, ok := c.promote(le); ok {
			return e
		}
	}

	c.local.Touch(le.key)
	return Entry{local: le}
}

func (c *Cache) promotable(le *localEntry) bool {
	if !le.durable || c.shared == nil || !c.sharedWritable() || !le.payload.InRegion(c.shared.region) {
		return false
	}
	return le.weight > c.opts.promotionThreshold || le.weight > c.shared.tailWeight()
}

// promote moves le into the shared tier, evicting the shared tail when no
// node is free. The weight carries over.
func (c *Cache) promote(le *localEntry) (Entry, bool) {
	data := le.payload.Data

	if node, ok := c.shared.table.Find(data); ok {
		c.shared.touch(node, le.weight)
		c.removeLocal(le)
		c.opts.logger.LogPromotion(data, le.weight, false, nil)
		c.opts.metricsCollector.RecordPromotion(le.weight, false)
		return Entry{dir: c.shared, node: node}, true
	}

	displaced := false
	if c.shared.full() {
		p, w, ok := c.shared.evictTail()
		if ok {
			displaced = true
			c.opts.logger.LogEviction(TierShared, p.Data, w)
			c.opts.metricsCollector.RecordEviction(TierShared)
		}
	}

	node, _, err := c.shared.insert(le.payload.off, le.weight, flagDurable)
	if err != nil {
		c.opts.logger.LogPromotion(data, le.weight, displaced, err)
		return Entry{}, false
	}

	c.removeLocal(le)
	c.opts.logger.LogPromotion(data, le.weight, displaced, nil)
	c.opts.metricsCollector.RecordPromotion(le.weight, displaced)
	return Entry{dir: c.shared, node: node}, true
}

// Intern stores p under owner and returns the stored entry. A durable
// payload goes straight to the shared tier while it is writable and has
// room; everything else goes to the local tier, evicting its least recently
// used entry when full. durable is ignored for payloads that do not live in
// the shared region. ok is false when nothing could be stored.
func (c *Cache) Intern(p Payload, owner Owner, durable bool) (Entry, bool) {
	if durable && (c.shared == nil || !p.InRegion(c.shared.region)) {
		durable = false
	}

	if durable && c.sharedWritable() {
		node, inserted, err := c.shared.insert(p.off, 0, flagDurable)
		if err == nil {
			if !inserted {
				c.shared.moveToHead(node)
			}
			c.opts.metricsCollector.RecordIntern(TierShared, inserted)
			return Entry{dir: c.shared, node: node}, true
		}
		c.opts.logger.Debug("shared insert failed, interning locally", "error", err)
	}

	key := localKey{owner: owner, data: string(p.Data)}
	if le, ok := c.local.Get(key); ok {
		c.opts.metricsCollector.RecordIntern(TierLocal, false)
		return Entry{local: le}, true
	}

	if c.local.Capacity() == 0 {
		c.opts.metricsCollector.RecordIntern(TierLocal, false)
		return Entry{}, false
	}

	le := &localEntry{key: key, payload: p, durable: durable, live: true}
	if !c.local.Admits(key, le) {
		c.opts.logger.Debug("local insert denied by memory budget", "size", len(p.Data))
		c.opts.metricsCollector.RecordIntern(TierLocal, false)
		return Entry{}, false
	}

	if c.local.Full() {
		if _, victim, ok := c.local.Back(); ok {
			c.removeLocal(victim)
			c.opts.logger.LogEviction(TierLocal, victim.payload.Data, victim.weight)
			c.opts.metricsCollector.RecordEviction(TierLocal)
		}
	}

	if err := c.local.Add(key, le); err != nil {
		c.opts.logger.Debug("local insert failed", "error", translateError(err))
		c.opts.metricsCollector.RecordIntern(TierLocal, false)
		return Entry{}, false
	}

	c.opts.metricsCollector.RecordIntern(TierLocal, true)
	return Entry{local: le}, true
}

// SweepDeadOwners removes every local entry whose owner isDead reports. The
// shared tier is never touched. It returns the number of removed entries.
func (c *Cache) SweepDeadOwners(isDead func(Owner) bool) int {
	if isDead == nil {
		return 0
	}
	start := time.Now()

	removed := 0
	c.local.Range(func(k localKey, le *localEntry) bool {
		if isDead(k.owner) {
			c.removeLocal(le)
			removed++
		}
		return true
	})

	c.opts.logger.LogSweep(removed, c.local.Len())
	c.opts.metricsCollector.RecordSweep(removed, time.Since(start))
	return removed
}

// ConsistencyCheck verifies both tiers and reports every violation. Each
// failing component is reported as a *CorruptionError.
func (c *Cache) ConsistencyCheck() error {
	var errs error

	localErr := c.local.Verify()
	c.local.Range(func(k localKey, le *localEntry) bool {
		if !le.live || le.key != k || k.data != string(le.payload.Data) {
			localErr = multierr.Append(localErr, fmt.Errorf("%w: entry %q does not match its key", cache.ErrInconsistent, k.data))
		}
		return true
	})
	if localErr != nil {
		errs = multierr.Append(errs, c.corruption("local", localErr))
	}

	if c.shared != nil {
		if err := c.shared.Verify(); err != nil {
			errs = multierr.Append(errs, c.corruption("shared", err))
		}
	}

	return errs
}

func (c *Cache) corruption(component string, err error) error {
	c.opts.logger.LogCorruption(component, err)
	c.opts.metricsCollector.RecordCorruption(component)
	return &CorruptionError{Component: component, cause: translateError(err)}
}

// Len returns the number of entries in tier.
func (c *Cache) Len(tier Tier) int {
	if tier == TierShared {
		if c.shared == nil {
			return 0
		}
		return c.shared.Len()
	}
	return c.local.Len()
}

// Shared returns the shared tier, or nil.
func (c *Cache) Shared() *SharedDirectory {
	return c.shared
}

// Stats is a snapshot of tier occupancy.
type Stats struct {
	LocalEntries      int
	LocalCapacity     int
	LocalMemory       int64
	SharedEntries     int
	SharedCapacity    int
	SharedTotalWeight uint32
}

// Stats returns a snapshot of tier occupancy.
func (c *Cache) Stats() Stats {
	s := Stats{
		LocalEntries:  c.local.Len(),
		LocalCapacity: c.local.Capacity(),
		LocalMemory:   c.opts.memory.MemoryUsage(),
	}
	if c.shared != nil {
		s.SharedEntries = c.shared.Len()
		s.SharedCapacity = c.shared.Capacity()
		s.SharedTotalWeight = c.shared.TotalWeight()
	}
	return s
}

func (s Stats) String() string {
	return fmt.Sprintf("local: %d/%d (%s), shared: %d/%d (weight %s)",
		s.LocalEntries, s.LocalCapacity, humanize.IBytes(uint64(s.LocalMemory)), //nolint:gosec // non-negative
		s.SharedEntries, s.SharedCapacity, humanize.Comma(int64(s.SharedTotalWeight)),
	)
}

func (c *Cache) sharedWritable() bool {
	return c.shared != nil && (c.opts.sharedWriteGate == nil || c.opts.sharedWriteGate())
}

func (c *Cache) removeLocal(le *localEntry) {
	c.local.Remove(le.key)
	le.live = false
}
