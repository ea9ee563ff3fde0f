package interndir

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/interndir/testutil"
)

const (
	loaderA Owner = 0xA
	loaderB Owner = 0xB
)

func local(s string) Payload {
	return NewPayload([]byte(s), 0)
}

func lookup(c *Cache, s string, owner Owner) (Entry, bool) {
	return c.Lookup(Query{Data: []byte(s), Owner: owner, Reach: FullyReachable})
}

func TestCache_Config(t *testing.T) {
	_, err := New(Config{LocalCapacity: -1})
	assert.ErrorIs(t, err, ErrConfiguration)

	c, err := New(Config{LocalCapacity: 3}, nil, WithLogger(nil), WithMetricsCollector(nil))
	require.NoError(t, err)
	assert.Nil(t, c.Shared())
	assert.Zero(t, c.Len(TierShared))
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	metrics := &BasicMetricsCollector{}
	c, err := New(Config{LocalCapacity: 1}, WithMetricsCollector(metrics))
	require.NoError(t, err)

	batman, ok := c.Intern(local("Batman"), loaderA, false)
	require.True(t, ok)

	e, ok := lookup(c, "Batman", loaderA)
	require.True(t, ok)
	assert.Equal(t, batman, e)
	assert.Equal(t, TierLocal, e.Tier())
	assert.Equal(t, loaderA, e.Owner())

	_, ok = c.Intern(local("Joker"), loaderA, false)
	require.True(t, ok)

	_, ok = lookup(c, "Batman", loaderA)
	assert.False(t, ok)
	assert.False(t, batman.Valid())
	assert.Equal(t, 1, c.Len(TierLocal))

	stats := metrics.GetStats()
	assert.Equal(t, int64(2), stats.LookupCount)
	assert.Equal(t, int64(1), stats.LocalHits)
	assert.Equal(t, int64(1), stats.LocalEvictions)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
}

func TestCache_SweepDeadOwners(t *testing.T) {
	f := newSharedFixture(t, 7, 4096)
	metrics := &BasicMetricsCollector{}
	c, err := New(Config{LocalCapacity: 10, Shared: f.dir}, WithMetricsCollector(metrics))
	require.NoError(t, err)

	for _, in := range []struct {
		s     string
		owner Owner
	}{
		{"foo", loaderA}, {"bar", loaderA}, {"foo", loaderB}, {"bam", loaderB},
	} {
		_, ok := c.Intern(local(in.s), in.owner, false)
		require.True(t, ok)
	}
	assert.Equal(t, 4, c.Len(TierLocal))

	// A shared entry interned under the dead owner survives the sweep.
	_, ok := c.Intern(f.put(t, "shared"), loaderA, true)
	require.True(t, ok)

	removed := c.SweepDeadOwners(func(o Owner) bool { return o == loaderA })
	assert.Equal(t, 2, removed)
	assert.Equal(t, 2, c.Len(TierLocal))
	assert.Equal(t, 1, c.Len(TierShared))

	_, ok = lookup(c, "foo", loaderA)
	assert.False(t, ok)
	_, ok = lookup(c, "bar", loaderA)
	assert.False(t, ok)
	for _, s := range []string{"foo", "bam"} {
		e, ok := lookup(c, s, loaderB)
		require.True(t, ok, s)
		assert.Equal(t, loaderB, e.Owner())
	}
	_, ok = lookup(c, "shared", loaderB)
	assert.True(t, ok)

	assert.Zero(t, c.SweepDeadOwners(nil))
	assert.Equal(t, int64(2), metrics.GetStats().SweptEntries)
	require.NoError(t, c.ConsistencyCheck())
}

func TestCache_PromotesHeavyDurableEntry(t *testing.T) {
	f := newSharedFixture(t, 7, 4096)
	writable := false
	metrics := &BasicMetricsCollector{}
	c, err := New(Config{LocalCapacity: 4, Shared: f.dir},
		WithSharedWriteGate(func() bool { return writable }),
		WithMetricsCollector(metrics),
	)
	require.NoError(t, err)

	// With the gate closed a durable payload is interned locally.
	e, ok := c.Intern(f.put(t, "0123456789"), loaderA, true)
	require.True(t, ok)
	require.Equal(t, TierLocal, e.Tier())
	assert.True(t, e.Durable())
	assert.Zero(t, e.Weight())

	const perUse = 12
	for i := 1; i <= 9; i++ {
		e = c.MarkUsed(e)
		require.Equal(t, TierLocal, e.Tier())
		require.Equal(t, uint16(i*perUse), e.Weight())
	}
	assert.Greater(t, e.Weight(), uint16(DefaultPromotionThreshold))

	writable = true
	e = c.MarkUsed(e)
	require.Equal(t, TierShared, e.Tier())
	assert.Equal(t, uint16(10*perUse), e.Weight())
	assert.Zero(t, c.Len(TierLocal))
	assert.Equal(t, 1, c.Len(TierShared))

	for i := 11; i <= 150; i++ {
		e = c.MarkUsed(e)
	}
	assert.Equal(t, TierShared, e.Tier())
	assert.Equal(t, uint16(150*perUse), e.Weight())
	assert.Equal(t, uint32(150*perUse), f.dir.TotalWeight())

	got, ok := lookup(c, "0123456789", loaderA)
	require.True(t, ok)
	assert.Equal(t, e, got)

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.Promotions)
	assert.Zero(t, stats.Displacements)
	require.NoError(t, c.ConsistencyCheck())
}

func TestCache_FirstUsePromotesIntoEmptySharedTier(t *testing.T) {
	f := newSharedFixture(t, 7, 4096)
	writable := false
	c, err := New(Config{LocalCapacity: 4, Shared: f.dir},
		WithSharedWriteGate(func() bool { return writable }),
	)
	require.NoError(t, err)

	e, ok := c.Intern(f.put(t, "0123456789"), loaderA, true)
	require.True(t, ok)
	require.Equal(t, TierLocal, e.Tier())
	require.Zero(t, f.dir.Len())

	// 12 is below the threshold but above the weight of an empty tail.
	writable = true
	e = c.MarkUsed(e)
	assert.Equal(t, TierShared, e.Tier())
	assert.Equal(t, uint16(12), e.Weight())
	assert.Less(t, e.Weight(), uint16(DefaultPromotionThreshold))
	assert.Zero(t, c.Len(TierLocal))
	assert.Equal(t, uint32(12), f.dir.TotalWeight())
	require.NoError(t, c.ConsistencyCheck())
}

func TestCache_PromotionDisplacesSharedTail(t *testing.T) {
	f := newSharedFixture(t, 2, 4096)
	writable := true
	metrics := &BasicMetricsCollector{}
	c, err := New(Config{LocalCapacity: 4, Shared: f.dir},
		WithSharedWriteGate(func() bool { return writable }),
		WithMetricsCollector(metrics),
	)
	require.NoError(t, err)

	capacity := f.dir.Capacity()
	for i := 0; i < capacity; i++ {
		e, ok := c.Intern(f.put(t, string(rune('a'+i))), loaderA, true)
		require.True(t, ok)
		require.Equal(t, TierShared, e.Tier())
	}

	// A full shared tier sends direct interns to the local tier.
	heavy, ok := c.Intern(f.put(t, "heavy"), loaderA, true)
	require.True(t, ok)
	require.Equal(t, TierLocal, heavy.Tier())

	// The shared tail has weight 0, so one use is enough.
	heavy = c.MarkUsed(heavy)
	require.Equal(t, TierShared, heavy.Tier())
	_, ok = f.dir.Find([]byte("a"))
	assert.False(t, ok, "least recently used entry should be displaced")
	assert.Equal(t, capacity, c.Len(TierShared))
	assert.Zero(t, c.Len(TierLocal))
	assert.Equal(t, int64(1), metrics.GetStats().Displacements)
	assert.Equal(t, int64(1), metrics.GetStats().SharedEvictions)
	require.NoError(t, c.ConsistencyCheck())
}

func TestCache_PromotionWaitsForHeavierTail(t *testing.T) {
	f := newSharedFixture(t, 2, 4096)
	c, err := New(Config{LocalCapacity: 4, Shared: f.dir})
	require.NoError(t, err)

	for i := 0; i < f.dir.Capacity(); i++ {
		_, ok := c.Intern(f.put(t, string(rune('a'+i))), loaderA, true)
		require.True(t, ok)
	}
	tail, ok := f.dir.tail()
	require.True(t, ok)
	f.dir.touch(tail, 60)
	// Touching moved the node to the head; weigh down the new tail too.
	tail, _ = f.dir.tail()
	f.dir.touch(tail, 60)

	e, ok := c.Intern(f.put(t, "xy"), loaderA, true)
	require.True(t, ok)
	require.Equal(t, TierLocal, e.Tier())

	// weightFor(2) is 4: 15 uses reach 60, the 16th exceeds the tail.
	for i := 0; i < 15; i++ {
		e = c.MarkUsed(e)
		require.Equal(t, TierLocal, e.Tier(), "use %d", i+1)
	}
	e = c.MarkUsed(e)
	assert.Equal(t, TierShared, e.Tier())
	assert.Equal(t, uint16(64), e.Weight())
}

func TestCache_PromotionMergesIntoExistingSharedEntry(t *testing.T) {
	f := newSharedFixture(t, 7, 4096)
	writable := false
	c, err := New(Config{LocalCapacity: 4, Shared: f.dir},
		WithSharedWriteGate(func() bool { return writable }))
	require.NoError(t, err)

	e, ok := c.Intern(f.put(t, "dup"), loaderA, true)
	require.True(t, ok)
	require.Equal(t, TierLocal, e.Tier())

	writable = true
	shared, ok := c.Intern(f.put(t, "dup"), loaderB, true)
	require.True(t, ok)
	require.Equal(t, TierShared, shared.Tier())

	e = c.MarkUsed(e)
	assert.Equal(t, shared, e)
	assert.Equal(t, weightFor(3), e.Weight())
	assert.Zero(t, c.Len(TierLocal))
	assert.Equal(t, 1, c.Len(TierShared))
}

func TestCache_InternIsIdempotent(t *testing.T) {
	rng := testutil.NewRNG(7)
	words := rng.UniqueStrings(50, 1, 24)

	f := newSharedFixture(t, 67, 8192)
	c, err := New(Config{LocalCapacity: 64, Shared: f.dir})
	require.NoError(t, err)

	for i, w := range words {
		durable := i%2 == 0
		p := local(w)
		if durable {
			p = f.put(t, w)
		}
		first, ok := c.Intern(p, loaderA, durable)
		require.True(t, ok)
		second, ok := c.Intern(p, loaderA, durable)
		require.True(t, ok)
		assert.Equal(t, first, second, w)
		assert.Equal(t, w, string(second.Data()))
	}
	assert.Equal(t, 25, c.Len(TierLocal))
	assert.Equal(t, 25, c.Len(TierShared))

	// Owners are part of the local key.
	a, _ := c.Intern(local(words[1]), loaderA, false)
	b, ok := c.Intern(local(words[1]), loaderB, false)
	require.True(t, ok)
	assert.NotEqual(t, a, b)

	// Shared entries are keyed by bytes alone.
	s1, _ := c.Intern(f.put(t, words[0]), loaderB, true)
	s2, _ := lookup(c, words[0], loaderA)
	assert.Equal(t, s1, s2)

	require.NoError(t, c.ConsistencyCheck())
}

func TestCache_EvictsExactlyTheLRUEntry(t *testing.T) {
	rng := testutil.NewRNG(11)
	words := rng.UniqueStrings(40, 2, 12)
	const capacity = 8

	c, err := New(Config{LocalCapacity: capacity})
	require.NoError(t, err)

	// Track recency independently and compare after every step.
	var order []string
	touch := func(w string) {
		for i, o := range order {
			if o == w {
				order = append(order[:i], order[i+1:]...)
				break
			}
		}
		order = append(order, w)
	}

	for step := 0; step < 400; step++ {
		w := words[rng.Zipf(len(words), 1.2)]
		e, ok := lookup(c, w, loaderA)
		if ok {
			c.MarkUsed(e)
			touch(w)
			continue
		}

		var victim string
		if len(order) == capacity {
			victim = order[0]
			order = order[1:]
		}
		_, ok = c.Intern(local(w), loaderA, false)
		require.True(t, ok)
		touch(w)

		if victim != "" {
			_, ok := lookup(c, victim, loaderA)
			require.False(t, ok, "step %d: %q should have been evicted", step, victim)
		}
		require.Equal(t, len(order), c.Len(TierLocal))
	}
	require.NoError(t, c.ConsistencyCheck())
}

func TestCache_NonDurableNeverShared(t *testing.T) {
	f := newSharedFixture(t, 7, 4096)
	c, err := New(Config{LocalCapacity: 4, Shared: f.dir}, WithPromotionThreshold(1))
	require.NoError(t, err)

	inRegion, ok := c.Intern(f.put(t, "in region"), loaderA, false)
	require.True(t, ok)
	// durable is ignored for payloads outside the shared region.
	outside, ok := c.Intern(local("outside"), loaderA, true)
	require.True(t, ok)
	assert.False(t, outside.Durable())

	for i := 0; i < 20000; i++ {
		inRegion = c.MarkUsed(inRegion)
		outside = c.MarkUsed(outside)
	}
	assert.Equal(t, TierLocal, inRegion.Tier())
	assert.Equal(t, TierLocal, outside.Tier())
	assert.Equal(t, uint16(MaxWeight), inRegion.Weight())
	assert.Zero(t, c.Len(TierShared))
}

func TestCache_ZeroCapacity(t *testing.T) {
	metrics := &BasicMetricsCollector{}
	c, err := New(Config{}, WithMetricsCollector(metrics))
	require.NoError(t, err)

	e, ok := c.Intern(local("nothing"), loaderA, false)
	assert.False(t, ok)
	assert.False(t, e.Valid())

	_, ok = lookup(c, "nothing", loaderA)
	assert.False(t, ok)
	assert.Zero(t, c.Len(TierLocal))
	assert.Zero(t, c.SweepDeadOwners(func(Owner) bool { return true }))
	assert.Equal(t, Entry{}, c.MarkUsed(e))
	require.NoError(t, c.ConsistencyCheck())
	assert.Zero(t, metrics.GetStats().LocalInserts)
}

func TestCache_DefaultOwnerFallback(t *testing.T) {
	const bootstrap Owner = 1
	c, err := New(Config{LocalCapacity: 4}, WithDefaultOwner(bootstrap))
	require.NoError(t, err)

	boot, ok := c.Intern(local("java/lang/Object"), bootstrap, false)
	require.True(t, ok)

	e, ok := lookup(c, "java/lang/Object", loaderA)
	require.True(t, ok)
	assert.Equal(t, boot, e)

	_, ok = c.Intern(local("app"), loaderA, false)
	require.True(t, ok)
	_, ok = lookup(c, "app", loaderB)
	assert.False(t, ok)

	// Without a default owner there is no fallback.
	plain, err := New(Config{LocalCapacity: 4})
	require.NoError(t, err)
	_, ok = plain.Intern(local("x"), bootstrap, false)
	require.True(t, ok)
	_, ok = lookup(plain, "x", loaderA)
	assert.False(t, ok)
}

func TestCache_LookupReachability(t *testing.T) {
	f := newSharedFixture(t, 7, 4096)
	writable := true
	c, err := New(Config{LocalCapacity: 4, Shared: f.dir},
		WithSharedWriteGate(func() bool { return writable }))
	require.NoError(t, err)

	shared, ok := c.Intern(f.put(t, "shared"), loaderA, true)
	require.True(t, ok)
	_, ok = c.Intern(local("private"), loaderA, false)
	require.True(t, ok)
	writable = false
	durableLocal, ok := c.Intern(f.put(t, "durable local"), loaderA, true)
	require.True(t, ok)
	require.Equal(t, TierLocal, durableLocal.Tier())

	addr := shared.Payload().Addr
	tests := []struct {
		name string
		q    Query
		hit  bool
	}{
		{"shared fully reachable", Query{Data: []byte("shared"), Reach: FullyReachable}, true},
		{"shared unreachable", Query{Data: []byte("shared"), Reach: FullyUnreachable}, false},
		{"shared within range", Query{Data: []byte("shared"), Reach: PartiallyReachable(addr-1<<20, addr+1<<20)}, true},
		{"shared one end out of range", Query{Data: []byte("shared"), Reach: PartiallyReachable(addr-1<<20, addr+1<<32)}, false},
		{"shared resident consumer", Query{Data: []byte("shared"), Reach: FullyReachable, SharedResident: true}, true},
		{"private", Query{Data: []byte("private"), Owner: loaderA, Reach: FullyReachable}, true},
		{"private ignores reachability", Query{Data: []byte("private"), Owner: loaderA, Reach: FullyUnreachable}, true},
		{"private for shared resident", Query{Data: []byte("private"), Owner: loaderA, Reach: FullyReachable, SharedResident: true}, false},
		{"durable local", Query{Data: []byte("durable local"), Owner: loaderA, Reach: FullyReachable, SharedResident: true}, true},
		{"durable local unreachable", Query{Data: []byte("durable local"), Owner: loaderA, Reach: FullyUnreachable}, false},
		{"durable local out of range", Query{Data: []byte("durable local"), Owner: loaderA, Reach: PartiallyReachable(0, 1<<20)}, false},
		{"wrong owner", Query{Data: []byte("private"), Owner: loaderB, Reach: FullyReachable}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := c.Lookup(tt.q)
			assert.Equal(t, tt.hit, ok)
		})
	}
}

func TestCache_SharedWriteGate(t *testing.T) {
	f := newSharedFixture(t, 7, 4096)
	writable := true
	c, err := New(Config{LocalCapacity: 4, Shared: f.dir},
		WithSharedWriteGate(func() bool { return writable }))
	require.NoError(t, err)

	e, ok := c.Intern(f.put(t, "gated"), loaderA, true)
	require.True(t, ok)
	e = c.MarkUsed(e)
	w := e.Weight()
	assert.Equal(t, weightFor(5), w)

	// Closed: shared entries are read-only and new durable payloads stay local.
	writable = false
	e = c.MarkUsed(e)
	assert.Equal(t, w, e.Weight())

	l, ok := c.Intern(f.put(t, "later"), loaderA, true)
	require.True(t, ok)
	assert.Equal(t, TierLocal, l.Tier())
	for i := 0; i < 50; i++ {
		l = c.MarkUsed(l)
	}
	assert.Equal(t, TierLocal, l.Tier())
	assert.Equal(t, 1, c.Len(TierShared))
}

func TestCache_StaleHandles(t *testing.T) {
	f := newSharedFixture(t, 7, 4096)
	c, err := New(Config{LocalCapacity: 1, Shared: f.dir})
	require.NoError(t, err)

	assert.False(t, Entry{}.Valid())
	assert.Nil(t, Entry{}.Data())
	assert.Zero(t, Entry{}.Weight())
	assert.False(t, Entry{}.Durable())

	old, _ := c.Intern(local("old"), loaderA, false)
	_, _ = c.Intern(local("new"), loaderA, false)
	assert.Equal(t, Entry{}, c.MarkUsed(old))

	s, _ := c.Intern(f.put(t, "s"), loaderA, true)
	require.NoError(t, f.dir.Remove([]byte("s")))
	assert.Equal(t, Entry{}, c.MarkUsed(s))

	// Handles from another directory are rejected.
	other := newSharedFixture(t, 7, 4096)
	foreign := newSharedCache(t, other, "x")
	fe, _ := foreign.Lookup(Query{Data: []byte("x"), Reach: FullyReachable})
	assert.Equal(t, Entry{}, c.MarkUsed(fe))
}

func TestCache_MemoryLimit(t *testing.T) {
	limit := localEntrySize + 16
	c, err := New(Config{LocalCapacity: 8}, WithMemoryLimit(limit))
	require.NoError(t, err)

	_, ok := c.Intern(local("fits"), loaderA, false)
	require.True(t, ok)
	_, ok = c.Intern(local("denied"), loaderA, false)
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len(TierLocal))
	assert.Equal(t, localEntrySize+4, c.Stats().LocalMemory)

	// Sweeping returns the budget.
	c.SweepDeadOwners(func(Owner) bool { return true })
	assert.Zero(t, c.Stats().LocalMemory)
	_, ok = c.Intern(local("denied"), loaderA, false)
	assert.True(t, ok)
}

func TestCache_MemoryLimitKeepsVictim(t *testing.T) {
	metrics := &BasicMetricsCollector{}
	c, err := New(Config{LocalCapacity: 1}, WithMemoryLimit(localEntrySize+16), WithMetricsCollector(metrics))
	require.NoError(t, err)

	small, ok := c.Intern(local("small"), loaderA, false)
	require.True(t, ok)

	_, ok = c.Intern(local(strings.Repeat("x", 64)), loaderA, false)
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len(TierLocal))
	assert.True(t, small.Valid())
	got, ok := lookup(c, "small", loaderA)
	require.True(t, ok)
	assert.Equal(t, small, got)
	assert.Zero(t, metrics.GetStats().LocalEvictions)

	// A string that fits once the victim's charge is returned still evicts.
	_, ok = c.Intern(local("tiny"), loaderA, false)
	assert.True(t, ok)
	_, ok = lookup(c, "small", loaderA)
	assert.False(t, ok)
}

func TestCache_ConsistencyCheckLocal(t *testing.T) {
	c, err := New(Config{LocalCapacity: 4}, WithLogLevel(slog.LevelError+4))
	require.NoError(t, err)
	e, _ := c.Intern(local("a"), loaderA, false)
	_, _ = c.Intern(local("b"), loaderA, false)
	require.NoError(t, c.ConsistencyCheck())

	e.local.live = false
	err = c.ConsistencyCheck()
	assert.ErrorIs(t, err, ErrCorruption)

	var ce *CorruptionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "local", ce.Component)
	assert.Contains(t, ce.Error(), "local")
}

func TestCache_Stats(t *testing.T) {
	f := newSharedFixture(t, 7, 4096)
	c := newSharedCache(t, f, "alpha")
	_, _ = c.Intern(local("beta"), loaderA, false)

	s := c.Stats()
	assert.Equal(t, 1, s.LocalEntries)
	assert.Equal(t, 8, s.LocalCapacity)
	assert.Equal(t, 1, s.SharedEntries)
	assert.Equal(t, f.dir.Capacity(), s.SharedCapacity)
	assert.Contains(t, s.String(), "local: 1/8")
}
