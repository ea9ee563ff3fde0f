package cache

import (
	"container/list"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/hupe1980/interndir/internal/resource"
)

// ErrInconsistent is wrapped by every error Verify reports.
var ErrInconsistent = errors.New("cache: inconsistent lru")

// LRU is a recency-ordered map. Front is most recently used.
type LRU[K comparable, V any] struct {
	capacity  int
	items     map[K]*list.Element
	evictList *list.List
	rc        *resource.Controller
	sizeOf    func(K, V) int64
}

type entry[K comparable, V any] struct {
	key   K
	value V
	size  int64
}

// NewLRU creates an LRU holding at most capacity entries. If rc is provided,
// sizeOf is charged against it for every entry.
func NewLRU[K comparable, V any](capacity int, rc *resource.Controller, sizeOf func(K, V) int64) *LRU[K, V] {
	return &LRU[K, V]{
		capacity:  max(capacity, 0),
		items:     make(map[K]*list.Element),
		evictList: list.New(),
		rc:        rc,
		sizeOf:    sizeOf,
	}
}

// Get returns the value for key without changing its position.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	if ent, ok := c.items[key]; ok {
		return ent.Value.(*entry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Touch moves key to the front.
func (c *LRU[K, V]) Touch(key K) bool {
	ent, ok := c.items[key]
	if ok {
		c.evictList.MoveToFront(ent)
	}
	return ok
}

// Add inserts key at the front. It fails when key is present, the LRU is
// full or the memory budget denies the entry.
func (c *LRU[K, V]) Add(key K, value V) error {
	if _, ok := c.items[key]; ok {
		return fmt.Errorf("cache: duplicate key %v", key)
	}
	if c.Full() {
		return fmt.Errorf("cache: %d of %d entries in use", len(c.items), c.capacity)
	}

	var size int64
	if c.rc != nil && c.sizeOf != nil {
		size = c.sizeOf(key, value)
		if err := c.rc.AcquireMemory(size); err != nil {
			return err
		}
	}

	ent := &entry[K, V]{key: key, value: value, size: size}
	c.items[key] = c.evictList.PushFront(ent)
	return nil
}

// Admits reports whether key could be added once the least recently used
// entry is removed to make room.
func (c *LRU[K, V]) Admits(key K, value V) bool {
	if c.capacity == 0 {
		return false
	}
	if _, ok := c.items[key]; ok {
		return false
	}
	if c.rc == nil || c.sizeOf == nil {
		return true
	}
	var freed int64
	if c.Full() {
		if back := c.evictList.Back(); back != nil {
			freed = back.Value.(*entry[K, V]).size
		}
	}
	return c.rc.Fits(c.sizeOf(key, value) - freed)
}

// Remove deletes key.
func (c *LRU[K, V]) Remove(key K) bool {
	ent, ok := c.items[key]
	if ok {
		c.removeElement(ent)
	}
	return ok
}

// Back returns the least recently used entry.
func (c *LRU[K, V]) Back() (K, V, bool) {
	ent := c.evictList.Back()
	if ent == nil {
		var (
			k K
			v V
		)
		return k, v, false
	}
	kv := ent.Value.(*entry[K, V])
	return kv.key, kv.value, true
}

// Range calls fn front to back until it returns false. fn may remove the
// entry it is given.
func (c *LRU[K, V]) Range(fn func(K, V) bool) {
	for ent := c.evictList.Front(); ent != nil; {
		next := ent.Next()
		kv := ent.Value.(*entry[K, V])
		if !fn(kv.key, kv.value) {
			return
		}
		ent = next
	}
}

// Len returns the number of entries.
func (c *LRU[K, V]) Len() int {
	return len(c.items)
}

// Capacity returns the entry limit.
func (c *LRU[K, V]) Capacity() int {
	return c.capacity
}

// Full reports whether Add would fail for lack of room.
func (c *LRU[K, V]) Full() bool {
	return len(c.items) >= c.capacity
}

// Verify walks the list in both directions and cross-checks it against the
// index. Every violation is reported.
func (c *LRU[K, V]) Verify() error {
	var errs error

	forward := 0
	for ent := c.evictList.Front(); ent != nil && forward <= len(c.items); ent = ent.Next() {
		forward++
		kv := ent.Value.(*entry[K, V])
		if c.items[kv.key] != ent {
			errs = multierr.Append(errs, fmt.Errorf("%w: list entry %v is not indexed", ErrInconsistent, kv.key))
		}
	}

	backward := 0
	for ent := c.evictList.Back(); ent != nil && backward <= len(c.items); ent = ent.Prev() {
		backward++
	}

	if forward != backward {
		errs = multierr.Append(errs, fmt.Errorf("%w: %d entries from the head, %d from the tail", ErrInconsistent, forward, backward))
	}
	if forward != len(c.items) || c.evictList.Len() != len(c.items) {
		errs = multierr.Append(errs, fmt.Errorf("%w: list holds %d entries, index %d", ErrInconsistent, forward, len(c.items)))
	}
	if len(c.items) > c.capacity {
		errs = multierr.Append(errs, fmt.Errorf("%w: %d entries exceed capacity %d", ErrInconsistent, len(c.items), c.capacity))
	}
	for key, ent := range c.items {
		if ent.Value.(*entry[K, V]).key != key {
			errs = multierr.Append(errs, fmt.Errorf("%w: index key %v maps to another entry", ErrInconsistent, key))
		}
	}

	return errs
}

func (c *LRU[K, V]) removeElement(e *list.Element) {
	c.evictList.Remove(e)
	kv := e.Value.(*entry[K, V])
	delete(c.items, kv.key)
	if c.rc != nil {
		c.rc.ReleaseMemory(kv.size)
	}
}
