package srptable

import (
	"errors"
	"fmt"

	"github.com/hupe1980/interndir/internal/arena"
	"github.com/hupe1980/interndir/internal/srp"
)

var (
	// ErrConfig is returned for sizes and capacities the table cannot use.
	ErrConfig = errors.New("srptable: invalid configuration")
	// ErrFull is returned by Add when every node is in use.
	ErrFull = errors.New("srptable: table is full")
	// ErrCorrupt is returned when a table image violates its invariants.
	ErrCorrupt = errors.New("srptable: corrupt image")
)

// HeaderSize is the size of the table header in bytes.
const HeaderSize = 32

const (
	offTableSize     = 0
	offNumberOfNodes = 4
	offEntrySize     = 8
	offNodeSize      = 12
	offFlags         = 16
	offNodes         = 20
	offNodePool      = 24
)

// Strategy supplies hashing and equality for keys of type K. Equal compares
// key against the entry stored at buf[entry:].
type Strategy[K any] interface {
	Hash(key K) uint64
	Equal(buf []byte, entry int, key K) bool
}

// Table is a process-local handle over a table image. Handles hold no state
// of their own and may be rebuilt at any time with Attach.
type Table[K any] struct {
	buf      []byte
	off      int
	strategy Strategy[K]
	pool     *arena.Slab
}

// New builds a table for at least capacity entries in a fresh buffer.
func New[K any](capacity, entrySize int, s Strategy[K]) (*Table[K], error) {
	size, err := RequiredSize(capacity, entrySize, true)
	if err != nil {
		return nil, err
	}
	return NewInRegion(make([]byte, size), 0, size, entrySize, s)
}

// NewInRegion formats a table in buf[off:off+size] with the largest prime
// capacity that fits.
func NewInRegion[K any](buf []byte, off, size, entrySize int, s Strategy[K]) (*Table[K], error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil strategy", ErrConfig)
	}
	if off < 0 || off+size > len(buf) {
		return nil, fmt.Errorf("%w: region [%d,%d) outside buffer of %d bytes", ErrConfig, off, off+size, len(buf))
	}
	capacity, err := CapacityForSize(size, entrySize, false)
	if err != nil {
		return nil, err
	}

	nodeSize := NodeSize(entrySize)
	poolOff := off + HeaderSize + bucketBytes(capacity)
	pool, err := arena.Init(buf, poolOff, poolBytes(capacity, entrySize), nodeSize, arena.FlagScrubOnRelease)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	srp.PutU32(buf, off+offTableSize, uint32(capacity))  //nolint:gosec // bounded by prime.MaxSupported
	srp.PutU32(buf, off+offEntrySize, uint32(entrySize)) //nolint:gosec // checked by CapacityForSize
	srp.PutU32(buf, off+offNodeSize, uint32(nodeSize))   //nolint:gosec // checked by CapacityForSize
	srp.PutU32(buf, off+offFlags, arena.FlagScrubOnRelease)
	srp.Store(buf, off+offNodes, off+HeaderSize)
	srp.Store(buf, off+offNodePool, poolOff)

	t := &Table[K]{buf: buf, off: off, strategy: s, pool: pool}
	t.clearBuckets()
	srp.PutU32(buf, off+offNumberOfNodes, 0)
	return t, nil
}

// Attach returns a handle over a table image previously built at buf[off:].
// No reference in the image is rewritten.
func Attach[K any](buf []byte, off int, s Strategy[K]) (*Table[K], error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil strategy", ErrConfig)
	}
	if off < 0 || off+HeaderSize > len(buf) {
		return nil, fmt.Errorf("%w: header at %d outside buffer of %d bytes", ErrCorrupt, off, len(buf))
	}

	t := &Table[K]{buf: buf, off: off, strategy: s}
	if t.Capacity() == 0 || t.nodeSize() != NodeSize(t.EntrySize()) {
		return nil, fmt.Errorf("%w: header describes %d nodes of %d bytes", ErrCorrupt, t.Capacity(), t.nodeSize())
	}
	nodes, ok := srp.Load(buf, off+offNodes)
	if !ok || nodes != off+HeaderSize || nodes+t.Capacity()*srp.Size > len(buf) {
		return nil, fmt.Errorf("%w: bucket array reference", ErrCorrupt)
	}
	poolOff, ok := srp.Load(buf, off+offNodePool)
	if !ok || poolOff != nodes+bucketBytes(t.Capacity()) {
		return nil, fmt.Errorf("%w: node pool reference", ErrCorrupt)
	}

	pool, err := arena.Attach(buf, poolOff)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	t.pool = pool
	return t, nil
}

// Find returns the entry equal to key.
func (t *Table[K]) Find(key K) (int, bool) {
	_, node, ok := t.lookup(key)
	return node, ok
}

// Add returns the entry equal to key, or links a new zeroed entry at the
// head of its chain. inserted tells the two apart; the caller fills a new
// entry through EntryBytes before the next table operation.
func (t *Table[K]) Add(key K) (entry int, inserted bool, err error) {
	if node, ok := t.Find(key); ok {
		return node, false, nil
	}

	node, ok := t.pool.Allocate()
	if !ok {
		return 0, false, ErrFull
	}

	bucket := t.bucket(key)
	srp.Copy(t.buf, t.next(node), bucket)
	srp.Store(t.buf, bucket, node)
	t.setLen(t.Len() + 1)

	return node, true, nil
}

// Remove unlinks and frees the entry equal to key.
func (t *Table[K]) Remove(key K) bool {
	link, node, ok := t.lookup(key)
	if !ok {
		return false
	}

	srp.Copy(t.buf, link, t.next(node))
	t.pool.Release(node)
	t.setLen(t.Len() - 1)

	return true
}

// ForEach visits every entry in bucket then chain order until fn returns
// false. The table must not be mutated during the walk.
func (t *Table[K]) ForEach(fn func(entry int) bool) bool {
	nodes := t.off + HeaderSize
	for b := 0; b < t.Capacity(); b++ {
		for node, ok := srp.Load(t.buf, nodes+b*srp.Size); ok; node, ok = srp.Load(t.buf, t.next(node)) {
			if !fn(node) {
				return false
			}
		}
	}
	return true
}

// Sample walks live entries in node pool order, visiting one of every
// stride. fn may remove the entry it is given.
func (t *Table[K]) Sample(fn func(entry int) bool, stride int) (bool, error) {
	done, err := t.pool.Iterate(fn, stride)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return done, nil
}

// Reset drops every entry. Capacity and entry size are kept.
func (t *Table[K]) Reset() {
	t.clearBuckets()
	t.pool.Clear()
	t.setLen(0)
}

// EntryBytes returns the caller-owned part of a node.
func (t *Table[K]) EntryBytes(entry int) []byte {
	n := t.EntrySize()
	return t.buf[entry : entry+n : entry+n]
}

// Contains reports whether entry is a node slot of this table.
func (t *Table[K]) Contains(entry int) bool {
	return t.pool.IsElement(entry)
}

// Len returns the number of entries.
func (t *Table[K]) Len() int {
	return int(srp.U32(t.buf, t.off+offNumberOfNodes))
}

// Capacity returns the bucket count, which is also the node capacity.
func (t *Table[K]) Capacity() int {
	return int(srp.U32(t.buf, t.off+offTableSize))
}

// EntrySize returns the caller payload size of a node.
func (t *Table[K]) EntrySize() int {
	return int(srp.U32(t.buf, t.off+offEntrySize))
}

// Size returns the image size of the table.
func (t *Table[K]) Size() int {
	return HeaderSize + bucketBytes(t.Capacity()) + poolBytes(t.Capacity(), t.EntrySize())
}

// Offset returns the header position inside the region.
func (t *Table[K]) Offset() int {
	return t.off
}

// Buffer returns the region the table lives in.
func (t *Table[K]) Buffer() []byte {
	return t.buf
}

func (t *Table[K]) nodeSize() int {
	return int(srp.U32(t.buf, t.off+offNodeSize))
}

func (t *Table[K]) setLen(n int) {
	srp.PutU32(t.buf, t.off+offNumberOfNodes, uint32(n)) //nolint:gosec // bounded by capacity
}

// next returns the index of the chain link stored in node's tail.
func (t *Table[K]) next(node int) int {
	return node + t.nodeSize() - srp.Size
}

func (t *Table[K]) bucket(key K) int {
	h := t.strategy.Hash(key) % uint64(t.Capacity()) //nolint:gosec // capacity > 0
	return t.off + HeaderSize + int(h)*srp.Size      //nolint:gosec // h < capacity
}

// lookup returns the link that references the node equal to key.
func (t *Table[K]) lookup(key K) (link, node int, ok bool) {
	link = t.bucket(key)
	for node, ok = srp.Load(t.buf, link); ok; node, ok = srp.Load(t.buf, link) {
		if t.strategy.Equal(t.buf, node, key) {
			return link, node, true
		}
		link = t.next(node)
	}
	return 0, 0, false
}

func (t *Table[K]) clearBuckets() {
	start := t.off + HeaderSize
	clear(t.buf[start : start+bucketBytes(t.Capacity())])
}
