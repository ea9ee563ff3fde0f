package interndir

import (
	"bytes"
	"fmt"
	"io"

	"github.com/RoaringBitmap/roaring/v2"
	"go.uber.org/multierr"

	"github.com/hupe1980/interndir/internal/arena"
	"github.com/hupe1980/interndir/internal/hash"
	"github.com/hupe1980/interndir/internal/srp"
	"github.com/hupe1980/interndir/internal/srptable"
)

// MaxWeight is the saturation point of entry weights.
const MaxWeight = 0xFFFF

// Shared directory image:
//
//	+0   magic        u32
//	+4   head         Ref  most recently used entry
//	+8   tail         Ref  least recently used entry
//	+12  count        u32
//	+16  totalWeight  u32  sum of entry weights, wrapping
//	+20  tableSize    u32  bytes of the srptable image that follows
//	+24  srptable image with 16-byte entries
//
// Entry:
//
//	+0   payload  Ref  length-prefixed record in the same region
//	+4   flags    u16
//	+6   weight   u16
//	+8   prev     Ref
//	+12  next     Ref
const (
	directoryMagic      = 0x52444e49 // "INDR"
	directoryHeaderSize = 24

	dirMagic       = 0
	dirHead        = 4
	dirTail        = 8
	dirCount       = 12
	dirTotalWeight = 16
	dirTableSize   = 20

	sharedEntrySize = 16

	entPayload = 0
	entFlags   = 4
	entWeight  = 6
	entPrev    = 8
	entNext    = 12
)

const flagDurable uint16 = 1 << 0

// payloadStrategy keys directory entries by the bytes of their payload.
type payloadStrategy struct {
	hash hash.Func
}

func (s payloadStrategy) Hash(key []byte) uint64 { return s.hash(key) }

func (payloadStrategy) Equal(buf []byte, entry int, key []byte) bool {
	data, ok := payloadAt(buf, entry)
	return ok && bytes.Equal(data, key)
}

func (payloadStrategy) Print(w io.Writer, buf []byte, entry int) error {
	data, _ := payloadAt(buf, entry)
	_, err := fmt.Fprintf(w, "%q weight=%d flags=%#x", data, srp.U16(buf, entry+entWeight), srp.U16(buf, entry+entFlags))
	return err
}

func payloadAt(buf []byte, entry int) ([]byte, bool) {
	p, ok := srp.Load(buf, entry+entPayload)
	if !ok {
		return nil, false
	}
	return arena.RecordAt(buf, p)
}

// SharedDirectory is a process-local handle over the shared tier image.
// Handles are disposable; the image in the region is the only durable state.
type SharedDirectory struct {
	region *Region
	off    int
	table  *srptable.Table[[]byte]
	logger *Logger
}

// SharedDirectorySize returns the region bytes a directory for at least
// capacity entries needs.
func SharedDirectorySize(capacity int) (int, error) {
	n, err := srptable.RequiredSize(capacity, sharedEntrySize, true)
	if err != nil {
		return 0, translateError(err)
	}
	return directoryHeaderSize + n, nil
}

// NewSharedDirectory formats an empty directory in region.Data[off:off+size].
// The capacity is the largest prime that fits.
func NewSharedDirectory(region *Region, off, size int, optFns ...Option) (*SharedDirectory, error) {
	if region == nil {
		return nil, fmt.Errorf("%w: nil region", ErrConfiguration)
	}
	if off < 0 || size < directoryHeaderSize || off+size > len(region.Data) {
		return nil, fmt.Errorf("%w: directory [%d,%d) outside region of %d bytes", ErrConfiguration, off, off+size, len(region.Data))
	}
	o := applyOptions(optFns)

	table, err := srptable.NewInRegion(region.Data, off+directoryHeaderSize, size-directoryHeaderSize,
		sharedEntrySize, payloadStrategy{hash: o.hash})
	if err != nil {
		return nil, translateError(err)
	}

	buf := region.Data
	srp.PutU32(buf, off+dirMagic, directoryMagic)
	srp.PutU32(buf, off+dirTableSize, uint32(size-directoryHeaderSize)) //nolint:gosec // bounded by srptable
	d := &SharedDirectory{region: region, off: off, table: table, logger: o.logger}
	d.resetHeader()

	d.logger.Info("shared directory created",
		"capacity", table.Capacity(),
		"size", size,
	)
	return d, nil
}

// AttachSharedDirectory returns a handle over a directory previously
// formatted at region.Data[off:], possibly by another process at another
// base address. Nothing in the image is rewritten.
func AttachSharedDirectory(region *Region, off int, optFns ...Option) (*SharedDirectory, error) {
	if region == nil {
		return nil, fmt.Errorf("%w: nil region", ErrConfiguration)
	}
	if off < 0 || off+directoryHeaderSize > len(region.Data) {
		return nil, fmt.Errorf("%w: directory header at %d outside region", ErrCorruption, off)
	}
	if m := srp.U32(region.Data, off+dirMagic); m != directoryMagic {
		return nil, fmt.Errorf("%w: bad directory magic %#x", ErrCorruption, m)
	}
	o := applyOptions(optFns)

	table, err := srptable.Attach(region.Data, off+directoryHeaderSize, payloadStrategy{hash: o.hash})
	if err != nil {
		return nil, translateError(err)
	}
	return &SharedDirectory{region: region, off: off, table: table, logger: o.logger}, nil
}

// Find returns the entry holding data.
func (d *SharedDirectory) Find(data []byte) (Entry, bool) {
	node, ok := d.table.Find(data)
	if !ok {
		return Entry{}, false
	}
	return Entry{dir: d, node: node}, true
}

// Len returns the number of entries.
func (d *SharedDirectory) Len() int {
	return int(srp.U32(d.buf(), d.off+dirCount))
}

// Capacity returns the maximum number of entries.
func (d *SharedDirectory) Capacity() int {
	return d.table.Capacity()
}

// TotalWeight returns the sum of all entry weights.
func (d *SharedDirectory) TotalWeight() uint32 {
	return srp.U32(d.buf(), d.off+dirTotalWeight)
}

// Region returns the region the directory lives in.
func (d *SharedDirectory) Region() *Region {
	return d.region
}

// ForEach visits entries from most to least recently used until fn returns
// false.
func (d *SharedDirectory) ForEach(fn func(Entry) bool) {
	steps := 0
	for node, ok := d.head(); ok && steps < d.Len(); node, ok = srp.Load(d.buf(), node+entNext) {
		if !fn(Entry{dir: d, node: node}) {
			return
		}
		steps++
	}
}

// Sample visits one of every stride entries in image order. It is meant for
// spot checks of large directories; fn must not mutate the directory.
func (d *SharedDirectory) Sample(fn func(Entry) bool, stride int) error {
	_, err := d.table.Sample(func(node int) bool {
		return fn(Entry{dir: d, node: node})
	}, stride)
	return translateError(err)
}

// Remove deletes the entry holding data.
func (d *SharedDirectory) Remove(data []byte) error {
	node, ok := d.table.Find(data)
	if !ok {
		return ErrNotFound
	}
	d.unlinkAndRemove(node, data)
	return nil
}

// Reset drops every entry. Payload bytes are not touched.
func (d *SharedDirectory) Reset() {
	d.table.Reset()
	d.resetHeader()
	d.logger.Info("shared directory reset", "capacity", d.Capacity())
}

// Dump writes a summary line and up to n entries to w.
func (d *SharedDirectory) Dump(w io.Writer, n int) error {
	return d.table.Dump(w, n)
}

// Verify checks the image and reports every violated invariant, each
// wrapping ErrCorruption.
func (d *SharedDirectory) Verify() error {
	buf := d.buf()
	if m := srp.U32(buf, d.off+dirMagic); m != directoryMagic {
		return fmt.Errorf("%w: bad directory magic %#x", ErrCorruption, m)
	}
	if err := d.table.Verify(int(srp.U32(buf, d.off+dirTableSize)), sharedEntrySize); err != nil {
		return translateError(err)
	}

	var errs error
	fail := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf("%w: "+format, append([]any{ErrCorruption}, args...)...))
	}

	count := d.Len()
	if count != d.table.Len() {
		fail("directory count %d, table holds %d", count, d.table.Len())
	}

	var (
		listed = roaring.New()
		weight uint32
		steps  int
		prev   int
		last   int
		broken bool
	)
	for node, ok := d.head(); ok; node, ok = srp.Load(buf, node+entNext) {
		if steps > count {
			fail("recency list longer than %d entries", count)
			broken = true
			break
		}
		if !d.table.Contains(node) || !listed.CheckedAdd(uint32(node)) { //nolint:gosec // region offsets fit
			fail("recency list reaches %d, which is not a distinct entry", node)
			broken = true
			break
		}
		if p, ok := srp.Load(buf, node+entPrev); (steps == 0 && ok) || (steps > 0 && (!ok || p != prev)) {
			fail("entry %d has a bad back link", node)
		}

		data, ok := payloadAt(buf, node)
		if !ok {
			fail("entry %d has no payload", node)
		} else if found, ok := d.table.Find(data); !ok || found != node {
			fail("entry %d is not findable by its payload", node)
		}
		if srp.U16(buf, node+entFlags)&flagDurable == 0 {
			fail("entry %d is not durable", node)
		}

		weight += uint32(srp.U16(buf, node+entWeight))
		prev, last = node, node
		steps++
	}

	if !broken {
		if steps != count {
			fail("recency list holds %d entries, count is %d", steps, count)
		}
		if tail, ok := d.tail(); (steps == 0 && ok) || (steps > 0 && (!ok || tail != last)) {
			fail("tail does not terminate the recency list")
		}
		if weight != d.TotalWeight() {
			fail("entry weights sum to %d, total weight is %d", weight, d.TotalWeight())
		}
	}

	d.table.ForEach(func(node int) bool {
		if !listed.Contains(uint32(node)) { //nolint:gosec // region offsets fit
			fail("entry %d is missing from the recency list", node)
		}
		return true
	})

	return errs
}

func (d *SharedDirectory) buf() []byte {
	return d.region.Data
}

func (d *SharedDirectory) head() (int, bool) {
	return srp.Load(d.buf(), d.off+dirHead)
}

func (d *SharedDirectory) tail() (int, bool) {
	return srp.Load(d.buf(), d.off+dirTail)
}

func (d *SharedDirectory) resetHeader() {
	buf := d.buf()
	srp.Clear(buf, d.off+dirHead)
	srp.Clear(buf, d.off+dirTail)
	srp.PutU32(buf, d.off+dirCount, 0)
	srp.PutU32(buf, d.off+dirTotalWeight, 0)
}

func (d *SharedDirectory) full() bool {
	return d.table.Len() >= d.table.Capacity()
}

// tailWeight returns the weight of the least recently used entry, 0 when
// the directory is empty.
func (d *SharedDirectory) tailWeight() uint16 {
	tail, ok := d.tail()
	if !ok {
		return 0
	}
	return d.weight(tail)
}

func (d *SharedDirectory) weight(node int) uint16 {
	return srp.U16(d.buf(), node+entWeight)
}

func (d *SharedDirectory) flags(node int) uint16 {
	return srp.U16(d.buf(), node+entFlags)
}

func (d *SharedDirectory) payload(node int) Payload {
	p, _ := srp.Load(d.buf(), node+entPayload)
	return Payload{
		Data:   arena.Record(d.buf(), p),
		Addr:   d.region.Addr + uint64(p), //nolint:gosec // non-negative
		region: d.region,
		off:    p,
	}
}

// live reports whether node still holds an entry. A released node is
// overlaid by free-list links, so it is checked by looking it up again.
func (d *SharedDirectory) live(node int) bool {
	if !d.table.Contains(node) {
		return false
	}
	data, ok := payloadAt(d.buf(), node)
	if !ok {
		return false
	}
	found, ok := d.table.Find(data)
	return ok && found == node
}

// insert adds the payload record at off, or returns the entry already
// holding equal bytes. New entries go to the head of the recency list.
func (d *SharedDirectory) insert(off int, weight, flags uint16) (int, bool, error) {
	buf := d.buf()
	data, ok := arena.RecordAt(buf, off)
	if !ok {
		return 0, false, fmt.Errorf("%w: payload at %d is not a record", ErrConfiguration, off)
	}

	node, inserted, err := d.table.Add(data)
	if err != nil {
		return 0, false, translateError(err)
	}
	if !inserted {
		return node, false, nil
	}

	srp.Store(buf, node+entPayload, off)
	srp.PutU16(buf, node+entFlags, flags)
	srp.PutU16(buf, node+entWeight, weight)
	d.pushHead(node)
	srp.PutU32(buf, d.off+dirCount, uint32(d.Len()+1))                    //nolint:gosec // bounded by capacity
	srp.PutU32(buf, d.off+dirTotalWeight, d.TotalWeight()+uint32(weight)) //nolint:gosec // wraps by contract

	return node, true, nil
}

// touch adds delta to node's weight and moves it to the head.
func (d *SharedDirectory) touch(node int, delta uint16) uint16 {
	old := d.weight(node)
	w := addWeight(old, delta)
	srp.PutU16(d.buf(), node+entWeight, w)
	srp.PutU32(d.buf(), d.off+dirTotalWeight, d.TotalWeight()+uint32(w-old))
	d.moveToHead(node)
	return w
}

// evictTail removes the least recently used entry.
func (d *SharedDirectory) evictTail() (Payload, uint16, bool) {
	tail, ok := d.tail()
	if !ok {
		return Payload{}, 0, false
	}
	p, w := d.payload(tail), d.weight(tail)
	d.unlinkAndRemove(tail, p.Data)
	return p, w, true
}

func (d *SharedDirectory) unlinkAndRemove(node int, data []byte) {
	w := d.weight(node)
	d.unlink(node)
	d.table.Remove(data)
	srp.PutU32(d.buf(), d.off+dirCount, uint32(d.Len()-1)) //nolint:gosec // count > 0
	srp.PutU32(d.buf(), d.off+dirTotalWeight, d.TotalWeight()-uint32(w))
}

func (d *SharedDirectory) pushHead(node int) {
	buf := d.buf()
	srp.Clear(buf, node+entPrev)
	if head, ok := d.head(); ok {
		srp.Store(buf, node+entNext, head)
		srp.Store(buf, head+entPrev, node)
	} else {
		srp.Clear(buf, node+entNext)
		srp.Store(buf, d.off+dirTail, node)
	}
	srp.Store(buf, d.off+dirHead, node)
}

func (d *SharedDirectory) unlink(node int) {
	buf := d.buf()
	prev, hasPrev := srp.Load(buf, node+entPrev)
	next, hasNext := srp.Load(buf, node+entNext)

	if hasPrev {
		srp.Copy(buf, prev+entNext, node+entNext)
	} else {
		srp.Copy(buf, d.off+dirHead, node+entNext)
	}
	if hasNext {
		srp.Copy(buf, next+entPrev, node+entPrev)
	} else {
		srp.Copy(buf, d.off+dirTail, node+entPrev)
	}
	srp.Clear(buf, node+entPrev)
	srp.Clear(buf, node+entNext)
}

func (d *SharedDirectory) moveToHead(node int) {
	if head, ok := d.head(); ok && head == node {
		return
	}
	d.unlink(node)
	d.pushHead(node)
}

// weightFor is the weight one use of a string of n bytes adds: its encoded
// size estimate, a two-byte length plus the bytes rounded up to even.
func weightFor(n int) uint16 {
	w := 2 + (n+1)&^1
	if w > MaxWeight {
		return MaxWeight
	}
	return uint16(w) //nolint:gosec // checked above
}

func addWeight(w, delta uint16) uint16 {
	if sum := uint32(w) + uint32(delta); sum < MaxWeight {
		return uint16(sum) //nolint:gosec // checked above
	}
	return MaxWeight
}
