package arena

import (
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/interndir/internal/srp"
)

var (
	// ErrArenaFull is returned when a Flat heap has no room for a record.
	ErrArenaFull = errors.New("arena: flat heap is full")
)

const (
	// FlatHeaderSize is the size of the Flat heap header in bytes.
	FlatHeaderSize = 8
	// MaxRecordSize is the largest payload a Flat record can hold.
	MaxRecordSize = math.MaxUint16

	flatCursor = 0 // u32, relative to the header
	flatEnd    = 4 // u32, relative to the header

	recordPrefix = 2
	recordAlign  = 2
)

// Flat is a bump allocator for length-prefixed byte records stored in a
// region. Records are never freed individually.
//
// Record layout: u16 length | bytes, every record 2-byte aligned. Offsets are
// stored relative to the heap header, so a copied image stays valid.
type Flat struct {
	buf []byte
	off int
}

// NewFlat formats a heap in buf[off:off+size].
func NewFlat(buf []byte, off, size int) (*Flat, error) {
	if off < 0 || size < FlatHeaderSize+recordPrefix || off+size > len(buf) || size > MaxRegionSize {
		return nil, fmt.Errorf("%w: flat heap [%d,%d) in buffer of %d bytes", ErrConfig, off, off+size, len(buf))
	}
	f := &Flat{buf: buf, off: off}
	srp.PutU32(buf, off+flatEnd, uint32(size)) //nolint:gosec // bounded by MaxRegionSize
	f.Reset()
	return f, nil
}

// AttachFlat returns a handle to a heap previously formatted at buf[off:].
func AttachFlat(buf []byte, off int) (*Flat, error) {
	if off < 0 || off+FlatHeaderSize > len(buf) {
		return nil, fmt.Errorf("%w: flat header at %d outside region", ErrCorrupt, off)
	}
	f := &Flat{buf: buf, off: off}
	end := int(srp.U32(buf, off+flatEnd))
	cur := int(srp.U32(buf, off+flatCursor))
	if off+end > len(buf) || cur < FlatHeaderSize || cur > end {
		return nil, fmt.Errorf("%w: flat heap cursor %d end %d", ErrCorrupt, cur, end)
	}
	return f, nil
}

// Put copies data into the heap and returns the index of its first byte.
func (f *Flat) Put(data []byte) (int, error) {
	if len(data) > MaxRecordSize {
		return 0, fmt.Errorf("%w: record of %d bytes exceeds %d", ErrConfig, len(data), MaxRecordSize)
	}

	cur := int(srp.U32(f.buf, f.off+flatCursor))
	next := srp.AlignUp(cur+recordPrefix+len(data), recordAlign)
	if next > int(srp.U32(f.buf, f.off+flatEnd)) {
		return 0, ErrArenaFull
	}

	at := f.off + cur
	srp.PutU16(f.buf, at, uint16(len(data))) //nolint:gosec // checked above
	copy(f.buf[at+recordPrefix:], data)
	srp.PutU32(f.buf, f.off+flatCursor, uint32(next)) //nolint:gosec // bounded by end

	return at + recordPrefix, nil
}

// Get returns the record whose first byte is at index p.
func (f *Flat) Get(p int) []byte {
	return Record(f.buf, p)
}

// Record returns the record whose first byte is at index p of any image
// written by a Flat heap, or nil when the record overruns buf.
func Record(buf []byte, p int) []byte {
	r, _ := RecordAt(buf, p)
	return r
}

// RecordAt is Record with a bounds check.
func RecordAt(buf []byte, p int) ([]byte, bool) {
	if p < recordPrefix || p > len(buf) {
		return nil, false
	}
	n := int(srp.U16(buf, p-recordPrefix))
	if p+n > len(buf) {
		return nil, false
	}
	return buf[p : p+n : p+n], true
}

// Contains reports whether p lies inside the allocated part of the heap.
func (f *Flat) Contains(p int) bool {
	return p >= f.off+FlatHeaderSize+recordPrefix && p <= f.off+f.Used()
}

// Used returns the allocated size, header included.
func (f *Flat) Used() int {
	return int(srp.U32(f.buf, f.off+flatCursor))
}

// Size returns the formatted heap size.
func (f *Flat) Size() int {
	return int(srp.U32(f.buf, f.off+flatEnd))
}

// Reset drops every record.
func (f *Flat) Reset() {
	srp.PutU32(f.buf, f.off+flatCursor, FlatHeaderSize)
}
