// Package arena provides a fixed-size slot allocator over a relocatable region.
//
// # Image Layout
//
//	off+0   numElements   u32  live slot count
//	off+4   elementSize   u32  bytes per slot
//	off+8   freeList      Ref  head of released slots (Null when empty)
//	off+12  firstFreeSlot Ref  bump cursor
//	off+16  blockEnd      Ref  end of the slot block
//	off+20  flags         u32
//	off+24  slots...
//
// A released slot is overlaid by {next Ref, back Ref}; back always refers to
// the arena header so Verify can tell a recycled slot from foreign bytes.
package arena

import (
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bits-and-blooms/bitset"
	"github.com/dustin/go-humanize"

	"github.com/hupe1980/interndir/internal/srp"
)

var (
	// ErrConfig is returned when a slab cannot be built with the given parameters.
	ErrConfig = errors.New("arena: invalid configuration")
	// ErrCorrupt is returned when a slab image violates its invariants.
	ErrCorrupt = errors.New("arena: corrupt image")
)

const (
	// HeaderSize is the size of the slab header in bytes.
	HeaderSize = 24
	// WordSize is the required element size granularity.
	WordSize = 8
	// MinElementSize is the smallest slot able to hold the free-list overlay.
	MinElementSize = 2 * srp.Size
	// MaxRegionSize is the largest region a slab can manage.
	MaxRegionSize = srp.MaxDistance
)

const (
	offNumElements = 0
	offElementSize = 4
	offFreeList    = 8
	offFirstFree   = 12
	offBlockEnd    = 16
	offFlags       = 20

	// Free slot overlay.
	slotNext = 0
	slotBack = srp.Size
)

const (
	// FlagScrubOnRelease zeroes a slot when it is released.
	FlagScrubOnRelease uint32 = 1 << iota

	knownFlags = FlagScrubOnRelease
)

// Stats describes slab occupancy.
type Stats struct {
	ElementSize int // Bytes per slot
	MaxElements int // Slots the block can hold
	Live        int // Allocated slots
	Touched     int // Slots ever handed out by the bump cursor
}

// Slab is a process-local handle to a slot pool stored in a region. The handle
// itself carries no state besides the region and the header position.
type Slab struct {
	buf []byte
	off int
}

// TotalSize returns the region size needed for n elements of elementSize.
func TotalSize(elementSize, n int) int {
	return HeaderSize + elementSize*n
}

// Init formats a new slab in buf[off:off+size]. Nothing is written when the
// parameters are rejected.
func Init(buf []byte, off, size, elementSize int, flags uint32) (*Slab, error) {
	if err := checkConfig(len(buf), off, size, elementSize, flags); err != nil {
		return nil, err
	}

	s := &Slab{buf: buf, off: off}
	srp.PutU32(buf, off+offElementSize, uint32(elementSize)) //nolint:gosec // checked by checkConfig
	srp.PutU32(buf, off+offFlags, flags)

	maxElements := (size - HeaderSize) / elementSize
	srp.Store(buf, off+offBlockEnd, s.first()+maxElements*elementSize)
	s.Clear()

	return s, nil
}

// Attach returns a handle to a slab previously formatted at buf[off:]. The
// image is not modified and no references are rewritten.
func Attach(buf []byte, off int) (*Slab, error) {
	if off < 0 || off+HeaderSize > len(buf) {
		return nil, fmt.Errorf("%w: header at %d outside region of %d bytes", ErrCorrupt, off, len(buf))
	}
	s := &Slab{buf: buf, off: off}

	es := s.ElementSize()
	if es < MinElementSize || es%WordSize != 0 {
		return nil, fmt.Errorf("%w: element size %d", ErrCorrupt, es)
	}
	end, ok := srp.Load(buf, off+offBlockEnd)
	if !ok || end < s.first() || end > len(buf) {
		return nil, fmt.Errorf("%w: block end outside region", ErrCorrupt)
	}
	return s, nil
}

func checkConfig(bufLen, off, size, elementSize int, flags uint32) error {
	switch {
	case elementSize <= 0 || elementSize%WordSize != 0:
		return fmt.Errorf("%w: element size %d is not a positive multiple of %d", ErrConfig, elementSize, WordSize)
	case elementSize < MinElementSize:
		return fmt.Errorf("%w: element size %d is below minimum %d", ErrConfig, elementSize, MinElementSize)
	case size > MaxRegionSize:
		return fmt.Errorf("%w: region of %d bytes exceeds maximum %d", ErrConfig, size, MaxRegionSize)
	case size < HeaderSize+elementSize:
		return fmt.Errorf("%w: region of %d bytes cannot hold one element of %d bytes", ErrConfig, size, elementSize)
	case off < 0 || off+size > bufLen:
		return fmt.Errorf("%w: region [%d,%d) outside buffer of %d bytes", ErrConfig, off, off+size, bufLen)
	case flags&^knownFlags != 0:
		return fmt.Errorf("%w: unknown flags %#x", ErrConfig, flags&^knownFlags)
	}
	return nil
}

// Clear drops every element. The block size and flags are kept.
func (s *Slab) Clear() {
	srp.PutU32(s.buf, s.off+offNumElements, 0)
	srp.Clear(s.buf, s.off+offFreeList)
	srp.Store(s.buf, s.off+offFirstFree, s.first())
}

// Allocate returns the index of a zeroed slot. ok is false when the free list
// is empty and the bump cursor has reached the end of the block.
func (s *Slab) Allocate() (int, bool) {
	var p int
	if head, ok := srp.Load(s.buf, s.off+offFreeList); ok {
		p = head
		srp.Copy(s.buf, s.off+offFreeList, p+slotNext)
	} else {
		cursor := s.cursor()
		if cursor >= s.blockEnd() {
			return 0, false
		}
		p = cursor
		srp.Store(s.buf, s.off+offFirstFree, cursor+s.ElementSize())
	}

	clear(s.buf[p : p+s.ElementSize()])
	srp.PutU32(s.buf, s.off+offNumElements, srp.U32(s.buf, s.off+offNumElements)+1)
	return p, true
}

// Release pushes slot p onto the free list. p must be a live slot of this
// slab; releasing anything else corrupts the image, which Verify reports.
func (s *Slab) Release(p int) {
	if s.Flags()&FlagScrubOnRelease != 0 {
		clear(s.buf[p : p+s.ElementSize()])
	}
	srp.Copy(s.buf, p+slotNext, s.off+offFreeList)
	srp.Store(s.buf, p+slotBack, s.off)
	srp.Store(s.buf, s.off+offFreeList, p)
	srp.PutU32(s.buf, s.off+offNumElements, srp.U32(s.buf, s.off+offNumElements)-1)
}

// IsElement reports whether p is a slot boundary inside the touched block.
func (s *Slab) IsElement(p int) bool {
	first := s.first()
	return p >= first && p < s.cursor() && (p-first)%s.ElementSize() == 0
}

// Bytes returns the slot at p.
func (s *Slab) Bytes(p int) []byte {
	es := s.ElementSize()
	return s.buf[p : p+es : p+es]
}

// Len returns the number of live slots.
func (s *Slab) Len() int {
	return int(srp.U32(s.buf, s.off+offNumElements))
}

// MaxElements returns the number of slots in the block.
func (s *Slab) MaxElements() int {
	return (s.blockEnd() - s.first()) / s.ElementSize()
}

// ElementSize returns the slot size in bytes.
func (s *Slab) ElementSize() int {
	return int(srp.U32(s.buf, s.off+offElementSize))
}

// Flags returns the slab flags.
func (s *Slab) Flags() uint32 {
	return srp.U32(s.buf, s.off+offFlags)
}

// Offset returns the header position inside the region.
func (s *Slab) Offset() int {
	return s.off
}

func (s *Slab) first() int {
	return s.off + HeaderSize
}

func (s *Slab) cursor() int {
	p, _ := srp.Load(s.buf, s.off+offFirstFree)
	return p
}

func (s *Slab) blockEnd() int {
	p, _ := srp.Load(s.buf, s.off+offBlockEnd)
	return p
}

func (s *Slab) touched() int {
	return (s.cursor() - s.first()) / s.ElementSize()
}

func (s *Slab) index(p int) uint32 {
	return uint32(s.Index(p)) //nolint:gosec // bounded by MaxRegionSize
}

// Index returns the slot number of p, counted from the start of the block.
func (s *Slab) Index(p int) int {
	return (p - s.first()) / s.ElementSize()
}

// Verify checks the image against the size it was formatted with. It reports
// the first violated invariant wrapped in ErrCorrupt and never repairs.
func (s *Slab) Verify(size, elementSize int) error {
	if es := s.ElementSize(); es != elementSize {
		return fmt.Errorf("%w: element size %d, expected %d", ErrCorrupt, es, elementSize)
	}
	if size < HeaderSize+elementSize || s.off+size > len(s.buf) {
		return fmt.Errorf("%w: region size %d cannot hold the slab", ErrCorrupt, size)
	}
	if f := s.Flags(); f&^knownFlags != 0 {
		return fmt.Errorf("%w: unknown flags %#x", ErrCorrupt, f)
	}

	first := s.first()
	wantEnd := first + (size-HeaderSize)/elementSize*elementSize
	if end := s.blockEnd(); end != wantEnd {
		return fmt.Errorf("%w: block end at %d, expected %d", ErrCorrupt, end, wantEnd)
	}

	cursor := s.cursor()
	if cursor < first || cursor > wantEnd || (cursor-first)%elementSize != 0 {
		return fmt.Errorf("%w: bump cursor %d outside [%d,%d]", ErrCorrupt, cursor, first, wantEnd)
	}

	touched := s.touched()
	live := s.Len()
	if live > touched {
		return fmt.Errorf("%w: %d live elements but only %d handed out", ErrCorrupt, live, touched)
	}

	seen := roaring.New()
	free := 0
	for p, ok := srp.Load(s.buf, s.off+offFreeList); ok; p, ok = srp.Load(s.buf, p+slotNext) {
		if !s.IsElement(p) {
			return fmt.Errorf("%w: free list entry %d is not a slot", ErrCorrupt, p)
		}
		if !seen.CheckedAdd(s.index(p)) {
			return fmt.Errorf("%w: free list revisits slot %d", ErrCorrupt, p)
		}
		if back, ok := srp.Load(s.buf, p+slotBack); !ok || back != s.off {
			return fmt.Errorf("%w: free slot %d has a bad back reference", ErrCorrupt, p)
		}
		free++
	}

	if free != touched-live {
		return fmt.Errorf("%w: free list holds %d slots, expected %d", ErrCorrupt, free, touched-live)
	}
	return nil
}

// Occupied returns the set of live slot indices. Slots carry no free flag of
// their own, so the set is derived from the free list.
func (s *Slab) Occupied() (*bitset.BitSet, error) {
	touched := uint(s.touched()) //nolint:gosec // non-negative
	occ := bitset.New(touched)
	occ.FlipRange(0, touched)

	steps := uint(0)
	for p, ok := srp.Load(s.buf, s.off+offFreeList); ok; p, ok = srp.Load(s.buf, p+slotNext) {
		if !s.IsElement(p) || steps >= touched {
			return nil, fmt.Errorf("%w: free list is broken at %d", ErrCorrupt, p)
		}
		occ.Clear(uint(s.index(p)))
		steps++
	}
	return occ, nil
}

// Iterate calls fn for live slots in address order. With stride > 1 only one
// of every stride live slots is visited. Iteration stops when fn returns
// false; the result reports whether every selected slot was visited. fn may
// release the slot it is given.
func (s *Slab) Iterate(fn func(p int) bool, stride int) (bool, error) {
	occ, err := s.Occupied()
	if err != nil {
		return false, err
	}
	if stride < 1 {
		stride = 1
	}

	first, es := s.first(), s.ElementSize()
	n := 0
	for i, ok := occ.NextSet(0); ok; i, ok = occ.NextSet(i + 1) {
		visit := n%stride == 0
		n++
		if !visit {
			continue
		}
		if !fn(first + int(i)*es) { //nolint:gosec // bounded by touched
			return false, nil
		}
	}
	return true, nil
}

// Stats returns occupancy statistics.
func (s *Slab) Stats() Stats {
	return Stats{
		ElementSize: s.ElementSize(),
		MaxElements: s.MaxElements(),
		Live:        s.Len(),
		Touched:     s.touched(),
	}
}

func (s *Slab) String() string {
	st := s.Stats()
	return fmt.Sprintf(
		"Slab{element: %s, live: %d/%d, touched: %d, live bytes: %s}",
		humanize.IBytes(uint64(st.ElementSize)), //nolint:gosec // non-negative
		st.Live, st.MaxElements, st.Touched,
		humanize.IBytes(uint64(st.Live*st.ElementSize)), //nolint:gosec // non-negative
	)
}
