package srp

import (
	"encoding/binary"
	"math"
)

// Ref is a position-independent reference: target index minus the index of
// the field storing it.
type Ref int32

const (
	// Size is the stored width of a Ref in bytes.
	Size = 4
	// Null is the empty reference.
	Null Ref = 0
	// MaxDistance is the largest distance a Ref can encode.
	MaxDistance = math.MaxInt32
)

// Encode returns the Ref that, stored at index at, resolves to target.
func Encode(at, target int) Ref {
	return Ref(int32(target - at)) //nolint:gosec // regions are bounded by MaxDistance
}

// Resolve returns the index the Ref points to when stored at index at.
func (r Ref) Resolve(at int) int {
	return at + int(r)
}

// IsNull reports whether r is the null reference.
func (r Ref) IsNull() bool {
	return r == Null
}

// Read returns the raw Ref stored at index at.
func Read(buf []byte, at int) Ref {
	return Ref(int32(binary.LittleEndian.Uint32(buf[at:]))) //nolint:gosec // bit reinterpretation
}

// Load resolves the Ref stored at index at. ok is false for Null.
func Load(buf []byte, at int) (int, bool) {
	r := Read(buf, at)
	if r == Null {
		return 0, false
	}
	return r.Resolve(at), true
}

// Store writes a Ref at index at that resolves to target.
func Store(buf []byte, at, target int) {
	binary.LittleEndian.PutUint32(buf[at:], uint32(Encode(at, target))) //nolint:gosec // bit reinterpretation
}

// Clear writes Null at index at.
func Clear(buf []byte, at int) {
	binary.LittleEndian.PutUint32(buf[at:], 0)
}

// Copy stores at index dst a Ref to whatever the Ref at index src points to.
func Copy(buf []byte, dst, src int) {
	target, ok := Load(buf, src)
	if !ok {
		Clear(buf, dst)
		return
	}
	Store(buf, dst, target)
}

// InRange reports whether a Ref stored at virtual address from can reach
// virtual address to.
func InRange(from, to uint64) bool {
	d := int64(to - from) //nolint:gosec // two's complement distance
	return d >= math.MinInt32 && d <= math.MaxInt32
}

// U16 reads a little-endian uint16 at index at.
func U16(buf []byte, at int) uint16 {
	return binary.LittleEndian.Uint16(buf[at:])
}

// PutU16 writes a little-endian uint16 at index at.
func PutU16(buf []byte, at int, v uint16) {
	binary.LittleEndian.PutUint16(buf[at:], v)
}

// U32 reads a little-endian uint32 at index at.
func U32(buf []byte, at int) uint32 {
	return binary.LittleEndian.Uint32(buf[at:])
}

// PutU32 writes a little-endian uint32 at index at.
func PutU32(buf []byte, at int, v uint32) {
	binary.LittleEndian.PutUint32(buf[at:], v)
}

// AlignUp rounds n up to a multiple of align (a power of two).
func AlignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}
