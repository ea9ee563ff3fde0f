package interndir

import (
	"fmt"

	"github.com/hupe1980/interndir/internal/srp"
)

// Owner identifies the context a byte string was interned under. It is
// opaque to this package and only compared for equality.
type Owner uintptr

// Region is a host-supplied memory handle. Addr is the virtual address of
// Data[0] in the current process and is used only for reachability
// arithmetic; every stored link is relative to Data.
type Region struct {
	Addr uint64
	Data []byte
}

// Contains reports whether the virtual address addr lies inside the region.
func (r *Region) Contains(addr uint64) bool {
	return addr >= r.Addr && addr-r.Addr < uint64(len(r.Data))
}

// Payload is the canonical copy of an interned byte string.
type Payload struct {
	// Data holds the bytes. It must not be modified once interned.
	Data []byte
	// Addr is the virtual address of Data[0], used for reachability checks.
	Addr uint64

	region *Region
	off    int // index of Data[0] in region.Data
}

// NewPayload wraps process memory. addr is the virtual address of data[0];
// pass 0 when reachability checks never apply to this payload.
func NewPayload(data []byte, addr uint64) Payload {
	return Payload{Data: data, Addr: addr}
}

// InRegion reports whether the payload bytes live inside r.
func (p Payload) InRegion(r *Region) bool {
	return r != nil && p.region == r
}

// Tier names one of the two cache tiers.
type Tier uint8

const (
	// TierLocal is the process-private tier.
	TierLocal Tier = iota
	// TierShared is the cross-process tier.
	TierShared
)

func (t Tier) String() string {
	switch t {
	case TierLocal:
		return "local"
	case TierShared:
		return "shared"
	default:
		return fmt.Sprintf("Tier(%d)", uint8(t))
	}
}

type reachKind uint8

const (
	reachFull reachKind = iota
	reachNone
	reachPartial
)

// Reachability describes whether a consumer can refer to payloads in the
// shared region with a self-relative reference.
type Reachability struct {
	kind   reachKind
	lo, hi uint64
}

var (
	// FullyReachable means every payload in the shared region is reachable.
	FullyReachable = Reachability{kind: reachFull}
	// FullyUnreachable means no payload in the shared region is reachable.
	FullyUnreachable = Reachability{kind: reachNone}
)

// PartiallyReachable means each candidate payload must be checked against
// the consumer's address range [lo, hi].
func PartiallyReachable(lo, hi uint64) Reachability {
	return Reachability{kind: reachPartial, lo: lo, hi: hi}
}

// Reaches reports whether a reference stored anywhere in the consumer range
// can point at addr. Only PartiallyReachable does any arithmetic.
func (r Reachability) Reaches(addr uint64) bool {
	switch r.kind {
	case reachFull:
		return true
	case reachNone:
		return false
	default:
		return srp.InRange(r.lo, addr) && srp.InRange(r.hi, addr)
	}
}

func (r Reachability) String() string {
	switch r.kind {
	case reachFull:
		return "FullyReachable"
	case reachNone:
		return "FullyUnreachable"
	default:
		return fmt.Sprintf("PartiallyReachable(%#x, %#x)", r.lo, r.hi)
	}
}

// ClassifyRange decides how a consumer occupying [consumerLo, consumerHi]
// can reach a region occupying [regionLo, regionHi].
func ClassifyRange(consumerLo, consumerHi, regionLo, regionHi uint64) Reachability {
	if !srp.InRange(consumerLo, consumerHi) {
		return FullyUnreachable
	}

	partial := PartiallyReachable(consumerLo, consumerHi)
	loOK, hiOK := partial.Reaches(regionLo), partial.Reaches(regionHi)

	switch {
	case loOK && hiOK:
		return FullyReachable
	case loOK || hiOK:
		return partial
	case regionLo <= consumerLo && consumerLo <= regionHi:
		// The region spans the whole reachable window.
		return partial
	default:
		return FullyUnreachable
	}
}

// Query is one lookup request.
type Query struct {
	Data  []byte
	Owner Owner
	Reach Reachability
	// SharedResident marks a consumer that itself lives in the shared
	// region and may only refer to durable payloads.
	SharedResident bool
}
