package srptable

import (
	"fmt"

	"github.com/hupe1980/interndir/internal/arena"
	"github.com/hupe1980/interndir/internal/prime"
	"github.com/hupe1980/interndir/internal/srp"
)

// NodeSize returns the slot size used for entries of entrySize bytes.
func NodeSize(entrySize int) int {
	return srp.AlignUp(entrySize+srp.Size, arena.WordSize)
}

func bucketBytes(capacity int) int {
	return srp.AlignUp(capacity*srp.Size, arena.WordSize)
}

func poolBytes(capacity, entrySize int) int {
	return arena.TotalSize(NodeSize(entrySize), capacity)
}

func checkEntrySize(entrySize int) error {
	if entrySize <= 0 || NodeSize(entrySize) > arena.MaxRegionSize/2 {
		return fmt.Errorf("%w: entry size %d", ErrConfig, entrySize)
	}
	return nil
}

// RequiredSize returns the image size of a table with the given capacity.
// Capacities are always prime: with roundUp the capacity is raised to the
// next prime, otherwise it is lowered to the largest prime not above it.
func RequiredSize(capacity, entrySize int, roundUp bool) (int, error) {
	if err := checkEntrySize(entrySize); err != nil {
		return 0, err
	}
	if capacity <= 0 || capacity > prime.MaxSupported {
		return 0, fmt.Errorf("%w: capacity %d", ErrConfig, capacity)
	}
	if roundUp {
		p, ok := prime.SmallestAtLeast(capacity)
		if !ok {
			return 0, fmt.Errorf("%w: no prime capacity at least %d", ErrConfig, capacity)
		}
		capacity = int(p)
	} else {
		p, _ := prime.LargestAtMost(capacity)
		if p == 0 {
			return 0, fmt.Errorf("%w: no prime capacity at most %d", ErrConfig, capacity)
		}
		capacity = int(p)
	}

	size := HeaderSize + bucketBytes(capacity) + poolBytes(capacity, entrySize)
	if size > arena.MaxRegionSize {
		return 0, fmt.Errorf("%w: %d entries of %d bytes need more than %d bytes", ErrConfig, capacity, entrySize, arena.MaxRegionSize)
	}
	return size, nil
}

// CapacityForSize returns the prime capacity of a table built in size bytes.
// Without allowGrow the result always fits:
//
//	RequiredSize(CapacityForSize(S, e, false), e, false) <= S
//
// With allowGrow the next prime above the fitting count is returned, which
// may need slightly more than size.
func CapacityForSize(size, entrySize int, allowGrow bool) (int, error) {
	if err := checkEntrySize(entrySize); err != nil {
		return 0, err
	}
	if size > arena.MaxRegionSize {
		return 0, fmt.Errorf("%w: region of %d bytes exceeds %d", ErrConfig, size, arena.MaxRegionSize)
	}

	overhead := HeaderSize + arena.HeaderSize
	perNode := NodeSize(entrySize) + srp.Size
	if size < overhead+perNode {
		return 0, fmt.Errorf("%w: region of %d bytes cannot hold one entry", ErrConfig, size)
	}
	n := (size - overhead) / perNode
	if n > prime.MaxSupported {
		return 0, fmt.Errorf("%w: region of %d bytes holds %d entries, more than %d", ErrConfig, size, n, prime.MaxSupported)
	}

	if allowGrow {
		p, ok := prime.SmallestAtLeast(n)
		if !ok {
			return 0, fmt.Errorf("%w: no prime capacity at least %d", ErrConfig, n)
		}
		return int(p), nil
	}

	p, _ := prime.LargestAtMost(n)
	for p > 0 {
		need, err := RequiredSize(int(p), entrySize, false)
		if err == nil && need <= size {
			return int(p), nil
		}
		p, _ = prime.LargestAtMost(int(p) - 1)
	}
	return 0, fmt.Errorf("%w: region of %d bytes cannot hold one entry", ErrConfig, size)
}
