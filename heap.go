package interndir

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/hupe1980/interndir/internal/arena"
)

// PayloadHeap stores payload bytes inside a shared region. Only payloads put
// into the heap of a directory's region can be durable in that directory.
type PayloadHeap struct {
	region *Region
	flat   *arena.Flat
}

// NewPayloadHeap formats an empty heap in region.Data[off:off+size].
func NewPayloadHeap(region *Region, off, size int) (*PayloadHeap, error) {
	if region == nil {
		return nil, fmt.Errorf("%w: nil region", ErrConfiguration)
	}
	flat, err := arena.NewFlat(region.Data, off, size)
	if err != nil {
		return nil, translateError(err)
	}
	return &PayloadHeap{region: region, flat: flat}, nil
}

// AttachPayloadHeap returns a handle over a heap formatted at
// region.Data[off:].
func AttachPayloadHeap(region *Region, off int) (*PayloadHeap, error) {
	if region == nil {
		return nil, fmt.Errorf("%w: nil region", ErrConfiguration)
	}
	flat, err := arena.AttachFlat(region.Data, off)
	if err != nil {
		return nil, translateError(err)
	}
	return &PayloadHeap{region: region, flat: flat}, nil
}

// Put copies data into the heap. Records are never freed individually.
func (h *PayloadHeap) Put(data []byte) (Payload, error) {
	off, err := h.flat.Put(data)
	if err != nil {
		return Payload{}, translateError(err)
	}
	return Payload{
		Data:   h.flat.Get(off),
		Addr:   h.region.Addr + uint64(off), //nolint:gosec // non-negative
		region: h.region,
		off:    off,
	}, nil
}

// Used returns the bytes in use, header included.
func (h *PayloadHeap) Used() int {
	return h.flat.Used()
}

// Size returns the formatted heap size.
func (h *PayloadHeap) Size() int {
	return h.flat.Size()
}

func (h *PayloadHeap) String() string {
	return fmt.Sprintf("PayloadHeap{used: %s of %s}",
		humanize.IBytes(uint64(h.Used())), //nolint:gosec // non-negative
		humanize.IBytes(uint64(h.Size())), //nolint:gosec // non-negative
	)
}
