package srptable

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/hupe1980/interndir/internal/arena"
	"github.com/hupe1980/interndir/internal/srp"
)

// Verify checks the image against the size and entry size it was built
// with. It reports the first violated invariant wrapped in ErrCorrupt.
func (t *Table[K]) Verify(size, entrySize int) error {
	if got := t.EntrySize(); got != entrySize {
		return fmt.Errorf("%w: entry size %d, expected %d", ErrCorrupt, got, entrySize)
	}
	if got, want := t.nodeSize(), NodeSize(entrySize); got != want {
		return fmt.Errorf("%w: node size %d, expected %d", ErrCorrupt, got, want)
	}
	if f := srp.U32(t.buf, t.off+offFlags); f != arena.FlagScrubOnRelease {
		return fmt.Errorf("%w: flags %#x", ErrCorrupt, f)
	}

	want, err := CapacityForSize(size, entrySize, false)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	capacity := t.Capacity()
	if capacity != want {
		return fmt.Errorf("%w: capacity %d, expected %d for %d bytes", ErrCorrupt, capacity, want, size)
	}

	if poolOff, ok := srp.Load(t.buf, t.off+offNodePool); !ok || poolOff != t.pool.Offset() {
		return fmt.Errorf("%w: node pool reference", ErrCorrupt)
	}
	if err := t.pool.Verify(poolBytes(capacity, entrySize), t.nodeSize()); err != nil {
		return fmt.Errorf("%w: node pool: %w", ErrCorrupt, err)
	}
	if t.pool.MaxElements() != capacity {
		return fmt.Errorf("%w: node pool holds %d nodes, expected %d", ErrCorrupt, t.pool.MaxElements(), capacity)
	}
	if t.pool.Len() != t.Len() {
		return fmt.Errorf("%w: %d entries but %d live nodes", ErrCorrupt, t.Len(), t.pool.Len())
	}

	live, err := t.pool.Occupied()
	if err != nil {
		return fmt.Errorf("%w: node pool: %w", ErrCorrupt, err)
	}

	nodes := t.off + HeaderSize
	total := 0
	for b := 0; b < capacity; b++ {
		link := nodes + b*srp.Size
		for node, ok := srp.Load(t.buf, link); ok; node, ok = srp.Load(t.buf, link) {
			if !t.pool.IsElement(node) || !live.Test(uint(t.pool.Index(node))) { //nolint:gosec // IsElement bounds the index
				return fmt.Errorf("%w: bucket %d links to %d, which is not a live node", ErrCorrupt, b, node)
			}
			total++
			if total > t.Len() {
				return fmt.Errorf("%w: chains hold more than %d entries", ErrCorrupt, t.Len())
			}
			link = t.next(node)
		}
	}
	if total != t.Len() {
		return fmt.Errorf("%w: chains hold %d entries, expected %d", ErrCorrupt, total, t.Len())
	}
	return nil
}

// Distribution summarizes how entries spread over buckets.
type Distribution struct {
	Capacity    int
	Entries     int
	UsedBuckets int
	MaxChain    int
	// ChainLengths[n] counts buckets whose chain holds n entries.
	ChainLengths []int
}

// Distribution walks every chain and reports bucket usage.
func (t *Table[K]) Distribution() Distribution {
	d := Distribution{Capacity: t.Capacity(), Entries: t.Len()}
	nodes := t.off + HeaderSize
	for b := 0; b < d.Capacity; b++ {
		n := 0
		for node, ok := srp.Load(t.buf, nodes+b*srp.Size); ok; node, ok = srp.Load(t.buf, t.next(node)) {
			n++
		}
		for len(d.ChainLengths) <= n {
			d.ChainLengths = append(d.ChainLengths, 0)
		}
		d.ChainLengths[n]++
		if n > 0 {
			d.UsedBuckets++
		}
		d.MaxChain = max(d.MaxChain, n)
	}
	return d
}

// Printer is implemented by strategies that can describe an entry.
type Printer interface {
	Print(w io.Writer, buf []byte, entry int) error
}

// Dump writes a header line and up to n entries to w. Entries are described
// by the strategy when it implements Printer and hex-dumped otherwise.
func (t *Table[K]) Dump(w io.Writer, n int) error {
	d := t.Distribution()
	if _, err := fmt.Fprintf(w, "srptable: %d/%d entries, %d used buckets, longest chain %d, %s image\n",
		d.Entries, d.Capacity, d.UsedBuckets, d.MaxChain, humanize.IBytes(uint64(t.Size()))); err != nil { //nolint:gosec // non-negative
		return err
	}

	printer, _ := t.strategy.(Printer)

	var err error
	i := 0
	t.ForEach(func(entry int) bool {
		if i >= n {
			return false
		}
		if _, err = fmt.Fprintf(w, "  [%d] @%d ", i, entry); err != nil {
			return false
		}
		if printer != nil {
			err = printer.Print(w, t.buf, entry)
		} else {
			_, err = io.WriteString(w, hex.EncodeToString(t.EntryBytes(entry)))
		}
		if err == nil {
			_, err = io.WriteString(w, "\n")
		}
		i++
		return err == nil
	})
	return err
}
