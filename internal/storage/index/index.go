// Package index tracks the write time of every slot in the circular store and
// finds the slot written closest to a requested time.
package index

import (
	"fmt"
	"sync"

	"github.com/arrooney/ex2-services/internal/errors"
)

// Index is a growable buffer of per-slot timestamps.
//
// Entry 0 is unused so slot ids index the buffer directly. An entry of 0
// means the slot has never been written.
//
// Index is safe for concurrent use. The lock only protects the buffer itself;
// ordering between writes and searches is the caller's concern.
type Index struct {
	mu         sync.RWMutex
	entries    []uint32
	maxEntries int
}

// New creates an empty index that refuses to grow beyond maxEntries slots.
// maxEntries <= 0 means the full uint16 slot range.
func New(maxEntries int) *Index {
	if maxEntries <= 0 || maxEntries > 65535 {
		maxEntries = 65535
	}
	return &Index{maxEntries: maxEntries}
}

// Resize sets the number of tracked slots to n.
//
// Retained slots keep their timestamp, new slots start unwritten, and n == 0
// releases the buffer. When the new buffer cannot be allocated the previous
// one stays in place and ErrIndexAllocation is returned.
func (x *Index) Resize(n int) error {
	if n < 0 {
		return errors.NewInvalidValue("index size", n, "must not be negative")
	}
	if n > x.maxEntries {
		return fmt.Errorf("resize to %d slots (limit %d): %w", n, x.maxEntries, errors.ErrIndexAllocation)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if n == 0 {
		x.entries = nil
		return nil
	}
	if n+1 == len(x.entries) {
		return nil
	}

	next := make([]uint32, n+1)
	copy(next, x.entries)
	x.entries = next
	return nil
}

// Size returns the number of tracked slots.
func (x *Index) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return size(x.entries)
}

// RecordWrite stores the timestamp written to slot. Slots outside the
// buffer are ignored.
func (x *Index) RecordWrite(slot uint16, ts uint32) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if slot == 0 || int(slot) >= len(x.entries) {
		return
	}
	x.entries[slot] = ts
}

// At returns the timestamp last written to slot, or 0.
func (x *Index) At(slot uint16) uint32 {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if slot == 0 || int(slot) >= len(x.entries) {
		return 0
	}
	return x.entries[slot]
}

// Snapshot returns a copy of the buffer, entry 0 included.
func (x *Index) Snapshot() []uint32 {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make([]uint32, len(x.entries))
	copy(out, x.entries)
	return out
}

// FindNearest returns the slot whose timestamp is nearest ts within
// tolerance, or 0 when nothing qualifies.
//
// cursor is the slot that receives the next write. Timestamps are assumed to
// be non-decreasing in write order, which makes the run of written slots
// starting at the oldest one sorted:
//
//   - before the first wrap (entry at cursor unwritten) the run is
//     [1, cursor-1]
//   - after it, the run starts at cursor and continues forward over every
//     contiguous written slot, wrapping past the last slot to 1
//
// A lower-bound search over the run picks the first position not older than
// ts. Of that position and its older neighbour, the closer one within
// tolerance wins; on a tie the older neighbour is returned.
func (x *Index) FindNearest(ts uint32, cursor uint16, tolerance uint32) uint16 {
	x.mu.RLock()
	defer x.mu.RUnlock()

	r := runOf(x.entries, cursor)
	if r.n == 0 {
		return 0
	}

	q := int64(ts)
	tol := int64(tolerance)
	at := func(p int) int64 { return int64(x.entries[r.phys(p)]) }

	lo, hi := 0, r.n
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if at(mid) < q {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	// every entry is older than ts: only the newest can match
	if lo == r.n {
		if q-at(r.n-1) <= tol {
			return r.phys(r.n - 1)
		}
		return 0
	}

	p := lo
	up := at(p) - q
	if p > 0 {
		if down := q - at(p-1); down <= tol && down <= up {
			return r.phys(p - 1)
		}
	}
	if up <= tol {
		return r.phys(p)
	}
	return 0
}

// run is the sorted sequence of written slots in logical order.
type run struct {
	start int
	n     int
	size  int
}

func (r run) phys(p int) uint16 {
	return uint16((r.start-1+p)%r.size + 1)
}

func runOf(entries []uint32, cursor uint16) run {
	sz := size(entries)
	if sz == 0 {
		return run{}
	}

	c := int(cursor)
	if c < 1 || c > sz || entries[c] == 0 {
		// not wrapped yet
		end := c - 1
		if end > sz {
			end = sz
		}
		if end < 1 {
			return run{}
		}
		return run{start: 1, n: end, size: sz}
	}

	n := 0
	for n < sz && entries[(c-1+n)%sz+1] != 0 {
		n++
	}
	return run{start: c, n: n, size: sz}
}

func size(entries []uint32) int {
	if len(entries) == 0 {
		return 0
	}
	return len(entries) - 1
}
