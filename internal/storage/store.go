package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/arrooney/ex2-services/config"
	"github.com/arrooney/ex2-services/internal/errors"
	"github.com/arrooney/ex2-services/internal/logging"
	"github.com/arrooney/ex2-services/internal/storage/backend"
	"github.com/arrooney/ex2-services/internal/storage/index"
	"github.com/arrooney/ex2-services/internal/storage/record"
)

var log = logging.Component("store")

// Options configures a Store.
type Options struct {
	// Capacity is the number of slots. Defaults to config.DefaultMaxFiles.
	Capacity uint16

	// Tolerance bounds the distance accepted by nearest-slot lookups, in
	// seconds.
	Tolerance uint32

	// MaxIndexEntries caps the timestamp index. Zero means no cap below the
	// slot range.
	MaxIndexEntries int
}

// State is a snapshot of the rotation state.
type State struct {
	Capacity uint16
	Cursor   uint16
}

// Store is the circular housekeeping store.
//
// Append, SetCapacity and anchor resolution are serialized by one mutex that
// is held across backend I/O. Read does not take it.
type Store struct {
	mu        sync.Mutex
	capacity  uint16
	cursor    uint16
	tolerance uint32

	backend backend.Backend
	idx     *index.Index

	// Statistics
	appends        atomic.Int64
	appendFailures atomic.Int64
	reads          atomic.Int64
	readFailures   atomic.Int64
	deletes        atomic.Int64
	deleteFailures atomic.Int64
	lastSlot       atomic.Uint32

	latMu   sync.Mutex
	latency *ddsketch.DDSketch
}

// New creates a store over b. The store does not own b; closing b is the
// caller's job.
func New(b backend.Backend, opts Options) (*Store, error) {
	if b == nil {
		return nil, errors.NewMissingField("backend")
	}
	if opts.Capacity == 0 {
		opts.Capacity = config.DefaultMaxFiles
	}

	sketch, err := ddsketch.NewDefaultDDSketch(0.01)
	if err != nil {
		return nil, fmt.Errorf("create latency sketch: %w", err)
	}

	s := &Store{
		capacity:  opts.Capacity,
		cursor:    1,
		tolerance: opts.Tolerance,
		backend:   b,
		idx:       index.New(opts.MaxIndexEntries),
		latency:   sketch,
	}

	if err := s.idx.Resize(int(s.capacity)); err != nil {
		log.Warn("timestamp index unavailable, timestamp lookups disabled",
			"capacity", s.capacity, "error", err)
	}

	return s, nil
}

// Append writes rec to the slot under the cursor and advances the cursor.
// The slot id is stored in the record header before it is encoded.
func (s *Store) Append(ctx context.Context, rec record.Record) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := s.cursor
	rec.Header.SlotID = slot

	start := time.Now()
	err := s.backend.Put(ctx, backend.KeyFor(slot), record.Encode(rec))
	s.observeWrite(time.Since(start))
	if err != nil {
		s.appendFailures.Add(1)
		return 0, errors.Storagef(err, "append slot %d", slot)
	}

	if s.idx.Size() != int(s.capacity) {
		if err := s.idx.Resize(int(s.capacity)); err != nil {
			log.Warn("timestamp index resize failed, keeping previous index",
				"capacity", s.capacity, "slot", slot, "error", err)
		}
	}
	s.idx.RecordWrite(slot, rec.Header.Timestamp)

	s.cursor = s.cursor%s.capacity + 1
	s.appends.Add(1)
	s.lastSlot.Store(uint32(slot))

	log.Debug("appended record", "slot", slot, "timestamp", rec.Header.Timestamp, "next", s.cursor)
	return slot, nil
}

// Read loads the record held in slot.
//
// Read runs without the store lock, so a concurrent Append or SetCapacity may
// replace the slot while it is being read.
func (s *Store) Read(ctx context.Context, slot uint16) (record.Record, error) {
	if slot == 0 || s.idx.At(slot) == 0 {
		return record.Record{}, errors.NewNotFound("slot", slot)
	}

	s.reads.Add(1)
	data, err := s.backend.Get(ctx, backend.KeyFor(slot))
	if err != nil {
		s.readFailures.Add(1)
		if errors.IsNotFound(err) {
			return record.Record{}, err
		}
		return record.Record{}, errors.Storagef(err, "read slot %d", slot)
	}

	rec, err := record.Decode(data)
	if err != nil {
		s.readFailures.Add(1)
		return record.Record{}, errors.Wrapf(err, "read slot %d", slot)
	}
	return rec, nil
}

// SetCapacity changes the number of slots and restarts rotation at slot 1.
//
// Shrinking removes every persisted slot above n. Every slot is attempted;
// failures are logged and reported together as one storage error.
func (s *Store) SetCapacity(ctx context.Context, n uint16) error {
	if n < 1 {
		return errors.NewInvalidValue("capacity", n, "must be at least 1")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.capacity
	s.capacity = n
	s.cursor = 1

	if err := s.idx.Resize(int(n)); err != nil {
		log.Warn("timestamp index resize failed, keeping previous index",
			"old", old, "new", n, "error", err)
	}

	log.Info("capacity changed", "old", old, "new", n)

	if n >= old {
		return nil
	}

	var failed []error
	for slot := int(n) + 1; slot <= int(old); slot++ {
		k := backend.KeyFor(uint16(slot))

		ok, err := s.backend.Exists(ctx, k)
		if err != nil {
			log.Error("slot left orphaned", "slot", slot, "error", err)
			failed = append(failed, fmt.Errorf("%s: %w", k, err))
			continue
		}
		if !ok {
			continue
		}

		if err := s.backend.Delete(ctx, k); err != nil {
			s.deleteFailures.Add(1)
			log.Error("slot left orphaned", "slot", slot, "error", err)
			failed = append(failed, fmt.Errorf("%s: %w", k, err))
			continue
		}
		s.deletes.Add(1)
	}

	if len(failed) > 0 {
		return errors.Storagef(errors.Join(failed...),
			"shrink %d -> %d: %d slots not removed", old, n, len(failed))
	}
	return nil
}

// State returns the current capacity and cursor.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{Capacity: s.capacity, Cursor: s.cursor}
}

// Capacity returns the number of slots.
func (s *Store) Capacity() uint16 {
	return s.State().Capacity
}

// Tolerance returns the nearest-slot tolerance in seconds.
func (s *Store) Tolerance() uint32 {
	return s.tolerance
}

// NearestSlot returns the slot written closest to ts within the tolerance,
// or 0.
func (s *Store) NearestSlot(ts uint32) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx.FindNearest(ts, s.cursor, s.tolerance)
}

// ResolveAnchor snapshots the rotation state and picks the slot a backward
// walk starts from, all under one lock acquisition.
//
// A non-zero beforeTime wins over beforeID. An anchor that is 0 or beyond
// the capacity falls back to the cursor, so the walk starts at the most
// recent record.
func (s *Store) ResolveAnchor(beforeID uint16, beforeTime uint32) (State, uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{Capacity: s.capacity, Cursor: s.cursor}

	anchor := beforeID
	if beforeTime != 0 {
		anchor = s.idx.FindNearest(beforeTime, s.cursor, s.tolerance)
	}
	if anchor == 0 || anchor > st.Capacity {
		anchor = st.Cursor
	}
	return st, anchor
}

// Recover rebuilds the timestamp index from the backend and moves the
// cursor past the newest record, so rotation resumes where it stopped.
// Slots that fail to decode are skipped.
func (s *Store) Recover(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.idx.Resize(int(s.capacity)); err != nil {
		return 0, errors.Wrap(err, "recover")
	}

	var (
		found  int
		newest uint16
		newTs  uint32
	)
	for slot := 1; slot <= int(s.capacity); slot++ {
		if err := ctx.Err(); err != nil {
			return found, err
		}

		k := backend.KeyFor(uint16(slot))
		data, err := s.backend.Get(ctx, k)
		if err != nil {
			if errors.IsNotFound(err) {
				continue
			}
			return found, errors.Storagef(err, "recover %s", k)
		}

		rec, err := record.Decode(data)
		if err != nil {
			log.Warn("skipping unreadable slot", "slot", slot, "error", err)
			continue
		}

		s.idx.RecordWrite(uint16(slot), rec.Header.Timestamp)
		found++
		if newest == 0 || rec.Header.Timestamp > newTs {
			newest = uint16(slot)
			newTs = rec.Header.Timestamp
		}
	}

	s.cursor = 1
	if newest != 0 {
		s.cursor = newest%s.capacity + 1
	}

	log.Info("store recovered", "slots", found, "capacity", s.capacity, "cursor", s.cursor)
	return found, nil
}

// Timestamps returns a copy of the timestamp index, entry 0 included.
func (s *Store) Timestamps() []uint32 {
	return s.idx.Snapshot()
}

func (s *Store) observeWrite(d time.Duration) {
	s.latMu.Lock()
	defer s.latMu.Unlock()
	s.latency.Add(d.Seconds())
}

// Stats holds store statistics.
type Stats struct {
	Capacity       uint16
	Cursor         uint16
	Written        int
	LastSlot       uint16
	Appends        int64
	AppendFailures int64
	Reads          int64
	ReadFailures   int64
	Deletes        int64
	DeleteFailures int64

	// Backend write latency quantiles, in seconds.
	WriteP50 float64
	WriteP90 float64
	WriteP99 float64
}

// Stats returns current statistics.
func (s *Store) Stats() Stats {
	st := s.State()

	written := 0
	for i, ts := range s.idx.Snapshot() {
		if i > 0 && ts != 0 {
			written++
		}
	}

	stats := Stats{
		Capacity:       st.Capacity,
		Cursor:         st.Cursor,
		Written:        written,
		LastSlot:       uint16(s.lastSlot.Load()),
		Appends:        s.appends.Load(),
		AppendFailures: s.appendFailures.Load(),
		Reads:          s.reads.Load(),
		ReadFailures:   s.readFailures.Load(),
		Deletes:        s.deletes.Load(),
		DeleteFailures: s.deleteFailures.Load(),
	}

	s.latMu.Lock()
	if !s.latency.IsEmpty() {
		stats.WriteP50, _ = s.latency.GetValueAtQuantile(0.50)
		stats.WriteP90, _ = s.latency.GetValueAtQuantile(0.90)
		stats.WriteP99, _ = s.latency.GetValueAtQuantile(0.99)
	}
	s.latMu.Unlock()

	return stats
}
