// Package collector builds housekeeping snapshots and appends them to the
// store.
//
// Every cycle asks each registered Source to fill its block of a working
// record, stamps the record and appends it. A source that fails is logged and
// skipped; its block keeps whatever value the working record already held,
// so one bad subsystem never costs the whole snapshot.
package collector

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arrooney/ex2-services/config"
	"github.com/arrooney/ex2-services/internal/errors"
	"github.com/arrooney/ex2-services/internal/logging"
	"github.com/arrooney/ex2-services/internal/storage/record"
)

var log = logging.Component("collector")

// Source fills one subsystem block of a record.
type Source interface {
	Subsystem() record.Subsystem
	Collect(ctx context.Context, r *record.Record) error
}

// FuncSource adapts a function to Source.
type FuncSource struct {
	S  record.Subsystem
	Fn func(ctx context.Context, r *record.Record) error
}

// Subsystem returns the block the function fills.
func (f FuncSource) Subsystem() record.Subsystem { return f.S }

// Collect calls the function.
func (f FuncSource) Collect(ctx context.Context, r *record.Record) error { return f.Fn(ctx, r) }

// Appender stores finished snapshots.
type Appender interface {
	Append(ctx context.Context, rec record.Record) (uint16, error)
}

// Config configures a Collector.
type Config struct {
	// Interval between snapshots. Defaults to config.DefaultCollectInterval.
	Interval time.Duration

	// SourceTimeout bounds a single Source.Collect call. Zero means the
	// interval.
	SourceTimeout time.Duration
}

// Stats holds collector statistics.
type Stats struct {
	Cycles         int64
	SourceFailures int64
	AppendFailures int64
	LastSlot       uint16
	LastRun        time.Time
}

// Collector periodically snapshots every source into the store.
type Collector struct {
	store   Appender
	sources []Source
	cfg     Config
	now     func() time.Time

	// mu guards current, the working record carried across cycles.
	mu      sync.Mutex
	current record.Record

	cycles         atomic.Int64
	sourceFailures atomic.Int64
	appendFailures atomic.Int64
	lastSlot       atomic.Uint32
	lastRun        atomic.Int64
}

// New creates a collector over store. Sources run in the order given.
func New(store Appender, cfg Config, sources ...Source) (*Collector, error) {
	if store == nil {
		return nil, errors.NewMissingField("store")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = config.DefaultCollectInterval
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = cfg.Interval
	}

	for i, s := range sources {
		if s == nil {
			return nil, errors.NewMissingField(fmt.Sprintf("sources[%d]", i))
		}
		if int(s.Subsystem()) >= record.NumSubsystems {
			return nil, errors.NewInvalidValue("source subsystem", s.Subsystem(), "not in schema")
		}
	}

	return &Collector{
		store:   store,
		sources: sources,
		cfg:     cfg,
		now:     time.Now,
	}, nil
}

// CollectOnce takes one snapshot and appends it. Source failures are logged
// and do not fail the cycle; an append failure does.
func (c *Collector) CollectOnce(ctx context.Context) (uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cycles.Add(1)

	for _, src := range c.sources {
		sctx, cancel := context.WithTimeout(ctx, c.cfg.SourceTimeout)
		err := src.Collect(sctx, &c.current)
		cancel()
		if err != nil {
			c.sourceFailures.Add(1)
			log.Warn("subsystem collection failed, keeping previous values",
				"subsystem", src.Subsystem().String(), "error", err)
		}
	}

	now := c.now()
	c.current.Header.Timestamp = uint32(now.Unix())
	c.lastRun.Store(now.UnixNano())

	slot, err := c.store.Append(ctx, c.current)
	if err != nil {
		c.appendFailures.Add(1)
		return 0, errors.Wrap(err, "store snapshot")
	}
	c.current.Header.SlotID = slot
	c.lastSlot.Store(uint32(slot))

	log.Debug("snapshot stored", "slot", slot, "timestamp", c.current.Header.Timestamp)
	return slot, nil
}

// Run takes a snapshot immediately and then once per interval until ctx is
// cancelled. Append failures are logged and the loop continues.
func (c *Collector) Run(ctx context.Context) error {
	log.Info("collector started", "interval", c.cfg.Interval, "sources", len(c.sources))

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := c.CollectOnce(ctx); err != nil && ctx.Err() == nil {
			log.Error("snapshot not stored", "error", err)
		}

		select {
		case <-ctx.Done():
			log.Info("collector stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Current returns a copy of the working record.
func (c *Collector) Current() record.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Stats returns current statistics.
func (c *Collector) Stats() Stats {
	s := Stats{
		Cycles:         c.cycles.Load(),
		SourceFailures: c.sourceFailures.Load(),
		AppendFailures: c.appendFailures.Load(),
		LastSlot:       uint16(c.lastSlot.Load()),
	}
	if ns := c.lastRun.Load(); ns != 0 {
		s.LastRun = time.Unix(0, ns)
	}
	return s
}
