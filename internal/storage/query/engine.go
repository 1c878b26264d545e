// Package query serves bounded backward retrieval of housekeeping records.
package query

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/arrooney/ex2-services/config"
	"github.com/arrooney/ex2-services/internal/errors"
	"github.com/arrooney/ex2-services/internal/logging"
	"github.com/arrooney/ex2-services/internal/storage"
	"github.com/arrooney/ex2-services/internal/storage/record"
)

var log = logging.Component("query")

// Store is the part of the circular store the engine reads from.
type Store interface {
	ResolveAnchor(beforeID uint16, beforeTime uint32) (storage.State, uint16)
	Read(ctx context.Context, slot uint16) (record.Record, error)
}

// Sink receives one wire-order record payload per call.
type Sink interface {
	Send(ctx context.Context, payload []byte) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, payload []byte) error

// Send calls f.
func (f SinkFunc) Send(ctx context.Context, payload []byte) error {
	return f(ctx, payload)
}

// Query selects a backward page of records. Zero fields are unset.
type Query struct {
	Limit      uint16
	BeforeID   uint16
	BeforeTime uint32
}

// Stats holds query statistics.
type Stats struct {
	QueriesExecuted int64
	RecordsSent     int64
	ReadErrors      int64
	SendErrors      int64
}

// Engine walks the store backward from an anchor slot.
type Engine struct {
	store       Store
	sendTimeout time.Duration

	queries    atomic.Int64
	sent       atomic.Int64
	readErrors atomic.Int64
	sendErrors atomic.Int64
}

// New creates an engine. sendTimeout bounds every single Send; zero uses
// config.DefaultSendTimeout.
func New(store Store, sendTimeout time.Duration) *Engine {
	if sendTimeout <= 0 {
		sendTimeout = config.DefaultSendTimeout
	}
	return &Engine{store: store, sendTimeout: sendTimeout}
}

// FetchHistoric emits up to q.Limit records, newest first, starting just
// before the anchor slot.
//
// The anchor is the slot nearest q.BeforeTime when it is set, q.BeforeID
// otherwise, and the cursor when neither names a valid slot. The limit is
// clamped to the capacity. The walk stops at the first read or send failure;
// records already sent stay sent. It returns the number of records sent.
func (e *Engine) FetchHistoric(ctx context.Context, q Query, sink Sink) (int, error) {
	e.queries.Add(1)

	st, anchor := e.store.ResolveAnchor(q.BeforeID, q.BeforeTime)

	limit := q.Limit
	if limit > st.Capacity {
		limit = st.Capacity
	}
	if limit == 0 {
		return 0, nil
	}

	logger := logging.WithContext(ctx, log)
	logger.Debug("fetch historic",
		"limit", limit, "before_id", q.BeforeID, "before_time", q.BeforeTime,
		"anchor", anchor, "capacity", st.Capacity, "cursor", st.Cursor)

	sent := 0
	slot := anchor
	for sent < int(limit) {
		slot--
		if slot == 0 {
			slot = st.Capacity
		}

		rec, err := e.store.Read(ctx, slot)
		if err != nil {
			e.readErrors.Add(1)
			log.Warn("historic read failed", "slot", slot, "sent", sent, "error", err)
			return sent, errors.Wrapf(err, "fetch slot %d", slot)
		}

		if err := e.send(ctx, sink, record.WirePayload(rec)); err != nil {
			e.sendErrors.Add(1)
			log.Warn("historic send failed", "slot", slot, "sent", sent, "error", err)
			return sent, fmt.Errorf("send slot %d: %w: %w", slot, errors.ErrTransmit, err)
		}

		sent++
		e.sent.Add(1)
	}

	return sent, nil
}

func (e *Engine) send(ctx context.Context, sink Sink, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()
	return sink.Send(ctx, payload)
}

// Stats returns current statistics.
func (e *Engine) Stats() Stats {
	return Stats{
		QueriesExecuted: e.queries.Load(),
		RecordsSent:     e.sent.Load(),
		ReadErrors:      e.readErrors.Load(),
		SendErrors:      e.sendErrors.Load(),
	}
}
