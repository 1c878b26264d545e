package query

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/arrooney/ex2-services/internal/errors"
	"github.com/arrooney/ex2-services/internal/storage"
	"github.com/arrooney/ex2-services/internal/storage/backend"
	"github.com/arrooney/ex2-services/internal/storage/record"
)

// collectSink records every payload it receives.
type collectSink struct {
	mu       sync.Mutex
	payloads [][]byte
	failAt   int
}

func (c *collectSink) Send(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAt > 0 && len(c.payloads)+1 == c.failAt {
		return fmt.Errorf("link down")
	}
	c.payloads = append(c.payloads, payload)
	return nil
}

func (c *collectSink) timestamps(t *testing.T) []uint32 {
	t.Helper()
	var out []uint32
	for _, p := range c.payloads {
		r, err := record.FromWirePayload(p)
		if err != nil {
			t.Fatalf("FromWirePayload: %v", err)
		}
		out = append(out, r.Header.Timestamp)
	}
	return out
}

func newStore(t *testing.T, capacity uint16, ts ...uint32) *storage.Store {
	t.Helper()
	s, err := storage.New(backend.NewMemory(), storage.Options{Capacity: capacity, Tolerance: 15})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	for _, v := range ts {
		var r record.Record
		r.Header.Timestamp = v
		if _, err := s.Append(context.Background(), r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	return s
}

func equal(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFetchHistoric_ZeroLimit(t *testing.T) {
	e := New(newStore(t, 3, 10, 40), 0)
	sink := &collectSink{}

	n, err := e.FetchHistoric(context.Background(), Query{}, sink)
	if err != nil {
		t.Fatalf("FetchHistoric: %v", err)
	}
	if n != 0 || len(sink.payloads) != 0 {
		t.Errorf("expected no messages, got %d", len(sink.payloads))
	}
}

func TestFetchHistoric_LimitClampedToCapacity(t *testing.T) {
	e := New(newStore(t, 3, 10, 40, 70, 100, 130), 0)
	sink := &collectSink{}

	n, err := e.FetchHistoric(context.Background(), Query{Limit: 50}, sink)
	if err != nil {
		t.Fatalf("FetchHistoric: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 messages, got %d", n)
	}
	want := []uint32{130, 100, 70}
	if got := sink.timestamps(t); !equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestFetchHistoric_Scenario(t *testing.T) {
	s := newStore(t, 3, 10, 40, 70)

	if got := s.NearestSlot(42); got != 2 {
		t.Fatalf("expected nearest slot 2, got %d", got)
	}

	var d record.Record
	d.Header.Timestamp = 100
	if slot, _ := s.Append(context.Background(), d); slot != 1 {
		t.Fatalf("expected D in slot 1, got %d", slot)
	}

	e := New(s, 0)
	sink := &collectSink{}
	if _, err := e.FetchHistoric(context.Background(), Query{Limit: 2}, sink); err != nil {
		t.Fatalf("FetchHistoric: %v", err)
	}

	want := []uint32{100, 70}
	if got := sink.timestamps(t); !equal(got, want) {
		t.Errorf("expected D then C %v, got %v", want, got)
	}

	r, _ := record.FromWirePayload(sink.payloads[1])
	if r.Header.SlotID != 3 {
		t.Errorf("expected second record from slot 3, got %d", r.Header.SlotID)
	}
}

func TestFetchHistoric_Anchors(t *testing.T) {
	// capacity 5, slots 1..5 hold 30..150, cursor back at 1
	s := newStore(t, 5, 30, 60, 90, 120, 150)
	e := New(s, 0)

	tests := []struct {
		name string
		q    Query
		want []uint32
	}{
		{"most recent", Query{Limit: 2}, []uint32{150, 120}},
		{"before id", Query{Limit: 2, BeforeID: 4}, []uint32{90, 60}},
		{"before id wraps", Query{Limit: 3, BeforeID: 2}, []uint32{30, 150, 120}},
		{"before time", Query{Limit: 1, BeforeTime: 95}, []uint32{60}},
		{"before time wins over id", Query{Limit: 1, BeforeID: 2, BeforeTime: 125}, []uint32{90}},
		{"unmatched time falls back to cursor", Query{Limit: 1, BeforeTime: 9000}, []uint32{150}},
		{"id beyond capacity falls back to cursor", Query{Limit: 1, BeforeID: 77}, []uint32{150}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &collectSink{}
			if _, err := e.FetchHistoric(context.Background(), tt.q, sink); err != nil {
				t.Fatalf("FetchHistoric: %v", err)
			}
			if got := sink.timestamps(t); !equal(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestFetchHistoric_ReadFailureStops(t *testing.T) {
	// only slots 1 and 2 of 4 written; walking past slot 1 wraps to slot 4
	e := New(newStore(t, 4, 10, 40), 0)
	sink := &collectSink{}

	n, err := e.FetchHistoric(context.Background(), Query{Limit: 4}, sink)
	if !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n != 2 || len(sink.payloads) != 2 {
		t.Errorf("expected the 2 records before the failure, got %d", n)
	}
	if e.Stats().ReadErrors != 1 {
		t.Errorf("expected 1 read error, got %d", e.Stats().ReadErrors)
	}
}

func TestFetchHistoric_TransmitFailureStops(t *testing.T) {
	e := New(newStore(t, 5, 10, 40, 70, 100), 0)
	sink := &collectSink{failAt: 2}

	n, err := e.FetchHistoric(context.Background(), Query{Limit: 4}, sink)
	if !errors.Is(err, errors.ErrTransmit) {
		t.Fatalf("expected ErrTransmit, got %v", err)
	}
	if n != 1 || len(sink.payloads) != 1 {
		t.Errorf("expected 1 message before the failure, got %d", n)
	}
}

func TestFetchHistoric_SendTimeout(t *testing.T) {
	e := New(newStore(t, 3, 10), 10*time.Millisecond)

	sink := SinkFunc(func(ctx context.Context, _ []byte) error {
		if _, ok := ctx.Deadline(); !ok {
			return fmt.Errorf("send without deadline")
		}
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	_, err := e.FetchHistoric(context.Background(), Query{Limit: 1}, sink)
	if !errors.Is(err, errors.ErrTransmit) {
		t.Fatalf("expected ErrTransmit, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded in chain, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("send timeout was not applied")
	}
}
