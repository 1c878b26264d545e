package client

import (
	"context"
	"net"
	"testing"
	"time"

	hkerrors "github.com/arrooney/ex2-services/internal/errors"
	"github.com/arrooney/ex2-services/internal/handler"
	"github.com/arrooney/ex2-services/internal/server"
	"github.com/arrooney/ex2-services/internal/storage"
	"github.com/arrooney/ex2-services/internal/storage/backend"
	"github.com/arrooney/ex2-services/internal/storage/query"
	"github.com/arrooney/ex2-services/internal/storage/record"
	testutil "github.com/arrooney/ex2-services/internal/testing"
	"github.com/arrooney/ex2-services/internal/wire"
)

func serve(t *testing.T, capacity uint16, ts ...uint32) string {
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

	srv, err := server.New(server.Config{
		Handler: handler.NewHandler(s, query.New(s, time.Second)),
		Listen:  "127.0.0.1:0",
	})
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}

	gt := testutil.NewGoroutineTest(t)
	gt.GoWithContext(func(ctx context.Context) error { return srv.Run(ctx) })
	t.Cleanup(func() {
		gt.Cancel()
		gt.Wait()
	})
	return srv.Addr().String()
}

func connect(t *testing.T, addr string) *Client {
	t.Helper()
	c, err := Dial(context.Background(), &Config{Addr: addr, IdleTimeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func timestamps(recs []record.Record) []uint32 {
	out := make([]uint32, len(recs))
	for i, r := range recs {
		out[i] = r.Header.Timestamp
	}
	return out
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

func TestClient_MaxFiles(t *testing.T) {
	c := connect(t, serve(t, 5))
	ctx := context.Background()

	n, err := c.GetMaxFiles(ctx)
	if err != nil {
		t.Fatalf("GetMaxFiles: %v", err)
	}
	if n != 5 {
		t.Errorf("expected 5, got %d", n)
	}

	if err := c.SetMaxFiles(ctx, 12); err != nil {
		t.Fatalf("SetMaxFiles: %v", err)
	}
	if n, _ := c.GetMaxFiles(ctx); n != 12 {
		t.Errorf("expected 12, got %d", n)
	}

	err = c.SetMaxFiles(ctx, 0)
	var se *StatusError
	if !hkerrors.As(err, &se) || se.Status != hkerrors.StatusFailure {
		t.Fatalf("expected status -1, got %v", err)
	}
	if !hkerrors.Is(err, ErrRemoteFailure) {
		t.Errorf("expected ErrRemoteFailure in chain, got %v", err)
	}
	if n, _ := c.GetMaxFiles(ctx); n != 12 {
		t.Errorf("rejected resize must keep capacity 12, got %d", n)
	}
}

func TestClient_GetHK(t *testing.T) {
	c := connect(t, serve(t, 3, 10, 40, 70, 100))
	ctx := context.Background()

	tests := []struct {
		name string
		q    wire.HKRequest
		want []uint32
	}{
		{"latest two", wire.HKRequest{Limit: 2}, []uint32{100, 70}},
		{"before time", wire.HKRequest{Limit: 1, BeforeTime: 72}, []uint32{40}},
		{"limit above capacity ends on idle", wire.HKRequest{Limit: 9}, []uint32{100, 70, 40}},
		{"zero limit", wire.HKRequest{}, []uint32{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := c.Records(ctx, tt.q)
			if err != nil {
				t.Fatalf("Records: %v", err)
			}
			if got := timestamps(recs); !equal(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestClient_GetHKFailureStatus(t *testing.T) {
	// two of four slots written; the walk runs into an unwritten slot
	c := connect(t, serve(t, 4, 10, 40))

	var got []uint32
	n, err := c.GetHK(context.Background(), wire.HKRequest{Limit: 4}, func(r record.Record) error {
		got = append(got, r.Header.Timestamp)
		return nil
	})
	if !hkerrors.Is(err, ErrRemoteFailure) {
		t.Fatalf("expected remote failure, got %v", err)
	}
	if n != 2 || !equal(got, []uint32{40, 10}) {
		t.Errorf("expected [40 10] before the failure, got %v", got)
	}

	// the connection is still usable
	if _, err := c.GetMaxFiles(context.Background()); err != nil {
		t.Errorf("GetMaxFiles after failure: %v", err)
	}
}

func TestClient_States(t *testing.T) {
	c := New(&Config{Addr: "127.0.0.1:1"})
	if c.State() != "disconnected" {
		t.Errorf("expected disconnected, got %s", c.State())
	}
	if _, err := c.GetMaxFiles(context.Background()); !hkerrors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}

	c = connect(t, serve(t, 2))
	if !c.IsConnected() {
		t.Fatal("expected connected")
	}
	if err := c.Connect(context.Background()); !hkerrors.Is(err, ErrAlreadyConnected) {
		t.Errorf("expected ErrAlreadyConnected, got %v", err)
	}
	c.Close()
	if c.State() != "closed" {
		t.Errorf("expected closed, got %s", c.State())
	}
	if err := c.Connect(context.Background()); !hkerrors.Is(err, ErrClientClosed) {
		t.Errorf("expected ErrClientClosed, got %v", err)
	}
}

func TestClient_ReplyTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	// accept and never answer
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			defer conn.Close()
			time.Sleep(time.Second)
		}
	}()

	c := connect(t, ln.Addr().String())
	if _, err := c.GetMaxFiles(context.Background()); !hkerrors.Is(err, hkerrors.ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}
