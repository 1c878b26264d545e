package collector

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/arrooney/ex2-services/internal/errors"
	"github.com/arrooney/ex2-services/internal/storage"
	"github.com/arrooney/ex2-services/internal/storage/backend"
	"github.com/arrooney/ex2-services/internal/storage/record"
	testutil "github.com/arrooney/ex2-services/internal/testing"
)

type memAppender struct {
	mu   sync.Mutex
	recs []record.Record
	err  error
}

func (m *memAppender) Append(_ context.Context, r record.Record) (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.recs = append(m.recs, r)
	return uint16(len(m.recs)), nil
}

func (m *memAppender) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, Config{}); !errors.Is(err, errors.ErrMissingField) {
		t.Errorf("expected ErrMissingField, got %v", err)
	}

	bad := FuncSource{S: record.Subsystem(9), Fn: func(context.Context, *record.Record) error { return nil }}
	if _, err := New(&memAppender{}, Config{}, bad); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestCollectOnce_BestEffort(t *testing.T) {
	app := &memAppender{}
	calls := 0

	eps := FuncSource{S: record.SubsystemEPS, Fn: func(_ context.Context, r *record.Record) error {
		calls++
		if calls > 1 {
			return fmt.Errorf("i2c timeout")
		}
		r.EPS.BatteryVoltage = 7400
		return nil
	}}
	uhf := FuncSource{S: record.SubsystemUHF, Fn: func(_ context.Context, r *record.Record) error {
		r.UHF.RSSI = int16(-100 - calls)
		return nil
	}}

	c, err := New(app, Config{Interval: time.Second}, eps, uhf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.now = func() time.Time { return time.Unix(1700000000, 0) }

	for i := 0; i < 2; i++ {
		if _, err := c.CollectOnce(context.Background()); err != nil {
			t.Fatalf("CollectOnce: %v", err)
		}
	}

	if len(app.recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(app.recs))
	}

	second := app.recs[1]
	if second.EPS.BatteryVoltage != 7400 {
		t.Errorf("failed source should keep previous value 7400, got %d", second.EPS.BatteryVoltage)
	}
	if second.UHF.RSSI != -102 {
		t.Errorf("healthy source should still run, expected -102, got %d", second.UHF.RSSI)
	}
	if second.Header.Timestamp != 1700000000 {
		t.Errorf("expected timestamp 1700000000, got %d", second.Header.Timestamp)
	}

	stats := c.Stats()
	if stats.Cycles != 2 || stats.SourceFailures != 1 || stats.LastSlot != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestCollectOnce_AppendFailure(t *testing.T) {
	app := &memAppender{err: fmt.Errorf("flash worn: %w", errors.ErrStorage)}
	c, err := New(app, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := c.CollectOnce(context.Background()); !errors.Is(err, errors.ErrStorage) {
		t.Errorf("expected ErrStorage, got %v", err)
	}
	if c.Stats().AppendFailures != 1 {
		t.Errorf("expected 1 append failure, got %d", c.Stats().AppendFailures)
	}
}

func TestCollectOnce_SourceTimeout(t *testing.T) {
	app := &memAppender{}
	slow := FuncSource{S: record.SubsystemSBand, Fn: func(ctx context.Context, _ *record.Record) error {
		<-ctx.Done()
		return ctx.Err()
	}}

	c, err := New(app, Config{Interval: time.Hour, SourceTimeout: 10 * time.Millisecond}, slow)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := c.CollectOnce(context.Background()); err != nil {
		t.Fatalf("a timed out source must not fail the cycle: %v", err)
	}
	if app.count() != 1 {
		t.Errorf("expected snapshot stored, got %d", app.count())
	}
}

func TestCollectOnce_IntoStore(t *testing.T) {
	s, err := storage.New(backend.NewMemory(), storage.Options{Capacity: 2, Tolerance: 15})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}

	c, err := New(s, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := int64(1000)
	c.now = func() time.Time { ts += 30; return time.Unix(ts, 0) }

	for i := 0; i < 3; i++ {
		if _, err := c.CollectOnce(context.Background()); err != nil {
			t.Fatalf("CollectOnce: %v", err)
		}
	}

	r, err := s.Read(context.Background(), 1)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if r.Header.Timestamp != 1090 || r.Header.SlotID != 1 {
		t.Errorf("expected third snapshot in slot 1, got %+v", r.Header)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	app := &memAppender{}
	c, err := New(app, Config{Interval: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	gt := testutil.NewGoroutineTest(t)
	gt.Go(func() error { return c.Run(ctx) })

	if err := testutil.Eventually(time.Second, time.Millisecond, func() bool { return app.count() >= 3 }); err != nil {
		t.Errorf("expected at least 3 snapshots: %v", err)
	}
	cancel()
	gt.Wait()
}

func TestSNMPConfig_Validate(t *testing.T) {
	fields := []OIDField{{OID: "1.3.6.1.4.1.99.1", Field: "vbatt_mv"}}

	tests := []struct {
		name    string
		cfg     SNMPConfig
		wantErr bool
	}{
		{"v2c", SNMPConfig{Host: "bench", Community: "public", Fields: fields}, false},
		{"v3", SNMPConfig{Host: "bench", SecurityName: "hk", Fields: fields}, false},
		{"no host", SNMPConfig{Community: "public", Fields: fields}, true},
		{"no community", SNMPConfig{Host: "bench", Fields: fields}, true},
		{"no fields", SNMPConfig{Host: "bench", Community: "public"}, true},
		{"field without oid", SNMPConfig{Host: "bench", Community: "public", Fields: []OIDField{{Field: "x"}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewSNMPSource_UnknownField(t *testing.T) {
	cfg := SNMPConfig{Host: "bench", Community: "public", Fields: []OIDField{{OID: "1.2.3", Field: "warp_core"}}}
	if _, err := NewSNMPSource(record.SubsystemEPS, cfg); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSNMPSource_Apply(t *testing.T) {
	cfg := SNMPConfig{
		Host:      "bench",
		Community: "public",
		Fields: []OIDField{
			{OID: "1.3.6.1.4.1.99.1", Field: "vbatt_mv"},
			{OID: ".1.3.6.1.4.1.99.2", Field: "ibatt_ma", Scale: 1000},
			{OID: "1.3.6.1.4.1.99.3", Field: "boot_count"},
		},
	}
	src, err := NewSNMPSource(record.SubsystemEPS, cfg)
	if err != nil {
		t.Fatalf("NewSNMPSource: %v", err)
	}

	var r record.Record
	r.EPS.BootCount = 5
	err = src.apply(&r, []gosnmp.SnmpPDU{
		{Name: ".1.3.6.1.4.1.99.1", Type: gosnmp.Gauge32, Value: uint(7400)},
		{Name: ".1.3.6.1.4.1.99.2", Type: gosnmp.OctetString, Value: []byte("-0.25")},
		{Name: ".1.3.6.1.4.1.99.3", Type: gosnmp.NoSuchInstance},
		{Name: ".1.3.6.1.4.1.99.9", Type: gosnmp.Integer, Value: 1},
	})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected the missing instance to be reported, got %v", err)
	}

	if r.EPS.BatteryVoltage != 7400 {
		t.Errorf("expected vbatt_mv=7400, got %d", r.EPS.BatteryVoltage)
	}
	if r.EPS.BatteryCurrent != -250 {
		t.Errorf("expected scaled ibatt_ma=-250, got %d", r.EPS.BatteryCurrent)
	}
	if r.EPS.BootCount != 5 {
		t.Errorf("unread field should keep its value, got %d", r.EPS.BootCount)
	}
}

func TestVariableValue(t *testing.T) {
	tests := []struct {
		name    string
		pdu     gosnmp.SnmpPDU
		want    float64
		wantErr bool
	}{
		{"integer", gosnmp.SnmpPDU{Type: gosnmp.Integer, Value: -12}, -12, false},
		{"counter64", gosnmp.SnmpPDU{Type: gosnmp.Counter64, Value: uint64(1 << 40)}, 1 << 40, false},
		{"timeticks", gosnmp.SnmpPDU{Type: gosnmp.TimeTicks, Value: uint32(360000)}, 360000, false},
		{"opaque float", gosnmp.SnmpPDU{Type: gosnmp.OpaqueFloat, Value: float32(1.5)}, 1.5, false},
		{"opaque double", gosnmp.SnmpPDU{Type: gosnmp.OpaqueDouble, Value: 2.25}, 2.25, false},
		{"octet string", gosnmp.SnmpPDU{Type: gosnmp.OctetString, Value: []byte(" 42 ")}, 42, false},
		{"octet string text", gosnmp.SnmpPDU{Type: gosnmp.OctetString, Value: []byte("nominal")}, 0, true},
		{"no such object", gosnmp.SnmpPDU{Type: gosnmp.NoSuchObject}, 0, true},
		{"ip address", gosnmp.SnmpPDU{Type: gosnmp.IPAddress, Value: "10.0.0.1"}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := variableValue(tt.pdu)
			if (err != nil) != tt.wantErr {
				t.Fatalf("variableValue() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
