package index

import (
	"testing"

	"github.com/arrooney/ex2-services/internal/errors"
)

// fill builds an index of size n with ts written to slots 1..len(ts).
func fill(t *testing.T, n int, ts ...uint32) *Index {
	t.Helper()
	x := New(0)
	if err := x.Resize(n); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	for i, v := range ts {
		x.RecordWrite(uint16(i+1), v)
	}
	return x
}

func TestIndex_Resize(t *testing.T) {
	x := fill(t, 3, 10, 20, 30)

	if err := x.Resize(5); err != nil {
		t.Fatalf("grow: %v", err)
	}
	if x.Size() != 5 {
		t.Errorf("expected size=5, got %d", x.Size())
	}
	if x.At(3) != 30 || x.At(4) != 0 || x.At(5) != 0 {
		t.Errorf("grow should keep old entries and zero new ones: %v", x.Snapshot())
	}

	if err := x.Resize(2); err != nil {
		t.Fatalf("shrink: %v", err)
	}
	if x.At(2) != 20 || x.At(3) != 0 {
		t.Errorf("shrink should keep retained entries: %v", x.Snapshot())
	}

	if err := x.Resize(0); err != nil {
		t.Fatalf("free: %v", err)
	}
	if x.Size() != 0 {
		t.Errorf("expected empty index, got size %d", x.Size())
	}
}

func TestIndex_ResizeAllocationFailure(t *testing.T) {
	x := New(4)
	if err := x.Resize(3); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	x.RecordWrite(2, 99)

	err := x.Resize(10)
	if !errors.Is(err, errors.ErrIndexAllocation) {
		t.Fatalf("expected ErrIndexAllocation, got %v", err)
	}
	if x.Size() != 3 || x.At(2) != 99 {
		t.Errorf("failed resize must leave the old buffer intact: %v", x.Snapshot())
	}

	if err := x.Resize(-1); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestIndex_RecordWriteOutOfRange(t *testing.T) {
	x := fill(t, 2)
	x.RecordWrite(0, 5)
	x.RecordWrite(3, 5)

	for _, v := range x.Snapshot() {
		if v != 0 {
			t.Fatalf("out of range writes must be ignored: %v", x.Snapshot())
		}
	}
}

func TestFindNearest_Empty(t *testing.T) {
	if got := New(0).FindNearest(100, 1, 15); got != 0 {
		t.Errorf("expected 0 for unallocated index, got %d", got)
	}
	if got := fill(t, 5).FindNearest(100, 1, 15); got != 0 {
		t.Errorf("expected 0 for unwritten index, got %d", got)
	}
}

func TestFindNearest_NotWrapped(t *testing.T) {
	// slots 1..4 written, cursor at 5 of 8
	x := fill(t, 8, 100, 130, 160, 190)

	tests := []struct {
		name string
		ts   uint32
		want uint16
	}{
		{"exact first", 100, 1},
		{"exact middle", 160, 3},
		{"just after middle", 165, 3},
		{"lower neighbour within tolerance", 143, 2},
		{"upper only", 148, 3},
		{"tie goes to lower neighbour", 115, 1},
		{"before first within tolerance", 90, 1},
		{"before first beyond tolerance", 80, 0},
		{"after last within tolerance", 200, 4},
		{"after last beyond tolerance", 206, 0},
		{"gap beyond tolerance", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := x.FindNearest(tt.ts, 5, 15); got != tt.want {
				t.Errorf("FindNearest(%d): expected %d, got %d", tt.ts, tt.want, got)
			}
		})
	}
}

func TestFindNearest_NoWrites(t *testing.T) {
	x := fill(t, 4)
	if got := x.FindNearest(0, 1, 15); got != 0 {
		t.Errorf("cursor at 1 with nothing written should give 0, got %d", got)
	}
}

func TestFindNearest_SingleEntry(t *testing.T) {
	x := fill(t, 4, 1000)

	if got := x.FindNearest(1010, 2, 15); got != 1 {
		t.Errorf("expected 1 above single entry, got %d", got)
	}
	if got := x.FindNearest(990, 2, 15); got != 1 {
		t.Errorf("expected 1 below single entry, got %d", got)
	}
	if got := x.FindNearest(2000, 2, 15); got != 0 {
		t.Errorf("expected 0 far above single entry, got %d", got)
	}
	if got := x.FindNearest(500, 2, 15); got != 0 {
		t.Errorf("expected 0 far below single entry, got %d", got)
	}
}

func TestFindNearest_Wrapped(t *testing.T) {
	// capacity 3: A(10) B(40) C(70) written, cursor back at 1
	x := fill(t, 3, 10, 40, 70)
	if got := x.FindNearest(42, 1, 15); got != 2 {
		t.Errorf("expected slot 2, got %d", got)
	}

	// D(100) overwrites slot 1, cursor at 2: logical order 2,3,1
	x.RecordWrite(1, 100)
	tests := []struct {
		ts   uint32
		want uint16
	}{
		{40, 2},
		{30, 2},
		{72, 3},
		{95, 1},
		{110, 1},
		{116, 0},
		{10, 0},
	}
	for _, tt := range tests {
		if got := x.FindNearest(tt.ts, 2, 15); got != tt.want {
			t.Errorf("FindNearest(%d): expected %d, got %d", tt.ts, tt.want, got)
		}
	}
}

func TestFindNearest_WrappedAfterGrow(t *testing.T) {
	// capacity grew from 3 to 6 and the cursor was reset to 1; only the old
	// run 1..3 is written
	x := fill(t, 6, 10, 40, 70)
	if got := x.FindNearest(68, 1, 15); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
	if got := x.FindNearest(200, 1, 15); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}

func TestFindNearest_ZeroTolerance(t *testing.T) {
	x := fill(t, 5, 10, 20, 30, 40, 50)
	if got := x.FindNearest(30, 1, 0); got != 3 {
		t.Errorf("expected exact match 3, got %d", got)
	}
	if got := x.FindNearest(31, 1, 0); got != 0 {
		t.Errorf("expected no match, got %d", got)
	}
}

func TestFindNearest_CloserNeighbourWins(t *testing.T) {
	// written every 10s with a 15s tolerance, so both neighbours are usually
	// within tolerance
	x := fill(t, 5, 10, 20, 30)

	tests := []struct {
		name string
		ts   uint32
		want uint16
	}{
		{"exact middle", 20, 2},
		{"exact last", 30, 3},
		{"exact first", 10, 1},
		{"closer upper neighbour", 28, 3},
		{"closer lower neighbour", 22, 2},
		{"tie goes to lower neighbour", 25, 2},
		{"past newest", 40, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := x.FindNearest(tt.ts, 4, 15); got != tt.want {
				t.Errorf("FindNearest(%d): expected %d, got %d", tt.ts, tt.want, got)
			}
		})
	}
}
