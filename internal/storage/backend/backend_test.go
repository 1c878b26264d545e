package backend

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/arrooney/ex2-services/internal/errors"
)

func TestLayout_NameParse(t *testing.T) {
	l := DefaultLayout()

	name := l.Name(KeyFor(134))
	if name != "tempHKdata134.TMP" {
		t.Errorf("expected tempHKdata134.TMP, got %s", name)
	}

	k, ok := l.Parse(name)
	if !ok || k.Slot != 134 {
		t.Errorf("expected slot 134, got %v (ok=%v)", k, ok)
	}

	for _, bad := range []string{
		"tempHKdata.TMP",
		"tempHKdata0.TMP",
		"tempHKdata007.TMP",
		"tempHKdata70000.TMP",
		"tempHKdata12.tmp",
		"other12.TMP",
		"tempHKdataX.TMP",
	} {
		if _, ok := l.Parse(bad); ok {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}

// exercise runs the shared Backend contract.
func exercise(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()
	k := KeyFor(7)

	if _, err := b.Get(ctx, k); !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing key, got %v", err)
	}
	if ok, err := b.Exists(ctx, k); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}

	if err := b.Put(ctx, k, []byte("first")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := b.Put(ctx, k, []byte("second")); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}

	got, err := b.Get(ctx, k)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, []byte("second")) {
		t.Errorf("expected second, got %q", got)
	}
	if ok, err := b.Exists(ctx, k); err != nil || !ok {
		t.Errorf("expected key to exist, got ok=%v err=%v", ok, err)
	}

	if err := b.Delete(ctx, k); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := b.Delete(ctx, k); err != nil {
		t.Errorf("Delete of missing key should succeed, got %v", err)
	}
	if _, err := b.Get(ctx, k); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	exercise(t, m)

	ctx := context.Background()
	src := []byte{1, 2, 3}
	m.Put(ctx, KeyFor(1), src)
	src[0] = 9

	got, _ := m.Get(ctx, KeyFor(1))
	if got[0] != 1 {
		t.Error("Put should copy its input")
	}
	if m.Len() != 1 {
		t.Errorf("expected 1 slot, got %d", m.Len())
	}
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFiles(dir, DefaultLayout())
	if err != nil {
		t.Fatalf("NewFiles: %v", err)
	}
	exercise(t, f)

	ctx := context.Background()
	if err := f.Put(ctx, KeyFor(3), []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "tempHKdata3.TMP")); err != nil {
		t.Errorf("expected slot file on disk: %v", err)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if e.Name() != "tempHKdata3.TMP" {
			t.Errorf("unexpected leftover file %s", e.Name())
		}
	}
}

func TestFiles_RequiresDir(t *testing.T) {
	if _, err := NewFiles("", DefaultLayout()); err == nil {
		t.Error("expected error for empty directory")
	}
}

func TestDuckDB(t *testing.T) {
	d, err := NewDuckDB("", t.TempDir())
	if err != nil {
		t.Fatalf("NewDuckDB: %v", err)
	}
	defer d.Close()

	exercise(t, d)

	if err := d.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}

func TestOpen(t *testing.T) {
	b, err := Open(Options{Kind: "memory"})
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	if _, ok := b.(*Memory); !ok {
		t.Errorf("expected *Memory, got %T", b)
	}

	b, err = Open(Options{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Open default: %v", err)
	}
	if _, ok := b.(*Files); !ok {
		t.Errorf("expected *Files for empty kind, got %T", b)
	}

	if _, err := Open(Options{Kind: "s3"}); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}
