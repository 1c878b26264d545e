// Package backend provides durable slot storage for the housekeeping store.
//
// A Backend is a key to bytes store addressed by structured slot keys. The
// store never formats names itself: Layout turns a Key into a file or row
// name, and each backend decides how to use it.
package backend

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/arrooney/ex2-services/config"
	"github.com/arrooney/ex2-services/internal/errors"
)

// Key addresses one persisted slot.
type Key struct {
	Slot uint16
}

// KeyFor derives the backend key of a slot.
func KeyFor(slot uint16) Key {
	return Key{Slot: slot}
}

// String returns a stable debug form of the key.
func (k Key) String() string {
	return "slot/" + strconv.Itoa(int(k.Slot))
}

// Layout names slots as Base + slot number + Ext, e.g. tempHKdata134.TMP.
type Layout struct {
	Base string
	Ext  string
}

// DefaultLayout returns the standard slot naming.
func DefaultLayout() Layout {
	return Layout{Base: config.DefaultBaseName, Ext: config.DefaultExtension}
}

// Name returns the object name for k.
func (l Layout) Name(k Key) string {
	return l.Base + strconv.Itoa(int(k.Slot)) + l.Ext
}

// Parse is the inverse of Name. ok is false for names outside the layout.
func (l Layout) Parse(name string) (Key, bool) {
	if !strings.HasPrefix(name, l.Base) || !strings.HasSuffix(name, l.Ext) {
		return Key{}, false
	}
	digits := name[len(l.Base) : len(name)-len(l.Ext)]
	if digits == "" {
		return Key{}, false
	}
	n, err := strconv.ParseUint(digits, 10, 16)
	if err != nil || n == 0 || strconv.FormatUint(n, 10) != digits {
		return Key{}, false
	}
	return Key{Slot: uint16(n)}, true
}

// Backend is a durable key to bytes store.
//
// Get of a missing key returns an error wrapping errors.ErrNotFound.
// Put creates or overwrites. Delete of a missing key is not an error.
type Backend interface {
	Put(ctx context.Context, key Key, data []byte) error
	Get(ctx context.Context, key Key) ([]byte, error)
	Delete(ctx context.Context, key Key) error
	Exists(ctx context.Context, key Key) (bool, error)
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	// Kind is one of "files", "memory", "duckdb".
	Kind string

	// Dir holds slot files (files) or the database file (duckdb).
	Dir string

	// Layout names slot objects.
	Layout Layout

	// DSN overrides the DuckDB database path. Empty means Dir/hk.duckdb.
	DSN string
}

// Open creates the backend described by opts.
func Open(opts Options) (Backend, error) {
	if opts.Layout.Base == "" && opts.Layout.Ext == "" {
		opts.Layout = DefaultLayout()
	}

	switch opts.Kind {
	case "", "files":
		return NewFiles(opts.Dir, opts.Layout)
	case "memory":
		return NewMemory(), nil
	case "duckdb":
		return NewDuckDB(opts.DSN, opts.Dir)
	default:
		return nil, errors.NewInvalidValue("backend", opts.Kind, "must be one of files, memory, duckdb")
	}
}

func notFound(k Key) error {
	return fmt.Errorf("%s: %w", k, errors.ErrNotFound)
}
