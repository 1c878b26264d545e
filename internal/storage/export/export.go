// Package export writes the live contents of a housekeeping store to Parquet
// for analysis on the ground.
//
// Each telemetry field of each live slot becomes one row, so a store of 500
// slots exports roughly 500 × 100 rows. Rows are written oldest slot first.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/arrooney/ex2-services/internal/errors"
	"github.com/arrooney/ex2-services/internal/logging"
	"github.com/arrooney/ex2-services/internal/storage"
	"github.com/arrooney/ex2-services/internal/storage/record"
)

var log = logging.Component("export")

// Row is one telemetry value of one stored record.
type Row struct {
	Slot      int32   `parquet:"slot"`
	Timestamp int64   `parquet:"timestamp"`
	Subsystem string  `parquet:"subsystem,dict,zstd"`
	Field     string  `parquet:"field,dict,zstd"`
	Value     float64 `parquet:"value"`
}

// Source is the part of the store an export reads.
type Source interface {
	State() storage.State
	Read(ctx context.Context, slot uint16) (record.Record, error)
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionGzip
)

// Options configures an export.
type Options struct {
	Compression CompressionType

	// IncludeHeader adds the header timestamp and slot id as rows.
	IncludeHeader bool
}

// DefaultOptions returns zstd compression without header rows.
func DefaultOptions() Options {
	return Options{Compression: CompressionZstd}
}

// ParseCompressionType parses a compression name. Unknown names select zstd.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "gzip":
		return CompressionGzip
	case "none":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

func codec(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// Write exports every live slot of src to w and returns the number of rows.
//
// Slots are visited from the cursor forward, which is oldest first once the
// store has wrapped. Unwritten slots are skipped; any other read error aborts
// the export.
func Write(ctx context.Context, src Source, w io.Writer, opts Options) (int, error) {
	st := src.State()

	pw := parquet.NewGenericWriter[Row](w, parquet.Compression(codec(opts.Compression)))

	total := 0
	slots := 0
	for i := 0; i < int(st.Capacity); i++ {
		if err := ctx.Err(); err != nil {
			pw.Close()
			return total, err
		}

		slot := uint16((int(st.Cursor)-1+i)%int(st.Capacity) + 1)
		rec, err := src.Read(ctx, slot)
		if err != nil {
			if errors.IsNotFound(err) {
				continue
			}
			pw.Close()
			return total, errors.Wrapf(err, "export slot %d", slot)
		}

		id := rec.Header.SlotID
		if id == 0 {
			id = slot
		}
		rows := toRows(id, &rec, opts.IncludeHeader)
		n, err := pw.Write(rows)
		total += n
		if err != nil {
			pw.Close()
			return total, fmt.Errorf("write rows: %w", err)
		}
		slots++
	}

	if err := pw.Close(); err != nil {
		return total, fmt.Errorf("close writer: %w", err)
	}

	log.Info("export complete", "slots", slots, "rows", total)
	return total, nil
}

// WriteFile exports src to a Parquet file at path.
func WriteFile(ctx context.Context, src Source, path string, opts Options) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}

	n, err := Write(ctx, src, f, opts)
	if err != nil {
		f.Close()
		os.Remove(path)
		return n, err
	}
	return n, f.Close()
}

// Records adapts records held in memory, typically fetched from a remote
// archive, to a Source. NewRecords orders them oldest first.
type Records []record.Record

// NewRecords copies recs and sorts the copy by timestamp.
func NewRecords(recs []record.Record) Records {
	out := make(Records, len(recs))
	copy(out, recs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Header.Timestamp < out[j].Header.Timestamp
	})
	return out
}

// State implements Source. Slots are positions in the slice, starting at 1.
func (r Records) State() storage.State {
	return storage.State{Capacity: uint16(len(r)), Cursor: 1}
}

// Read implements Source.
func (r Records) Read(_ context.Context, slot uint16) (record.Record, error) {
	if slot == 0 || int(slot) > len(r) {
		return record.Record{}, errors.NewNotFound("record", slot)
	}
	return r[slot-1], nil
}

// ReadFile loads every row of an exported file.
func ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}

	rows, err := parquet.Read[Row](f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return rows, nil
}

func toRows(slot uint16, rec *record.Record, header bool) []Row {
	fields := record.Fields(rec)
	rows := make([]Row, 0, len(fields))
	for _, f := range fields {
		if f.Subsystem == "header" && !header {
			continue
		}
		rows = append(rows, Row{
			Slot:      int32(slot),
			Timestamp: int64(rec.Header.Timestamp),
			Subsystem: f.Subsystem,
			Field:     f.Name,
			Value:     f.Value,
		})
	}
	return rows
}
