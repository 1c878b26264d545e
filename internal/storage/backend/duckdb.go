package backend

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"
)

const duckdbSchema = `
CREATE TABLE IF NOT EXISTS hk_slots (
	slot    USMALLINT PRIMARY KEY,
	data    BLOB NOT NULL,
	written TIMESTAMP NOT NULL
)`

// DuckDB stores slots as rows of a single DuckDB table.
//
// DuckDB is safe for concurrent use.
type DuckDB struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
}

// NewDuckDB opens (or creates) the slot database.
// An empty dsn places hk.duckdb in dir; ":memory:" style DSNs are passed through.
func NewDuckDB(dsn, dir string) (*DuckDB, error) {
	if dsn == "" {
		if dir == "" {
			return nil, fmt.Errorf("duckdb backend: dsn or directory required")
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dir, "hk.duckdb")
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	if _, err := db.ExecContext(ctx, duckdbSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create slot table: %w", err)
	}

	return &DuckDB{db: db}, nil
}

// Put upserts the slot row.
func (d *DuckDB) Put(ctx context.Context, k Key, data []byte) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO hk_slots (slot, data, written) VALUES (?, ?, ?)`,
		k.Slot, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("put %s: %w", k, err)
	}
	return nil
}

// Get loads the slot row.
func (d *DuckDB) Get(ctx context.Context, k Key) ([]byte, error) {
	var data []byte
	err := d.db.QueryRowContext(ctx, `SELECT data FROM hk_slots WHERE slot = ?`, k.Slot).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, notFound(k)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", k, err)
	}
	return data, nil
}

// Delete removes the slot row.
func (d *DuckDB) Delete(ctx context.Context, k Key) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM hk_slots WHERE slot = ?`, k.Slot); err != nil {
		return fmt.Errorf("delete %s: %w", k, err)
	}
	return nil
}

// Exists reports whether the slot row exists.
func (d *DuckDB) Exists(ctx context.Context, k Key) (bool, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, `SELECT count(*) FROM hk_slots WHERE slot = ?`, k.Slot).Scan(&n); err != nil {
		return false, fmt.Errorf("exists %s: %w", k, err)
	}
	return n > 0, nil
}

// Close closes the database.
func (d *DuckDB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.db.Close()
}
