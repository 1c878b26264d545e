// Package storage implements the circular housekeeping store.
//
// Architecture:
//
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│  Collector  │────▶│    Store    │────▶│   Backend   │
//	│             │     │ (cursor,    │     │ (files,     │
//	└─────────────┘     │  capacity)  │     │  duckdb)    │
//	                    └─────────────┘     └─────────────┘
//	                       │       ▲
//	                       ▼       │
//	                ┌─────────────┐│
//	                │   Index     ││ anchor
//	                │ (timestamps)││
//	                └─────────────┘│
//	                        ┌─────────────┐
//	                        │   Query     │
//	                        │   Engine    │
//	                        └─────────────┘
//
// A store holds at most Capacity records in slots 1..Capacity. Appends go to
// the slot under the cursor, which then advances and wraps back to 1, so once
// the store has filled the cursor also names the oldest record. Slot 0 is
// never written and doubles as the "not found" value.
//
// Subpackages:
//   - record: fixed-layout record codec and wire byte order
//   - backend: durable slot storage (one file per slot, DuckDB, memory)
//   - index: per-slot write times and nearest-timestamp search
//   - query: backward paging over the store
//   - export: Parquet export of live slots
package storage
