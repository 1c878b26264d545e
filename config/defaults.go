// Package config provides configuration defaults and utilities
// for the housekeeping service.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via hkd.yaml or command line flags.
package config

import "time"

// =============================================================================
// Network Defaults
// =============================================================================

const (
	// DefaultListenAddress is the default housekeeping service listen address.
	// Override via config: server.listen
	DefaultListenAddress = "0.0.0.0:9170"

	// DefaultMaxMessageSize limits a single framed packet.
	// A housekeeping record is a few hundred bytes; 64 KiB leaves headroom for
	// schema growth without letting a bad length prefix allocate megabytes.
	// Override via config: server.max_message_size
	DefaultMaxMessageSize = 64 * 1024

	// DefaultMetricsAddress is where /metrics is served. Empty disables it.
	// Override via config: metrics.listen
	DefaultMetricsAddress = ""
)

// =============================================================================
// Store Defaults
// =============================================================================

const (
	// DefaultMaxFiles is the initial number of housekeeping slots.
	// Ground can change it at runtime with SET_MAX_FILES.
	// Override via config: store.capacity
	DefaultMaxFiles = 500

	// DefaultBaseName is the slot file name prefix.
	// Files are named base + slot number + extension, e.g. tempHKdata134.TMP.
	// Override via config: store.base_name
	DefaultBaseName = "tempHKdata"

	// DefaultExtension is the slot file name suffix.
	// Override via config: store.extension
	DefaultExtension = ".TMP"

	// DefaultDataDir is the directory holding slot files.
	// Override via config: store.data_dir
	DefaultDataDir = "/var/lib/hkd"

	// DefaultBackend selects the persistence backend: files, memory or duckdb.
	// Override via config: store.backend
	DefaultBackend = "files"

	// DefaultMaxIndexEntries bounds the timestamp index allocation.
	// Slot ids are uint16 so the index never needs more than this.
	// Override via config: store.max_index_entries
	DefaultMaxIndexEntries = 65535
)

// =============================================================================
// Query Defaults
// =============================================================================

const (
	// DefaultToleranceSec is how far a stored timestamp may be from the
	// requested one and still count as a match. Assumes 30 second
	// collection intervals.
	// Override via config: query.tolerance_sec
	DefaultToleranceSec = 15

	// DefaultSendTimeout bounds a single outbound packet during paging.
	// A timeout aborts only that transmission, and with it the walk.
	// Override via config: query.send_timeout
	DefaultSendTimeout = 50 * time.Millisecond
)

// =============================================================================
// Collector Defaults
// =============================================================================

const (
	// DefaultCollectInterval is the housekeeping snapshot period.
	// Override via config: collector.interval
	DefaultCollectInterval = 30 * time.Second

	// DefaultSNMPTimeout is the timeout for a single SNMP GET on a bench source.
	// Override via config: collector.snmp[].timeout
	DefaultSNMPTimeout = 2 * time.Second

	// DefaultSNMPRetries is the number of retry attempts after an SNMP timeout.
	// Override via config: collector.snmp[].retries
	DefaultSNMPRetries = 1
)

// =============================================================================
// Client Defaults
// =============================================================================

const (
	// DefaultClientIdleTimeout ends a GET_HK stream when no packet arrives
	// within this window.
	DefaultClientIdleTimeout = 2 * time.Second

	// DefaultDialTimeout bounds connection establishment from the console.
	DefaultDialTimeout = 5 * time.Second
)

// =============================================================================
// Shutdown Defaults
// =============================================================================

const (
	// DefaultDrainTimeoutSec is how long to wait for in-flight requests during shutdown.
	// Override via config: server.drain_timeout_sec
	DefaultDrainTimeoutSec = 10
)
