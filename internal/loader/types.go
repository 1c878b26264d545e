// Package loader - Configuration Types
//
// Defines the YAML configuration structure for hkd.
//
//   ┌──────────────────────────────────────────────────────────────┐
//   │                          hkd.yaml                            │
//   ├──────────────────────────────────────────────────────────────┤
//   │  server:     listen address, TLS, packet size, drain         │
//   │  store:      backend (files/memory/duckdb), capacity, layout │
//   │  query:      nearest-match tolerance, per-packet timeout     │
//   │  collector:  snapshot interval, SNMP bench sources           │
//   │  metrics:    Prometheus listen address                       │
//   │  logging:    level, format                                   │
//   │  export:     Parquet compression                             │
//   └──────────────────────────────────────────────────────────────┘

package loader

import (
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arrooney/ex2-services/config"
)

// =============================================================================
// Root Configuration
// =============================================================================

// Config is the root configuration structure for hkd.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Query     QueryConfig     `yaml:"query"`
	Collector CollectorConfig `yaml:"collector"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Export    ExportConfig    `yaml:"export"`
}

// =============================================================================
// Server Configuration
// =============================================================================

// ServerConfig configures the ground-facing endpoint.
type ServerConfig struct {
	// Listen is the TCP listen address.
	// Default: "0.0.0.0:9170"
	Listen string `yaml:"listen"`

	// TLS configures transport layer security.
	TLS TLSConfig `yaml:"tls"`

	// MaxMessageSize bounds a single framed packet in bytes.
	// Default: 65536
	MaxMessageSize int `yaml:"max_message_size"`

	// DrainTimeoutSec is how long shutdown waits for open sessions.
	// Range: 1-300, Default: 10
	DrainTimeoutSec int `yaml:"drain_timeout_sec"`
}

// TLSConfig configures transport layer security.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	// Leave empty to disable TLS.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// Enabled reports whether both halves of the key pair are set.
func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

// =============================================================================
// Store Configuration
// =============================================================================

// StoreConfig configures the circular archive.
type StoreConfig struct {
	// Backend selects persistence: "files", "memory" or "duckdb".
	// Default: "files"
	Backend string `yaml:"backend"`

	// DataDir holds slot files, or the DuckDB file when DSN is empty.
	// Default: "/var/lib/hkd"
	DataDir string `yaml:"data_dir"`

	// DSN overrides the DuckDB location.
	DSN string `yaml:"dsn"`

	// Capacity is the number of slots at startup.
	// Range: 1-65535, Default: 500
	Capacity int `yaml:"capacity"`

	// BaseName and Extension form slot file names: base + slot + ext.
	// Default: "tempHKdata", ".TMP"
	BaseName  string `yaml:"base_name"`
	Extension string `yaml:"extension"`

	// MaxIndexEntries bounds the timestamp index allocation.
	// Default: 65535
	MaxIndexEntries int `yaml:"max_index_entries"`
}

// =============================================================================
// Query Configuration
// =============================================================================

// QueryConfig configures paging.
type QueryConfig struct {
	// ToleranceSec is how far a stored timestamp may be from a requested
	// one and still match.
	// Default: 15
	ToleranceSec *int `yaml:"tolerance_sec"`

	// SendTimeout bounds one outbound packet.
	// Default: 50ms
	SendTimeout Duration `yaml:"send_timeout"`
}

// Tolerance returns the configured tolerance or the default.
func (q QueryConfig) Tolerance() uint32 {
	if q.ToleranceSec == nil {
		return config.DefaultToleranceSec
	}
	return uint32(*q.ToleranceSec)
}

// =============================================================================
// Collector Configuration
// =============================================================================

// CollectorConfig configures periodic snapshots.
type CollectorConfig struct {
	// Enabled turns the collector task on.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Interval between snapshots.
	// Default: 30s
	Interval Duration `yaml:"interval"`

	// SourceTimeout bounds a single subsystem read. Zero means the interval.
	SourceTimeout Duration `yaml:"source_timeout"`

	// SNMP lists bench agents standing in for subsystems.
	SNMP []SNMPSourceConfig `yaml:"snmp"`
}

// IsEnabled returns the effective enabled flag.
func (c CollectorConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// SNMPSourceConfig maps one SNMP agent onto a subsystem block.
type SNMPSourceConfig struct {
	// Subsystem is "athena", "eps", "uhf" or "sband".
	Subsystem string `yaml:"subsystem"`

	Host string `yaml:"host"`
	Port uint16 `yaml:"port"`

	// v2c
	Community string `yaml:"community"`

	// v3
	SecurityName  string `yaml:"security_name"`
	SecurityLevel string `yaml:"security_level"`
	AuthProtocol  string `yaml:"auth_protocol"`
	AuthPassword  string `yaml:"auth_password"`
	PrivProtocol  string `yaml:"priv_protocol"`
	PrivPassword  string `yaml:"priv_password"`
	ContextName   string `yaml:"context_name"`

	// Timeout for a single GET. Default: 2s
	Timeout Duration `yaml:"timeout"`

	// Retries after a timeout. Default: 1
	Retries *int `yaml:"retries"`

	Fields []OIDFieldConfig `yaml:"fields"`
}

// OIDFieldConfig binds an OID to a record field.
type OIDFieldConfig struct {
	OID   string  `yaml:"oid"`
	Field string  `yaml:"field"`
	Scale float64 `yaml:"scale"`
}

// =============================================================================
// Metrics, Logging, Export
// =============================================================================

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the HTTP address for /metrics. Empty disables it.
	Listen string `yaml:"listen"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "text" or "json".
	// Default: "text"
	Format string `yaml:"format"`
}

// JSON reports whether JSON output is selected.
func (l LoggingConfig) JSON() bool {
	return l.Format == "json"
}

// ExportConfig configures Parquet exports.
type ExportConfig struct {
	// Compression is none, snappy, gzip or zstd.
	// Default: "zstd"
	Compression string `yaml:"compression"`

	// IncludeHeader adds timestamp and slot id rows.
	IncludeHeader bool `yaml:"include_header"`
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          config.DefaultListenAddress,
			MaxMessageSize:  config.DefaultMaxMessageSize,
			DrainTimeoutSec: config.DefaultDrainTimeoutSec,
		},
		Store: StoreConfig{
			Backend:         config.DefaultBackend,
			DataDir:         config.DefaultDataDir,
			Capacity:        config.DefaultMaxFiles,
			BaseName:        config.DefaultBaseName,
			Extension:       config.DefaultExtension,
			MaxIndexEntries: config.DefaultMaxIndexEntries,
		},
		Query: QueryConfig{
			SendTimeout: Duration(config.DefaultSendTimeout),
		},
		Collector: CollectorConfig{
			Interval: Duration(config.DefaultCollectInterval),
		},
		Metrics: MetricsConfig{
			Listen: config.DefaultMetricsAddress,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Export: ExportConfig{
			Compression: "zstd",
		},
	}
}

// =============================================================================
// Helper Types
// =============================================================================

// Duration is a time.Duration that can be unmarshaled from YAML.
// Supports Go duration strings ("30s", "50ms") or plain integers (seconds).
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	if secs, err := strconv.Atoi(value.Value); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	dur, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
