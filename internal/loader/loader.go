// Package loader handles configuration file loading, validation, and
// conversion into the options each component takes.
//
// This package is responsible for:
//   - Loading YAML configuration files
//   - Expanding environment variables
//   - Validating ranges and enumerations
//   - Converting between YAML and component representations

package loader

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/arrooney/ex2-services/config"
	"github.com/arrooney/ex2-services/internal/collector"
	"github.com/arrooney/ex2-services/internal/errors"
	"github.com/arrooney/ex2-services/internal/storage"
	"github.com/arrooney/ex2-services/internal/storage/backend"
	"github.com/arrooney/ex2-services/internal/storage/export"
	"github.com/arrooney/ex2-services/internal/storage/record"
)

// =============================================================================
// Load
// =============================================================================

// Load loads configuration from a YAML file. An empty path returns the
// defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults. Environment variables are expanded
// before parsing, so secrets can stay out of the file ("${HK_COMMUNITY}").
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w: %w", errors.ErrInvalidConfig, err)
	}
	return cfg, nil
}

// Dump renders cfg as YAML.
func Dump(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// =============================================================================
// Validate
// =============================================================================

// Validate validates the configuration.
func Validate(cfg *Config) error {
	errs := errors.NewValidationErrors()

	// Server validation
	if cfg.Server.Listen == "" {
		errs.AddField("server.listen", "cannot be empty")
	}
	if cfg.Server.TLS.CertFile != "" && cfg.Server.TLS.KeyFile == "" ||
		cfg.Server.TLS.CertFile == "" && cfg.Server.TLS.KeyFile != "" {
		errs.AddField("server.tls", "cert_file and key_file must be set together")
	}
	if cfg.Server.MaxMessageSize < 64 {
		errs.AddField("server.max_message_size", "must be at least 64")
	}
	if cfg.Server.DrainTimeoutSec < 1 || cfg.Server.DrainTimeoutSec > 300 {
		errs.AddField("server.drain_timeout_sec", "must be between 1 and 300")
	}

	// Store validation
	switch cfg.Store.Backend {
	case "files", "memory", "duckdb":
	default:
		errs.AddField("store.backend", fmt.Sprintf("unknown backend %q (files, memory, duckdb)", cfg.Store.Backend))
	}
	if cfg.Store.Backend != "memory" && cfg.Store.DataDir == "" && cfg.Store.DSN == "" {
		errs.AddField("store.data_dir", "cannot be empty for a persistent backend")
	}
	if cfg.Store.Capacity < 1 || cfg.Store.Capacity > 65535 {
		errs.AddField("store.capacity", "must be between 1 and 65535")
	}
	if cfg.Store.BaseName == "" {
		errs.AddField("store.base_name", "cannot be empty")
	}
	if cfg.Store.MaxIndexEntries < 0 || cfg.Store.MaxIndexEntries > 65535 {
		errs.AddField("store.max_index_entries", "must be between 0 and 65535")
	}

	// Query validation
	if cfg.Query.ToleranceSec != nil && *cfg.Query.ToleranceSec < 0 {
		errs.AddField("query.tolerance_sec", "cannot be negative")
	}
	if cfg.Query.SendTimeout.Duration() <= 0 {
		errs.AddField("query.send_timeout", "must be positive")
	}

	// Collector validation
	if cfg.Collector.IsEnabled() && cfg.Collector.Interval.Duration() <= 0 {
		errs.AddField("collector.interval", "must be positive")
	}
	if cfg.Collector.SourceTimeout.Duration() < 0 {
		errs.AddField("collector.source_timeout", "cannot be negative")
	}
	for i, s := range cfg.Collector.SNMP {
		prefix := fmt.Sprintf("collector.snmp[%d]", i)
		sub, ok := record.ParseSubsystem(s.Subsystem)
		if !ok {
			errs.AddField(prefix+".subsystem", fmt.Sprintf("unknown subsystem %q", s.Subsystem))
		} else {
			var scratch record.Record
			for j, f := range s.Fields {
				if f.Field == "" {
					continue
				}
				if err := record.SetField(&scratch, sub, f.Field, 0); err != nil {
					errs.AddField(fmt.Sprintf("%s.fields[%d].field", prefix, j),
						fmt.Sprintf("unknown %s field %q", s.Subsystem, f.Field))
				}
			}
		}
		sc := toSNMPConfig(s)
		if err := sc.Validate(); err != nil {
			errs.AddField(prefix, err.Error())
		}
	}

	// Logging and export
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs.AddField("logging.level", fmt.Sprintf("unknown level %q", cfg.Logging.Level))
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		errs.AddField("logging.format", "must be text or json")
	}
	switch cfg.Export.Compression {
	case "none", "snappy", "gzip", "zstd":
	default:
		errs.AddField("export.compression", fmt.Sprintf("unknown codec %q", cfg.Export.Compression))
	}

	return errs.Err()
}

// =============================================================================
// Conversion
// =============================================================================

// BackendOptions converts the store section for backend.Open.
func BackendOptions(cfg *StoreConfig) backend.Options {
	return backend.Options{
		Kind:   cfg.Backend,
		Dir:    cfg.DataDir,
		Layout: backend.Layout{Base: cfg.BaseName, Ext: cfg.Extension},
		DSN:    cfg.DSN,
	}
}

// StoreOptions converts the store and query sections for storage.New.
func StoreOptions(cfg *Config) storage.Options {
	return storage.Options{
		Capacity:        uint16(cfg.Store.Capacity),
		Tolerance:       cfg.Query.Tolerance(),
		MaxIndexEntries: cfg.Store.MaxIndexEntries,
	}
}

// ExportOptions converts the export section.
func ExportOptions(cfg *ExportConfig) export.Options {
	return export.Options{
		Compression:   export.ParseCompressionType(cfg.Compression),
		IncludeHeader: cfg.IncludeHeader,
	}
}

// CollectorOptions converts the collector section.
func CollectorOptions(cfg *CollectorConfig) collector.Config {
	return collector.Config{
		Interval:      cfg.Interval.Duration(),
		SourceTimeout: cfg.SourceTimeout.Duration(),
	}
}

// SNMPSources builds one collector source per configured agent.
func SNMPSources(cfg *CollectorConfig) ([]collector.Source, error) {
	out := make([]collector.Source, 0, len(cfg.SNMP))
	for i, s := range cfg.SNMP {
		sub, ok := record.ParseSubsystem(s.Subsystem)
		if !ok {
			return nil, errors.NewInvalidValue(fmt.Sprintf("collector.snmp[%d].subsystem", i), s.Subsystem, "unknown subsystem")
		}
		src, err := collector.NewSNMPSource(sub, toSNMPConfig(s))
		if err != nil {
			return nil, fmt.Errorf("collector.snmp[%d]: %w", i, err)
		}
		out = append(out, src)
	}
	return out, nil
}

func toSNMPConfig(s SNMPSourceConfig) collector.SNMPConfig {
	retries := config.DefaultSNMPRetries
	if s.Retries != nil {
		retries = *s.Retries
	}
	timeout := s.Timeout.Duration()
	if timeout <= 0 {
		timeout = config.DefaultSNMPTimeout
	}

	fields := make([]collector.OIDField, len(s.Fields))
	for i, f := range s.Fields {
		fields[i] = collector.OIDField{OID: f.OID, Field: f.Field, Scale: f.Scale}
	}

	return collector.SNMPConfig{
		Host:          s.Host,
		Port:          s.Port,
		Community:     s.Community,
		SecurityName:  s.SecurityName,
		SecurityLevel: s.SecurityLevel,
		AuthProtocol:  s.AuthProtocol,
		AuthPassword:  s.AuthPassword,
		PrivProtocol:  s.PrivProtocol,
		PrivPassword:  s.PrivPassword,
		ContextName:   s.ContextName,
		Timeout:       timeout,
		Retries:       retries,
		Fields:        fields,
	}
}
