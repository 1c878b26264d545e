// hkd is the housekeeping service daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/arrooney/ex2-services/internal/loader"
	"github.com/arrooney/ex2-services/internal/logging"
	"github.com/arrooney/ex2-services/internal/storage"
	"github.com/arrooney/ex2-services/internal/storage/backend"
	"github.com/arrooney/ex2-services/internal/storage/export"
)

// Version is set at build time via ldflags
var Version = "dev"

var log = logging.Component("hkd")

type flags struct {
	cfgPath     string
	listen      string
	noTLS       bool
	tlsCert     string
	tlsKey      string
	backendKind string
	dataDir     string
	capacity    int
	metrics     string
	logLevel    string
	noCollect   bool
	exportPath  string
	printConfig bool
	version     bool
}

func main() {
	var f flags
	flag.StringVar(&f.cfgPath, "config", "hkd.yaml", "config file path")
	flag.StringVar(&f.listen, "listen", "", "listen address (overrides config)")
	flag.BoolVar(&f.noTLS, "no-tls", false, "disable TLS")
	flag.StringVar(&f.tlsCert, "tls-cert", "", "TLS certificate file")
	flag.StringVar(&f.tlsKey, "tls-key", "", "TLS key file")
	flag.StringVar(&f.backendKind, "backend", "", "storage backend: files, memory, duckdb (overrides config)")
	flag.StringVar(&f.dataDir, "data-dir", "", "slot directory (overrides config)")
	flag.IntVar(&f.capacity, "capacity", 0, "initial slot count (overrides config)")
	flag.StringVar(&f.metrics, "metrics", "", "metrics listen address (overrides config)")
	flag.StringVar(&f.logLevel, "log-level", "", "debug, info, warn, error (overrides config)")
	flag.BoolVar(&f.noCollect, "no-collect", false, "serve the archive without taking snapshots")
	flag.StringVar(&f.exportPath, "export", "", "write the archive to this Parquet file and exit")
	flag.BoolVar(&f.printConfig, "print-config", false, "print the effective config and exit")
	flag.BoolVar(&f.version, "version", false, "print version and exit")
	flag.Parse()

	if f.version {
		fmt.Println("hkd", Version)
		return
	}

	if err := run(f); err != nil {
		fmt.Fprintf(os.Stderr, "hkd: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(f flags) (*loader.Config, error) {
	cfg, err := loader.Load(f.cfgPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || isFlagSet("config") {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loader.DefaultConfig()
	}

	// CLI overrides
	if f.listen != "" {
		cfg.Server.Listen = f.listen
	}
	if f.noTLS {
		cfg.Server.TLS = loader.TLSConfig{}
	}
	if f.tlsCert != "" {
		cfg.Server.TLS.CertFile = f.tlsCert
	}
	if f.tlsKey != "" {
		cfg.Server.TLS.KeyFile = f.tlsKey
	}
	if f.backendKind != "" {
		cfg.Store.Backend = f.backendKind
	}
	if f.dataDir != "" {
		cfg.Store.DataDir = f.dataDir
	}
	if f.capacity != 0 {
		cfg.Store.Capacity = f.capacity
	}
	if f.metrics != "" {
		cfg.Metrics.Listen = f.metrics
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.noCollect {
		off := false
		cfg.Collector.Enabled = &off
	}

	if err := loader.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			set = true
		}
	})
	return set
}

func run(f flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	if f.printConfig {
		out, err := loader.Dump(cfg)
		if err != nil {
			return err
		}
		os.Stdout.Write(out)
		return nil
	}

	logging.Init(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.JSON())
	log.Info("starting", "version", Version, "backend", cfg.Store.Backend, "capacity", cfg.Store.Capacity)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// =========================================================================
	// Store
	// =========================================================================

	b, err := backend.Open(loader.BackendOptions(&cfg.Store))
	if err != nil {
		return fmt.Errorf("open backend: %w", err)
	}
	defer b.Close()

	store, err := storage.New(b, loader.StoreOptions(cfg))
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}

	recovered, err := store.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover store: %w", err)
	}
	state := store.State()
	log.Info("archive recovered", "records", recovered, "cursor", state.Cursor, "capacity", state.Capacity)

	if f.exportPath != "" {
		n, err := export.WriteFile(ctx, store, f.exportPath, loader.ExportOptions(&cfg.Export))
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		log.Info("archive exported", "path", f.exportPath, "rows", n)
		return nil
	}

	d, err := newDaemon(cfg, store)
	if err != nil {
		return err
	}
	err = d.serve(ctx)
	log.Info("stopped", "stats", fmt.Sprintf("%+v", store.Stats()))
	return err
}
