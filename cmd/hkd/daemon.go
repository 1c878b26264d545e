package main

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arrooney/ex2-services/internal/collector"
	"github.com/arrooney/ex2-services/internal/handler"
	"github.com/arrooney/ex2-services/internal/loader"
	"github.com/arrooney/ex2-services/internal/metrics"
	"github.com/arrooney/ex2-services/internal/server"
	"github.com/arrooney/ex2-services/internal/storage"
	"github.com/arrooney/ex2-services/internal/storage/query"
)

// daemon holds the long-running tasks of hkd around one store.
type daemon struct {
	cfg     *loader.Config
	store   *storage.Store
	engine  *query.Engine
	handler *handler.Handler
	srv     *server.Server
	col     *collector.Collector // nil when collection is disabled
}

// newDaemon builds every task. It starts nothing, so a failure here leaves
// no goroutine or listener behind.
func newDaemon(cfg *loader.Config, store *storage.Store) (*daemon, error) {
	d := &daemon{cfg: cfg, store: store}

	d.engine = query.New(store, cfg.Query.SendTimeout.Duration())
	d.handler = handler.NewHandler(store, d.engine)

	srv, err := server.New(server.Config{
		Handler:        d.handler,
		Listen:         cfg.Server.Listen,
		TLSCertFile:    cfg.Server.TLS.CertFile,
		TLSKeyFile:     cfg.Server.TLS.KeyFile,
		MaxMessageSize: cfg.Server.MaxMessageSize,
		DrainTimeout:   time.Duration(cfg.Server.DrainTimeoutSec) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("create server: %w", err)
	}
	d.srv = srv

	if !cfg.Collector.IsEnabled() {
		log.Info("collector disabled")
		return d, nil
	}

	sources, err := loader.SNMPSources(&cfg.Collector)
	if err != nil {
		return nil, fmt.Errorf("collector sources: %w", err)
	}
	d.col, err = collector.New(store, loader.CollectorOptions(&cfg.Collector), sources...)
	if err != nil {
		return nil, fmt.Errorf("create collector: %w", err)
	}
	return d, nil
}

// serve runs the server, the collector and the metrics endpoint until ctx
// is cancelled or one of them fails.
func (d *daemon) serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return d.srv.Run(ctx) })

	if d.col != nil {
		g.Go(func() error { return d.col.Run(ctx) })
	}

	if addr := d.cfg.Metrics.Listen; addr != "" {
		src := metrics.Sources{Store: d.store, Handler: d.handler, Query: d.engine}
		if d.col != nil {
			src.Collector = d.col
		}
		reg := metrics.NewRegistry(src)
		g.Go(func() error { return metrics.Serve(ctx, addr, reg) })
	}

	return g.Wait()
}
