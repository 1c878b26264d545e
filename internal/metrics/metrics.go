// Package metrics exposes housekeeping counters to Prometheus.
//
// Every component already keeps its own counters; the collector here reads
// their Stats snapshots at scrape time instead of mirroring them into
// registered metric vectors.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arrooney/ex2-services/internal/collector"
	"github.com/arrooney/ex2-services/internal/handler"
	"github.com/arrooney/ex2-services/internal/logging"
	"github.com/arrooney/ex2-services/internal/storage"
	"github.com/arrooney/ex2-services/internal/storage/query"
)

var log = logging.Component("metrics")

const namespace = "hk"

// StoreStats is satisfied by *storage.Store.
type StoreStats interface {
	Stats() storage.Stats
}

// HandlerStats is satisfied by *handler.Handler.
type HandlerStats interface {
	Stats() handler.Stats
}

// QueryStats is satisfied by *query.Engine.
type QueryStats interface {
	Stats() query.Stats
}

// CollectorStats is satisfied by *collector.Collector.
type CollectorStats interface {
	Stats() collector.Stats
}

// Sources names what to export. Nil members are skipped.
type Sources struct {
	Store     StoreStats
	Handler   HandlerStats
	Query     QueryStats
	Collector CollectorStats
}

func desc(subsystem, name, help string, labels ...string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, nil)
}

var (
	capacityDesc       = desc("store", "capacity_slots", "Configured number of slots.")
	cursorDesc         = desc("store", "cursor_slot", "Slot the next snapshot will be written to.")
	writtenDesc        = desc("store", "written_slots", "Slots holding a record.")
	storeOpsDesc       = desc("store", "operations_total", "Backend operations by kind and outcome.", "op", "result")
	writeLatencyDesc   = desc("store", "write_latency_seconds", "Backend write latency quantiles.", "quantile")
	requestsDesc       = desc("service", "requests_total", "Requests received by outcome.", "result")
	handlerRecordsDesc = desc("service", "records_sent_total", "Housekeeping records streamed to ground.")
	queriesDesc        = desc("query", "executed_total", "Paging queries executed.")
	queryErrorsDesc    = desc("query", "errors_total", "Paging queries aborted by cause.", "cause")
	cyclesDesc         = desc("collector", "cycles_total", "Snapshot cycles by outcome.", "result")
	sourceFailuresDesc = desc("collector", "source_failures_total", "Subsystem sources that failed in a cycle.")
	lastRunDesc        = desc("collector", "last_run_timestamp_seconds", "Unix time of the last snapshot cycle.")
)

// Collector implements prometheus.Collector over component snapshots.
type Collector struct {
	src Sources
}

// NewCollector returns a collector over src.
func NewCollector(src Sources) *Collector {
	return &Collector{src: src}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		capacityDesc, cursorDesc, writtenDesc, storeOpsDesc, writeLatencyDesc,
		requestsDesc, handlerRecordsDesc, queriesDesc, queryErrorsDesc,
		cyclesDesc, sourceFailuresDesc, lastRunDesc,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.src.Store != nil {
		s := c.src.Store.Stats()
		gauge(ch, capacityDesc, float64(s.Capacity))
		gauge(ch, cursorDesc, float64(s.Cursor))
		gauge(ch, writtenDesc, float64(s.Written))
		counter(ch, storeOpsDesc, s.Appends, "append", "ok")
		counter(ch, storeOpsDesc, s.AppendFailures, "append", "error")
		counter(ch, storeOpsDesc, s.Reads-s.ReadFailures, "read", "ok")
		counter(ch, storeOpsDesc, s.ReadFailures, "read", "error")
		counter(ch, storeOpsDesc, s.Deletes, "delete", "ok")
		counter(ch, storeOpsDesc, s.DeleteFailures, "delete", "error")
		gauge(ch, writeLatencyDesc, s.WriteP50, "0.5")
		gauge(ch, writeLatencyDesc, s.WriteP90, "0.9")
		gauge(ch, writeLatencyDesc, s.WriteP99, "0.99")
	}

	if c.src.Handler != nil {
		s := c.src.Handler.Stats()
		counter(ch, requestsDesc, s.Requests-s.Failures-s.IllegalRequest, "ok")
		counter(ch, requestsDesc, s.Failures, "error")
		counter(ch, requestsDesc, s.IllegalRequest, "illegal")
		counter(ch, handlerRecordsDesc, s.RecordsSent)
	}

	if c.src.Query != nil {
		s := c.src.Query.Stats()
		counter(ch, queriesDesc, s.QueriesExecuted)
		counter(ch, queryErrorsDesc, s.ReadErrors, "read")
		counter(ch, queryErrorsDesc, s.SendErrors, "send")
	}

	if c.src.Collector != nil {
		s := c.src.Collector.Stats()
		counter(ch, cyclesDesc, s.Cycles-s.AppendFailures, "ok")
		counter(ch, cyclesDesc, s.AppendFailures, "error")
		counter(ch, sourceFailuresDesc, s.SourceFailures)
		if !s.LastRun.IsZero() {
			gauge(ch, lastRunDesc, float64(s.LastRun.UnixNano())/1e9)
		}
	}
}

func gauge(ch chan<- prometheus.Metric, d *prometheus.Desc, v float64, labels ...string) {
	ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
}

func counter(ch chan<- prometheus.Metric, d *prometheus.Desc, v int64, labels ...string) {
	if v < 0 {
		v = 0
	}
	ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
}

// NewRegistry returns a registry holding the housekeeping collector plus the
// standard process and Go runtime collectors.
func NewRegistry(src Sources) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewCollector(src),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return reg
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(reg))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("serving metrics", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
