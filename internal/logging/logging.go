// Package logging configures the process-wide slog logger.
//
// Packages take a component logger at init time:
//
//	var log = logging.Component("store")
//
// Component loggers follow later Init calls, so the level and format chosen
// from the config file apply to loggers created before it was read.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

var root atomic.Pointer[slog.Handler]

func init() {
	Init(slog.LevelInfo, false)
}

// Init sets the level and format of every logger, writing to stdout.
func Init(level slog.Level, jsonFormat bool) {
	InitWriter(os.Stdout, level, jsonFormat)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, level slog.Level, jsonFormat bool) {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}
	var h slog.Handler
	if jsonFormat {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	InitWithHandler(h)
}

// InitWithHandler routes every logger through h.
func InitWithHandler(h slog.Handler) {
	root.Store(&h)
	slog.SetDefault(slog.New(h))
}

// Component returns a logger tagged with component=name.
func Component(name string) *slog.Logger {
	return slog.New(&current{}).With("component", name)
}

// current resolves the root handler on every record. Attributes and groups
// added through With and WithGroup are replayed onto it in order.
type current struct {
	wrap []func(slog.Handler) slog.Handler
}

func (c *current) handler() slog.Handler {
	h := *root.Load()
	for _, w := range c.wrap {
		h = w(h)
	}
	return h
}

func (c *current) Enabled(ctx context.Context, level slog.Level) bool {
	return (*root.Load()).Enabled(ctx, level)
}

func (c *current) Handle(ctx context.Context, r slog.Record) error {
	return c.handler().Handle(ctx, r)
}

func (c *current) WithAttrs(attrs []slog.Attr) slog.Handler {
	return c.with(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (c *current) WithGroup(name string) slog.Handler {
	return c.with(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (c *current) with(w func(slog.Handler) slog.Handler) slog.Handler {
	wrap := make([]func(slog.Handler) slog.Handler, len(c.wrap), len(c.wrap)+1)
	copy(wrap, c.wrap)
	return &current{wrap: append(wrap, w)}
}

// =============================================================================
// Connection context
// =============================================================================

type contextKey int

const (
	contextKeyConnID contextKey = iota
	contextKeySubservice
)

// ContextWithConnID tags ctx with a ground connection id.
func ContextWithConnID(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, contextKeyConnID, connID)
}

// ContextWithSubservice tags ctx with the subservice being served.
func ContextWithSubservice(ctx context.Context, subservice string) context.Context {
	return context.WithValue(ctx, contextKeySubservice, subservice)
}

// WithContext returns log with the connection id and subservice from ctx.
func WithContext(ctx context.Context, log *slog.Logger) *slog.Logger {
	if connID, ok := ctx.Value(contextKeyConnID).(string); ok {
		log = log.With("conn_id", connID)
	}
	if sub, ok := ctx.Value(contextKeySubservice).(string); ok {
		log = log.With("subservice", sub)
	}
	return log
}

// ParseLevel maps a config level name to a slog level. Unknown names map to
// info.
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
