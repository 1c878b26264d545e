// Package server provides the housekeeping service endpoint.
//
// The server accepts ground connections, wraps each one in a session and
// feeds every received packet to the subservice handler. Requests on one
// connection are served in order; connections are served concurrently and
// meet at the store's lock.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/arrooney/ex2-services/config"
	"github.com/arrooney/ex2-services/internal/errors"
	"github.com/arrooney/ex2-services/internal/handler"
	"github.com/arrooney/ex2-services/internal/logging"
)

var log = logging.Component("server")

// =============================================================================
// Server Configuration
// =============================================================================

// Config holds server configuration.
type Config struct {
	// Handler dispatches request packets (required).
	Handler *handler.Handler

	// Listen is the address to listen on (e.g., "0.0.0.0:9170").
	Listen string

	// TLS configuration (optional).
	TLSCertFile string
	TLSKeyFile  string

	// MaxMessageSize bounds a single inbound packet.
	MaxMessageSize int

	// DrainTimeout is how long Shutdown waits for open sessions.
	DrainTimeout time.Duration
}

// =============================================================================
// Server
// =============================================================================

// Server is the housekeeping service endpoint.
type Server struct {
	cfg      Config
	handler  *handler.Handler
	sessions *handler.SessionManager

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}

	shutdown     chan struct{}
	stopped      chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// New creates a new server.
func New(cfg Config) (*Server, error) {
	if cfg.Handler == nil {
		return nil, errors.NewMissingField("handler")
	}
	if cfg.Listen == "" {
		cfg.Listen = config.DefaultListenAddress
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = config.DefaultMaxMessageSize
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = time.Duration(config.DefaultDrainTimeoutSec) * time.Second
	}

	return &Server{
		cfg:      cfg,
		handler:  cfg.Handler,
		sessions: handler.NewSessionManager(cfg.MaxMessageSize),
		ready:    make(chan struct{}),
		shutdown: make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

// Run listens and serves until ctx is cancelled or Shutdown is called.
// It returns nil on a clean stop, after the sessions have drained.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.listen()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.ready)

	go func() {
		select {
		case <-ctx.Done():
			s.Shutdown()
		case <-s.shutdown:
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				<-s.stopped
				return nil
			default:
			}
			log.Error("accept error", "error", err)
			continue
		}

		select {
		case <-s.shutdown:
			conn.Close()
			continue
		default:
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) listen() (net.Listener, error) {
	if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("load TLS cert: %w", err)
		}
		tlsCfg := &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		ln, err := tls.Listen("tcp", s.cfg.Listen, tlsCfg)
		if err != nil {
			return nil, fmt.Errorf("TLS listen: %w", err)
		}
		log.Info("listening with TLS", "address", ln.Addr().String())
		return ln, nil
	}

	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	log.Info("listening without TLS", "address", ln.Addr().String())
	return ln, nil
}

// Addr blocks until the listener is up and returns its address.
func (s *Server) Addr() net.Addr {
	select {
	case <-s.ready:
	case <-s.shutdown:
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener.Addr()
}

// Sessions returns the number of open connections.
func (s *Server) Sessions() int {
	return s.sessions.Count()
}

// Shutdown stops accepting, closes every session and waits up to the drain
// timeout for their loops to exit. Safe to call more than once.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		log.Info("shutting down")
		close(s.shutdown)

		s.mu.Lock()
		if s.listener != nil {
			s.listener.Close()
		}
		s.mu.Unlock()

		s.sessions.CloseAll()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			log.Info("shutdown complete")
		case <-time.After(s.cfg.DrainTimeout):
			log.Warn("drain timeout, sessions still open", "remaining", s.sessions.Count())
		}
		close(s.stopped)
	})
}

// =============================================================================
// Connection Handling
// =============================================================================

// handleConn serves one connection until the peer goes away.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	session := s.sessions.CreateSession(conn)
	defer session.Close()

	ctx = session.Context(ctx)
	log.Info("new session", "session_id", session.ID, "remote", session.Remote)

	for {
		packet, err := session.Receive()
		if err != nil {
			if !errors.Is(err, io.EOF) && !session.IsClosed() {
				log.Debug("read failed, closing session", "session_id", session.ID, "error", err)
			}
			break
		}

		// A failed request leaves the connection usable.
		if err := s.handler.Handle(ctx, packet, session); err != nil {
			logging.WithContext(ctx, log).Warn("request failed", "error", err)
			if errors.Is(err, errors.ErrConnectionClosed) {
				break
			}
		}
	}

	log.Info("session disconnected",
		"session_id", session.ID,
		"packets_out", session.PacketsOut())
}
