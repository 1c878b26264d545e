// Package client provides the ground-side client for the housekeeping service.
//
// The protocol has no request ids: a request is answered by one packet, or
// for GET_HK by a stream of packets, on the same connection. The client
// therefore serializes requests and reads the answer inline.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arrooney/ex2-services/config"
	hkerrors "github.com/arrooney/ex2-services/internal/errors"
	"github.com/arrooney/ex2-services/internal/storage/record"
	"github.com/arrooney/ex2-services/internal/wire"
)

// =============================================================================
// State
// =============================================================================

// ClientState represents the connection state of a client.
type ClientState int32

const (
	StateDisconnected ClientState = iota
	StateConnecting
	StateConnected
	StateClosed
)

// String returns the human-readable name of the state.
func (s ClientState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// =============================================================================
// Errors
// =============================================================================

var (
	ErrClientClosed     = errors.New("client is closed")
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrUnexpectedReply  = errors.New("unexpected reply")
	ErrRemoteFailure    = errors.New("remote failure")
)

// StatusError is a response that carried a non-zero status byte.
type StatusError struct {
	Subservice wire.Subservice
	Status     int8
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", e.Subservice, hkerrors.StatusName(e.Status))
}

// Unwrap maps the status onto a sentinel.
func (e *StatusError) Unwrap() error {
	if e.Status == hkerrors.StatusIllegalSubservice {
		return hkerrors.ErrIllegalSubservice
	}
	return ErrRemoteFailure
}

// =============================================================================
// Client
// =============================================================================

// Config holds client configuration.
type Config struct {
	Addr           string
	TLS            bool
	TLSSkipVerify  bool
	ConnectTimeout time.Duration
	// IdleTimeout ends a GET_HK stream, and fails a single-reply request,
	// when nothing arrives within it.
	IdleTimeout    time.Duration
	MaxMessageSize int
}

// DefaultConfig returns default client configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:           "localhost:9170",
		ConnectTimeout: config.DefaultDialTimeout,
		IdleTimeout:    config.DefaultClientIdleTimeout,
		MaxMessageSize: config.DefaultMaxMessageSize,
	}
}

// Client talks to one housekeeping service.
type Client struct {
	cfg       Config
	tlsConfig *tls.Config

	// mu serializes requests and guards the connection.
	mu   sync.Mutex
	conn net.Conn
	wire *wire.Conn

	state atomic.Int32
}

// New creates a new client. It does not connect.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := &Client{cfg: *cfg}
	def := DefaultConfig()
	if c.cfg.ConnectTimeout <= 0 {
		c.cfg.ConnectTimeout = def.ConnectTimeout
	}
	if c.cfg.IdleTimeout <= 0 {
		c.cfg.IdleTimeout = def.IdleTimeout
	}
	if c.cfg.MaxMessageSize <= 0 {
		c.cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.TLS {
		c.tlsConfig = &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify,
		}
	}
	return c
}

// Dial creates a client and connects it.
func Dial(ctx context.Context, cfg *Config) (*Client, error) {
	c := New(cfg)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) getState() ClientState {
	return ClientState(c.state.Load())
}

// Connect opens the connection.
func (c *Client) Connect(ctx context.Context) error {
	switch c.getState() {
	case StateClosed:
		return ErrClientClosed
	case StateConnected:
		return ErrAlreadyConnected
	case StateConnecting:
		return fmt.Errorf("connection already in progress")
	}
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return fmt.Errorf("cannot connect: current state is %s", c.getState())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	var conn net.Conn
	var err error
	if c.tlsConfig != nil {
		d := &tls.Dialer{Config: c.tlsConfig}
		conn, err = d.DialContext(dialCtx, "tcp", c.cfg.Addr)
	} else {
		d := &net.Dialer{}
		conn, err = d.DialContext(dialCtx, "tcp", c.cfg.Addr)
	}
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		return fmt.Errorf("dial: %w", err)
	}

	c.conn = conn
	c.wire = wire.NewConn(conn, c.cfg.MaxMessageSize)
	c.state.Store(int32(StateConnected))
	return nil
}

// Close closes the connection. The client cannot be reused.
func (c *Client) Close() error {
	if ClientState(c.state.Swap(int32(StateClosed))) == StateClosed {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.wire = nil
	return err
}

// IsConnected returns true if connected.
func (c *Client) IsConnected() bool {
	return c.getState() == StateConnected
}

// State returns the current state as a string.
func (c *Client) State() string {
	return c.getState().String()
}

// Addr returns the server address.
func (c *Client) Addr() string {
	return c.cfg.Addr
}

// =============================================================================
// Request/Response
// =============================================================================

// send writes one request. Caller holds mu.
func (c *Client) send(ctx context.Context, packet []byte) error {
	if c.getState() != StateConnected || c.wire == nil {
		return ErrNotConnected
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.cfg.IdleTimeout)
	}
	c.conn.SetWriteDeadline(deadline)
	defer c.conn.SetWriteDeadline(time.Time{})

	if err := c.wire.Write(packet); err != nil {
		c.markBroken()
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

// receive reads one response packet within the idle timeout. Caller holds mu.
func (c *Client) receive(ctx context.Context, want wire.Subservice) (wire.Response, error) {
	deadline := time.Now().Add(c.cfg.IdleTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetReadDeadline(deadline)
	defer c.conn.SetReadDeadline(time.Time{})

	packet, err := c.wire.Read()
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return wire.Response{}, fmt.Errorf("%s: %w", want, hkerrors.ErrTimeout)
		}
		c.markBroken()
		return wire.Response{}, fmt.Errorf("read response: %w", err)
	}

	resp, err := wire.ParseResponse(packet)
	if err != nil {
		return wire.Response{}, err
	}
	if resp.Subservice != want {
		return resp, fmt.Errorf("%w: expected %s, got %s", ErrUnexpectedReply, want, resp.Subservice)
	}
	return resp, nil
}

func (c *Client) markBroken() {
	c.state.CompareAndSwap(int32(StateConnected), int32(StateDisconnected))
}

func (c *Client) roundTrip(ctx context.Context, packet []byte, want wire.Subservice) (wire.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(ctx, packet); err != nil {
		return wire.Response{}, err
	}
	resp, err := c.receive(ctx, want)
	if err != nil {
		return wire.Response{}, err
	}
	if resp.Status != hkerrors.StatusOK {
		return resp, &StatusError{Subservice: resp.Subservice, Status: resp.Status}
	}
	return resp, nil
}

// SetMaxFiles changes the archive capacity.
func (c *Client) SetMaxFiles(ctx context.Context, n uint16) error {
	_, err := c.roundTrip(ctx, wire.NewSetMaxFiles(n), wire.SubserviceSetMaxFiles)
	return err
}

// GetMaxFiles returns the archive capacity.
func (c *Client) GetMaxFiles(ctx context.Context) (uint16, error) {
	resp, err := c.roundTrip(ctx, wire.NewGetMaxFiles(), wire.SubserviceGetMaxFiles)
	if err != nil {
		return 0, err
	}
	return resp.Capacity()
}

// GetHK pages backward through history, calling fn for every record in the
// order the service sends them (newest first). The stream ends after limit
// records, on a non-zero status, or when nothing arrives within the idle
// timeout. An idle end is not an error; the count tells how many arrived.
func (c *Client) GetHK(ctx context.Context, q wire.HKRequest, fn func(record.Record) error) (int, error) {
	if q.Limit == 0 {
		return 0, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(ctx, wire.NewGetHK(q)); err != nil {
		return 0, err
	}

	n := 0
	for n < int(q.Limit) {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		resp, err := c.receive(ctx, wire.SubserviceGetHK)
		if err != nil {
			if errors.Is(err, hkerrors.ErrTimeout) {
				return n, nil
			}
			return n, err
		}
		if resp.Status != hkerrors.StatusOK {
			return n, &StatusError{Subservice: resp.Subservice, Status: resp.Status}
		}

		rec, err := record.FromWirePayload(resp.Payload)
		if err != nil {
			return n, err
		}
		n++
		if fn != nil {
			if err := fn(rec); err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

// Records is GetHK collecting into a slice.
func (c *Client) Records(ctx context.Context, q wire.HKRequest) ([]record.Record, error) {
	out := make([]record.Record, 0, q.Limit)
	_, err := c.GetHK(ctx, q, func(r record.Record) error {
		out = append(out, r)
		return nil
	})
	return out, err
}
