package handler

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/arrooney/ex2-services/internal/errors"
	"github.com/arrooney/ex2-services/internal/logging"
	"github.com/arrooney/ex2-services/internal/wire"
)

var log = logging.Component("handler")

// =============================================================================
// Session
// =============================================================================

// Session is one ground connection. It implements Responder.
//
// There is no session state beyond the connection itself: every request
// carries all it needs, and a reconnecting client simply opens a new session.
//
// Session is safe for concurrent use.
type Session struct {
	// Immutable fields (no lock needed)
	ID        string
	Remote    string
	CreatedAt time.Time

	// sendMu serializes writes and their deadlines.
	sendMu sync.Mutex
	conn   net.Conn
	wire   *wire.Conn

	packetsOut atomic.Int64
	closed     atomic.Bool
	closeOnce  sync.Once
	onClose    func(id string)
}

// NewSession wraps conn. Packets larger than maxSize are refused on read.
func NewSession(conn net.Conn, maxSize int) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Remote:    conn.RemoteAddr().String(),
		CreatedAt: time.Now(),
		conn:      conn,
		wire:      wire.NewConn(conn, maxSize),
	}
}

// Context returns ctx tagged with the session id for logging.
func (s *Session) Context(ctx context.Context) context.Context {
	return logging.ContextWithConnID(ctx, s.ID)
}

// Receive blocks until the next request packet arrives.
func (s *Session) Receive() ([]byte, error) {
	if s.closed.Load() {
		return nil, errors.ErrConnectionClosed
	}
	return s.wire.Read()
}

// Send writes one packet. A deadline on ctx becomes the write deadline, so a
// stalled link fails the send instead of blocking it.
func (s *Session) Send(ctx context.Context, packet []byte) error {
	if s.closed.Load() {
		return errors.ErrConnectionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		if err := s.conn.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
		defer s.conn.SetWriteDeadline(time.Time{})
	}

	if err := s.wire.Write(packet); err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return fmt.Errorf("%w: %w", errors.ErrTimeout, err)
		}
		return err
	}
	s.packetsOut.Add(1)
	return nil
}

// PacketsOut returns the number of packets sent.
func (s *Session) PacketsOut() int64 {
	return s.packetsOut.Load()
}

// Close closes the connection.
// This is idempotent - calling it multiple times has no additional effect.
func (s *Session) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		s.closed.Store(true)
		closeErr = s.conn.Close()

		if s.onClose != nil {
			s.onClose(s.ID)
		}
		log.Debug("session closed", "session_id", s.ID)
	})

	return closeErr
}

// IsClosed returns true if the session is closed.
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// =============================================================================
// Session Manager
// =============================================================================

// SessionManager tracks open sessions so they can be closed on shutdown.
//
// SessionManager is safe for concurrent use.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	maxSize  int
}

// NewSessionManager creates a session manager. maxSize bounds incoming
// packets of every session.
func NewSessionManager(maxSize int) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		maxSize:  maxSize,
	}
}

// CreateSession registers a session for conn. The session removes itself
// when closed.
func (sm *SessionManager) CreateSession(conn net.Conn) *Session {
	session := NewSession(conn, sm.maxSize)
	session.onClose = sm.remove

	sm.mu.Lock()
	sm.sessions[session.ID] = session
	sm.mu.Unlock()

	log.Info("session created", "session_id", session.ID, "remote", session.Remote)
	return session
}

// GetSession returns a session by ID.
func (sm *SessionManager) GetSession(id string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

func (sm *SessionManager) remove(id string) {
	sm.mu.Lock()
	delete(sm.sessions, id)
	sm.mu.Unlock()
}

// CloseAll closes every open session.
func (sm *SessionManager) CloseAll() {
	sm.mu.RLock()
	sessions := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		sessions = append(sessions, s)
	}
	sm.mu.RUnlock()

	for _, s := range sessions {
		s.Close()
	}
}

// Count returns the number of open sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}
