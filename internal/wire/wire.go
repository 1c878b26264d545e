// Package wire provides packet framing for the housekeeping protocol.
//
// Each packet travels as one length-delimited protobuf message (a
// BytesValue holding the raw packet) using protobuf's standard varint
// length prefix. This allows efficient streaming of variable-length packets
// over TCP.
package wire

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/arrooney/ex2-services/config"
	"github.com/arrooney/ex2-services/internal/errors"
)

// Reader reads length-delimited packets from an io.Reader.
// It is safe for concurrent use.
type Reader struct {
	r       *bufio.Reader
	maxSize int
	mu      sync.Mutex
}

// NewReader creates a Reader wrapping the given io.Reader.
// maxSize <= 0 uses config.DefaultMaxMessageSize.
func NewReader(r io.Reader, maxSize int) *Reader {
	if maxSize <= 0 {
		maxSize = config.DefaultMaxMessageSize
	}
	return &Reader{r: bufio.NewReader(r), maxSize: maxSize}
}

// Read reads the next packet.
// Returns io.EOF unchanged when the stream ends cleanly between packets.
func (r *Reader) Read() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frame := &wrapperspb.BytesValue{}
	opts := protodelim.UnmarshalOptions{
		MaxSize: int64(r.maxSize),
	}
	if err := opts.UnmarshalFrom(r.r, frame); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, err
		}
		return nil, fmt.Errorf("read packet: %w", err)
	}
	return frame.GetValue(), nil
}

// Writer writes length-delimited packets to an io.Writer.
// It is safe for concurrent use.
type Writer struct {
	w  io.Writer
	mu sync.Mutex
}

// NewWriter creates a Writer wrapping the given io.Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write writes one packet with length prefix.
func (w *Writer) Write(packet []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := protodelim.MarshalTo(w.w, wrapperspb.Bytes(packet)); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	return nil
}

// Conn combines Reader and Writer for bidirectional communication.
type Conn struct {
	*Reader
	*Writer
}

// NewConn creates a Conn from an io.ReadWriter (e.g., net.Conn).
func NewConn(rw io.ReadWriter, maxSize int) *Conn {
	return &Conn{
		Reader: NewReader(rw, maxSize),
		Writer: NewWriter(rw),
	}
}
