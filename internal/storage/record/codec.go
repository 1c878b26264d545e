package record

import (
	"encoding/binary"
	"fmt"

	"github.com/arrooney/ex2-services/internal/errors"
)

// Encoding format:
// - Header: Timestamp (4 bytes), SlotID (2 bytes)
// - One block per Schema entry, fields in struct order, no padding
//
// Persisted bytes use the host's native byte order. Transmitted bytes use
// network (big-endian) order. The two only differ on little-endian hosts.

// Encode serializes r in native byte order.
func Encode(r Record) []byte {
	buf, err := binary.Append(make([]byte, 0, Size), binary.NativeEndian, &r)
	if err != nil || len(buf) != Size {
		// Record holds only fixed-size fields; this is a schema bug.
		panic(fmt.Sprintf("record: encode produced %d bytes, want %d: %v", len(buf), Size, err))
	}
	return buf
}

// Decode is the inverse of Encode.
// Returns ErrCorruptRecord if len(data) is not exactly Size.
func Decode(data []byte) (Record, error) {
	var r Record
	if len(data) != Size {
		return r, fmt.Errorf("decode %d bytes, want %d: %w", len(data), Size, errors.ErrCorruptRecord)
	}
	if _, err := binary.Decode(data, binary.NativeEndian, &r); err != nil {
		return r, fmt.Errorf("decode: %v: %w", err, errors.ErrCorruptRecord)
	}
	return r, nil
}

// ToWireOrder reinterprets every multi-byte field in network byte order.
// Applying it twice restores the original bit pattern.
func (r Record) ToWireOrder() Record {
	var w Record
	// Cannot fail: Encode always yields exactly binary.Size(Record{}) bytes.
	_, _ = binary.Decode(Encode(r), binary.BigEndian, &w)
	return w
}

// SwapToWire applies ToWireOrder to an encoded record.
func SwapToWire(data []byte) ([]byte, error) {
	r, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Encode(r.ToWireOrder()), nil
}

// WirePayload returns the transmitted form of r: header then every block,
// all multi-byte fields big-endian.
func WirePayload(r Record) []byte {
	return Encode(r.ToWireOrder())
}

// FromWirePayload parses a payload produced by WirePayload.
func FromWirePayload(data []byte) (Record, error) {
	r, err := Decode(data)
	if err != nil {
		return r, err
	}
	return r.ToWireOrder(), nil
}
