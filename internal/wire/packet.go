package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/arrooney/ex2-services/internal/errors"
)

// Subservice selects the operation a packet requests.
type Subservice uint8

const (
	SubserviceSetMaxFiles Subservice = 0
	SubserviceGetMaxFiles Subservice = 1
	SubserviceGetHK       Subservice = 2
)

// String returns the protocol name of the subservice.
func (s Subservice) String() string {
	switch s {
	case SubserviceSetMaxFiles:
		return "SET_MAX_FILES"
	case SubserviceGetMaxFiles:
		return "GET_MAX_FILES"
	case SubserviceGetHK:
		return "GET_HK"
	default:
		return fmt.Sprintf("SUBSERVICE(%d)", uint8(s))
	}
}

// Packet sizes. Multi-byte fields are big-endian.
const (
	// RequestHeaderSize is the subservice byte.
	RequestHeaderSize = 1

	// ResponseHeaderSize is the subservice byte followed by the status byte.
	ResponseHeaderSize = 2

	setMaxFilesBodySize = 2
	getHKBodySize       = 8
)

// HKRequest asks for a backward page of records. Zero fields are unset.
type HKRequest struct {
	Limit      uint16
	BeforeID   uint16
	BeforeTime uint32
}

// =============================================================================
// Requests
// =============================================================================

// NewSetMaxFiles builds a SET_MAX_FILES request.
func NewSetMaxFiles(n uint16) []byte {
	b := []byte{byte(SubserviceSetMaxFiles)}
	return binary.BigEndian.AppendUint16(b, n)
}

// NewGetMaxFiles builds a GET_MAX_FILES request.
func NewGetMaxFiles() []byte {
	return []byte{byte(SubserviceGetMaxFiles)}
}

// NewGetHK builds a GET_HK request.
func NewGetHK(q HKRequest) []byte {
	b := make([]byte, 0, RequestHeaderSize+getHKBodySize)
	b = append(b, byte(SubserviceGetHK))
	b = binary.BigEndian.AppendUint16(b, q.Limit)
	b = binary.BigEndian.AppendUint16(b, q.BeforeID)
	b = binary.BigEndian.AppendUint32(b, q.BeforeTime)
	return b
}

// SplitRequest separates the subservice from the request body.
func SplitRequest(packet []byte) (Subservice, []byte, error) {
	if len(packet) < RequestHeaderSize {
		return 0, nil, fmt.Errorf("empty request: %w", errors.ErrShortPacket)
	}
	return Subservice(packet[0]), packet[RequestHeaderSize:], nil
}

// ParseSetMaxFiles decodes a SET_MAX_FILES body.
func ParseSetMaxFiles(body []byte) (uint16, error) {
	if len(body) < setMaxFilesBodySize {
		return 0, fmt.Errorf("SET_MAX_FILES body of %d bytes: %w", len(body), errors.ErrShortPacket)
	}
	return binary.BigEndian.Uint16(body), nil
}

// ParseGetHK decodes a GET_HK body.
func ParseGetHK(body []byte) (HKRequest, error) {
	if len(body) < getHKBodySize {
		return HKRequest{}, fmt.Errorf("GET_HK body of %d bytes: %w", len(body), errors.ErrShortPacket)
	}
	return HKRequest{
		Limit:      binary.BigEndian.Uint16(body[0:2]),
		BeforeID:   binary.BigEndian.Uint16(body[2:4]),
		BeforeTime: binary.BigEndian.Uint32(body[4:8]),
	}, nil
}

// =============================================================================
// Responses
// =============================================================================

// Response is a decoded response packet.
type Response struct {
	Subservice Subservice
	Status     int8
	Payload    []byte
}

// NewResponse builds a response packet.
func NewResponse(sub Subservice, status int8, payload []byte) []byte {
	b := make([]byte, 0, ResponseHeaderSize+len(payload))
	b = append(b, byte(sub), byte(status))
	return append(b, payload...)
}

// NewCapacityResponse builds a GET_MAX_FILES response.
func NewCapacityResponse(status int8, capacity uint16) []byte {
	return NewResponse(SubserviceGetMaxFiles, status, binary.BigEndian.AppendUint16(nil, capacity))
}

// ParseResponse decodes a response packet. The payload aliases packet.
func ParseResponse(packet []byte) (Response, error) {
	if len(packet) < ResponseHeaderSize {
		return Response{}, fmt.Errorf("response of %d bytes: %w", len(packet), errors.ErrShortPacket)
	}
	return Response{
		Subservice: Subservice(packet[0]),
		Status:     int8(packet[1]),
		Payload:    packet[ResponseHeaderSize:],
	}, nil
}

// Capacity decodes the payload of a GET_MAX_FILES response.
func (r Response) Capacity() (uint16, error) {
	if len(r.Payload) < 2 {
		return 0, fmt.Errorf("capacity payload of %d bytes: %w", len(r.Payload), errors.ErrShortPacket)
	}
	return binary.BigEndian.Uint16(r.Payload), nil
}
