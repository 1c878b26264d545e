// Package handler dispatches housekeeping service requests.
//
// A request is one packet whose first byte selects the subservice. Every
// request is answered with at least one response packet carrying the same
// subservice and a status byte; GET_HK answers with one packet per record.
package handler

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/arrooney/ex2-services/internal/errors"
	"github.com/arrooney/ex2-services/internal/logging"
	"github.com/arrooney/ex2-services/internal/storage/query"
	"github.com/arrooney/ex2-services/internal/wire"
)

// =============================================================================
// Collaborators
// =============================================================================

// Responder sends response packets back to the requester.
type Responder interface {
	Send(ctx context.Context, packet []byte) error
}

// Store is the part of the housekeeping store the handler administers.
type Store interface {
	SetCapacity(ctx context.Context, n uint16) error
	Capacity() uint16
}

// Fetcher serves GET_HK pages.
type Fetcher interface {
	FetchHistoric(ctx context.Context, q query.Query, sink query.Sink) (int, error)
}

// =============================================================================
// Handler
// =============================================================================

// Stats holds request statistics.
type Stats struct {
	Requests       int64
	Failures       int64
	IllegalRequest int64
	RecordsSent    int64
}

// Handler is the subservice dispatcher.
type Handler struct {
	store Store
	fetch Fetcher

	requests atomic.Int64
	failures atomic.Int64
	illegal  atomic.Int64
	records  atomic.Int64
}

// NewHandler creates a new handler.
func NewHandler(store Store, fetch Fetcher) *Handler {
	return &Handler{store: store, fetch: fetch}
}

// Handle serves one request packet, writing every response through out.
//
// The returned error describes a failed operation for logging; the requester
// has already been told through the status byte. An empty packet is dropped
// without a response since it names no subservice.
func (h *Handler) Handle(ctx context.Context, packet []byte, out Responder) error {
	h.requests.Add(1)

	sub, body, err := wire.SplitRequest(packet)
	if err != nil {
		h.failures.Add(1)
		return err
	}

	ctx = logging.ContextWithSubservice(ctx, sub.String())

	switch sub {
	case wire.SubserviceSetMaxFiles:
		err = h.setMaxFiles(ctx, body, out)
	case wire.SubserviceGetMaxFiles:
		err = h.getMaxFiles(ctx, out)
	case wire.SubserviceGetHK:
		err = h.getHK(ctx, body, out)
	default:
		h.illegal.Add(1)
		if serr := out.Send(ctx, wire.NewResponse(sub, errors.StatusIllegalSubservice, nil)); serr != nil {
			return fmt.Errorf("reply to %s: %w: %w", sub, errors.ErrTransmit, serr)
		}
		return fmt.Errorf("%s: %w", sub, errors.ErrIllegalSubservice)
	}

	if err != nil {
		h.failures.Add(1)
		logging.WithContext(ctx, log).Warn("request failed", "error", err)
	}
	return err
}

func (h *Handler) setMaxFiles(ctx context.Context, body []byte, out Responder) error {
	n, err := wire.ParseSetMaxFiles(body)
	if err == nil {
		err = h.store.SetCapacity(ctx, n)
	}

	status := errors.ErrorToStatus(err)
	if serr := out.Send(ctx, wire.NewResponse(wire.SubserviceSetMaxFiles, status, nil)); serr != nil {
		return errors.Join(err, fmt.Errorf("reply: %w: %w", errors.ErrTransmit, serr))
	}
	return err
}

func (h *Handler) getMaxFiles(ctx context.Context, out Responder) error {
	resp := wire.NewCapacityResponse(errors.StatusOK, h.store.Capacity())
	if err := out.Send(ctx, resp); err != nil {
		return fmt.Errorf("reply: %w: %w", errors.ErrTransmit, err)
	}
	return nil
}

// getHK streams one packet per record. When the walk fails, a final packet
// with a failure status and no payload tells the requester the page ended
// early.
func (h *Handler) getHK(ctx context.Context, body []byte, out Responder) error {
	req, err := wire.ParseGetHK(body)
	if err != nil {
		if serr := out.Send(ctx, wire.NewResponse(wire.SubserviceGetHK, errors.StatusFailure, nil)); serr != nil {
			return errors.Join(err, fmt.Errorf("reply: %w: %w", errors.ErrTransmit, serr))
		}
		return err
	}

	sink := query.SinkFunc(func(ctx context.Context, payload []byte) error {
		return out.Send(ctx, wire.NewResponse(wire.SubserviceGetHK, errors.StatusOK, payload))
	})

	q := query.Query{Limit: req.Limit, BeforeID: req.BeforeID, BeforeTime: req.BeforeTime}
	n, err := h.fetch.FetchHistoric(ctx, q, sink)
	h.records.Add(int64(n))
	if err == nil {
		return nil
	}

	if serr := out.Send(ctx, wire.NewResponse(wire.SubserviceGetHK, errors.StatusFailure, nil)); serr != nil {
		logging.WithContext(ctx, log).Debug("terminating packet not sent", "error", serr)
	}
	return errors.Wrapf(err, "GET_HK after %d records", n)
}

// Stats returns current statistics.
func (h *Handler) Stats() Stats {
	return Stats{
		Requests:       h.requests.Load(),
		Failures:       h.failures.Load(),
		IllegalRequest: h.illegal.Load(),
		RecordsSent:    h.records.Load(),
	}
}
