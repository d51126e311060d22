// Package model defines the core domain types for the scheduling backend.
package model

import (
	"errors"
	"time"
)

// Sentinel errors shared across layers. Handlers translate these into HTTP
// statuses; nothing below the handler layer knows about transport.
var (
	// ErrMissingField means a required input was absent or empty. No store
	// access is attempted when this is returned.
	ErrMissingField = errors.New("missing required fields")

	// ErrUnknownService means one or more service ids do not exist or do not
	// belong to the requested business.
	ErrUnknownService = errors.New("one or more services not found")

	// ErrSlotConflict means the requested interval overlaps an existing
	// reservation for the same business.
	ErrSlotConflict = errors.New("time slot overlaps with an existing booking")

	// ErrStoreUnavailable means a catalog or store query failed or timed out.
	// Retryable by the caller.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = errors.New("not found")
)

// Business is the identity boundary for all scheduling data. Services and
// reservations are scoped to exactly one business; there is no cross-business
// interaction.
type Business struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Service is an offering belonging to one business. Durations are read-only
// here; the admission path never writes them.
type Service struct {
	ID              string    `json:"id"`
	BusinessID      string    `json:"business_id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration"`
	CreatedAt       time.Time `json:"created_at"`
}

// Reservation is a booked time slot for a business. EndTime is always derived
// by the admission engine, never caller-supplied.
type Reservation struct {
	ID           string    `json:"id"`
	BusinessID   string    `json:"business_id"`
	CustomerName string    `json:"customer_name"`
	ServiceIDs   []string  `json:"service_ids"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	CreatedAt    time.Time `json:"created_at"`
}

// Overlaps reports whether the reservation's interval intersects [start, end).
func (r *Reservation) Overlaps(start, end time.Time) bool {
	return Intersects(r.StartTime, r.EndTime, start, end)
}

// Intersects reports whether the half-open intervals [s1,e1) and [s2,e2)
// share any instant. Both bounds must hold; a disjunction over either bound
// alone also matches intervals that merely abut.
func Intersects(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// CreateBookingRequest is the payload for admitting a new reservation.
// StartTime is RFC 3339; an unparseable value fails at decode. Any end time
// the caller sends is ignored; the engine derives its own.
type CreateBookingRequest struct {
	BusinessID   string    `json:"business_id"`
	CustomerName string    `json:"customer_name"`
	ServiceIDs   []string  `json:"service_ids"`
	StartTime    time.Time `json:"start_time"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
