// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopcal/backend/internal/model"
	"github.com/shopcal/backend/internal/service"
)

// BookingHandler holds all HTTP handlers for the scheduling API.
type BookingHandler struct {
	svc *service.BookingService
}

// NewBookingHandler constructs a BookingHandler.
func NewBookingHandler(svc *service.BookingService) *BookingHandler {
	return &BookingHandler{svc: svc}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

// decodeJSON reads a bounded request body. Unknown fields are tolerated: a
// caller-supplied end_time must be silently ignored, not rejected.
func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	return json.NewDecoder(r.Body).Decode(dst)
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// Root handles GET /
func Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Shopcal scheduling backend running"))
}

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListBusinesses handles GET /api/businesses
func (h *BookingHandler) ListBusinesses(w http.ResponseWriter, r *http.Request) {
	businesses, err := h.svc.ListBusinesses(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list businesses")
		return
	}
	if businesses == nil {
		businesses = []model.Business{}
	}
	writeJSON(w, http.StatusOK, businesses)
}

// ListServices handles GET /api/services?business_id=<id>
// Returns all services offered by the given business.
func (h *BookingHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	businessID := r.URL.Query().Get("business_id")

	services, err := h.svc.ListServices(r.Context(), businessID)
	if err != nil {
		if errors.Is(err, model.ErrMissingField) {
			writeError(w, http.StatusBadRequest, "Missing business_id")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list services")
		return
	}
	if services == nil {
		services = []model.Service{}
	}
	writeJSON(w, http.StatusOK, services)
}

// ListBookings handles GET /api/bookings?business_id=<id>
// Returns all reservations for the given business.
func (h *BookingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	businessID := r.URL.Query().Get("business_id")

	bookings, err := h.svc.ListBookings(r.Context(), businessID)
	if err != nil {
		if errors.Is(err, model.ErrMissingField) {
			writeError(w, http.StatusBadRequest, "Missing business_id")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list bookings")
		return
	}
	if bookings == nil {
		bookings = []model.Reservation{}
	}
	writeJSON(w, http.StatusOK, bookings)
}

// CreateBooking handles POST /api/bookings
// Runs the admission pipeline and returns the persisted reservation with its
// engine-derived end time.
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req model.CreateBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	booking, err := h.svc.AdmitBooking(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrMissingField):
			writeError(w, http.StatusBadRequest, "Missing required fields")
		case errors.Is(err, model.ErrUnknownService):
			writeError(w, http.StatusBadRequest, "One or more services not found")
		case errors.Is(err, model.ErrSlotConflict):
			writeError(w, http.StatusConflict, "Time slot overlaps with an existing booking")
		default:
			writeError(w, http.StatusInternalServerError, "failed to create booking")
		}
		return
	}

	writeJSON(w, http.StatusCreated, booking)
}
