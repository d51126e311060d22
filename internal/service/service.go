// Package service implements the booking admission engine: validation,
// reservation-window computation, and orchestration between HTTP handlers
// and the stores.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopcal/backend/internal/model"
)

// BufferMinutes is the fixed turnaround padding appended after the summed
// service durations of every reservation.
const BufferMinutes = 15

const defaultStoreTimeout = 5 * time.Second

// ServiceCatalog is the read-only source of service metadata.
type ServiceCatalog interface {
	ListByBusiness(ctx context.Context, businessID string) ([]model.Service, error)
	GetByIDs(ctx context.Context, businessID string, ids []string) ([]model.Service, error)
}

// ReservationStore reads and appends reservation records. Create must be
// atomic with respect to the no-overlap invariant: a concurrent create for an
// intersecting interval of the same business must fail with ErrSlotConflict.
type ReservationStore interface {
	ListByBusiness(ctx context.Context, businessID string) ([]model.Reservation, error)
	FindOverlapping(ctx context.Context, businessID string, start, end time.Time) ([]model.Reservation, error)
	Create(ctx context.Context, res *model.Reservation) (*model.Reservation, error)
}

// BusinessDirectory lists the known businesses.
type BusinessDirectory interface {
	List(ctx context.Context) ([]model.Business, error)
}

// BookingService is the admission engine plus the read operations behind the
// list endpoints.
type BookingService struct {
	catalog      ServiceCatalog
	reservations ReservationStore
	businesses   BusinessDirectory
	storeTimeout time.Duration
}

// NewBookingService constructs a BookingService with its dependencies.
// storeTimeout bounds each individual store call; zero selects a default.
func NewBookingService(
	catalog ServiceCatalog,
	reservations ReservationStore,
	businesses BusinessDirectory,
	storeTimeout time.Duration,
) *BookingService {
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	return &BookingService{
		catalog:      catalog,
		reservations: reservations,
		businesses:   businesses,
		storeTimeout: storeTimeout,
	}
}

// AdmitBooking validates a prospective booking, derives its time window, and
// persists it if the slot is free.
//
// The reservation extent is start + sum(duration of each requested service,
// counting repeats) + BufferMinutes. The end time is always derived here;
// whatever the caller sends is ignored. Exactly one insert happens on
// success and none on any failure path.
func (s *BookingService) AdmitBooking(ctx context.Context, req model.CreateBookingRequest) (*model.Reservation, error) {
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if req.BusinessID == "" || req.CustomerName == "" || len(req.ServiceIDs) == 0 || req.StartTime.IsZero() {
		return nil, model.ErrMissingField
	}
	for _, id := range req.ServiceIDs {
		if strings.TrimSpace(id) == "" {
			return nil, model.ErrMissingField
		}
	}

	totalMinutes, err := s.resolveTotalDuration(ctx, req.BusinessID, req.ServiceIDs)
	if err != nil {
		return nil, err
	}

	start := req.StartTime
	end := start.Add(time.Duration(totalMinutes+BufferMinutes) * time.Minute)

	// Fast-path rejection. The store's Create re-checks under a per-business
	// lock, so a race slipping past this read still cannot double-book.
	lookCtx, cancel := s.storeCtx(ctx)
	overlapping, err := s.reservations.FindOverlapping(lookCtx, req.BusinessID, start, end)
	cancel()
	if err != nil {
		return nil, storeFailure("find overlapping bookings", err)
	}
	if len(overlapping) > 0 {
		return nil, model.ErrSlotConflict
	}

	createCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	created, err := s.reservations.Create(createCtx, &model.Reservation{
		BusinessID:   req.BusinessID,
		CustomerName: req.CustomerName,
		ServiceIDs:   req.ServiceIDs,
		StartTime:    start,
		EndTime:      end,
	})
	if err != nil {
		if errors.Is(err, model.ErrSlotConflict) {
			return nil, model.ErrSlotConflict
		}
		return nil, storeFailure("insert booking", err)
	}
	return created, nil
}

// resolveTotalDuration looks up every requested service scoped to the
// business and sums durations, counting each occurrence of a repeated id.
//
// Resolution is checked by id-set equality, not count equality: with
// duplicates in the request, a count comparison would let an unknown id
// slip through whenever another id resolved twice.
func (s *BookingService) resolveTotalDuration(ctx context.Context, businessID string, serviceIDs []string) (int, error) {
	distinct := make([]string, 0, len(serviceIDs))
	seen := make(map[string]bool, len(serviceIDs))
	for _, id := range serviceIDs {
		if !seen[id] {
			seen[id] = true
			distinct = append(distinct, id)
		}
	}

	lookCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	services, err := s.catalog.GetByIDs(lookCtx, businessID, distinct)
	if err != nil {
		return 0, storeFailure("lookup service durations", err)
	}

	durations := make(map[string]int, len(services))
	for _, svc := range services {
		durations[svc.ID] = svc.DurationMinutes
	}
	for _, id := range distinct {
		if _, ok := durations[id]; !ok {
			return 0, model.ErrUnknownService
		}
	}

	total := 0
	for _, id := range serviceIDs {
		total += durations[id]
	}
	return total, nil
}

// ListBusinesses returns all known businesses.
func (s *BookingService) ListBusinesses(ctx context.Context) ([]model.Business, error) {
	lookCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	businesses, err := s.businesses.List(lookCtx)
	if err != nil {
		return nil, storeFailure("list businesses", err)
	}
	return businesses, nil
}

// ListServices returns all services offered by a business.
func (s *BookingService) ListServices(ctx context.Context, businessID string) ([]model.Service, error) {
	if strings.TrimSpace(businessID) == "" {
		return nil, model.ErrMissingField
	}
	lookCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	services, err := s.catalog.ListByBusiness(lookCtx, businessID)
	if err != nil {
		return nil, storeFailure("list services", err)
	}
	return services, nil
}

// ListBookings returns all reservations for a business.
func (s *BookingService) ListBookings(ctx context.Context, businessID string) ([]model.Reservation, error) {
	if strings.TrimSpace(businessID) == "" {
		return nil, model.ErrMissingField
	}
	lookCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	reservations, err := s.reservations.ListByBusiness(lookCtx, businessID)
	if err != nil {
		return nil, storeFailure("list bookings", err)
	}
	return reservations, nil
}

// storeCtx bounds a single store call so a stalled store cannot leave the
// caller waiting indefinitely.
func (s *BookingService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

// storeFailure wraps a catalog or store error as the retryable
// store-unavailable kind while keeping the cause in the message.
func storeFailure(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, model.ErrStoreUnavailable, err)
}
