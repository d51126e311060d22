package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopcal/backend/internal/model"
)

// fakeCatalog is an in-memory ServiceCatalog.
type fakeCatalog struct {
	services []model.Service
	err      error
	calls    int
}

func (c *fakeCatalog) ListByBusiness(_ context.Context, businessID string) ([]model.Service, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	var out []model.Service
	for _, s := range c.services {
		if s.BusinessID == businessID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (c *fakeCatalog) GetByIDs(_ context.Context, businessID string, ids []string) ([]model.Service, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []model.Service
	for _, s := range c.services {
		if s.BusinessID == businessID && want[s.ID] {
			out = append(out, s)
		}
	}
	return out, nil
}

// fakeStore is an in-memory ReservationStore. Create holds a mutex across its
// overlap re-check and append, mirroring the per-business serialization the
// real store performs.
type fakeStore struct {
	mu           sync.Mutex
	reservations []model.Reservation
	nextID       int
	findErr      error
	createErr    error
}

func (s *fakeStore) ListByBusiness(_ context.Context, businessID string) ([]model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Reservation
	for _, r := range s.reservations {
		if r.BusinessID == businessID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) FindOverlapping(_ context.Context, businessID string, start, end time.Time) ([]model.Reservation, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Reservation
	for _, r := range s.reservations {
		if r.BusinessID == businessID && r.Overlaps(start, end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) Create(_ context.Context, res *model.Reservation) (*model.Reservation, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.reservations {
		if existing.BusinessID == res.BusinessID && existing.Overlaps(res.StartTime, res.EndTime) {
			return nil, model.ErrSlotConflict
		}
	}
	s.nextID++
	created := *res
	created.ID = fmt.Sprintf("res-%d", s.nextID)
	created.CreatedAt = time.Now().UTC()
	s.reservations = append(s.reservations, created)
	return &created, nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reservations)
}

// fakeDirectory is an in-memory BusinessDirectory.
type fakeDirectory struct {
	businesses []model.Business
	err        error
}

func (d *fakeDirectory) List(context.Context) ([]model.Business, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.businesses, nil
}

func at(hour, min int) time.Time {
	return time.Date(2024, 1, 1, hour, min, 0, 0, time.UTC)
}

func newFixture() (*BookingService, *fakeCatalog, *fakeStore) {
	catalog := &fakeCatalog{services: []model.Service{
		{ID: "s1", BusinessID: "b1", Name: "Haircut", DurationMinutes: 30},
		{ID: "s2", BusinessID: "b1", Name: "Beard trim", DurationMinutes: 20},
		{ID: "s3", BusinessID: "b2", Name: "Massage", DurationMinutes: 60},
	}}
	store := &fakeStore{}
	svc := NewBookingService(catalog, store, &fakeDirectory{}, time.Second)
	return svc, catalog, store
}

func req(businessID string, serviceIDs []string, start time.Time) model.CreateBookingRequest {
	return model.CreateBookingRequest{
		BusinessID:   businessID,
		CustomerName: "Ada",
		ServiceIDs:   serviceIDs,
		StartTime:    start,
	}
}

func TestAdmitBookingDerivesEndTime(t *testing.T) {
	svc, _, _ := newFixture()

	// 30 min service + 15 min buffer.
	res, err := svc.AdmitBooking(context.Background(), req("b1", []string{"s1"}, at(10, 0)))
	if err != nil {
		t.Fatalf("AdmitBooking: %v", err)
	}
	if want := at(10, 45); !res.EndTime.Equal(want) {
		t.Errorf("end time = %v, want %v", res.EndTime, want)
	}
	if res.ID == "" {
		t.Error("expected a store-assigned id")
	}
}

func TestAdmitBookingSumsDurations(t *testing.T) {
	tests := []struct {
		name       string
		serviceIDs []string
		wantEnd    time.Time
	}{
		{"two services", []string{"s1", "s2"}, at(11, 5)},              // 30+20+15
		{"repeated id counts twice", []string{"s1", "s1"}, at(11, 15)}, // 30+30+15
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newFixture()
			res, err := svc.AdmitBooking(context.Background(), req("b1", tt.serviceIDs, at(10, 0)))
			if err != nil {
				t.Fatalf("AdmitBooking: %v", err)
			}
			if !res.EndTime.Equal(tt.wantEnd) {
				t.Errorf("end time = %v, want %v", res.EndTime, tt.wantEnd)
			}
		})
	}
}

func TestAdmitBookingMissingFields(t *testing.T) {
	svc, catalog, store := newFixture()

	tests := []struct {
		name string
		req  model.CreateBookingRequest
	}{
		{"empty business", req("", []string{"s1"}, at(10, 0))},
		{"blank customer", model.CreateBookingRequest{BusinessID: "b1", CustomerName: "  ", ServiceIDs: []string{"s1"}, StartTime: at(10, 0)}},
		{"no services", req("b1", nil, at(10, 0))},
		{"blank service id", req("b1", []string{"s1", ""}, at(10, 0))},
		{"zero start", req("b1", []string{"s1"}, time.Time{})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.AdmitBooking(context.Background(), tt.req); !errors.Is(err, model.ErrMissingField) {
				t.Errorf("err = %v, want ErrMissingField", err)
			}
		})
	}

	// Input validation must short-circuit before any store access.
	if catalog.calls != 0 {
		t.Errorf("catalog was queried %d times for invalid input", catalog.calls)
	}
	if store.count() != 0 {
		t.Errorf("store has %d reservations after failed admissions", store.count())
	}
}

func TestAdmitBookingUnknownService(t *testing.T) {
	svc, _, store := newFixture()

	tests := []struct {
		name       string
		serviceIDs []string
	}{
		{"nonexistent id", []string{"s1", "ghost"}},
		{"other business's service", []string{"s3"}},
		{"repeat does not mask unknown", []string{"s1", "s1", "ghost"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AdmitBooking(context.Background(), req("b1", tt.serviceIDs, at(10, 0)))
			if !errors.Is(err, model.ErrUnknownService) {
				t.Errorf("err = %v, want ErrUnknownService", err)
			}
		})
	}
	if store.count() != 0 {
		t.Errorf("store has %d reservations, want 0", store.count())
	}
}

// Spec scenario: a 30-minute service booked at 10:00 occupies [10:00,10:45).
// A 10:30 request conflicts; a 10:45 request abuts exactly and succeeds.
func TestAdmitBookingConflictAndAbutting(t *testing.T) {
	svc, _, store := newFixture()
	ctx := context.Background()

	if _, err := svc.AdmitBooking(ctx, req("b1", []string{"s1"}, at(10, 0))); err != nil {
		t.Fatalf("first admission: %v", err)
	}

	if _, err := svc.AdmitBooking(ctx, req("b1", []string{"s1"}, at(10, 30))); !errors.Is(err, model.ErrSlotConflict) {
		t.Fatalf("overlapping admission err = %v, want ErrSlotConflict", err)
	}
	if store.count() != 1 {
		t.Fatalf("store has %d reservations after rejected admission, want 1", store.count())
	}

	res, err := svc.AdmitBooking(ctx, req("b1", []string{"s1"}, at(10, 45)))
	if err != nil {
		t.Fatalf("abutting admission: %v", err)
	}
	if want := at(11, 30); !res.EndTime.Equal(want) {
		t.Errorf("abutting end time = %v, want %v", res.EndTime, want)
	}
}

func TestAdmitBookingBusinessesAreIndependent(t *testing.T) {
	svc, _, _ := newFixture()
	ctx := context.Background()

	if _, err := svc.AdmitBooking(ctx, req("b1", []string{"s1"}, at(10, 0))); err != nil {
		t.Fatalf("b1 admission: %v", err)
	}
	// Same wall-clock slot, different business: never a conflict.
	if _, err := svc.AdmitBooking(ctx, req("b2", []string{"s3"}, at(10, 0))); err != nil {
		t.Fatalf("b2 admission: %v", err)
	}
}

// Two concurrent admissions for overlapping slots of the same business must
// resolve to exactly one success and one conflict.
func TestAdmitBookingConcurrentOverlap(t *testing.T) {
	svc, _, store := newFixture()

	const attempts = 2
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := at(10, 0).Add(time.Duration(i) * 10 * time.Minute) // overlapping windows
			_, errs[i] = svc.AdmitBooking(context.Background(), req("b1", []string{"s1"}, start))
		}(i)
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, model.ErrSlotConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || conflicts != 1 {
		t.Fatalf("got %d successes and %d conflicts, want exactly 1 and 1", successes, conflicts)
	}
	if store.count() != 1 {
		t.Fatalf("store has %d reservations, want 1", store.count())
	}
}

func TestAdmitBookingStoreFailures(t *testing.T) {
	t.Run("catalog down", func(t *testing.T) {
		svc, catalog, store := newFixture()
		catalog.err = errors.New("connection refused")
		_, err := svc.AdmitBooking(context.Background(), req("b1", []string{"s1"}, at(10, 0)))
		if !errors.Is(err, model.ErrStoreUnavailable) {
			t.Errorf("err = %v, want ErrStoreUnavailable", err)
		}
		if store.count() != 0 {
			t.Errorf("store has %d reservations, want 0", store.count())
		}
	})

	t.Run("overlap query down", func(t *testing.T) {
		svc, _, store := newFixture()
		store.findErr = errors.New("connection refused")
		_, err := svc.AdmitBooking(context.Background(), req("b1", []string{"s1"}, at(10, 0)))
		if !errors.Is(err, model.ErrStoreUnavailable) {
			t.Errorf("err = %v, want ErrStoreUnavailable", err)
		}
	})

	t.Run("insert down", func(t *testing.T) {
		svc, _, store := newFixture()
		store.createErr = errors.New("connection refused")
		_, err := svc.AdmitBooking(context.Background(), req("b1", []string{"s1"}, at(10, 0)))
		if !errors.Is(err, model.ErrStoreUnavailable) {
			t.Errorf("err = %v, want ErrStoreUnavailable", err)
		}
	})
}

func TestListOperationsRequireBusinessID(t *testing.T) {
	svc, _, _ := newFixture()
	ctx := context.Background()

	if _, err := svc.ListServices(ctx, " "); !errors.Is(err, model.ErrMissingField) {
		t.Errorf("ListServices err = %v, want ErrMissingField", err)
	}
	if _, err := svc.ListBookings(ctx, ""); !errors.Is(err, model.ErrMissingField) {
		t.Errorf("ListBookings err = %v, want ErrMissingField", err)
	}
}

func TestListBookings(t *testing.T) {
	svc, _, _ := newFixture()
	ctx := context.Background()

	if _, err := svc.AdmitBooking(ctx, req("b1", []string{"s1"}, at(10, 0))); err != nil {
		t.Fatalf("admission: %v", err)
	}
	bookings, err := svc.ListBookings(ctx, "b1")
	if err != nil {
		t.Fatalf("ListBookings: %v", err)
	}
	if len(bookings) != 1 {
		t.Fatalf("got %d bookings, want 1", len(bookings))
	}
	other, err := svc.ListBookings(ctx, "b2")
	if err != nil {
		t.Fatalf("ListBookings(b2): %v", err)
	}
	if len(other) != 0 {
		t.Errorf("b2 sees %d of b1's bookings", len(other))
	}
}
