// Package repository implements all database queries for the scheduling
// backend. It uses pgx directly (no ORM) for transparency and performance.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopcal/backend/internal/model"
)

// pgErrExclusionViolation is SQLSTATE 23P01, raised when an insert collides
// with the bookings_no_overlap exclusion constraint.
const pgErrExclusionViolation = "23P01"

// translateConflict maps a constraint-level booking collision to the domain
// slot-conflict error; everything else passes through unchanged.
func translateConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgErrExclusionViolation {
		return model.ErrSlotConflict
	}
	return err
}

// BusinessRepository handles persistence for businesses.
type BusinessRepository struct {
	db *pgxpool.Pool
}

// NewBusinessRepository constructs a BusinessRepository.
func NewBusinessRepository(db *pgxpool.Pool) *BusinessRepository {
	return &BusinessRepository{db: db}
}

// List returns all businesses ordered by creation time.
func (r *BusinessRepository) List(ctx context.Context) ([]model.Business, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, created_at
		 FROM businesses
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list businesses: %w", err)
	}
	defer rows.Close()

	var businesses []model.Business
	for rows.Next() {
		var b model.Business
		if err := rows.Scan(&b.ID, &b.Name, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan business: %w", err)
		}
		businesses = append(businesses, b)
	}
	return businesses, rows.Err()
}

// ServiceRepository is the read-only service catalog.
type ServiceRepository struct {
	db *pgxpool.Pool
}

// NewServiceRepository constructs a ServiceRepository.
func NewServiceRepository(db *pgxpool.Pool) *ServiceRepository {
	return &ServiceRepository{db: db}
}

// ListByBusiness returns all services offered by a business.
func (r *ServiceRepository) ListByBusiness(ctx context.Context, businessID string) ([]model.Service, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, business_id, name, duration_minutes, created_at
		 FROM services
		 WHERE business_id = $1
		 ORDER BY created_at ASC`,
		businessID,
	)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var services []model.Service
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.BusinessID, &s.Name, &s.DurationMinutes, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

// GetByIDs returns the services matching the given ids, scoped to the
// business. Ids that do not exist, or belong to another business, are simply
// absent from the result; the caller decides whether that is an error.
func (r *ServiceRepository) GetByIDs(ctx context.Context, businessID string, ids []string) ([]model.Service, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, business_id, name, duration_minutes, created_at
		 FROM services
		 WHERE business_id = $1 AND id = ANY($2)`,
		businessID, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("get services by id: %w", err)
	}
	defer rows.Close()

	var services []model.Service
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.BusinessID, &s.Name, &s.DurationMinutes, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

// ReservationRepository handles persistence for bookings.
type ReservationRepository struct {
	db *pgxpool.Pool
}

// NewReservationRepository constructs a ReservationRepository.
func NewReservationRepository(db *pgxpool.Pool) *ReservationRepository {
	return &ReservationRepository{db: db}
}

// ListByBusiness returns all bookings for a business ordered by start time.
func (r *ReservationRepository) ListByBusiness(ctx context.Context, businessID string) ([]model.Reservation, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, business_id, customer_name, service_ids, start_time, end_time, created_at
		 FROM bookings
		 WHERE business_id = $1
		 ORDER BY start_time ASC`,
		businessID,
	)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()
	return scanReservations(rows)
}

// FindOverlapping returns the bookings of a business whose [start_time,
// end_time) interval intersects [start, end). The predicate is a conjunction
// of both bounds: existing.start < end AND existing.end > start.
func (r *ReservationRepository) FindOverlapping(ctx context.Context, businessID string, start, end time.Time) ([]model.Reservation, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, business_id, customer_name, service_ids, start_time, end_time, created_at
		 FROM bookings
		 WHERE business_id = $1
		   AND start_time < $3
		   AND end_time > $2`,
		businessID, start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("find overlapping bookings: %w", err)
	}
	defer rows.Close()
	return scanReservations(rows)
}

// Create persists a booking, guaranteeing that no overlapping booking for the
// same business can be admitted concurrently.
//
// A plain read-then-insert has a window between the overlap check and the
// insert during which a second request can pass its own check; both would
// then persist. Create closes that window in two layers:
//
//  1. The transaction takes a per-business advisory lock
//     (pg_advisory_xact_lock over a hash of the business id) before
//     re-checking for overlaps, serialising concurrent admissions for the
//     same business. Different businesses hash to different keys and never
//     block each other.
//  2. The bookings_no_overlap exclusion constraint makes the insert itself
//     fail atomically on collision, so even a writer that bypasses the lock
//     cannot double-book. Both layers surface as ErrSlotConflict.
func (r *ReservationRepository) Create(ctx context.Context, res *model.Reservation) (*model.Reservation, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Serialise admissions per business. The lock is released at commit or
	// rollback; hashtext keeps the key stable for a given business id.
	if _, err = tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`,
		res.BusinessID,
	); err != nil {
		return nil, fmt.Errorf("acquire business lock: %w", err)
	}

	var conflicts int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM bookings
		 WHERE business_id = $1
		   AND start_time < $3
		   AND end_time > $2`,
		res.BusinessID, res.StartTime, res.EndTime,
	).Scan(&conflicts)
	if err != nil {
		return nil, fmt.Errorf("check overlap: %w", err)
	}
	if conflicts > 0 {
		err = model.ErrSlotConflict
		return nil, err
	}

	created := &model.Reservation{
		ID:           uuid.New().String(),
		BusinessID:   res.BusinessID,
		CustomerName: res.CustomerName,
		ServiceIDs:   res.ServiceIDs,
		StartTime:    res.StartTime,
		EndTime:      res.EndTime,
		CreatedAt:    time.Now().UTC(),
	}
	if _, err = tx.Exec(ctx,
		`INSERT INTO bookings (id, business_id, customer_name, service_ids, start_time, end_time, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		created.ID, created.BusinessID, created.CustomerName, created.ServiceIDs,
		created.StartTime, created.EndTime, created.CreatedAt,
	); err != nil {
		err = translateConflict(err)
		if errors.Is(err, model.ErrSlotConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("insert booking: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return created, nil
}

func scanReservations(rows pgx.Rows) ([]model.Reservation, error) {
	var reservations []model.Reservation
	for rows.Next() {
		var res model.Reservation
		if err := rows.Scan(
			&res.ID, &res.BusinessID, &res.CustomerName, &res.ServiceIDs,
			&res.StartTime, &res.EndTime, &res.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		reservations = append(reservations, res)
	}
	return reservations, rows.Err()
}
