package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the Postgres error code raised by the partial unique
// index on (business_id, scheduled_time) WHERE status != 'cancelled'.
const uniqueViolation = "23505"

type pgDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository persists bookings to PostgreSQL.
type PostgresRepository struct {
	db pgDB
}

// NewPostgresRepository creates a repository backed by a pgx pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("bookings: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

// NewPostgresRepositoryWithDB allows injecting pgxmock in tests.
func NewPostgresRepositoryWithDB(db pgDB) *PostgresRepository {
	if db == nil {
		panic("bookings: db required")
	}
	return &PostgresRepository{db: db}
}

var _ Repository = (*PostgresRepository)(nil)

const upsertBookingSQL = `
	INSERT INTO bookings (
		id, business_id, customer_id, scheduled_time, status,
		service_type, notes, created_at, updated_at
	)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	ON CONFLICT (id) DO UPDATE
	SET status = EXCLUDED.status,
	    scheduled_time = EXCLUDED.scheduled_time,
	    service_type = EXCLUDED.service_type,
	    notes = EXCLUDED.notes,
	    updated_at = EXCLUDED.updated_at
`

// Save inserts or updates the booking row. The partial unique index on the
// slot enforces the conflict contract even across processes.
func (r *PostgresRepository) Save(ctx context.Context, booking *Booking) error {
	_, err := r.db.Exec(ctx, upsertBookingSQL,
		booking.ID,
		booking.BusinessID,
		booking.CustomerID,
		booking.ScheduledTime.UTC(),
		string(booking.Status),
		booking.ServiceType,
		booking.Notes,
		booking.CreatedAt.UTC(),
		booking.UpdatedAt.UTC(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrSlotConflict
		}
		return fmt.Errorf("bookings: save: %w", err)
	}
	return nil
}

const selectBookingSQL = `
	SELECT id, business_id, customer_id, scheduled_time, status,
	       service_type, notes, created_at, updated_at
	FROM bookings
`

// FindByID loads a single booking.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*Booking, error) {
	row := r.db.QueryRow(ctx, selectBookingSQL+" WHERE id = $1", id)
	booking, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("bookings: find by id: %w", err)
	}
	return booking, nil
}

// FindByCustomerID returns the customer's bookings, oldest first.
func (r *PostgresRepository) FindByCustomerID(ctx context.Context, customerID string) ([]*Booking, error) {
	rows, err := r.db.Query(ctx, selectBookingSQL+" WHERE customer_id = $1 ORDER BY scheduled_time", customerID)
	if err != nil {
		return nil, fmt.Errorf("bookings: find by customer: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

// FindByBusinessID returns the business's bookings, oldest first.
func (r *PostgresRepository) FindByBusinessID(ctx context.Context, businessID string) ([]*Booking, error) {
	rows, err := r.db.Query(ctx, selectBookingSQL+" WHERE business_id = $1 ORDER BY scheduled_time", businessID)
	if err != nil {
		return nil, fmt.Errorf("bookings: find by business: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

// FindByBusinessDate returns non-cancelled bookings on the given UTC day.
func (r *PostgresRepository) FindByBusinessDate(ctx context.Context, businessID, date string) ([]*Booking, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, fmt.Errorf("bookings: invalid date %q: %w", date, err)
	}
	rows, err := r.db.Query(ctx, selectBookingSQL+`
		WHERE business_id = $1
		  AND status != 'cancelled'
		  AND scheduled_time >= $2
		  AND scheduled_time < $3
		ORDER BY scheduled_time`,
		businessID, day, day.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("bookings: find by business date: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var status string
	if err := row.Scan(
		&b.ID, &b.BusinessID, &b.CustomerID, &b.ScheduledTime, &status,
		&b.ServiceType, &b.Notes, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	b.Status = Status(status)
	return &b, nil
}

func scanBookings(rows pgx.Rows) ([]*Booking, error) {
	var out []*Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("bookings: scan row: %w", err)
		}
		out = append(out, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bookings: iterate rows: %w", err)
	}
	return out, nil
}
