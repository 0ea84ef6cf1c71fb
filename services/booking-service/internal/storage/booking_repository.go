package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/nabil-hossain/ridepulse/libs/db"
	"github.com/nabil-hossain/ridepulse/services/booking-service/internal/model"
)

var ErrNotFound = errors.New("booking not found")

type BookingRepository struct {
	pool *db.Pool
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) Create(ctx context.Context, tx pgx.Tx, b *model.Booking) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO bookings (user_id, pickup_address, dropoff_address, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, b.UserID, b.PickupAddress, b.DropoffAddress, string(b.Status)).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *BookingRepository) Get(ctx context.Context, bookingID string) (model.Booking, error) {
	var b model.Booking
	var status string
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, COALESCE(ride_id, ''), pickup_address, dropoff_address, status, created_at, updated_at
		FROM bookings
		WHERE id = $1
	`, bookingID).Scan(&b.ID, &b.UserID, &b.RideID, &b.PickupAddress, &b.DropoffAddress, &status, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Booking{}, ErrNotFound
	}
	if err != nil {
		return model.Booking{}, err
	}
	b.Status = model.Status(status)
	return b, nil
}

// AssignDriver performs the guarded PAID/MATCHING -> DRIVER_ASSIGNED
// transition. It returns the status the booking held before the update and
// whether a row was affected; zero affected rows means the event was already
// applied or superseded, which callers treat as a clean no-op.
func (r *BookingRepository) AssignDriver(ctx context.Context, tx pgx.Tx, bookingID, rideID string) (model.Status, bool, error) {
	return r.transition(ctx, tx, bookingID, model.StatusDriverAssigned, model.DriverAssignablePredecessors, `
		WITH current AS (
			SELECT id, status FROM bookings WHERE id = $1 FOR UPDATE
		)
		UPDATE bookings b
		SET status = $2, ride_id = $4, updated_at = now()
		FROM current c
		WHERE b.id = c.id AND c.status = ANY($3)
		RETURNING c.status
	`, rideID)
}

// Cancel moves a booking to CANCELLED when it is still in an early state.
func (r *BookingRepository) Cancel(ctx context.Context, tx pgx.Tx, bookingID string) (model.Status, bool, error) {
	return r.transition(ctx, tx, bookingID, model.StatusCancelled, model.CancellablePredecessors, `
		WITH current AS (
			SELECT id, status FROM bookings WHERE id = $1 FOR UPDATE
		)
		UPDATE bookings b
		SET status = $2, updated_at = now()
		FROM current c
		WHERE b.id = c.id AND c.status = ANY($3)
		RETURNING c.status
	`)
}

func (r *BookingRepository) transition(ctx context.Context, tx pgx.Tx, bookingID string, to model.Status, from []model.Status, sql string, extraArgs ...any) (model.Status, bool, error) {
	args := append([]any{bookingID, string(to), statusStrings(from)}, extraArgs...)
	var previous string
	err := tx.QueryRow(ctx, sql, args...).Scan(&previous)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return model.Status(previous), true, nil
}

// AppendStatusChange writes one ledger entry. The ledger is append-only;
// nothing in the service updates or deletes these rows.
func (r *BookingRepository) AppendStatusChange(ctx context.Context, tx pgx.Tx, change model.StatusChange) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO booking_status_history (booking_id, from_status, to_status, reason)
		VALUES ($1, $2, $3, $4)
	`, change.BookingID, string(change.FromStatus), string(change.ToStatus), change.Reason)
	return err
}

func (r *BookingRepository) ListStatusChanges(ctx context.Context, bookingID string) ([]model.StatusChange, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, booking_id, from_status, to_status, COALESCE(reason, ''), created_at
		FROM booking_status_history
		WHERE booking_id = $1
		ORDER BY id
	`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []model.StatusChange
	for rows.Next() {
		var c model.StatusChange
		var from, to string
		if err := rows.Scan(&c.ID, &c.BookingID, &from, &to, &c.Reason, &c.At); err != nil {
			return nil, err
		}
		c.FromStatus = model.Status(from)
		c.ToStatus = model.Status(to)
		changes = append(changes, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return changes, nil
}

func statusStrings(ss []model.Status) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}
