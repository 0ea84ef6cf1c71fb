package updater

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/nabil-hossain/ridepulse/events"
	"github.com/nabil-hossain/ridepulse/libs/db"
	"github.com/nabil-hossain/ridepulse/services/booking-service/internal/model"
	"github.com/nabil-hossain/ridepulse/services/booking-service/internal/storage"
)

// Updater applies RIDE_ACCEPTED events to booking state. The conditional
// update inside Apply is the idempotency guard: redelivering the same event,
// or delivering it after the transition already happened through another
// path, affects zero rows and changes nothing.
type Updater struct {
	pool   *db.Pool
	repo   *storage.BookingRepository
	logger *slog.Logger
}

func New(pool *db.Pool, repo *storage.BookingRepository, logger *slog.Logger) *Updater {
	return &Updater{pool: pool, repo: repo, logger: logger}
}

// Apply handles one envelope from the broker. Event types this service does
// not care about are filtered, not errors. A returned error means the
// transaction rolled back; broker redelivery governs the retry.
func (u *Updater) Apply(ctx context.Context, env events.Envelope) error {
	if env.EventType != events.TypeRideAccepted {
		return nil
	}

	var p events.RideAccepted
	if err := env.DecodePayload(&p); err != nil {
		u.logger.Warn("dropping malformed ride accepted payload", "event_id", env.EventID, "err", err)
		return nil
	}
	if p.BookingID == "" || p.RideID == "" {
		u.logger.Warn("dropping ride accepted event without booking/ride id", "event_id", env.EventID)
		return nil
	}

	return u.pool.WithTx(ctx, func(tx pgx.Tx) error {
		from, applied, err := u.repo.AssignDriver(ctx, tx, p.BookingID, p.RideID)
		if err != nil {
			return err
		}
		if !applied {
			u.logger.Info("ride accepted already applied or not applicable",
				"event_id", env.EventID, "booking_id", p.BookingID)
			return nil
		}
		if err := u.repo.AppendStatusChange(ctx, tx, model.StatusChange{
			BookingID:  p.BookingID,
			FromStatus: from,
			ToStatus:   model.StatusDriverAssigned,
			Reason:     fmt.Sprintf("ride %s accepted by driver %s", p.RideID, p.DriverID),
		}); err != nil {
			return err
		}
		u.logger.Info("booking assigned to driver",
			"booking_id", p.BookingID, "ride_id", p.RideID, "driver_id", p.DriverID, "from", string(from))
		return nil
	})
}
