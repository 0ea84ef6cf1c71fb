package outbox

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nabil-hossain/ridepulse/events"
	"github.com/nabil-hossain/ridepulse/libs/db"
	otelx "github.com/nabil-hossain/ridepulse/libs/otel"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stages an event on the caller's transaction so the row commits or
// rolls back together with the business state change.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, evt Event) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, aggregate_type, aggregate_id, event_type, payload, status, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, 'NEW', $6, $7)
	`, uuid.NewString(), evt.AggregateType, evt.AggregateID, string(evt.EventType), evt.Payload, traceparent, tracestate)
	return err
}

// ClaimBatch atomically flips up to limit NEW rows to SENDING and returns
// them, oldest first. Rows locked by a concurrent claimant are skipped, never
// waited on, so two publisher instances can not claim the same row.
func (r *Repository) ClaimBatch(ctx context.Context, limit int) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE outbox_events
		SET status = 'SENDING'
		WHERE id IN (
			SELECT id
			FROM outbox_events
			WHERE status = 'NEW'
			ORDER BY created_at, id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, event_id, aggregate_type, aggregate_id, event_type, payload, status, traceparent, tracestate, created_at, sent_at
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rcd Record
		var eventType, status string
		if err := rows.Scan(&rcd.ID, &rcd.EventID, &rcd.AggregateType, &rcd.AggregateID, &eventType, &rcd.Payload, &status, &rcd.Traceparent, &rcd.Tracestate, &rcd.CreatedAt, &rcd.SentAt); err != nil {
			return nil, err
		}
		rcd.EventType = events.Type(eventType)
		rcd.Status = Status(status)
		records = append(records, rcd)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// MarkSent finalizes a claimed row. The status guard keeps the transition
// monotonic: a row that already left SENDING is never touched.
func (r *Repository) MarkSent(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox_events
		SET status = 'SENT', sent_at = now()
		WHERE id = $1 AND status = 'SENDING'
	`, id)
	return err
}

// MarkFailed parks a claimed row as FAILED and records the reason in the
// payload document. There is no automatic retry for FAILED rows; re-queueing
// is an operator action.
func (r *Repository) MarkFailed(ctx context.Context, id int64, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox_events
		SET status = 'FAILED',
			payload = jsonb_set(payload, '{publishError}', to_jsonb($2::text))
		WHERE id = $1 AND status = 'SENDING'
	`, id, reason)
	return err
}
