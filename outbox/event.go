package outbox

import (
	"time"

	"github.com/nabil-hossain/ridepulse/events"
)

// Status of an outbox row. Rows only move forward:
// NEW -> SENDING -> SENT or FAILED.
type Status string

const (
	StatusNew     Status = "NEW"
	StatusSending Status = "SENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

// Event is what a business-transaction writer stages, inside the same
// transaction as the state change it describes.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     events.Type
	Payload       []byte
}

// Record is a stored outbox row. Only the publisher mutates it after insert.
type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     events.Type
	Payload       []byte
	Status        Status
	Traceparent   string
	Tracestate    string
	CreatedAt     time.Time
	SentAt        *time.Time
}

// Envelope builds the wire form published for this row.
func (r Record) Envelope() events.Envelope {
	return events.Envelope{
		EventID:       r.EventID,
		EventType:     r.EventType,
		AggregateType: r.AggregateType,
		AggregateID:   r.AggregateID,
		OccurredAt:    r.CreatedAt.UTC(),
		Payload:       r.Payload,
	}
}
