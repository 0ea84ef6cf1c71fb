package events

import (
	"encoding/json"
	"errors"
	"time"
)

// Type enumerates the domain event kinds published on the shared topic.
// The set is closed: consumers switch over it and ignore everything else.
type Type string

const (
	TypeRideRequested      Type = "RIDE_REQUESTED"
	TypeRideAccepted       Type = "RIDE_ACCEPTED"
	TypeRideOfferCancelled Type = "RIDE_OFFER_CANCELLED"
	TypeRideStarted        Type = "RIDE_STARTED"
	TypeRideCompleted      Type = "RIDE_COMPLETED"
	TypeBookingCancelled   Type = "BOOKING_CANCELLED"
)

func Known(t Type) bool {
	switch t {
	case TypeRideRequested, TypeRideAccepted, TypeRideOfferCancelled,
		TypeRideStarted, TypeRideCompleted, TypeBookingCancelled:
		return true
	}
	return false
}

var ErrInvalidEnvelope = errors.New("invalid event envelope")

// Envelope is the wire form of a domain event. AggregateID doubles as the
// broker partition key, so all events for one aggregate share a partition.
// Envelopes are immutable after publish.
type Envelope struct {
	EventID       string          `json:"eventId"`
	EventType     Type            `json:"eventType"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	OccurredAt    time.Time       `json:"occurredAt"`
	Payload       json.RawMessage `json:"payload"`
}

func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	if env.EventID == "" || env.EventType == "" || env.AggregateID == "" {
		return Envelope{}, ErrInvalidEnvelope
	}
	return env, nil
}

func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

func (e Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return ErrInvalidEnvelope
	}
	return json.Unmarshal(e.Payload, v)
}
