package router

import (
	"github.com/nabil-hossain/ridepulse/events"
	"github.com/nabil-hossain/ridepulse/libs/auth"
)

// Delivery names one recipient of a routed event and the client-facing
// event name it is pushed under.
type Delivery struct {
	To   auth.Identity
	Name string
	Data []byte
}

// Route maps a broker envelope onto zero or more deliveries. The switch
// covers the closed event set; anything else routes nowhere, which is the
// defined default, not an error. Recipients with no open connections simply
// receive nothing.
func Route(env events.Envelope) ([]Delivery, error) {
	switch env.EventType {
	case events.TypeRideAccepted:
		var p events.RideAccepted
		if err := env.DecodePayload(&p); err != nil {
			return nil, err
		}
		var ds []Delivery
		if p.DriverID != "" {
			ds = append(ds, toDriver(p.DriverID, "ride_accepted", env.Payload))
		}
		if p.UserID != "" {
			ds = append(ds, toUser(p.UserID, "driver_assigned", env.Payload))
		}
		return ds, nil

	case events.TypeRideOfferCancelled:
		var p events.RideOfferCancelled
		if err := env.DecodePayload(&p); err != nil {
			return nil, err
		}
		if p.DriverID == "" {
			return nil, nil
		}
		return []Delivery{toDriver(p.DriverID, "ride_offer_cancelled", env.Payload)}, nil

	case events.TypeRideStarted:
		return rideProgress(env, "ride_started")

	case events.TypeRideCompleted:
		return rideProgress(env, "ride_completed")

	case events.TypeBookingCancelled:
		var p events.BookingCancelled
		if err := env.DecodePayload(&p); err != nil {
			return nil, err
		}
		var ds []Delivery
		if p.UserID != "" {
			ds = append(ds, toUser(p.UserID, "booking_cancelled", env.Payload))
		}
		if p.DriverID != "" {
			ds = append(ds, toDriver(p.DriverID, "booking_cancelled", env.Payload))
		}
		return ds, nil

	default:
		return nil, nil
	}
}

func rideProgress(env events.Envelope, name string) ([]Delivery, error) {
	var p events.RideProgress
	if err := env.DecodePayload(&p); err != nil {
		return nil, err
	}
	if p.UserID == "" {
		return nil, nil
	}
	return []Delivery{toUser(p.UserID, name, env.Payload)}, nil
}

func toUser(id, name string, data []byte) Delivery {
	return Delivery{To: auth.Identity{Role: auth.RoleUser, ID: id}, Name: name, Data: data}
}

func toDriver(id, name string, data []byte) Delivery {
	return Delivery{To: auth.Identity{Role: auth.RoleDriver, ID: id}, Name: name, Data: data}
}
