package router

import (
	"encoding/json"
	"testing"

	"github.com/nabil-hossain/ridepulse/events"
	"github.com/nabil-hossain/ridepulse/libs/auth"
)

func envelope(t *testing.T, typ events.Type, payload any) events.Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return events.Envelope{
		EventID:       "evt-1",
		EventType:     typ,
		AggregateType: "booking",
		AggregateID:   "B1",
		Payload:       data,
	}
}

func TestRouteRideAcceptedFansOutToDriverAndUser(t *testing.T) {
	env := envelope(t, events.TypeRideAccepted, events.RideAccepted{
		BookingID: "B1", RideID: "R1", DriverID: "D1", UserID: "U1",
	})

	ds, err := Route(env)
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if len(ds) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(ds))
	}
	if ds[0].To != (auth.Identity{Role: auth.RoleDriver, ID: "D1"}) || ds[0].Name != "ride_accepted" {
		t.Fatalf("unexpected driver delivery: %+v", ds[0])
	}
	if ds[1].To != (auth.Identity{Role: auth.RoleUser, ID: "U1"}) || ds[1].Name != "driver_assigned" {
		t.Fatalf("unexpected user delivery: %+v", ds[1])
	}
}

func TestRouteRideOfferCancelledTargetsDriverOnly(t *testing.T) {
	env := envelope(t, events.TypeRideOfferCancelled, events.RideOfferCancelled{
		BookingID: "B1", DriverID: "D7", Reason: "rider cancelled",
	})

	ds, err := Route(env)
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if len(ds) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(ds))
	}
	if ds[0].To.Role != auth.RoleDriver || ds[0].To.ID != "D7" {
		t.Fatalf("unexpected recipient: %+v", ds[0].To)
	}
}

func TestRouteProgressEventsTargetUser(t *testing.T) {
	for typ, name := range map[events.Type]string{
		events.TypeRideStarted:   "ride_started",
		events.TypeRideCompleted: "ride_completed",
	} {
		env := envelope(t, typ, events.RideProgress{BookingID: "B1", RideID: "R1", UserID: "U2"})
		ds, err := Route(env)
		if err != nil {
			t.Fatalf("Route(%s) failed: %v", typ, err)
		}
		if len(ds) != 1 || ds[0].To.Role != auth.RoleUser || ds[0].To.ID != "U2" || ds[0].Name != name {
			t.Fatalf("unexpected deliveries for %s: %+v", typ, ds)
		}
	}
}

func TestRouteUnknownEventTypeRoutesNowhere(t *testing.T) {
	env := envelope(t, "DRIVER_SNEEZED", map[string]string{"driverId": "D1"})
	ds, err := Route(env)
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if len(ds) != 0 {
		t.Fatalf("expected no deliveries, got %+v", ds)
	}
}

func TestRouteMalformedPayloadIsError(t *testing.T) {
	env := events.Envelope{
		EventID:   "evt-1",
		EventType: events.TypeRideAccepted,
		Payload:   []byte(`"not an object"`),
	}
	if _, err := Route(env); err == nil {
		t.Fatal("expected decode error")
	}
}
