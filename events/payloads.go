package events

// Payload documents for each event kind. Field names match the JSON the
// rest of the platform produces.

type RideRequested struct {
	BookingID      string `json:"bookingId"`
	UserID         string `json:"userId"`
	PickupAddress  string `json:"pickupAddress,omitempty"`
	DropoffAddress string `json:"dropoffAddress,omitempty"`
}

type RideAccepted struct {
	BookingID string `json:"bookingId"`
	RideID    string `json:"rideId"`
	DriverID  string `json:"driverId"`
	UserID    string `json:"userId,omitempty"`
}

type RideOfferCancelled struct {
	BookingID string `json:"bookingId"`
	DriverID  string `json:"driverId"`
	Reason    string `json:"reason,omitempty"`
}

// RideProgress covers RIDE_STARTED and RIDE_COMPLETED, which carry the
// same fields.
type RideProgress struct {
	BookingID string `json:"bookingId"`
	RideID    string `json:"rideId"`
	DriverID  string `json:"driverId,omitempty"`
	UserID    string `json:"userId"`
}

type BookingCancelled struct {
	BookingID string `json:"bookingId"`
	UserID    string `json:"userId"`
	DriverID  string `json:"driverId,omitempty"`
	Reason    string `json:"reason,omitempty"`
}
