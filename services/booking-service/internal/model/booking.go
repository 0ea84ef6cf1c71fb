package model

import "time"

// Status of a booking. Only the PAID/MATCHING -> DRIVER_ASSIGNED edge is
// driven here; the remaining edges belong to other services and are merely
// observed on the event stream.
type Status string

const (
	StatusRequested      Status = "REQUESTED"
	StatusSearching      Status = "SEARCHING"
	StatusPaid           Status = "PAID"
	StatusMatching       Status = "MATCHING"
	StatusDriverAssigned Status = "DRIVER_ASSIGNED"
	StatusPickedUp       Status = "PICKED_UP"
	StatusInProgress     Status = "IN_PROGRESS"
	StatusCompleted      Status = "COMPLETED"
	StatusCancelled      Status = "CANCELLED"
	StatusExpired        Status = "EXPIRED"
)

// DriverAssignablePredecessors is the whitelist guarding the
// DRIVER_ASSIGNED transition. An event arriving against any other status is
// a no-op: it was already applied, or superseded.
var DriverAssignablePredecessors = []Status{StatusPaid, StatusMatching}

func CanAssignDriver(s Status) bool {
	for _, p := range DriverAssignablePredecessors {
		if s == p {
			return true
		}
	}
	return false
}

// CancellablePredecessors lists the early states a rider may cancel from.
var CancellablePredecessors = []Status{StatusRequested, StatusSearching, StatusPaid, StatusMatching}

func CanCancel(s Status) bool {
	for _, p := range CancellablePredecessors {
		if s == p {
			return true
		}
	}
	return false
}

type Booking struct {
	ID             string
	UserID         string
	RideID         string
	PickupAddress  string
	DropoffAddress string
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// StatusChange is one row of the append-only transition ledger. Entries are
// written only when a guarded transition actually applies, and never mutated.
type StatusChange struct {
	ID         int64
	BookingID  string
	FromStatus Status
	ToStatus   Status
	Reason     string
	At         time.Time
}
