package model

import "testing"

func TestCanAssignDriver(t *testing.T) {
	for _, s := range []Status{StatusPaid, StatusMatching} {
		if !CanAssignDriver(s) {
			t.Fatalf("expected %q to allow driver assignment", s)
		}
	}
	for _, s := range []Status{StatusRequested, StatusDriverAssigned, StatusCancelled, StatusCompleted, StatusExpired} {
		if CanAssignDriver(s) {
			t.Fatalf("expected %q to reject driver assignment", s)
		}
	}
}

func TestCanCancel(t *testing.T) {
	for _, s := range []Status{StatusRequested, StatusSearching, StatusPaid, StatusMatching} {
		if !CanCancel(s) {
			t.Fatalf("expected %q to be cancellable", s)
		}
	}
	for _, s := range []Status{StatusDriverAssigned, StatusInProgress, StatusCompleted, StatusCancelled} {
		if CanCancel(s) {
			t.Fatalf("expected %q to be non-cancellable", s)
		}
	}
}
