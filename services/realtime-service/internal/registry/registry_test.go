package registry

import (
	"log/slog"
	"testing"

	"github.com/nabil-hossain/ridepulse/libs/auth"
)

func newTestRegistry() *Registry {
	return New(slog.New(slog.DiscardHandler))
}

func TestBroadcastReachesAllConnectionsForIdentity(t *testing.T) {
	r := newTestRegistry()
	driver := auth.Identity{Role: auth.RoleDriver, ID: "D1"}
	other := auth.Identity{Role: auth.RoleDriver, ID: "D2"}

	s1 := r.Subscribe(driver)
	s2 := r.Subscribe(driver)
	s3 := r.Subscribe(other)

	n := r.Broadcast(driver, Event{Name: "ride_offer_cancelled", Data: []byte(`{}`)})
	if n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}
	for _, sub := range []*Subscriber{s1, s2} {
		select {
		case ev := <-sub.Events():
			if ev.Name != "ride_offer_cancelled" {
				t.Fatalf("unexpected event name %q", ev.Name)
			}
		default:
			t.Fatal("expected event buffered for driver connection")
		}
	}
	select {
	case <-s3.Events():
		t.Fatal("event leaked to another identity")
	default:
	}
}

func TestBroadcastWithoutConnectionsIsNoop(t *testing.T) {
	r := newTestRegistry()
	n := r.Broadcast(auth.Identity{Role: auth.RoleDriver, ID: "nobody"}, Event{Name: "x"})
	if n != 0 {
		t.Fatalf("expected 0 deliveries, got %d", n)
	}
}

func TestUnsubscribeDropsEmptyIdentityEntry(t *testing.T) {
	r := newTestRegistry()
	user := auth.Identity{Role: auth.RoleUser, ID: "U1"}

	s1 := r.Subscribe(user)
	s2 := r.Subscribe(user)
	if got := r.ConnectionsFor(user); got != 2 {
		t.Fatalf("expected 2 connections, got %d", got)
	}

	r.Unsubscribe(s1)
	if got := r.ConnectionsFor(user); got != 1 {
		t.Fatalf("expected 1 connection, got %d", got)
	}

	r.Unsubscribe(s2)
	identities, connections := r.Stats()
	if identities != 0 || connections != 0 {
		t.Fatalf("expected empty registry, got %d identities / %d connections", identities, connections)
	}

	// Second removal of the same subscriber must not panic.
	r.Unsubscribe(s2)
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	r := newTestRegistry()
	r.buffer = 1
	user := auth.Identity{Role: auth.RoleUser, ID: "U1"}

	sub := r.Subscribe(user)
	if n := r.Broadcast(user, Event{Name: "first"}); n != 1 {
		t.Fatalf("expected first event delivered, got %d", n)
	}
	// Buffer full now; the next broadcast drops the connection.
	if n := r.Broadcast(user, Event{Name: "second"}); n != 0 {
		t.Fatalf("expected second event dropped, got %d deliveries", n)
	}
	if got := r.ConnectionsFor(user); got != 0 {
		t.Fatalf("expected slow connection removed, got %d", got)
	}

	// Channel drains the buffered event and then reports closed.
	if ev, ok := <-sub.Events(); !ok || ev.Name != "first" {
		t.Fatalf("expected buffered first event, got %v/%v", ev, ok)
	}
	if _, ok := <-sub.Events(); ok {
		t.Fatal("expected closed channel after drop")
	}
}
