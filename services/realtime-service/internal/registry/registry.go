package registry

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/nabil-hossain/ridepulse/libs/auth"
)

// Event is one push message on its way to a client connection.
type Event struct {
	Name string
	Data []byte
}

// Subscriber is one live push connection for an identity. Its channel is
// closed by the registry on removal; the stream handler treats a closed
// channel as end-of-stream.
type Subscriber struct {
	ID       string
	Identity auth.Identity
	ch       chan Event
}

func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Registry holds the process-local mapping from (role, id) to open push
// connections. Nothing here is persisted: a restart empties it and clients
// re-register on reconnect. There is no backlog for events fired while an
// identity had no connection.
type Registry struct {
	mu     sync.RWMutex
	subs   map[auth.Identity]map[*Subscriber]struct{}
	buffer int
	logger *slog.Logger
}

func New(logger *slog.Logger) *Registry {
	return &Registry{
		subs:   make(map[auth.Identity]map[*Subscriber]struct{}),
		buffer: 16,
		logger: logger,
	}
}

func (r *Registry) Subscribe(id auth.Identity) *Subscriber {
	sub := &Subscriber{
		ID:       uuid.NewString(),
		Identity: id,
		ch:       make(chan Event, r.buffer),
	}

	r.mu.Lock()
	set := r.subs[id]
	if set == nil {
		set = make(map[*Subscriber]struct{})
		r.subs[id] = set
	}
	set[sub] = struct{}{}
	total := len(set)
	r.mu.Unlock()

	r.logger.Info("push connection registered",
		"connection_id", sub.ID, "role", id.Role, "recipient_id", id.ID, "connections", total)
	return sub
}

// Unsubscribe removes the connection and drops the identity entry entirely
// when it was the last one. Safe to call more than once.
func (r *Registry) Unsubscribe(sub *Subscriber) {
	r.mu.Lock()
	set, ok := r.subs[sub.Identity]
	if ok {
		if _, ok = set[sub]; ok {
			delete(set, sub)
			close(sub.ch)
			if len(set) == 0 {
				delete(r.subs, sub.Identity)
			}
		}
	}
	r.mu.Unlock()

	if ok {
		r.logger.Info("push connection removed",
			"connection_id", sub.ID, "role", sub.Identity.Role, "recipient_id", sub.Identity.ID)
	}
}

// Broadcast delivers ev to every connection registered for id and returns
// how many received it. No connections is a no-op, not an error. A
// subscriber whose buffer is full is dropped and closed; its client will
// notice the ended stream and reconnect.
//
// Sends happen under the read lock and Unsubscribe closes under the write
// lock, so a send can never race a close.
func (r *Registry) Broadcast(id auth.Identity, ev Event) int {
	r.mu.RLock()
	var delivered int
	var slow []*Subscriber
	for sub := range r.subs[id] {
		select {
		case sub.ch <- ev:
			delivered++
		default:
			slow = append(slow, sub)
		}
	}
	r.mu.RUnlock()

	for _, sub := range slow {
		r.logger.Warn("dropping slow push connection", "connection_id", sub.ID, "recipient_id", id.ID)
		r.Unsubscribe(sub)
	}
	return delivered
}

// Stats reports identity and connection counts for the stats endpoint.
func (r *Registry) Stats() (identities int, connections int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identities = len(r.subs)
	for _, set := range r.subs {
		connections += len(set)
	}
	return identities, connections
}

// ConnectionsFor reports how many connections an identity currently holds.
func (r *Registry) ConnectionsFor(id auth.Identity) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[id])
}
