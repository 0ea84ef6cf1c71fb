package outbox

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/nabil-hossain/ridepulse/events"
	"github.com/segmentio/kafka-go"
)

type fakeStore struct {
	records []Record
	sent    []int64
	failed  map[int64]string
	err     error
}

func (s *fakeStore) ClaimBatch(_ context.Context, limit int) ([]Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit > len(s.records) {
		limit = len(s.records)
	}
	claimed := s.records[:limit]
	s.records = s.records[limit:]
	return claimed, nil
}

func (s *fakeStore) MarkSent(_ context.Context, id int64) error {
	s.sent = append(s.sent, id)
	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, id int64, reason string) error {
	if s.failed == nil {
		s.failed = map[int64]string{}
	}
	s.failed[id] = reason
	return nil
}

type fakeWriter struct {
	messages []kafka.Message
	failKey  string
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		if w.failKey != "" && string(m.Key) == w.failKey {
			return errors.New("broker unreachable")
		}
		w.messages = append(w.messages, m)
	}
	return nil
}

func record(id int64, aggregateID string, typ events.Type) Record {
	return Record{
		ID:            id,
		EventID:       "evt-" + aggregateID,
		AggregateType: "booking",
		AggregateID:   aggregateID,
		EventType:     typ,
		Payload:       []byte(`{"bookingId":"` + aggregateID + `"}`),
		Status:        StatusSending,
		CreatedAt:     time.Now().UTC(),
	}
}

func testPublisher(repo store, writer messageWriter) *Publisher {
	return newPublisher(repo, writer, slog.New(slog.DiscardHandler), PublisherConfig{})
}

func TestDrainPublishesAndMarksSent(t *testing.T) {
	repo := &fakeStore{records: []Record{
		record(1, "B1", events.TypeRideRequested),
		record(2, "B2", events.TypeRideAccepted),
	}}
	writer := &fakeWriter{}

	testPublisher(repo, writer).drain(context.Background())

	if len(writer.messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(writer.messages))
	}
	if string(writer.messages[0].Key) != "B1" || string(writer.messages[1].Key) != "B2" {
		t.Fatalf("messages not keyed by aggregate id: %q %q", writer.messages[0].Key, writer.messages[1].Key)
	}
	if len(repo.sent) != 2 || len(repo.failed) != 0 {
		t.Fatalf("expected 2 sent / 0 failed, got %d / %d", len(repo.sent), len(repo.failed))
	}

	env, err := events.Decode(writer.messages[0].Value)
	if err != nil {
		t.Fatalf("published value is not a valid envelope: %v", err)
	}
	if env.EventID != "evt-B1" || env.EventType != events.TypeRideRequested {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if got := headerValue(writer.messages[0].Headers, "event_type"); got != string(events.TypeRideRequested) {
		t.Fatalf("unexpected event_type header %q", got)
	}
}

func TestPublishFailureDoesNotBlockBatch(t *testing.T) {
	repo := &fakeStore{records: []Record{
		record(1, "B1", events.TypeRideRequested),
		record(2, "B2", events.TypeRideAccepted),
		record(3, "B3", events.TypeRideCompleted),
	}}
	writer := &fakeWriter{failKey: "B2"}

	testPublisher(repo, writer).drain(context.Background())

	if len(repo.sent) != 2 {
		t.Fatalf("expected 2 rows sent, got %d", len(repo.sent))
	}
	if reason, ok := repo.failed[2]; !ok || reason == "" {
		t.Fatalf("expected row 2 failed with reason, got %v", repo.failed)
	}
	if len(writer.messages) != 2 {
		t.Fatalf("expected 2 delivered messages, got %d", len(writer.messages))
	}
}

func TestClaimErrorLeavesNothingFinalized(t *testing.T) {
	repo := &fakeStore{err: errors.New("connection refused")}
	writer := &fakeWriter{}

	testPublisher(repo, writer).drain(context.Background())

	if len(repo.sent) != 0 || len(repo.failed) != 0 {
		t.Fatalf("expected no finalized rows, got sent=%v failed=%v", repo.sent, repo.failed)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	repo := &fakeStore{}
	p := newPublisher(repo, &fakeWriter{}, slog.New(slog.DiscardHandler), PublisherConfig{PollEvery: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop after cancel")
	}
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
