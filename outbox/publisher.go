package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/nabil-hossain/ridepulse/libs/kafkax"
	otelx "github.com/nabil-hossain/ridepulse/libs/otel"
	"github.com/segmentio/kafka-go"
)

// store is the slice of Repository the publisher needs.
type store interface {
	ClaimBatch(ctx context.Context, limit int) ([]Record, error)
	MarkSent(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, reason string) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Publisher struct {
	repo      store
	writer    messageWriter
	logger    *slog.Logger
	pollEvery time.Duration
	batchSize int
}

type PublisherConfig struct {
	Brokers   string
	Topic     string
	PollEvery time.Duration
	BatchSize int
}

func NewPublisher(repo *Repository, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	var writer messageWriter
	if len(kafkax.SplitBrokers(cfg.Brokers)) > 0 {
		writer = kafkax.NewWriter(cfg.Brokers, cfg.Topic)
	}
	return newPublisher(repo, writer, logger, cfg)
}

func newPublisher(repo store, writer messageWriter, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		repo:      repo,
		writer:    writer,
		logger:    logger,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

// Run drains the outbox until ctx is cancelled. Any number of publisher
// instances may run concurrently; ClaimBatch keeps their batches disjoint.
func (p *Publisher) Run(ctx context.Context) {
	if p.writer == nil {
		p.logger.Warn("outbox publisher disabled (no kafka brokers configured)")
		return
	}

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

func (p *Publisher) drain(ctx context.Context) {
	records, err := p.repo.ClaimBatch(ctx, p.batchSize)
	if err != nil {
		// Claimed nothing; the rows stay NEW and the next tick retries.
		p.logger.Error("outbox claim failed", "err", err)
		return
	}
	if len(records) == 0 {
		return
	}

	p.logger.Debug("claimed outbox batch", "count", len(records))

	// Each row is published and finalized on its own: one broken event
	// must not hold back the rest of the batch.
	for _, rcd := range records {
		p.publish(ctx, rcd)
	}
}

func (p *Publisher) publish(ctx context.Context, rcd Record) {
	msgCtx := otelx.ContextWithTraceContext(ctx, rcd.Traceparent, rcd.Tracestate)

	value, err := rcd.Envelope().Encode()
	if err != nil {
		p.fail(ctx, rcd, "encode: "+err.Error())
		return
	}

	msg := kafka.Message{
		Key:   []byte(rcd.AggregateID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(rcd.EventID)},
			{Key: "event_type", Value: []byte(rcd.EventType)},
		},
	}
	msg.Headers = kafkax.InjectTraceHeaders(msgCtx, msg.Headers)

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.fail(ctx, rcd, err.Error())
		return
	}

	if err := p.repo.MarkSent(ctx, rcd.ID); err != nil {
		// The event is on the broker but the row is still SENDING; it will
		// be re-queued by an operator and consumers dedupe via their guards.
		p.logger.Error("failed to mark outbox row sent", "event_id", rcd.EventID, "err", err)
		return
	}
	p.logger.Info("outbox event published",
		"event_id", rcd.EventID,
		"event_type", string(rcd.EventType),
		"aggregate_id", rcd.AggregateID)
}

func (p *Publisher) fail(ctx context.Context, rcd Record, reason string) {
	p.logger.Error("outbox publish failed", "event_id", rcd.EventID, "reason", reason)
	if err := p.repo.MarkFailed(ctx, rcd.ID, reason); err != nil {
		p.logger.Error("failed to mark outbox row failed", "event_id", rcd.EventID, "err", err)
	}
}
