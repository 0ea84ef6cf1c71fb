package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/nabil-hossain/ridepulse/events"
	"github.com/nabil-hossain/ridepulse/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Handler func(ctx context.Context, env events.Envelope) error

type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	handler Handler
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
}

func New(logger *slog.Logger, cfg Config, handler Handler) *Consumer {
	return &Consumer{
		reader:  kafkax.NewGroupReader(cfg.Brokers, cfg.GroupID, cfg.Topic),
		logger:  logger,
		handler: handler,
	}
}

// Run reads the shared topic until ctx is cancelled. Handler failures are
// logged and the loop moves on; no error here ever stops the consumer.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}

		env, err := events.Decode(msg.Value)
		if err != nil {
			meta := kafkax.ExtractEventMeta(msg)
			c.logger.Warn("dropping undecodable message",
				"err", err, "offset", msg.Offset, "event_id", meta.EventID, "event_type", meta.EventType)
			continue
		}

		ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
		ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
				attribute.String("event.type", string(env.EventType)),
			),
		)

		if err := c.handler(ctxSpan, env); err != nil {
			c.logger.Error("handler error", "err", err, "event_id", env.EventID)
			span.RecordError(err)
		}
		span.End()
	}
}
