package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/nabil-hossain/ridepulse/events"
	"github.com/nabil-hossain/ridepulse/libs/kafkax"
	"github.com/nabil-hossain/ridepulse/services/realtime-service/internal/registry"
	"github.com/nabil-hossain/ridepulse/services/realtime-service/internal/router"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Consumer feeds the connection registry from the broker. It runs in its own
// consumer group, so its offsets are independent of the state-updating
// consumers and either side can restart without affecting the other.
type Consumer struct {
	reader   *kafka.Reader
	registry *registry.Registry
	logger   *slog.Logger
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
}

func New(logger *slog.Logger, reg *registry.Registry, cfg Config) *Consumer {
	return &Consumer{
		reader:   kafkax.NewGroupReader(cfg.Brokers, cfg.GroupID, cfg.Topic),
		registry: reg,
		logger:   logger,
	}
}

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
		c.dispatch(ctx, msg)
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg kafka.Message) {
	env, err := events.Decode(msg.Value)
	if err != nil {
		meta := kafkax.ExtractEventMeta(msg)
		c.logger.Warn("dropping undecodable message",
			"err", err, "offset", msg.Offset, "event_id", meta.EventID, "event_type", meta.EventType)
		return
	}

	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	_, span := otel.Tracer("kafka").Start(ctxMsg, "realtime.fanout",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("event.type", string(env.EventType)),
		),
	)
	defer span.End()

	deliveries, err := router.Route(env)
	if err != nil {
		c.logger.Warn("dropping unroutable event", "err", err, "event_id", env.EventID)
		span.RecordError(err)
		return
	}

	for _, d := range deliveries {
		n := c.registry.Broadcast(d.To, registry.Event{Name: d.Name, Data: d.Data})
		c.logger.Debug("event fanned out",
			"event_id", env.EventID,
			"event_type", string(env.EventType),
			"role", d.To.Role,
			"recipient_id", d.To.ID,
			"connections", n)
	}
}
