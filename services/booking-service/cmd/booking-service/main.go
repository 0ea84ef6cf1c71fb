package main

import (
	"context"
	"net/http"
	"time"

	"github.com/nabil-hossain/ridepulse/libs/config"
	"github.com/nabil-hossain/ridepulse/libs/db"
	"github.com/nabil-hossain/ridepulse/libs/httpx"
	"github.com/nabil-hossain/ridepulse/libs/kafkax"
	otelx "github.com/nabil-hossain/ridepulse/libs/otel"
	"github.com/nabil-hossain/ridepulse/libs/runtime"
	"github.com/nabil-hossain/ridepulse/outbox"
	"github.com/nabil-hossain/ridepulse/services/booking-service/internal/consumer"
	"github.com/nabil-hossain/ridepulse/services/booking-service/internal/handlers"
	"github.com/nabil-hossain/ridepulse/services/booking-service/internal/storage"
	"github.com/nabil-hossain/ridepulse/services/booking-service/internal/updater"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	jwtSecret, err := config.RequiredString("AUTH_JWT_SECRET")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	brokers := config.String("KAFKA_BROKERS", "")
	topic := config.String("KAFKA_TOPIC", "ride.events")

	repo := storage.NewBookingRepository(pool)
	outboxRepo := outbox.NewRepository(pool)

	outboxPublisher := outbox.NewPublisher(outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		Topic:     topic,
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	stateUpdater := updater.New(pool, repo, logger)
	eventConsumer := consumer.New(logger, consumer.Config{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "booking-service"),
		Topic:   topic,
	}, stateUpdater.Apply)
	go eventConsumer.Run(ctx)

	bookingHandler := handlers.NewBookingHandler(pool, repo, outboxRepo, logger, jwtSecret)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.HandleFunc("/api/v1/bookings", bookingHandler.Bookings)
	mux.HandleFunc("/api/v1/bookings/cancel", bookingHandler.Cancel)
	mux.HandleFunc("/api/v1/bookings/history", bookingHandler.History)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
