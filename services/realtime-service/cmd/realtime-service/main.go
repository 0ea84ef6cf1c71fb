package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/nabil-hossain/ridepulse/libs/config"
	"github.com/nabil-hossain/ridepulse/libs/httpx"
	"github.com/nabil-hossain/ridepulse/libs/kafkax"
	otelx "github.com/nabil-hossain/ridepulse/libs/otel"
	"github.com/nabil-hossain/ridepulse/libs/runtime"
	"github.com/nabil-hossain/ridepulse/services/realtime-service/internal/consumer"
	"github.com/nabil-hossain/ridepulse/services/realtime-service/internal/registry"
	"github.com/nabil-hossain/ridepulse/services/realtime-service/internal/stream"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func main() {
	service := config.String("SERVICE_NAME", "realtime-service")
	port, err := config.Port("PORT", "8086")
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

	jwtSecret, err := config.RequiredString("AUTH_JWT_SECRET")
	if err != nil {
		panic(err)
	}
	brokers := config.String("KAFKA_BROKERS", "")

	reg := registry.New(logger)

	eventConsumer := consumer.New(logger, reg, consumer.Config{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "realtime-service"),
		Topic:   config.String("KAFKA_TOPIC", "ride.events"),
	})
	go eventConsumer.Run(ctx)

	streamHandler := stream.NewHandler(reg, jwtSecret,
		config.Duration("STREAM_HEARTBEAT_INTERVAL", 15*time.Second), logger)

	// Connect-rate limiting: Redis-backed when configured (multiple gateway
	// instances share the window), in-memory otherwise.
	var limit httpx.Middleware
	checks := []runtime.ReadyCheck{
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	}
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		limit = httpx.NewRedisRateLimiter(rdb,
			config.Int("STREAM_CONNECT_LIMIT", 30), time.Minute, "stream").Middleware(logger, true)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	} else {
		limit = httpx.NewRateLimiter(config.Int("STREAM_CONNECT_LIMIT", 30), time.Minute).Middleware()
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/api/v1/stream", httpx.Chain(streamHandler, limit))
	mux.HandleFunc("/api/v1/stats", func(w http.ResponseWriter, r *http.Request) {
		identities, connections := reg.Stats()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int{
			"identities":  identities,
			"connections": connections,
		})
	})

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: splitOrigins(config.String("STREAM_ALLOWED_ORIGINS", "")),
			AllowedMethods: []string{http.MethodGet},
			AllowedHeaders: []string{"Authorization"},
		}),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "realtime")
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
