package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/birbparty/pio-go/internal/api"
	"github.com/birbparty/pio-go/internal/cache"
	"github.com/birbparty/pio-go/internal/database"
	"github.com/birbparty/pio-go/internal/queue"
	"github.com/birbparty/pio-go/internal/relay"
	"github.com/birbparty/pio-go/internal/telemetry"
	"github.com/birbparty/pio-go/sdk"
)

func main() {
	telemetryConfig := telemetry.NewConfigFromEnv("pio-relay")
	if err := telemetry.Init(telemetryConfig); err != nil {
		telemetry.L().WithError(err).Fatal("Failed to initialize telemetry")
	}
	log := telemetry.L()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	log.Info("🐦 PIO relay starting...")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize configurations
	relayConfig, err := relay.NewConfigFromEnv()
	if err != nil {
		log.WithError(err).Fatal("Failed to load relay config")
	}

	adminConfig, err := api.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("Failed to load admin config")
	}

	dbConfig, err := database.NewConfigFromEnv()
	if err != nil {
		log.WithError(err).Fatal("Failed to load database config")
	}

	cacheConfig, err := cache.NewConfigFromEnv()
	if err != nil {
		log.WithError(err).Fatal("Failed to load cache config")
	}

	queueConfig, err := queue.NewConfigFromEnv()
	if err != nil {
		log.WithError(err).Fatal("Failed to load queue config")
	}
	queueConfig.ConsumerMaxDeliver = relayConfig.MaxDeliver

	// Initialize database
	db, err := database.NewDB(ctx, dbConfig)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()
	deadLetters := database.NewDeadLetterRepository(db)
	if err := deadLetters.EnsureSchema(ctx); err != nil {
		log.WithError(err).Fatal("Failed to prepare dead letter table")
	}
	log.Info("✅ Connected to PostgreSQL")

	// Initialize Redis dedupe set
	seen, err := cache.NewRedisSeenSet(cacheConfig)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer seen.Close()
	log.Info("✅ Connected to Redis")

	// Initialize NATS queue
	queueClient, err := queue.NewClient(queueConfig, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to NATS")
	}
	defer queueClient.Close()

	consumer, err := queueClient.Consumer()
	if err != nil {
		log.WithError(err).Fatal("Failed to bind relay consumer")
	}
	defer consumer.Close()
	log.Info("✅ Connected to NATS JetStream")

	// Initialize metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(registry)

	// Event server client
	client, err := sdk.NewEventClient(
		relayConfig.SDKConfig().
			WithObserver(sdk.NewPrometheusObserver(registry)).
			WithLogger(log),
	)
	if err != nil {
		log.WithError(err).Fatal("Failed to create event client")
	}
	defer client.Close()

	r, err := relay.New(relayConfig, relay.NewQueueSource(consumer), client, deadLetters,
		relay.WithSeenSet(seen),
		relay.WithMetrics(metrics),
		relay.WithLogger(log),
		relay.WithPending(queueClient.Pending),
	)
	if err != nil {
		log.WithError(err).Fatal("Failed to create relay")
	}

	// Start admin server
	handler := api.NewHandler(adminConfig, r.Stats(), deadLetters, queueClient, map[string]api.HealthCheck{
		"nats":     func(context.Context) error { return queueClient.Health() },
		"redis":    seen.Ping,
		"postgres": db.Health,
	}, log)
	app := api.NewApp(adminConfig, handler, metrics, registry)
	go func() {
		log.WithField("addr", adminConfig.Addr).Info("Admin server listening")
		if err := app.Listen(adminConfig.Addr); err != nil {
			log.WithError(err).Error("Admin server stopped")
		}
	}()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start relaying in background
	relayDone := make(chan error, 1)
	go func() {
		relayDone <- r.Run(ctx)
	}()

	// Wait for shutdown signal or relay error
	select {
	case sig := <-sigChan:
		log.WithField("signal", sig.String()).Info("🛑 Shutting down gracefully...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), adminConfig.ShutdownTimeout)
		defer shutdownCancel()

		select {
		case <-relayDone:
			log.Info("✅ Relay shutdown complete")
		case <-shutdownCtx.Done():
			log.Warn("⚠️ Relay shutdown timeout")
		}

	case err := <-relayDone:
		if err != nil {
			log.WithError(err).Error("Relay error")
		}
	}

	if err := app.ShutdownWithTimeout(adminConfig.ShutdownTimeout); err != nil {
		log.WithError(err).Warn("Admin server shutdown failed")
	}
}
