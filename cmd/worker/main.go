// Package main is the entry point for the background worker service: it
// drains the Outbound Producer's queues, delivering notification messages
// and running digest flush and cleanup ticks.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/nimbusgate/core/internal/infra/config"
	"github.com/nimbusgate/core/internal/infra/postgres"
	"github.com/nimbusgate/core/internal/infra/resilience"
	"github.com/nimbusgate/core/internal/notification"
	"github.com/nimbusgate/core/internal/observability"
	"github.com/nimbusgate/core/internal/outbound"
	"github.com/nimbusgate/core/internal/template"
	"github.com/nimbusgate/core/internal/worker"
	"github.com/nimbusgate/core/internal/worker/idempotency"
	"github.com/nimbusgate/core/internal/worker/patterns"
	"github.com/nimbusgate/core/internal/worker/tasks"
)

func main() {
	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Initialize zap logger
	logger, err := observability.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Logger error: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	// Create Redis options for asynq
	redisOpt := asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	// Create worker server
	srv := worker.NewServer(redisOpt, cfg.Asynq)

	// Add middleware (order: recovery first, then tracing, then logging)
	srv.Use(
		worker.RecoveryMiddleware(logger),
		worker.TracingMiddleware(),
		worker.LoggingMiddleware(logger),
		worker.MetricsMiddleware(),
	)

	// Database-backed dependencies for the digest flush and cleanup ticks.
	ctx := context.Background()
	pool := postgres.NewResilientPool(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxConns:        cfg.DBPoolMaxConns,
		MinConns:        cfg.DBPoolMinConns,
		MaxConnLifetime: cfg.DBPoolMaxLifetime,
	}, cfg.IgnoreDBStartupError, slog.Default())
	defer pool.Close()
	querier := postgres.NewPoolQuerier(pool)
	notificationRepo := postgres.NewNotificationRepo(querier)

	store, err := template.NewStore(ctx, postgres.NewTemplateRepo(querier), cfg.TemplateDefaultLanguage)
	if err != nil {
		logger.Fatal("Template store error", zap.Error(err))
	}

	client := worker.NewClient(redisOpt)
	defer func() { _ = client.Close() }()

	// Catch-up tick on boot: digest windows that elapsed while the worker
	// was down flush immediately instead of waiting for the next schedule.
	patterns.FireAndForget(ctx, client, logger, tasks.NewDigestFlushTask())

	producer := outbound.NewDispatcher(
		outbound.NewAsynqTransport(client),
		outbound.WithBackoff(cfg.RetryInitialDelay, cfg.RetryMaxDelay),
	)

	svc := notification.NewService(
		notificationRepo,
		postgres.NewRecipientDirectory(querier),
		store,
		producer,
		notification.StaticPreferences{},
		postgres.NewDigestRepo(querier),
		notification.WithMaxRetries(cfg.RetryMaxAttempts),
	)

	// DB-bound periodic ticks run under the composed resilience chain
	// (retry, then per-attempt timeout); both ticks are idempotent, so
	// automatic retries are safe here.
	resCfg := resilience.NewResilienceConfig(cfg)
	wrapper := resilience.NewResilienceWrapper(
		resilience.WithWrapperRetrier(resilience.NewRetrier("worker", resCfg.Retry)),
		resilience.WithWrapperTimeout(resilience.NewTimeout("worker-db", resCfg.Timeout.Database)),
	)
	resilient := func(name string, h func(context.Context, *asynq.Task) error) func(context.Context, *asynq.Task) error {
		return func(ctx context.Context, t *asynq.Task) error {
			return wrapper.Execute(ctx, name, func(ctx context.Context) error {
				return h(ctx, t)
			})
		}
	}

	// Delivery is deduplicated on the message id: producer retries keep the
	// same id, so a redelivered message is acknowledged without a second
	// channel handoff. The durable Postgres store backs the check.
	deliveryHandler := idempotency.IdempotentHandler(
		postgres.NewIdempotencyRepo(pool),
		func(t *asynq.Task) string {
			var msg outbound.Message
			if err := json.Unmarshal(t.Payload(), &msg); err != nil || msg.ID == "" {
				return ""
			}
			return t.Type() + ":" + msg.ID
		},
		cfg.IdempotencyTTL,
		tasks.NewDeliveryHandler(logger).Handle,
		idempotency.WithHandlerLogger(logger),
	)
	for _, taskType := range tasks.DeliveryTypes {
		srv.HandleFunc(taskType, deliveryHandler)
	}
	srv.HandleFunc(tasks.TypeDigestFlush, resilient("digest-flush", tasks.NewDigestFlushHandler(svc, logger).Handle))
	srv.HandleFunc(tasks.TypeCleanupOldNotifications, resilient("notification-cleanup", tasks.NewCleanupOldNotificationsHandler(notificationRepo, logger).Handle))

	// Graceful shutdown
	runCtx, cancel := context.WithCancel(ctx)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		<-sigs
		logger.Info("Shutting down worker...")
		srv.Shutdown()
		cancel()
	}()

	logger.Info("Worker starting",
		zap.Int("concurrency", cfg.Asynq.Concurrency),
		zap.String("redis_addr", fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)),
	)

	if err := srv.Start(); err != nil {
		logger.Fatal("Worker error", zap.Error(err))
	}

	<-runCtx.Done()
	logger.Info("Worker shutdown complete")
}
