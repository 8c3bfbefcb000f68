// Package fxmodule provides Uber Fx dependency injection modules for the
// edge plane: the process entry point builds the cache, trust layer,
// rate-limit engine, route table, producer, and notification core here and
// passes them into the server.
//
// Usage in main.go:
//
//	app := fx.New(
//	    fxmodule.Module,
//	    fx.Invoke(fxmodule.RegisterServers),
//	)
//	app.Run()
package fxmodule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/heptiolabs/healthcheck"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/nimbusgate/core/internal/authsession"
	"github.com/nimbusgate/core/internal/broadcast"
	"github.com/nimbusgate/core/internal/cache"
	"github.com/nimbusgate/core/internal/domain"
	"github.com/nimbusgate/core/internal/gateway/proxy"
	"github.com/nimbusgate/core/internal/gateway/route"
	"github.com/nimbusgate/core/internal/infra/config"
	"github.com/nimbusgate/core/internal/infra/kafka"
	"github.com/nimbusgate/core/internal/infra/observability"
	"github.com/nimbusgate/core/internal/infra/postgres"
	"github.com/nimbusgate/core/internal/infra/rabbitmq"
	redisinfra "github.com/nimbusgate/core/internal/infra/redis"
	"github.com/nimbusgate/core/internal/infra/resilience"
	"github.com/nimbusgate/core/internal/infra/wrapper"
	interfacehttp "github.com/nimbusgate/core/internal/interface/http"
	"github.com/nimbusgate/core/internal/interface/http/admin"
	"github.com/nimbusgate/core/internal/interface/http/handlers"
	"github.com/nimbusgate/core/internal/interface/http/httpx"
	"github.com/nimbusgate/core/internal/interface/http/middleware"
	"github.com/nimbusgate/core/internal/notification"
	obs "github.com/nimbusgate/core/internal/observability"
	"github.com/nimbusgate/core/internal/outbound"
	"github.com/nimbusgate/core/internal/ratelimit"
	"github.com/nimbusgate/core/internal/runtimeutil"
	"github.com/nimbusgate/core/internal/shared/metrics"
	"github.com/nimbusgate/core/internal/shared/redact"
	"github.com/nimbusgate/core/internal/template"
	"github.com/nimbusgate/core/internal/trust"
	"github.com/nimbusgate/core/internal/worker"
)

// Module provides all application dependencies via Uber Fx.
var Module = fx.Options(
	ConfigModule,
	ObservabilityModule,
	ResilienceModule,
	PostgresModule,
	CacheModule,
	DomainModule,
	EdgeModule,
	NotificationModule,
	ServerModule,
)

// ConfigModule provides configuration dependencies.
var ConfigModule = fx.Options(
	fx.Provide(config.Load),
)

// ObservabilityModule provides logging, metrics and tracing dependencies.
// Both logger stacks are provided: the slog-based request-path logger and
// the zap-backed Logger interface the worker/broker layer uses.
var ObservabilityModule = fx.Options(
	fx.Provide(observability.NewLogger),
	fx.Invoke(func(logger *slog.Logger) {
		slog.SetDefault(logger)
	}),
	fx.Provide(provideZapLogger),
	fx.Provide(provideWorkerLogger),
	fx.Provide(provideMetrics),
	fx.Provide(provideTracer),
)

func provideZapLogger(cfg *config.Config) (*zap.Logger, error) {
	return obs.NewLogger(cfg)
}

func provideWorkerLogger(zapLogger *zap.Logger) obs.Logger {
	return obs.NewZapLogger(zapLogger)
}

func provideTracer(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (*sdktrace.TracerProvider, error) {
	if !cfg.OTELEnabled {
		logger.Info("tracing disabled")
		return sdktrace.NewTracerProvider(), nil
	}

	tp, err := observability.InitTracer(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	otel.SetTracerProvider(tp)
	logger.Info("tracing enabled")

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down tracer")
			return tp.Shutdown(ctx)
		},
	})

	return tp, nil
}

// MetricsResult holds Prometheus metrics components.
type MetricsResult struct {
	fx.Out
	Registry    *prometheus.Registry
	HTTPMetrics metrics.HTTPMetrics
}

func provideMetrics() MetricsResult {
	reg, httpMetrics := observability.NewMetricsRegistry()
	return MetricsResult{
		Registry:    reg,
		HTTPMetrics: httpMetrics,
	}
}

// ResilienceModule provides resilience dependencies.
var ResilienceModule = fx.Options(
	fx.Provide(provideResilienceConfig),
	// Circuit Breaker components
	fx.Provide(provideCircuitBreakerMetrics),
	fx.Provide(provideCircuitBreakerPresets),
	// Retry components
	fx.Provide(provideRetryMetrics),
	fx.Provide(provideRetrier),
	// Timeout components
	fx.Provide(provideTimeoutMetrics),
	fx.Provide(provideTimeoutPresets),
	// Bulkhead components
	fx.Provide(provideBulkheadMetrics),
	fx.Provide(provideBulkheadPresets),
	// Shutdown components
	fx.Provide(provideShutdownMetrics),
	fx.Provide(provideShutdownCoordinator),
	// ResilienceWrapper (composes all patterns)
	fx.Provide(provideResilienceWrapper),
)

func provideResilienceConfig(cfg *config.Config) resilience.ResilienceConfig {
	return resilience.NewResilienceConfig(cfg)
}

func provideCircuitBreakerMetrics(registry *prometheus.Registry) *resilience.CircuitBreakerMetrics {
	return resilience.NewCircuitBreakerMetrics(registry)
}

func provideCircuitBreakerPresets(
	resCfg resilience.ResilienceConfig,
	metrics *resilience.CircuitBreakerMetrics,
	logger *slog.Logger,
) *resilience.CircuitBreakerPresets {
	return resilience.NewCircuitBreakerPresets(
		resCfg.CircuitBreaker,
		resilience.WithMetrics(metrics),
		resilience.WithLogger(logger),
	)
}

func provideRetryMetrics(registry *prometheus.Registry) *resilience.RetryMetrics {
	return resilience.NewRetryMetrics(registry)
}

func provideRetrier(
	resCfg resilience.ResilienceConfig,
	metrics *resilience.RetryMetrics,
	logger *slog.Logger,
) resilience.Retrier {
	return resilience.NewRetrier(
		"default",
		resCfg.Retry,
		resilience.WithRetryMetrics(metrics),
		resilience.WithRetryLogger(logger),
	)
}

func provideTimeoutMetrics(registry *prometheus.Registry) *resilience.TimeoutMetrics {
	return resilience.NewTimeoutMetrics(registry)
}

func provideTimeoutPresets(
	resCfg resilience.ResilienceConfig,
	metrics *resilience.TimeoutMetrics,
	logger *slog.Logger,
) *resilience.TimeoutPresets {
	return resilience.NewTimeoutPresets(
		resCfg.Timeout,
		resilience.WithTimeoutMetrics(metrics),
		resilience.WithTimeoutLogger(logger),
	)
}

func provideBulkheadMetrics(registry *prometheus.Registry) *resilience.BulkheadMetrics {
	return resilience.NewBulkheadMetrics(registry)
}

func provideBulkheadPresets(
	resCfg resilience.ResilienceConfig,
	metrics *resilience.BulkheadMetrics,
	logger *slog.Logger,
) *resilience.BulkheadPresets {
	return resilience.NewBulkheadPresets(
		resCfg.Bulkhead,
		resilience.WithBulkheadMetrics(metrics),
		resilience.WithBulkheadLogger(logger),
	)
}

func provideShutdownMetrics(registry *prometheus.Registry) *resilience.ShutdownMetrics {
	return resilience.NewShutdownMetrics(registry)
}

func provideShutdownCoordinator(
	resCfg resilience.ResilienceConfig,
	metrics *resilience.ShutdownMetrics,
	logger *slog.Logger,
) resilience.ShutdownCoordinator {
	return resilience.NewShutdownCoordinator(
		resCfg.Shutdown,
		resilience.WithShutdownMetrics(metrics),
		resilience.WithShutdownLogger(logger),
	)
}

func provideResilienceWrapper(
	cbPresets *resilience.CircuitBreakerPresets,
	retrier resilience.Retrier,
	timeoutPresets *resilience.TimeoutPresets,
	bulkheadPresets *resilience.BulkheadPresets,
	logger *slog.Logger,
) resilience.ResilienceWrapper {
	return resilience.NewResilienceWrapper(
		resilience.WithCircuitBreakerFactory(cbPresets.Factory()),
		resilience.WithWrapperRetrier(retrier),
		resilience.WithWrapperTimeout(timeoutPresets.Default()),
		resilience.WithWrapperBulkhead(bulkheadPresets.Default()),
		resilience.WithWrapperLogger(logger),
	)
}

// PostgresModule provides database dependencies.
var PostgresModule = fx.Options(
	fx.Provide(providePoolConfig),
	fx.Provide(providePool),
	fx.Provide(provideQuerier),
	fx.Provide(provideTxManager),
	fx.Provide(provideIdempotencyRepo),
	fx.Invoke(startIdempotencyCleaner),
	fx.Invoke(registerDBMetrics),
)

func providePoolConfig(cfg *config.Config) postgres.PoolConfig {
	return postgres.PoolConfig{
		MaxConns:        cfg.DBPoolMaxConns,
		MinConns:        cfg.DBPoolMinConns,
		MaxConnLifetime: cfg.DBPoolMaxLifetime,
	}
}

func providePool(lc fx.Lifecycle, cfg *config.Config, poolCfg postgres.PoolConfig, logger *slog.Logger) (postgres.Pooler, error) {
	ctx := context.Background()
	pool := postgres.NewResilientPool(ctx, cfg.DatabaseURL, poolCfg, cfg.IgnoreDBStartupError, logger)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("closing database pool")
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func provideQuerier(pool postgres.Pooler) domain.Querier {
	if pool == nil {
		return nil
	}
	return postgres.NewPoolQuerier(pool)
}

func provideTxManager(pool postgres.Pooler) domain.TxManager {
	if pool == nil {
		return nil
	}
	return postgres.NewTxManager(pool)
}

func provideIdempotencyRepo(pool postgres.Pooler) *postgres.IdempotencyRepo {
	return postgres.NewIdempotencyRepo(pool)
}

func startIdempotencyCleaner(
	lc fx.Lifecycle,
	pool postgres.Pooler,
	cfg *config.Config,
	logger *slog.Logger,
	registry *prometheus.Registry,
) {
	cleaner := postgres.NewIdempotencyCleaner(
		pool,
		postgres.IdempotencyCleanerConfig{
			Interval: cfg.IdempotencyCleanupInterval,
		},
		logger,
		registry,
	)

	lc.Append(fx.Hook{
		OnStart: cleaner.Start,
		OnStop:  cleaner.Stop,
	})
}

// CacheModule provides the Shared Cache Abstraction. Redis when reachable;
// an in-process cache otherwise, so a cache outage degrades (fail-open
// rate limiting, process-local revocations) instead of blocking startup.
var CacheModule = fx.Options(
	fx.Provide(provideRedisClient),
	fx.Provide(provideCache),
)

// provideRedisClient connects to Redis; nil when unreachable so dependents
// can degrade instead of blocking startup.
func provideRedisClient(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) *redisinfra.Client {
	client, err := redisinfra.NewClient(cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, using in-process cache", slog.String("error", err.Error()))
		return nil
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

func provideCache(cfg *config.Config, client *redisinfra.Client, retrier resilience.Retrier) cache.Cache {
	if client == nil {
		return cache.NewMemory()
	}
	// Counter increments are the one cache operation retried on transient
	// backend errors; everything else fails fast into degraded handling.
	return cache.WithIncrementRetry(cache.NewRedis(client.Client(), cfg.CacheKeyPrefix), retrier)
}

// DomainModule provides domain-level dependencies.
var DomainModule = fx.Options(
	fx.Provide(provideRedactorConfig),
	fx.Provide(
		fx.Annotate(
			redact.NewPIIRedactor,
			fx.As(new(domain.Redactor)),
		),
	),
)

func provideRedactorConfig(cfg *config.Config) domain.RedactorConfig {
	return domain.RedactorConfig{EmailMode: cfg.AuditRedactEmail}
}

// EdgeModule provides the gateway plane: trust layer, session service,
// rate-limit engine, route table, proxy and broadcast hub.
var EdgeModule = fx.Options(
	fx.Provide(runtimeutil.NewEnvSecretProvider),
	fx.Provide(provideRevocationStore),
	fx.Provide(provideVerifier),
	fx.Provide(provideAuthSessions),
	fx.Provide(provideRateLimitEngine),
	fx.Provide(provideResolver),
	fx.Provide(provideProxy),
	fx.Provide(provideVersionNegotiator),
	fx.Provide(provideGateway),
	fx.Provide(provideBroadcastHub),
)

func provideRevocationStore(c cache.Cache) *authsession.RevocationStore {
	return authsession.NewRevocationStore(c)
}

func provideVerifier(cfg *config.Config, secrets runtimeutil.SecretProvider, revocations *authsession.RevocationStore) (*trust.Verifier, error) {
	// The signing key comes through the secret provider so deployments can
	// swap env vars for a managed secret store without touching this wiring.
	secret, err := secrets.GetSecret(context.Background(), "JWT_SECRET")
	if err != nil {
		secret = cfg.JWTSecret
	}
	if secret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	return trust.New(trust.Config{
		Keys:       trust.KeyConfig{HMACSecret: []byte(secret)},
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		Revocation: revocations,
	})
}

func provideAuthSessions(revocations *authsession.RevocationStore, verifier *trust.Verifier) *authsession.Service {
	return authsession.NewService(revocations, verifier)
}

func provideRateLimitEngine(cfg *config.Config, c cache.Cache) *ratelimit.Engine {
	mode := ratelimit.FailOpen
	if cfg.RateLimitFailClosed {
		mode = ratelimit.FailClosed
	}
	return ratelimit.New(c,
		ratelimit.WithDegradedMode(mode),
		ratelimit.WithFallback(ratelimit.NewLeakyBucketFallback()),
	)
}

func provideResolver(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (*route.Resolver, error) {
	if cfg.RouteConfigPath == "" {
		logger.Info("no route table configured, gateway pass-through disabled")
		return route.NewResolver(nil), nil
	}

	routes, err := route.LoadFile(cfg.RouteConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load route table: %w", err)
	}
	resolver := route.NewResolver(routes)
	logger.Info("route table loaded",
		slog.String("path", cfg.RouteConfigPath),
		slog.Int("routes", len(routes)),
	)

	if cfg.RouteReloadInterval > 0 {
		stop := route.WatchFile(cfg.RouteConfigPath, cfg.RouteReloadInterval, resolver, func(err error) {
			logger.Error("route table reload failed", slog.String("error", err.Error()))
		})
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				stop()
				return nil
			},
		})
	}
	return resolver, nil
}

func provideProxy(
	cbMetrics *resilience.CircuitBreakerMetrics,
	bulkheads *resilience.BulkheadPresets,
	timeouts *resilience.TimeoutPresets,
	logger *slog.Logger,
) *proxy.Proxy {
	// The identity headers are always injected; beyond those, only this
	// allow-list crosses to the upstream.
	allowed := []string{
		"Accept", "Accept-Encoding", "Accept-Language", "Content-Type",
		"Content-Length", "User-Agent", middleware.CorrelationIDHeader,
		middleware.RequestIDHeader,
	}
	p := proxy.New(allowed, proxy.NewBreakerRegistry(cbMetrics), logger)
	// Bounded upstream concurrency (exhaustion -> 503) and a per-call
	// deadline (expiry -> 504) on every proxied request.
	p.Limiter = bulkheads.ForExternalAPI()
	p.UpstreamTimeout = timeouts.ForExternalAPI()
	return p
}

func provideVersionNegotiator(cfg *config.Config) route.VersionNegotiator {
	deprecated := make(map[string]bool, len(cfg.APIDeprecatedVersions))
	for _, v := range cfg.APIDeprecatedVersions {
		deprecated[v] = true
	}
	return route.VersionNegotiator{
		Available:  cfg.APIVersions,
		Default:    cfg.APIDefaultVersion,
		Deprecated: deprecated,
	}
}

func provideGateway(
	cfg *config.Config,
	resolver *route.Resolver,
	p *proxy.Proxy,
	negotiator route.VersionNegotiator,
	verifier *trust.Verifier,
	engine *ratelimit.Engine,
) *interfacehttp.Gateway {
	return &interfacehttp.Gateway{
		Resolver:    resolver,
		Proxy:       p,
		Negotiator:  negotiator,
		Verifier:    verifier,
		RateLimiter: engine,
		NamedQuotas: map[string]ratelimit.Quota{
			"default": {
				Dimension:     ratelimit.DimensionRoute,
				Algorithm:     ratelimit.AlgorithmSlidingWindow,
				Capacity:      int64(2 * cfg.RateLimitRPS),
				ReplenishRate: float64(cfg.RateLimitRPS),
				WindowSeconds: 60,
			},
		},
		BypassRole: cfg.RateLimitBypassRole,
		TrustProxy: cfg.TrustProxy,
	}
}

func provideBroadcastHub(c cache.Cache) *broadcast.Hub {
	return broadcast.NewHub(c)
}

// NotificationModule provides the notification plane: template store,
// outbound producer and the notification core.
var NotificationModule = fx.Options(
	fx.Provide(provideWorkerClient),
	fx.Provide(provideTransport),
	fx.Provide(provideProducer),
	fx.Provide(provideTemplateStore),
	fx.Provide(provideNotificationService),
)

func provideWorkerClient(lc fx.Lifecycle, cfg *config.Config) *worker.Client {
	client := worker.NewClient(asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

// provideTransport selects the broker transport by configuration: RabbitMQ
// or Kafka when enabled, the asynq durable queue otherwise. Never more
// than one in the same process.
func provideTransport(lc fx.Lifecycle, cfg *config.Config, client *worker.Client, logger obs.Logger) (outbound.Transport, error) {
	var (
		transport outbound.Transport
		err       error
	)
	switch {
	case cfg.RabbitMQ.IsEnabled():
		transport, err = rabbitmq.NewTransport(&cfg.RabbitMQ, logger)
	case cfg.Kafka.IsEnabled():
		transport, err = kafka.NewTransport(&cfg.Kafka, logger)
	default:
		transport = outbound.NewAsynqTransport(client)
	}
	if err != nil {
		return nil, fmt.Errorf("outbound transport: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return transport.Close()
		},
	})
	return transport, nil
}

func provideProducer(cfg *config.Config, transport outbound.Transport) outbound.Producer {
	return outbound.NewDispatcher(transport, outbound.WithBackoff(cfg.RetryInitialDelay, cfg.RetryMaxDelay))
}

// emptyTemplateRepo backs the template store when the database is allowed
// to be unavailable at startup (smoke tests).
type emptyTemplateRepo struct{}

func (emptyTemplateRepo) Insert(context.Context, *template.Template) error { return errDBUnavailable }
func (emptyTemplateRepo) Update(context.Context, *template.Template) error { return errDBUnavailable }
func (emptyTemplateRepo) DeleteByID(context.Context, string) error         { return errDBUnavailable }
func (emptyTemplateRepo) LoadAll(context.Context) ([]template.Template, error) {
	return nil, nil
}

var errDBUnavailable = errors.New("database not connected")

func provideTemplateStore(cfg *config.Config, q domain.Querier, logger *slog.Logger) (*template.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := template.NewStore(ctx, postgres.NewTemplateRepo(q), cfg.TemplateDefaultLanguage)
	if err != nil {
		if !cfg.IgnoreDBStartupError {
			return nil, err
		}
		logger.Warn("template store starting empty", slog.String("error", err.Error()))
		return template.NewStore(ctx, emptyTemplateRepo{}, cfg.TemplateDefaultLanguage)
	}
	return store, nil
}

func provideNotificationService(
	q domain.Querier,
	store *template.Store,
	producer outbound.Producer,
	redactor domain.Redactor,
	cfg *config.Config,
) *notification.Service {
	return notification.NewService(
		postgres.NewNotificationRepo(q),
		postgres.NewRecipientDirectory(q),
		store,
		producer,
		notification.StaticPreferences{},
		postgres.NewDigestRepo(q),
		notification.WithMaxRetries(cfg.RetryMaxAttempts),
		notification.WithAuditor(postgres.NewAuditRecorder(postgres.NewAuditEventRepo(), q, redactor)),
	)
}

// ServerModule assembles the HTTP surface and the internal metrics server.
var ServerModule = fx.Options(
	fx.Provide(provideRateLimitMiddleware),
	fx.Provide(provideAdminAuthenticator),
	fx.Provide(provideAdminDeps),
	fx.Provide(provideDeps),
	fx.Provide(providePublicRouter),
	fx.Provide(provideHealthHandler),
)

func provideAdminAuthenticator(verifier *trust.Verifier, cfg *config.Config, secrets runtimeutil.SecretProvider) (middleware.Authenticator, error) {
	secret, err := secrets.GetSecret(context.Background(), "JWT_SECRET")
	if err != nil {
		secret = cfg.JWTSecret
	}
	return middleware.NewJWTAuthenticator([]byte(secret))
}

func provideAdminDeps(cfg *config.Config, zapLogger *zap.Logger) interfacehttp.AdminDeps {
	inspector := worker.NewAsynqQueueInspector(asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return interfacehttp.AdminDeps{
		Features: admin.NewFeaturesHandler(runtimeutil.NewInMemoryFeatureFlagStore(), zapLogger),
		Queues:   admin.NewQueuesHandler(inspector, zapLogger),
	}
}

func provideRateLimitMiddleware(cfg *config.Config, engine *ratelimit.Engine) func(http.Handler) http.Handler {
	ipQuota := ratelimit.Quota{
		Dimension:     ratelimit.DimensionIP,
		Algorithm:     ratelimit.AlgorithmSlidingWindow,
		Capacity:      int64(2 * cfg.RateLimitRPS),
		ReplenishRate: float64(cfg.RateLimitRPS),
		WindowSeconds: 60,
	}
	principalQuota := ipQuota
	principalQuota.Dimension = ratelimit.DimensionPrincipal

	return middleware.EngineRateLimit(middleware.EngineRateLimitConfig{
		Engine:         engine,
		PrincipalQuota: &principalQuota,
		IPQuota:        &ipQuota,
		BypassRole:     cfg.RateLimitBypassRole,
		TrustProxy:     cfg.TrustProxy,
	})
}

func provideDeps(
	lc fx.Lifecycle,
	sessions *authsession.Service,
	svc *notification.Service,
	store *template.Store,
	hub *broadcast.Hub,
	verifier *trust.Verifier,
	rateLimit func(http.Handler) http.Handler,
	gateway *interfacehttp.Gateway,
	health healthcheck.Handler,
	authenticator middleware.Authenticator,
	adminDeps interfacehttp.AdminDeps,
	shutdownCoord resilience.ShutdownCoordinator,
	pool postgres.Pooler,
	redisClient *redisinfra.Client,
) *interfacehttp.Deps {
	// The admin surface is low-volume; a process-local token bucket is
	// enough there and keeps cache round trips off the admin path.
	adminLimiter := middleware.NewInMemoryRateLimiter(
		middleware.WithDefaultRate(runtimeutil.NewRate(60, time.Minute)),
	)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			adminLimiter.Stop()
			return nil
		},
	})

	// The public /readyz reports per-dependency status; the internal
	// server's /ready stays on the healthcheck library's endpoint.
	readyz := handlers.NewReadyzHandler(pool)
	if redisClient != nil {
		readyz = readyz.WithRedis(redisClient)
	}

	return &interfacehttp.Deps{
		Auth:           handlers.NewAuthHandler(sessions),
		Notifications:  handlers.NewNotificationHandler(svc),
		Templates:      handlers.NewTemplateHandler(store),
		BroadcastWS:    handlers.NewBroadcastWSHandler(hub),
		Readyz:         readyz,
		Verifier:       verifier,
		RateLimit:      rateLimit,
		Drain:          middleware.Drain(shutdownCoord),
		Authenticator:  authenticator,
		Admin:          adminDeps,
		AdminRateLimit: middleware.RateLimitMiddleware(adminLimiter),
		Gateway:        gateway,
	}
}

func providePublicRouter(cfg *config.Config, deps *interfacehttp.Deps) chi.Router {
	return interfacehttp.NewRouter(cfg, deps)
}

func provideHealthHandler(pool postgres.Pooler, client *redisinfra.Client, cfg *config.Config) healthcheck.Handler {
	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))

	dbCheck := postgres.NewDatabaseHealthChecker(pool)
	health.AddReadinessCheck("database", func() error {
		if pool == nil || pool.Pool() == nil {
			return errDBUnavailable
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.HealthCheckDBTimeout)
		defer cancel()
		_, _, err := dbCheck.CheckHealth(ctx)
		return err
	})

	if client != nil {
		health.AddReadinessCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.HealthCheckDBTimeout)
			defer cancel()
			return wrapper.PingRedis(ctx, client)
		})
	}
	return health
}

// registerDBMetrics exposes pool statistics on the internal registry.
func registerDBMetrics(pool postgres.Pooler, registry *prometheus.Registry, logger *slog.Logger) {
	registry.MustRegister(postgres.NewDBMetrics(pool, logger))
}

// RegisterServers starts the public API server and the internal
// metrics/health server, tied to the fx lifecycle.
// instrumentHTTP records request counts and durations into the registry
// the internal /metrics endpoint serves.
func instrumentHTTP(next http.Handler, m metrics.HTTPMetrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := httpx.NewResponseWriter(w)
		next.ServeHTTP(rw, r)
		m.IncRequest(r.Method, r.URL.Path, strconv.Itoa(rw.StatusCode()))
		m.ObserveRequestDuration(r.Method, r.URL.Path, time.Since(start).Seconds())
	})
}

func RegisterServers(
	lc fx.Lifecycle,
	cfg *config.Config,
	router chi.Router,
	registry *prometheus.Registry,
	httpMetrics metrics.HTTPMetrics,
	health healthcheck.Handler,
	shutdownCoord resilience.ShutdownCoordinator,
	logger *slog.Logger,
) {
	public := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           instrumentHTTP(router, httpMetrics),
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: cfg.HTTPReadHeaderTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		MaxHeaderBytes:    cfg.HTTPMaxHeaderBytes,
	}

	internalMux := chi.NewRouter()
	internalMux.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	internalMux.Get("/live", health.LiveEndpoint)
	internalMux.Get("/ready", health.ReadyEndpoint)
	internal := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.InternalBindAddress, cfg.InternalPort),
		Handler: internalMux,
	}

	serve := func(name string, srv *http.Server) {
		go func() {
			logger.Info("server listening", slog.String("server", name), slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server failed", slog.String("server", name), slog.String("error", err.Error()))
			}
		}()
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			serve("public", public)
			serve("internal", internal)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
			defer cancel()

			// Stop admitting work, drain in-flight requests, then close
			// the listeners.
			shutdownCoord.InitiateShutdown()
			if err := shutdownCoord.WaitForDrain(shutdownCtx); err != nil {
				logger.Warn("drain incomplete at shutdown", slog.String("error", err.Error()))
			}
			if err := public.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return internal.Shutdown(shutdownCtx)
		},
	})
}
