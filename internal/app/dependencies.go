package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-lms/internal/checkout"
	"github.com/noah-isme/backend-lms/internal/config"
	"github.com/noah-isme/backend-lms/internal/payment"
	"github.com/noah-isme/backend-lms/internal/ratelimit"
	"github.com/noah-isme/backend-lms/internal/resilience"
	"github.com/noah-isme/backend-lms/internal/settlement"
)

// Dependencies enumerates the services shared by the API binary and the operator CLI.
type Dependencies struct {
	Redis      *redis.Client
	TaskClient *asynq.Client
	Validator  *validator.Validate
	Limiter    ratelimit.Limiter
	VNPay      *payment.VNPay
	MoMo       *payment.MoMo
	Marker     settlement.Marker
	Checkout   *checkout.Service
	Webhook    payment.Webhook
}

// Options tune Build. Instrument enables redisotel tracing and metrics.
type Options struct {
	Instrument bool
}

// Build wires adapters, the settlement chain and the checkout service from cfg.
// Without REDIS_URL the service runs degraded: settlements are only logged and
// rate limiting is per process.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*Dependencies, error) {
	deps := &Dependencies{Validator: validator.New(validator.WithRequiredStructEnabled())}

	if cfg.RedisURL != "" {
		rdb, err := NewRedis(ctx, cfg.RedisURL, logger, opts.Instrument)
		if err != nil {
			return nil, err
		}
		deps.Redis = rdb

		redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("parse settlement queue redis url: %w", err)
		}
		deps.TaskClient = asynq.NewClient(redisOpt)
	}

	deps.VNPay = payment.NewVNPay(cfg.VNPayConfig())

	momoLogger := logger.With().Str("component", "momo").Logger()
	momo, err := payment.NewMoMo(cfg.MoMoConfig(), NewMoMoClient(cfg, momoLogger), logger)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.MoMo = momo

	var tasks settlement.Enqueuer
	if deps.TaskClient != nil {
		tasks = deps.TaskClient
	}
	deps.Marker = NewMarker(cfg, deps.Redis, tasks, logger)
	deps.Limiter = NewLimiter(deps.Redis)

	deps.Checkout = &checkout.Service{
		VNPay:          deps.VNPay,
		MoMo:           deps.MoMo,
		Marker:         deps.Marker,
		OfflineEnabled: cfg.PaymentOfflineEnabled,
		Logger:         logger.With().Str("component", "checkout").Logger(),
	}
	deps.Webhook = payment.Webhook{
		VNPay:  deps.VNPay,
		MoMo:   deps.MoMo,
		Marker: deps.Marker,
		Logger: logger.With().Str("component", "ipn").Logger(),
	}
	return deps, nil
}

// NewRedis parses url, optionally instruments the client and pings it.
func NewRedis(ctx context.Context, url string, logger zerolog.Logger, instrument bool) (*redis.Client, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if instrument {
		if err := redisotel.InstrumentTracing(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewMoMoClient returns the outbound MoMo client. Create-order calls are not
// idempotent on the provider side, so a single attempt is made per checkout.
func NewMoMoClient(cfg *config.Config, logger zerolog.Logger) *resilience.HTTPClient {
	return resilience.NewHTTPClient(resilience.ClientOptions{
		Target:      "momo",
		Timeout:     cfg.MoMo.Timeout,
		MaxAttempts: 1,
		Breaker:     resilience.NewBreaker(cfg.CircuitMoMoMinReq, cfg.CircuitMoMoFailureRate, cfg.CircuitMoMoOpenFor),
		Logger:      &logger,
	})
}

// NewCallbackClient returns the client the worker uses to deliver settlements.
func NewCallbackClient(cfg *config.Config, logger zerolog.Logger) *resilience.HTTPClient {
	return resilience.NewHTTPClient(resilience.ClientOptions{
		Target:      "settlement_callback",
		Timeout:     cfg.SettlementTimeout,
		MaxAttempts: 3,
		BaseBackoff: cfg.SettlementRetryBase,
		Jitter:      0.2,
		Breaker:     resilience.NewBreaker(cfg.CircuitSettleMinReq, cfg.CircuitSettleFailRate, cfg.CircuitSettleOpenFor),
		Logger:      &logger,
	})
}

// NewMarker builds the settlement chain: Dedup over QueueMarker when Redis is
// available, LogMarker otherwise.
func NewMarker(cfg *config.Config, rdb *redis.Client, tasks settlement.Enqueuer, logger zerolog.Logger) settlement.Marker {
	markerLogger := logger.With().Str("component", "settlement").Logger()
	if rdb == nil || tasks == nil {
		markerLogger.Warn().Msg("settlement_queue_disabled")
		return settlement.LogMarker{Logger: markerLogger}
	}
	return settlement.Dedup{
		Next: settlement.QueueMarker{
			Client:    tasks,
			Queue:     cfg.SettlementQueue,
			MaxRetry:  cfg.SettlementMaxRetry,
			Retention: cfg.SettlementRetentionTime,
			Logger:    markerLogger,
		},
		Redis:  rdb,
		TTL:    cfg.SettlementDedupTTL,
		Logger: markerLogger,
	}
}

// NewLimiter prefers the shared Redis window and falls back to process memory.
func NewLimiter(rdb *redis.Client) ratelimit.Limiter {
	if rdb == nil {
		return ratelimit.NewMemoryLimiter()
	}
	return ratelimit.RedisLimiter{Client: rdb, Prefix: "ratelimit:"}
}

// Close releases the Redis connections.
func (d *Dependencies) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	if d.TaskClient != nil {
		errs = append(errs, d.TaskClient.Close())
	}
	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}
	return errors.Join(errs...)
}
