package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-lms/internal/app"
	"github.com/noah-isme/backend-lms/internal/config"
	"github.com/noah-isme/backend-lms/internal/obs"
	"github.com/noah-isme/backend-lms/internal/resilience"
	"github.com/noah-isme/backend-lms/internal/settlement"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RedisURL == "" {
		logger.Fatal().Msg("REDIS_URL is required for the settlement worker")
	}
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	if cfg.EnablePrometheus {
		obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)
	}
	if cfg.SettlementCallbackURL == "" {
		logger.Warn().Msg("SETTLEMENT_CALLBACK_URL not set; settlements will only be logged")
	}

	processor := &settlement.Processor{
		HTTP:        app.NewCallbackClient(cfg, logger),
		CallbackURL: cfg.SettlementCallbackURL,
		Logger:      logger,
	}
	mux := asynq.NewServeMux()
	processor.Register(mux)

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     cfg.WorkerConcurrency,
		Queues:          map[string]int{cfg.SettlementQueue: 1},
		ShutdownTimeout: cfg.ShutdownTimeout,
		RetryDelayFunc:  retryDelay(cfg.SettlementRetryBase),
		ErrorHandler:    errorHandler(logger),
		Logger:          asynqLogger{logger: logger},
	})

	logger.Info().Str("queue", cfg.SettlementQueue).Int("concurrency", cfg.WorkerConcurrency).Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}

	<-ctx.Done()
	logger.Info().Msg("shutdown_started")
	srv.Shutdown()
	logger.Info().Msg("shutdown_complete")
}

// retryDelay backs off exponentially from base, capped at ten minutes.
func retryDelay(base time.Duration) asynq.RetryDelayFunc {
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		if n > 16 {
			return 10 * time.Minute
		}
		d := resilience.Backoff(base, n+1, 0.2)
		if d > 10*time.Minute {
			return 10 * time.Minute
		}
		return d
	}
}

func errorHandler(logger zerolog.Logger) asynq.ErrorHandler {
	return asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		logger.Error().
			Err(err).
			Str("task", task.Type()).
			Int("retried", retried).
			Int("max_retry", maxRetry).
			Msg("settlement_task_failed")
	})
}

// asynqLogger routes asynq's internal logging through zerolog.
type asynqLogger struct {
	logger zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }
