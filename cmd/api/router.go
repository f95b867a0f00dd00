package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-lms/internal/app"
	"github.com/noah-isme/backend-lms/internal/checkout"
	"github.com/noah-isme/backend-lms/internal/common"
	"github.com/noah-isme/backend-lms/internal/config"
	"github.com/noah-isme/backend-lms/internal/health"
	"github.com/noah-isme/backend-lms/internal/obs"
	"github.com/noah-isme/backend-lms/internal/ratelimit"
	"github.com/noah-isme/backend-lms/internal/security"
)

type routerOptions struct {
	Metrics *obs.HTTPMetrics
	Tracing bool
}

func newRouter(cfg *config.Config, deps *app.Dependencies, logger zerolog.Logger, opts routerOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if opts.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if opts.Metrics != nil {
		r.Use(obs.HTTPObs{Metrics: opts.Metrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{
		Enable:     cfg.SecurityHeadersEnabled,
		EnableHSTS: cfg.SecurityHSTSEnabled,
		HSTSMaxAge: cfg.SecurityHSTSMaxAge,
	}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", common.IdempotencyHeader, "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		MaxAge:         300,
	}))

	if opts.Metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{Checker: health.RedisChecker{Client: deps.Redis}}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	checkoutHandler := &checkout.Handler{Svc: deps.Checkout, Validator: deps.Validator}
	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}
	limit := ratelimit.Handler{
		Limiter: deps.Limiter,
		Config: ratelimit.Config{
			Key:    ratelimit.ByClientIP("checkout:"),
			Window: cfg.CheckoutRateWindow,
			Max:    cfg.CheckoutRateLimit,
		},
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("checkout_rate_limit_unavailable")
		},
	}
	ipnLimit := security.BodyLimit{Max: cfg.IPNBodyLimitBytes}

	r.Route("/api/payments", func(p chi.Router) {
		p.With(limit.Middleware, idem.Middleware).Post("/checkout", checkoutHandler.Checkout)

		p.Group(func(ipn chi.Router) {
			ipn.Use(ipnLimit.Middleware)
			ipn.Get("/vnpay/ipn", deps.Webhook.VNPayIPN)
			ipn.Post("/momo/ipn", deps.Webhook.MoMoIPN)
		})
		p.Get("/vnpay/return", deps.Webhook.VNPayReturn)
	})

	return r
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}
