package resilience

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ClientOptions configures NewHTTPClient.
type ClientOptions struct {
	Target      string
	Timeout     time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
	Jitter      float64
	Breaker     *Breaker
	Logger      *zerolog.Logger
}

// NewHTTPClient builds an instrumented outbound client for a single dependency.
// The per-attempt timeout is applied by HTTPClient, so the underlying client has none.
func NewHTTPClient(opts ClientOptions) *HTTPClient {
	breaker := opts.Breaker
	if breaker == nil {
		breaker = NewBreaker(5, 0.5, 30*time.Second)
	}
	if opts.Target != "" {
		breaker = breaker.WithTarget(opts.Target)
	}
	if opts.Logger != nil {
		breaker = breaker.WithLogger(*opts.Logger)
	}
	return &HTTPClient{
		Client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Breaker:     breaker,
		BaseBackoff: opts.BaseBackoff,
		MaxAttempts: opts.MaxAttempts,
		Jitter:      opts.Jitter,
		Timeout:     opts.Timeout,
		Target:      opts.Target,
		Logger:      opts.Logger,
	}
}
