package settlement

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-lms/internal/obs"
	"github.com/noah-isme/backend-lms/internal/resilience"
)

// Processor delivers queued settlements to the LMS callback endpoint.
type Processor struct {
	HTTP        *resilience.HTTPClient
	CallbackURL string
	Logger      zerolog.Logger
}

// Register binds the processor to both settlement task types.
func (p *Processor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskOrderPaid, p.ProcessTask)
	mux.HandleFunc(TaskOrderFailed, p.ProcessTask)
}

// ProcessTask posts the settlement payload to the callback. Malformed payloads
// and 4xx answers are not retried.
func (p *Processor) ProcessTask(ctx context.Context, task *asynq.Task) error {
	ctx, span := otel.Tracer("settlement.Processor").Start(ctx, "Processor.ProcessTask")
	defer span.End()
	span.SetAttributes(attribute.String("task.type", task.Type()))

	s, err := Decode(task.Payload())
	if err != nil {
		obs.CountSettlement(task.Type(), "invalid")
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	span.SetAttributes(attribute.String("order.id", s.OrderID))
	logger := p.Logger.With().Str("order_id", s.OrderID).Str("provider", s.Provider).Str("status", s.Status).Logger()

	if strings.TrimSpace(p.CallbackURL) == "" {
		obs.CountSettlement(task.Type(), "logged")
		logger.Warn().Msg("settlement_callback_not_configured")
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.CallbackURL, bytes.NewReader(task.Payload()))
	if err != nil {
		return fmt.Errorf("build settlement callback: %w: %w", err, asynq.SkipRetry)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Settlement-Type", task.Type())

	resp, err := p.HTTP.Do(ctx, req)
	if err != nil {
		obs.CountSettlement(task.Type(), "retry")
		logger.Warn().Err(err).Msg("settlement_callback_failed")
		return fmt.Errorf("settlement callback: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 400 {
		obs.CountSettlement(task.Type(), "rejected")
		logger.Error().Int("status", resp.StatusCode).Msg("settlement_callback_rejected")
		return fmt.Errorf("settlement callback responded %d: %w", resp.StatusCode, asynq.SkipRetry)
	}
	obs.CountSettlement(task.Type(), "delivered")
	logger.Info().Int("status", resp.StatusCode).Msg("settlement_delivered")
	return nil
}
