package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-lms/internal/obs"
	"github.com/noah-isme/backend-lms/internal/payment"
	"github.com/noah-isme/backend-lms/internal/settlement"
)

const orderIDLength = 12

// Request is the checkout input. Amount is left untyped so numbers and numeric
// strings are both accepted.
type Request struct {
	Method    string `json:"method" validate:"max=32"`
	Amount    any    `json:"amount"`
	CourseKey string `json:"course_key" validate:"omitempty,max=128"`
	CourseID  any    `json:"course_id,omitempty"`
	ClientIP  string `json:"-"`
}

// Result is returned to the client for every payment method.
type Result struct {
	RedirectURL string `json:"redirectUrl,omitempty"`
	Provider    string `json:"provider"`
	OrderID     string `json:"orderId"`
	Paid        bool   `json:"paid,omitempty"`
	Status      string `json:"status,omitempty"`
}

// RedirectBuilder signs a provider URL the customer is redirected to.
type RedirectBuilder interface {
	BuildRedirectURL(orderID string, amount int64, description, clientIP string) (string, error)
}

// OrderCreator registers an order with a provider API and returns its payment URL.
type OrderCreator interface {
	CreateOrder(ctx context.Context, orderID string, amount int64, description string) (string, error)
}

type Service struct {
	VNPay          RedirectBuilder
	MoMo           OrderCreator
	Marker         settlement.Marker
	OfflineEnabled bool
	Logger         zerolog.Logger
	NewOrderID     func() string
	Now            func() time.Time
}

// NewOrderID returns a fresh 12 character lowercase hex order id.
func NewOrderID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:orderIDLength]
}

// Description renders the order description shown by the provider.
func Description(courseKey, orderID string) string {
	if key := strings.TrimSpace(courseKey); key != "" {
		return "Payment for course " + key
	}
	return "Payment for course " + orderID
}

// Checkout starts a payment for req. The same order id is returned on every path.
func (s *Service) Checkout(ctx context.Context, req Request) (Result, error) {
	method := payment.ParseMethod(req.Method)
	ctx, span := otel.Tracer("checkout.Service").Start(ctx, "CheckoutService.Checkout")
	defer span.End()

	outcome := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("payment.method", string(method)),
			attribute.String("checkout.result", outcome),
		)
		obs.CountCheckout(method.Label(), outcome)
	}()

	newID := s.NewOrderID
	if newID == nil {
		newID = NewOrderID
	}
	orderID := newID()
	amount := NormaliseAmount(req.Amount)
	description := Description(req.CourseKey, orderID)
	span.SetAttributes(attribute.String("order.id", orderID), attribute.Int64("order.amount", amount))

	logger := s.Logger.With().Str("order_id", orderID).Str("method", string(method)).Int64("amount", amount).Logger()
	res := Result{Provider: string(method), OrderID: orderID}

	switch method {
	case payment.MethodVNPay:
		if s.VNPay == nil {
			outcome = "not_configured"
			return res, fmt.Errorf("%w: vnpay", payment.ErrConfiguration)
		}
		url, err := s.VNPay.BuildRedirectURL(orderID, amount, description, req.ClientIP)
		if err != nil {
			outcome = errorOutcome(err)
			span.RecordError(err)
			logger.Error().Err(err).Msg("checkout_vnpay_failed")
			return res, err
		}
		res.RedirectURL = url
	case payment.MethodMoMo:
		if s.MoMo == nil {
			outcome = "not_configured"
			return res, fmt.Errorf("%w: momo", payment.ErrConfiguration)
		}
		url, err := s.MoMo.CreateOrder(ctx, orderID, amount, description)
		if err != nil {
			outcome = errorOutcome(err)
			span.RecordError(err)
			logger.Error().Err(err).Msg("checkout_momo_failed")
			return res, err
		}
		res.RedirectURL = url
	default:
		if !s.OfflineEnabled {
			outcome = "unsupported"
			return res, fmt.Errorf("%w: %q", payment.ErrUnsupportedMethod, strings.TrimSpace(req.Method))
		}
		now := time.Now
		if s.Now != nil {
			now = s.Now
		}
		err := settlement.Mark(ctx, s.Marker, settlement.Settlement{
			OrderID:    orderID,
			Provider:   payment.MethodOffline.Label(),
			Amount:     amount,
			Status:     settlement.StatusPaid,
			OccurredAt: now().UTC(),
		})
		if err != nil {
			span.RecordError(err)
			logger.Error().Err(err).Msg("checkout_offline_settlement_failed")
			return res, fmt.Errorf("offline settlement: %w", err)
		}
		logger.Warn().
			Str("requested_method", req.Method).
			Str("client_ip", req.ClientIP).
			Msg("checkout_offline_marked_paid")
		res.Paid = true
		res.Status = settlement.StatusPaid
	}

	outcome = "ok"
	logger.Info().Str("course_key", req.CourseKey).Msg("checkout_started")
	return res, nil
}

func errorOutcome(err error) string {
	switch {
	case errors.Is(err, payment.ErrConfiguration):
		return "not_configured"
	case errors.Is(err, payment.ErrNetwork):
		return "unavailable"
	case errors.Is(err, payment.ErrGateway):
		return "gateway_error"
	default:
		return "error"
	}
}
