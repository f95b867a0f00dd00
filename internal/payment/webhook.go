package payment

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/backend-lms/internal/common"
	"github.com/noah-isme/backend-lms/internal/obs"
	"github.com/noah-isme/backend-lms/internal/settlement"
)

// IPN reply bodies.
const (
	ReplyOK               = "OK"
	ReplyInvalidSignature = "INVALID_SIGNATURE"
	ReplyRetry            = "RETRY"
)

// Webhook handles provider notifications: it verifies them and hands accepted
// outcomes to the settlement marker.
type Webhook struct {
	VNPay  *VNPay
	MoMo   *MoMo
	Marker settlement.Marker
	Logger zerolog.Logger
}

// VNPayIPN handles GET /api/payments/vnpay/ipn.
func (h Webhook) VNPayIPN(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, h.VNPay, nil)
}

// MoMoIPN handles POST /api/payments/momo/ipn.
func (h Webhook) MoMoIPN(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.reject(w, r, momoName, WebhookVerifyResult{Provider: momoName, Err: errors.Join(ErrInvalidPayload, err)})
		return
	}
	h.handle(w, r, h.MoMo, body)
}

// VNPayReturn handles GET /api/payments/vnpay/return, the browser redirect after
// payment. It reports the verified outcome and never settles.
func (h Webhook) VNPayReturn(w http.ResponseWriter, r *http.Request) {
	res := h.VNPay.VerifyQuery(r.URL.Query())
	if !res.Valid {
		h.Logger.Warn().Err(res.Err).Str("provider", vnpayName).Str("order_id", res.OrderID).Msg("payment_return_rejected")
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"valid":      res.Valid,
		"orderId":    res.OrderID,
		"status":     res.Status,
		"resultCode": res.ResultCode,
	})
}

func (h Webhook) handle(w http.ResponseWriter, r *http.Request, verifier Verifier, body []byte) {
	provider := verifierName(verifier)
	ctx, span := otel.Tracer("payment.Webhook").Start(r.Context(), "PaymentWebhook.Handle")
	defer span.End()
	span.SetAttributes(attribute.String("payment.provider", provider))

	if verifier == nil {
		h.reject(w, r, provider, WebhookVerifyResult{Provider: provider, Err: configError(provider, []string{"credentials"})})
		return
	}
	res, err := verifier.VerifyWebhook(r, body)
	if err != nil && res.Err == nil {
		res.Err = err
	}
	if !res.Valid {
		span.SetStatus(codes.Error, "notification rejected")
		h.reject(w, r, provider, res)
		return
	}
	span.SetAttributes(
		attribute.String("order.id", res.OrderID),
		attribute.String("payment.status", res.Status),
	)

	s := settlement.Settlement{
		OrderID:       res.OrderID,
		Provider:      provider,
		Amount:        res.Amount,
		Status:        res.Status,
		TransactionID: res.TransactionID,
		ResultCode:    res.ResultCode,
		OccurredAt:    time.Now().UTC(),
	}
	if err := settlement.Mark(ctx, h.Marker, s); err != nil {
		span.RecordError(err)
		obs.CountIPN(provider, "retry")
		h.Logger.Error().Err(err).Str("provider", provider).Str("order_id", res.OrderID).Msg("payment_settlement_handoff_failed")
		common.Text(w, http.StatusInternalServerError, ReplyRetry)
		return
	}

	obs.CountIPN(provider, "accepted")
	h.Logger.Info().
		Str("provider", provider).
		Str("order_id", res.OrderID).
		Str("status", res.Status).
		Str("result_code", res.ResultCode).
		Int64("amount", res.Amount).
		Msg("payment_ipn_accepted")
	common.Text(w, http.StatusOK, ReplyOK)
}

func (h Webhook) reject(w http.ResponseWriter, r *http.Request, provider string, res WebhookVerifyResult) {
	obs.CountIPN(provider, "rejected")
	h.Logger.Warn().
		Err(res.Err).
		Str("provider", provider).
		Str("order_id", res.OrderID).
		Str("remote_addr", common.ClientIP(r)).
		Msg("payment_ipn_rejected")
	common.Text(w, http.StatusBadRequest, ReplyInvalidSignature)
}

func verifierName(v Verifier) string {
	switch p := v.(type) {
	case *VNPay:
		if p == nil {
			return vnpayName
		}
	case *MoMo:
		if p == nil {
			return momoName
		}
	case nil:
		return "unknown"
	}
	return v.Name()
}
