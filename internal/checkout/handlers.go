package checkout

import (
	"encoding/json"
	"errors"
	"net/http"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-lms/internal/common"
	"github.com/noah-isme/backend-lms/internal/payment"
)

type Handler struct {
	Svc       *Service
	Validator *validator.Validate
}

// Checkout handles POST /api/payments/checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	var payload Request
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if h.Validator != nil {
		if err := h.Validator.Struct(payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", validationDetails(err))
			return
		}
	}
	payload.ClientIP = common.ClientIP(r)

	out, err := h.Svc.Checkout(r.Context(), payload)
	if err != nil {
		common.WriteError(w, toAppError(err))
		return
	}
	common.JSON(w, http.StatusOK, out)
}

func toAppError(err error) *common.AppError {
	switch {
	case errors.Is(err, payment.ErrConfiguration):
		return common.NewAppError("PAYMENT_NOT_CONFIGURED", "payment method is not configured", http.StatusBadRequest, err)
	case errors.Is(err, payment.ErrNetwork):
		return common.NewAppError("GATEWAY_UNAVAILABLE", "payment provider unavailable", http.StatusBadRequest, err)
	case errors.Is(err, payment.ErrGateway):
		appErr := common.NewAppError("GATEWAY_ERROR", "payment provider rejected the order", http.StatusBadRequest, err)
		var gwErr *payment.GatewayError
		if errors.As(err, &gwErr) && gwErr.ResultCode != "" {
			appErr.Details = map[string]string{"resultCode": gwErr.ResultCode}
		}
		return appErr
	case errors.Is(err, payment.ErrUnsupportedMethod):
		return common.NewAppError("UNSUPPORTED_METHOD", "payment method not supported", http.StatusBadRequest, err)
	default:
		return common.NewAppError("INTERNAL", "checkout failed", http.StatusInternalServerError, err)
	}
}

func validationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}
