package payment

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration reports a provider whose credentials or endpoints are missing.
	ErrConfiguration = errors.New("payment: provider not configured")
	// ErrNetwork reports a provider that could not be reached in time.
	ErrNetwork = errors.New("payment: provider unavailable")
	// ErrGateway reports a provider that answered without a payment link.
	ErrGateway = errors.New("payment: provider rejected request")
	// ErrSignatureMismatch reports an inbound notification whose signature is missing or wrong.
	ErrSignatureMismatch = errors.New("payment: signature mismatch")
	// ErrUnsupportedMethod reports a payment method that is not enabled.
	ErrUnsupportedMethod = errors.New("payment: unsupported method")
	// ErrInvalidPayload reports an inbound notification that could not be decoded.
	ErrInvalidPayload = errors.New("payment: invalid notification payload")
)

// GatewayError carries the provider's rejection details. Body holds the raw
// provider response for diagnostics.
type GatewayError struct {
	Provider   string
	ResultCode string
	Message    string
	Body       []byte
}

func (e *GatewayError) Error() string {
	if e == nil {
		return ErrGateway.Error()
	}
	return fmt.Sprintf("payment: %s rejected request (resultCode=%s): %s", e.Provider, e.ResultCode, e.Message)
}

// Unwrap lets errors.Is match ErrGateway.
func (e *GatewayError) Unwrap() error {
	return ErrGateway
}

func configError(provider string, missing []string) error {
	return fmt.Errorf("%w: %s missing %s", ErrConfiguration, provider, strings.Join(missing, ", "))
}

func networkError(provider string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrNetwork, provider, err)
}
