package payment

import "net/http"

// Settlement outcomes reported by the verifiers.
const (
	StatusPaid   = "PAID"
	StatusFailed = "FAILED"
)

// WebhookVerifyResult contains the normalised data extracted from a provider
// notification. Valid only reports authenticity; Status carries the provider's
// reported outcome.
type WebhookVerifyResult struct {
	Valid           bool
	Provider        string
	OrderID         string
	Amount          int64
	Status          string
	ResultCode      string
	TransactionID   string
	ProviderPayload []byte
	Err             error
}

// Paid reports whether an authentic notification carries a successful outcome.
func (r WebhookVerifyResult) Paid() bool {
	return r.Valid && r.Status == StatusPaid
}

// Verifier abstracts inbound notification verification for a provider.
type Verifier interface {
	Name() string
	VerifyWebhook(r *http.Request, body []byte) (WebhookVerifyResult, error)
}
