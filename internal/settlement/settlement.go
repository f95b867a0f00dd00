// Package settlement hands verified payment outcomes to the LMS core, which owns
// order and enrollment state.
package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Task types carried on the settlement queue.
const (
	TaskOrderPaid   = "settlement:order_paid"
	TaskOrderFailed = "settlement:order_failed"
)

// Settlement outcomes.
const (
	StatusPaid   = "PAID"
	StatusFailed = "FAILED"
)

// Settlement describes a verified outcome for one order.
type Settlement struct {
	OrderID       string    `json:"orderId"`
	Provider      string    `json:"provider"`
	Amount        int64     `json:"amount"`
	Status        string    `json:"status"`
	TransactionID string    `json:"transactionId,omitempty"`
	ResultCode    string    `json:"resultCode,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// Marker records order outcomes with the system that owns orders.
type Marker interface {
	MarkPaid(ctx context.Context, s Settlement) error
	MarkFailed(ctx context.Context, s Settlement) error
}

// Mark dispatches s to MarkPaid or MarkFailed based on its status.
func Mark(ctx context.Context, m Marker, s Settlement) error {
	if m == nil {
		return fmt.Errorf("settlement: no marker configured")
	}
	if s.Status == StatusPaid {
		return m.MarkPaid(ctx, s)
	}
	return m.MarkFailed(ctx, s)
}

func (s Settlement) normalised(status string) Settlement {
	s.Status = status
	s.Provider = strings.ToLower(strings.TrimSpace(s.Provider))
	if s.OccurredAt.IsZero() {
		s.OccurredAt = time.Now().UTC()
	}
	return s
}

func taskType(status string) string {
	if status == StatusPaid {
		return TaskOrderPaid
	}
	return TaskOrderFailed
}

// Encode serialises the settlement as a task payload.
func (s Settlement) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// Decode parses a task payload produced by Encode.
func Decode(payload []byte) (Settlement, error) {
	var s Settlement
	if err := json.Unmarshal(payload, &s); err != nil {
		return Settlement{}, fmt.Errorf("decode settlement: %w", err)
	}
	if strings.TrimSpace(s.OrderID) == "" {
		return Settlement{}, fmt.Errorf("decode settlement: missing order id")
	}
	return s, nil
}
