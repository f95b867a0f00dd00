package settlement

import (
	"context"

	"github.com/rs/zerolog"
)

// LogMarker only logs settlements. Used when no queue is configured.
type LogMarker struct {
	Logger zerolog.Logger
}

// MarkPaid logs a paid settlement.
func (l LogMarker) MarkPaid(_ context.Context, s Settlement) error {
	l.log(s.normalised(StatusPaid))
	return nil
}

// MarkFailed logs a failed settlement.
func (l LogMarker) MarkFailed(_ context.Context, s Settlement) error {
	l.log(s.normalised(StatusFailed))
	return nil
}

func (l LogMarker) log(s Settlement) {
	l.Logger.Info().
		Str("order_id", s.OrderID).
		Str("provider", s.Provider).
		Str("status", s.Status).
		Int64("amount", s.Amount).
		Str("transaction_id", s.TransactionID).
		Str("result_code", s.ResultCode).
		Msg("settlement_recorded")
}
