package checkout

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// maxAmount keeps amount*100 within int64 for providers that sign minor units.
var maxAmount = decimal.NewFromInt(math.MaxInt64 / 100)

// NormaliseAmount converts a client supplied amount into whole currency units.
// Fractions are truncated; negative, non-numeric, absent or unrepresentable
// values become zero.
func NormaliseAmount(v any) int64 {
	var (
		d   decimal.Decimal
		err error
	)
	switch val := v.(type) {
	case nil:
		return 0
	case json.Number:
		d, err = decimal.NewFromString(val.String())
	case string:
		d, err = decimal.NewFromString(strings.TrimSpace(val))
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return 0
		}
		d = decimal.NewFromFloat(val)
	case float32:
		if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return 0
		}
		d = decimal.NewFromFloat32(val)
	case int:
		d = decimal.NewFromInt(int64(val))
	case int32:
		d = decimal.NewFromInt32(val)
	case int64:
		d = decimal.NewFromInt(val)
	default:
		return 0
	}
	if err != nil || d.IsNegative() {
		return 0
	}
	d = d.Truncate(0)
	if d.GreaterThan(maxAmount) {
		return 0
	}
	return d.IntPart()
}
