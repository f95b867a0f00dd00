package payment

import "strings"

// Method selects how a checkout is paid.
type Method string

const (
	MethodVNPay   Method = "VNPAY"
	MethodMoMo    Method = "MOMO"
	MethodOffline Method = "OFFLINE"
)

// ParseMethod maps client input onto a Method. Matching is case-insensitive and
// anything unrecognised is treated as offline payment.
func ParseMethod(raw string) Method {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(MethodVNPay):
		return MethodVNPay
	case string(MethodMoMo):
		return MethodMoMo
	default:
		return MethodOffline
	}
}

// Label returns the lowercase provider label used in logs and metrics.
func (m Method) Label() string {
	return strings.ToLower(string(m))
}
