package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PaymentCheckoutTotal counts checkout attempts by provider and outcome.
	PaymentCheckoutTotal *prometheus.CounterVec
	// PaymentIPNTotal counts inbound payment notifications by provider and verdict.
	PaymentIPNTotal *prometheus.CounterVec
	// PaymentProviderLatency records outbound provider call latency in milliseconds.
	PaymentProviderLatency *prometheus.HistogramVec
	// SettlementTotal counts settlement hand-offs by kind and outcome.
	SettlementTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PaymentCheckoutTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_checkout_total",
			Help:      "Count of checkout attempts by provider and outcome.",
		}, []string{"provider", "result"}))
		PaymentIPNTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_ipn_total",
			Help:      "Count of inbound payment notifications by verdict.",
		}, []string{"provider", "result"}))
		PaymentProviderLatency = registerOrReuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_provider_request_duration_ms",
			Help:      "Latency of outbound payment provider calls in milliseconds.",
			Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"provider", "result"}))
		SettlementTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_settlement_total",
			Help:      "Count of settlement hand-offs by kind and outcome.",
		}, []string{"kind", "result"}))
	})
}

// CountCheckout increments the checkout counter when domain metrics are registered.
func CountCheckout(provider, result string) {
	if PaymentCheckoutTotal != nil {
		PaymentCheckoutTotal.WithLabelValues(provider, result).Inc()
	}
}

// CountIPN increments the notification counter when domain metrics are registered.
func CountIPN(provider, result string) {
	if PaymentIPNTotal != nil {
		PaymentIPNTotal.WithLabelValues(provider, result).Inc()
	}
}

// CountSettlement increments the settlement counter when domain metrics are registered.
func CountSettlement(kind, result string) {
	if SettlementTotal != nil {
		SettlementTotal.WithLabelValues(kind, result).Inc()
	}
}

// ObserveProviderLatency records an outbound provider call duration in milliseconds.
func ObserveProviderLatency(provider, result string, ms float64) {
	if PaymentProviderLatency != nil {
		PaymentProviderLatency.WithLabelValues(provider, result).Observe(ms)
	}
}
