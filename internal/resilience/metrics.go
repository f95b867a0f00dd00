package resilience

import "github.com/prometheus/client_golang/prometheus"

// Breaker collectors are labelled by the outbound dependency, e.g. "momo" or
// "settlement_callback".
var (
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_breaker_state",
			Help: "Current outbound breaker state: 0=closed,1=open,2=half-open",
		},
		[]string{"target"},
	)
	BreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_breaker_transition_total",
			Help: "Count of outbound breaker state transitions",
		},
		[]string{"target", "from", "to"},
	)
	BreakerOpenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_breaker_open_total",
			Help: "Number of times an outbound breaker opened",
		},
		[]string{"target"},
	)
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal)
}

func recordState(target string, s State) {
	var v float64
	switch s {
	case Open:
		v = 1
	case HalfOpen:
		v = 2
	}
	BreakerState.WithLabelValues(target).Set(v)
}

func recordTransition(target string, from, to State) {
	BreakerTransitions.WithLabelValues(target, from.String(), to.String()).Inc()
	if to == Open {
		BreakerOpenedTotal.WithLabelValues(target).Inc()
	}
}
