package authcore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the core's prometheus instruments. All methods are
// nil-safe so an unmetered Core costs nothing.
type Metrics struct {
	gateRequests    *prometheus.CounterVec
	resetRequests   prometheus.Counter
	resetConsumes   *prometheus.CounterVec
	twoFactorChecks *prometheus.CounterVec
}

// NewMetrics registers the core's collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gateRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Subsystem: "gate",
			Name:      "requests_total",
			Help:      "Trust gate outcomes per request.",
		}, []string{"outcome"}),
		resetRequests: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "authcore",
			Subsystem: "reset",
			Name:      "requests_total",
			Help:      "Password reset tokens issued.",
		}),
		resetConsumes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Subsystem: "reset",
			Name:      "consumes_total",
			Help:      "Password reset consumption attempts by outcome.",
		}, []string{"outcome"}),
		twoFactorChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Subsystem: "two_factor",
			Name:      "verifications_total",
			Help:      "Two-factor verification attempts by method and outcome.",
		}, []string{"method", "outcome"}),
	}
}

// Gate outcomes, the label values of authcore_gate_requests_total.
const (
	GateOutcomePublic        = "public"
	GateOutcomeAnonymous     = "anonymous"
	GateOutcomeAuthenticated = "authenticated"
	GateOutcomeRejectedToken = "rejected_token"
)

// ObserveGate records one trust-gate decision.
func (m *Metrics) ObserveGate(outcome string) {
	if m == nil {
		return
	}
	m.gateRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeResetRequest() {
	if m == nil {
		return
	}
	m.resetRequests.Inc()
}

func (m *Metrics) observeResetConsume(outcome string) {
	if m == nil {
		return
	}
	m.resetConsumes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeTwoFactor(method, outcome string) {
	if m == nil {
		return
	}
	m.twoFactorChecks.WithLabelValues(method, outcome).Inc()
}
