// Package metrics exposes Prometheus collectors for the message pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hostel-agent/internal/breaker"
)

const namespace = "hostel_agent"

// Metrics holds every collector. It implements the observer ports of the
// persistence, llm and escalation packages.
type Metrics struct {
	messages       *prometheus.CounterVec
	rateLimited    prometheus.Counter
	providerCalls  *prometheus.CounterVec
	providerTime   *prometheus.HistogramVec
	breakerChanges *prometheus.CounterVec
	breakerOpen    *prometheus.GaugeVec
	persist        *prometheus.CounterVec
	escalations    *prometheus.CounterVec
	registerer     prometheus.Registerer
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound messages by the route that handled them.",
		}, []string{"route"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Inbound messages rejected by the per-sender rate limit.",
		}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "LLM provider attempts by outcome.",
		}, []string{"provider", "outcome"}),
		providerTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of LLM provider calls that were attempted.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}, []string{"provider"}),
		breakerChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker mode changes.",
		}, []string{"provider", "to"}),
		breakerOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_open",
			Help:      "1 when the provider's breaker is not closed.",
		}, []string{"provider"}),
		persist: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_operations_total",
			Help:      "Durable store operations by result.",
		}, []string{"op", "result"}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalation_events_total",
			Help:      "Operator escalation chain events.",
		}, []string{"event"}),
		registerer: reg,
	}
	reg.MustRegister(
		m.messages,
		m.rateLimited,
		m.providerCalls,
		m.providerTime,
		m.breakerChanges,
		m.breakerOpen,
		m.persist,
		m.escalations,
	)
	return m
}

// MessageHandled counts an inbound message under route.
func (m *Metrics) MessageHandled(route string) {
	m.messages.WithLabelValues(route).Inc()
}

func (m *Metrics) RateLimited() {
	m.rateLimited.Inc()
}

// ProviderResult implements llm.Observer.
func (m *Metrics) ProviderResult(provider, outcome string, elapsed time.Duration) {
	m.providerCalls.WithLabelValues(provider, outcome).Inc()
	if elapsed > 0 {
		m.providerTime.WithLabelValues(provider).Observe(elapsed.Seconds())
	}
}

// BreakerTransition is a breaker.TransitionHook.
func (m *Metrics) BreakerTransition(id string, _, to breaker.Mode) {
	m.breakerChanges.WithLabelValues(id, string(to)).Inc()
	open := 0.0
	if to != breaker.Closed {
		open = 1
	}
	m.breakerOpen.WithLabelValues(id).Set(open)
}

// PersistResult implements persistence.Observer.
func (m *Metrics) PersistResult(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.persist.WithLabelValues(op, result).Inc()
}

// EscalationEvent implements escalation.Observer.
func (m *Metrics) EscalationEvent(event string) {
	m.escalations.WithLabelValues(event).Inc()
}

// RegisterActiveConversations exposes fn as the live conversation gauge.
func (m *Metrics) RegisterActiveConversations(fn func() float64) {
	m.registerer.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_conversations",
		Help:      "Conversations currently held in memory.",
	}, fn))
}

// Handler serves the metrics in g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
