package application

import "github.com/prometheus/client_golang/prometheus"

const (
	metricsNamespace = "ssp"
	// invalidPushEventLabel replaces the type of malformed push events, whose
	// type is relay controlled.
	invalidPushEventLabel = "invalid"
)

// Metrics are the counters updated by the application services. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	wkSignOutcomes *prometheus.CounterVec
	pushEvents     *prometheus.CounterVec
	hydrations     *prometheus.CounterVec
}

// NewMetrics creates the application counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		wkSignOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "wksign",
			Name:      "requests_total",
			Help:      "Number of wkSign requests by terminal state.",
		}, []string{"mode", "state"}),
		pushEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "wksign",
			Name:      "push_events_total",
			Help:      "Number of relay push events by type and whether they matched a pending request.",
		}, []string{"type", "matched"}),
		hydrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "hydration",
			Name:      "activations_total",
			Help:      "Number of chain activations by chain and result.",
		}, []string{"chain", "result"}),
	}

	for _, c := range []prometheus.Collector{
		m.wkSignOutcomes, m.pushEvents, m.hydrations,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) wkSignOutcome(mode, state string) {
	if m == nil {
		return
	}
	m.wkSignOutcomes.WithLabelValues(mode, state).Inc()
}

func (m *Metrics) pushEvent(eventType string, matched bool) {
	if m == nil {
		return
	}
	label := "false"
	if matched {
		label = "true"
	}
	m.pushEvents.WithLabelValues(eventType, label).Inc()
}

func (m *Metrics) hydration(chain, result string) {
	if m == nil {
		return
	}
	m.hydrations.WithLabelValues(chain, result).Inc()
}
