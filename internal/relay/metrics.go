package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics holds the relay's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	Logins       *prometheus.CounterVec
	Callbacks    *prometheus.CounterVec
	StepDuration *prometheus.HistogramVec
}

// NewMetrics registers the relay collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authrelay_logins_total",
			Help: "Login requests by outcome",
		}, []string{"outcome"}),
		Callbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authrelay_callbacks_total",
			Help: "Callback requests by outcome and the stage they ended in",
		}, []string{"outcome", "stage"}),
		StepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authrelay_step_duration_seconds",
			Help:    "Duration of outbound relay steps",
			Buckets: prometheus.DefBuckets,
		}, []string{"step", "outcome"}),
	}
}

func (m *Metrics) observeLogin(err error) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) observeCallback(stage Stage, err error) {
	if m == nil {
		return
	}
	m.Callbacks.WithLabelValues(outcome(err), stage.String()).Inc()
}

func (m *Metrics) observeStep(step string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.StepDuration.WithLabelValues(step, outcome(err)).Observe(seconds)
}

func outcome(err error) string {
	if err != nil {
		return outcomeFailure
	}
	return outcomeSuccess
}
