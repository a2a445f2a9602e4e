package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	gateDecisions      *prometheus.CounterVec
	escalations        *prometheus.CounterVec
	sideEffectFailures *prometheus.CounterVec
	counterTouches     *prometheus.CounterVec
}

// NewPrometheusRecorder registers the intake metrics with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		gateDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_gate_decisions_total",
				Help: "Total number of intake gate decisions by outcome",
			},
			[]string{"decision"},
		),
		escalations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_escalations_total",
				Help: "Total number of escalation requests by source and result",
			},
			[]string{"source", "result"},
		),
		sideEffectFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_side_effect_failures_total",
				Help: "Total number of failed best-effort escalation steps",
			},
			[]string{"step"},
		),
		counterTouches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_counter_touch_total",
				Help: "Total number of conversation counter writes by path",
			},
			[]string{"path"},
		),
	}
}

func (p *PrometheusRecorder) IncGateDecision(decision string) {
	p.gateDecisions.WithLabelValues(decision).Inc()
}

func (p *PrometheusRecorder) IncEscalation(source, result string) {
	p.escalations.WithLabelValues(source, result).Inc()
}

func (p *PrometheusRecorder) IncSideEffectFailure(step string) {
	p.sideEffectFailures.WithLabelValues(step).Inc()
}

func (p *PrometheusRecorder) IncCounterTouch(path string) {
	p.counterTouches.WithLabelValues(path).Inc()
}
