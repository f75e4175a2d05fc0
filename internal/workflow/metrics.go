package workflow

import "github.com/prometheus/client_golang/prometheus"

// Metrics is safe to use as a nil pointer; nothing is recorded then.
type Metrics struct {
	runs          *prometheus.CounterVec
	stepsExecuted *prometheus.CounterVec
	stepsReplayed *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "subtracker",
			Subsystem: "workflow",
			Name:      "invocations_total",
			Help:      "Workflow invocations by outcome.",
		}, []string{"workflow", "outcome"}),
		stepsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "subtracker",
			Subsystem: "workflow",
			Name:      "steps_executed_total",
			Help:      "Steps whose function ran and whose result was recorded.",
		}, []string{"workflow"}),
		stepsReplayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "subtracker",
			Subsystem: "workflow",
			Name:      "steps_replayed_total",
			Help:      "Steps answered from the step log on resumption.",
		}, []string{"workflow"}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.stepsExecuted, m.stepsReplayed)
	}
	return m
}

func (m *Metrics) invocation(workflow, outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(workflow, outcome).Inc()
}

func (m *Metrics) stepExecuted(workflow string) {
	if m == nil {
		return
	}
	m.stepsExecuted.WithLabelValues(workflow).Inc()
}

func (m *Metrics) stepReplayed(workflow string) {
	if m == nil {
		return
	}
	m.stepsReplayed.WithLabelValues(workflow).Inc()
}
