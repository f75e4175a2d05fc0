package mail

import "github.com/prometheus/client_golang/prometheus"

const (
	resultSent   = "sent"
	resultFailed = "failed"
)

// Metrics is safe to use as a nil pointer.
type Metrics struct {
	reminders *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "subtracker",
			Subsystem: "mail",
			Name:      "reminders_total",
			Help:      "Reminder emails by template and result.",
		}, []string{"template", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.reminders)
	}
	return m
}

func (m *Metrics) reminder(id TemplateID, result string) {
	if m == nil {
		return
	}
	m.reminders.WithLabelValues(string(id), result).Inc()
}
