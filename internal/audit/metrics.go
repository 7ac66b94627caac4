package audit

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/baechuer/account-service/internal/domain"
)

// MetricsSubscriber counts audit events by action and outcome.
type MetricsSubscriber struct {
	events *prometheus.CounterVec
}

// NewMetricsSubscriber registers its collectors on reg; nil means the default
// registerer.
func NewMetricsSubscriber(reg prometheus.Registerer) *MetricsSubscriber {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &MetricsSubscriber{
		events: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "account",
				Name:      "audit_events_total",
				Help:      "Total number of audit events by action and outcome",
			},
			[]string{"action", "outcome"},
		),
	}
}

func (m *MetricsSubscriber) Handle(_ context.Context, evt domain.AuditEvent) error {
	m.events.WithLabelValues(evt.Action, string(evt.Outcome)).Inc()
	return nil
}
