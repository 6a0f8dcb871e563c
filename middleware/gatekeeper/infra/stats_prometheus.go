package infra

import (
	"context"

	"s2r-gateway/middleware/gatekeeper/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusStatsStore expõe os desfechos como contadores Prometheus.
//
// Identidade não vira label (cardinalidade ilimitada).
type PrometheusStatsStore struct {
	outcomes *prometheus.CounterVec
	rejects  *prometheus.CounterVec
}

func NewPrometheusStatsStore(reg prometheus.Registerer) (*PrometheusStatsStore, error) {
	s := &PrometheusStatsStore{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "s2r",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Conversion requests by outcome.",
		}, []string{"outcome"}),
		rejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "s2r",
			Subsystem: "gateway",
			Name:      "auth_rejects_total",
			Help:      "Authentication rejects by internal reason.",
		}, []string{"reason"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{s.outcomes, s.rejects} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	outcome := ev.Outcome
	if outcome == "" {
		outcome = domain.OutcomeInternal
	}
	s.outcomes.WithLabelValues(string(outcome)).Inc()
	if ev.Reject != domain.RejectNone {
		s.rejects.WithLabelValues(string(ev.Reject)).Inc()
	}
	return nil
}
