package service

import (
	"github.com/layer-3/evmauth/core"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the gate's Prometheus collectors. A nil *Metrics records nothing
type Metrics struct {
	decisions    *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	queries      *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when it is not nil
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evmauth",
			Name:      "decisions_total",
			Help:      "Authorization decisions by outcome and proof rejection reason.",
		}, []string{"outcome", "reason"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evmauth",
			Name:      "cache_lookups_total",
			Help:      "Ownership cache lookups by result.",
		}, []string{"result"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evmauth",
			Name:      "balance_queries_total",
			Help:      "On-chain balance queries by kind and result.",
		}, []string{"kind", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.decisions, m.cacheLookups, m.queries)
	}
	return m
}

func (m *Metrics) decision(outcome core.Outcome, reason core.Reason) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(string(outcome), string(reason)).Inc()
}

func (m *Metrics) cacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) query(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.queries.WithLabelValues(kind, result).Inc()
}
