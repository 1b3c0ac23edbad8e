package metrics

import (
	"net/http"

	"tokendao/contexts/treasury-governance/governor/domain/entities"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Governance holds the Prometheus collectors for the governor. It implements
// the governor's Recorder port.
type Governance struct {
	proposalsTotal prometheus.Counter
	votesTotal     *prometheus.CounterVec
	voteWeight     *prometheus.CounterVec
	executions     *prometheus.CounterVec

	registry *prometheus.Registry
}

func NewGovernance() *Governance {
	registry := prometheus.NewRegistry()

	m := &Governance{
		proposalsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "governance_proposals_total",
				Help: "Total number of proposals submitted",
			},
		),
		votesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governance_votes_total",
				Help: "Total number of ballots cast by direction",
			},
			[]string{"direction"},
		),
		voteWeight: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governance_vote_weight_total",
				Help: "Sum of vote weight cast by direction",
			},
			[]string{"direction"},
		),
		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governance_executions_total",
				Help: "Execution attempts by outcome",
			},
			[]string{"outcome"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.proposalsTotal,
		m.votesTotal,
		m.voteWeight,
		m.executions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Governance) ProposalCreated() {
	m.proposalsTotal.Inc()
}

func (m *Governance) VoteCast(direction entities.VoteDirection, weight uint64) {
	m.votesTotal.WithLabelValues(string(direction)).Inc()
	m.voteWeight.WithLabelValues(string(direction)).Add(float64(weight))
}

func (m *Governance) ExecutionFinished(outcome string) {
	m.executions.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Governance) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Governance) Registry() *prometheus.Registry {
	return m.registry
}
