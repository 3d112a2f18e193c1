// Package monitor publishes campaign progress: prometheus metrics, a
// throttled progress log and an optional CSV stats file.
package monitor

import (
	"strconv"

	"github.com/gocircum/statefuzz/core/mutator"
	"github.com/gocircum/statefuzz/core/observer"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "statefuzz"

// Metrics holds the prometheus collectors of one campaign.
type Metrics struct {
	nodes      prometheus.Gauge
	edges      prometheus.Gauge
	corpus     prometheus.Gauge
	executions *prometheus.CounterVec
	failures   prometheus.Counter
	mutations  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		nodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_nodes",
			Help:      "Number of states in the inferred state graph, excluding the start node.",
		}),
		edges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_edges",
			Help:      "Number of distinct transitions in the inferred state graph.",
		}),
		corpus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "corpus_size",
			Help:      "Number of admitted sequences.",
		}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Executions by verdict.",
		}, []string{"verdict"}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "execution_failures_total",
			Help:      "Executions that ended with an executor or signature error.",
		}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Mutation attempts by operator and whether they changed the input.",
		}, []string{"kind", "changed"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.nodes, m.edges, m.corpus, m.executions, m.failures, m.mutations} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeMutation(kind mutator.Kind, changed bool) {
	m.mutations.WithLabelValues(kind.String(), strconv.FormatBool(changed)).Inc()
}

func (m *Metrics) observeExecution(v observer.Verdict, failed bool) {
	m.executions.WithLabelValues(v.String()).Inc()
	if failed {
		m.failures.Inc()
	}
}
