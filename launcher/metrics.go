package launcher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "axia_launch"

type metrics struct {
	specBuilds           *prometheus.CounterVec
	allychainsRegistered prometheus.Counter
	nodesStarted         *prometheus.CounterVec
	transactions         *prometheus.CounterVec
	stateDuration        *prometheus.HistogramVec
}

func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		specBuilds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "spec_builds_total",
				Help:      "Count of chain specs built or reused.",
			},
			[]string{"kind", "result"},
		),
		allychainsRegistered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "allychains_registered_total",
				Help:      "Count of allychains written into a relay chain genesis.",
			},
		),
		nodesStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "nodes_started_total",
				Help:      "Count of node processes started.",
			},
			[]string{"role"},
		),
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_total",
				Help:      "Count of transactions submitted to the relay chain.",
			},
			[]string{"call", "result"},
		),
		stateDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "state_duration_seconds",
				Help:      "Time spent in each launch state.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
			},
			[]string{"state"},
		),
	}
	for _, c := range []prometheus.Collector{
		m.specBuilds,
		m.allychainsRegistered,
		m.nodesStarted,
		m.transactions,
		m.stateDuration,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) observeState(state State, d time.Duration) {
	m.stateDuration.WithLabelValues(string(state)).Observe(d.Seconds())
}

func (m *metrics) transaction(call string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.transactions.WithLabelValues(call, result).Inc()
}
