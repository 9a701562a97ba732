package nodemanager

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// sync cycles are expected to take from a few milliseconds up to a couple of minutes for large pools.
	// histogram buckets will be [10ms,.., 2 minutes] -> total 20 buckets +1 prometheus Inf bucket
	syncDurationMsHistogram = prometheus.ExponentialBucketsRange(10, 120000, 20)
)

// request metrics
var (
	requestsTotalMetric = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: prometheus.BuildFQName("ledger", "nodemanager", "requests_total"),
		Help: "Node manager dispatch calls by kind and outcome",
	}, []string{"kind", "outcome"})

	nodeResponseCodeMetric = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: prometheus.BuildFQName("ledger", "nodemanager", "node_response_code"),
		Help: "Response codes observed from individual nodes",
	}, []string{"method", "code"})

	nodeConnectionFailureTotalMetric = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: prometheus.BuildFQName("ledger", "nodemanager", "node_connection_failure_total"),
	}, []string{"method", "reason"})

	nodeFallbackTotalMetric = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: prometheus.BuildFQName("ledger", "nodemanager", "node_fallback_total"),
		Help: "Failed node attempts that made a dispatch move on to the next candidate",
	}, []string{"kind"})

	quorumOutcomeMetric = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: prometheus.BuildFQName("ledger", "nodemanager", "quorum_outcome_total"),
		Help: "Outcomes of requests that required a quorum",
	}, []string{"outcome"})
)

// sync metrics
var (
	syncCyclesTotalMetric = prometheus.NewCounter(prometheus.CounterOpts{
		Name: prometheus.BuildFQName("ledger", "nodemanager", "sync_cycles_total"),
		Help: "Number of completed node sync cycles",
	})

	syncErrorsMetric = prometheus.NewCounter(prometheus.CounterOpts{
		Name: prometheus.BuildFQName("ledger", "nodemanager", "sync_errors"),
		Help: "Number of errors syncing the node pool",
	})

	// The below metrics are only updated on every sync cycle
	healthyPoolSizeMetric = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: prometheus.BuildFQName("ledger", "nodemanager", "healthy_pool_size"),
		Help: "Number of nodes currently considered healthy",
	})

	observedNetworksMetric = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: prometheus.BuildFQName("ledger", "nodemanager", "observed_networks"),
		Help: "Number of distinct network names reported by healthy nodes in the last sync",
	})

	syncDurationMetric = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    prometheus.BuildFQName("ledger", "nodemanager", "sync_duration"),
		Help:    "Duration of a node sync cycle in milliseconds",
		Buckets: syncDurationMsHistogram,
	})
)

var NodeManagerMetrics = prometheus.NewRegistry()

func init() {
	NodeManagerMetrics.MustRegister(requestsTotalMetric)
	NodeManagerMetrics.MustRegister(nodeResponseCodeMetric)
	NodeManagerMetrics.MustRegister(nodeConnectionFailureTotalMetric)
	NodeManagerMetrics.MustRegister(nodeFallbackTotalMetric)
	NodeManagerMetrics.MustRegister(quorumOutcomeMetric)

	// sync metrics
	NodeManagerMetrics.MustRegister(syncCyclesTotalMetric)
	NodeManagerMetrics.MustRegister(syncErrorsMetric)
	NodeManagerMetrics.MustRegister(healthyPoolSizeMetric)
	NodeManagerMetrics.MustRegister(observedNetworksMetric)
	NodeManagerMetrics.MustRegister(syncDurationMetric)
}

func recordRequest(kind string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	requestsTotalMetric.WithLabelValues(kind, outcome).Add(1)
}
