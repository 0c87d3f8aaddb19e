// Package metric defines the Prometheus instruments exposed at /metrics:
// request counts/latency for the GraphQL endpoint, upstream call
// counts/latency per protocol, and DataLoader batch sizes.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every instrument the server and executor record against.
// Construct once per process with New and register on a single registry.
type Metrics struct {
	GraphQLRequests        *prometheus.CounterVec
	GraphQLRequestDuration *prometheus.HistogramVec

	UpstreamRequests        *prometheus.CounterVec
	UpstreamRequestDuration *prometheus.HistogramVec

	LoaderBatchSize *prometheus.HistogramVec
}

// New creates and registers every instrument on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		GraphQLRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lattice",
			Subsystem: "graphql",
			Name:      "requests_total",
			Help:      "Total number of GraphQL operations handled, by result status.",
		}, []string{"status"}),
		GraphQLRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lattice",
			Subsystem: "graphql",
			Name:      "request_duration_seconds",
			Help:      "GraphQL operation latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lattice",
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Total number of upstream calls, by protocol and result status.",
		}, []string{"protocol", "status"}),
		UpstreamRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lattice",
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Upstream call latency in seconds, by protocol.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"protocol"}),
		LoaderBatchSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lattice",
			Subsystem: "dataloader",
			Name:      "batch_size",
			Help:      "Number of keys dispatched per DataLoader flush.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}, []string{"loader"}),
	}

	reg.MustRegister(
		m.GraphQLRequests,
		m.GraphQLRequestDuration,
		m.UpstreamRequests,
		m.UpstreamRequestDuration,
		m.LoaderBatchSize,
	)
	return m
}
