// Package metrics registers the server's Prometheus collectors. All metrics
// are package-level and registered once via promauto; the admin listener
// exposes them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsAccepted counts client sockets handed to the worker pool.
	ConnectionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moviecatalog_connections_accepted_total",
		Help: "Client connections accepted and enqueued.",
	})

	// ConnectionsRejected counts sockets dropped because the queue stayed
	// full past the admission retry budget, or no worker could be spawned.
	ConnectionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moviecatalog_connections_rejected_total",
		Help: "Client connections rejected by admission control.",
	})

	// Operations counts parsed operations by type.
	Operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moviecatalog_operations_total",
		Help: "Operations processed, by operation type.",
	}, []string{"op"})

	// Errors counts failed operations by error kind.
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moviecatalog_errors_total",
		Help: "Failed operations, by error kind.",
	}, []string{"kind"})

	// WorkerRestarts counts dead workers respawned by the admission path.
	WorkerRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moviecatalog_worker_restarts_total",
		Help: "Worker goroutines respawned after dying.",
	})

	// QueueDepth tracks the work queue size as seen by the producer.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "moviecatalog_queue_depth",
		Help: "Point-in-time work queue depth.",
	})
)
