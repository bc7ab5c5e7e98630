// Package observability holds the Prometheus metrics for the engine.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application. Every
// collector owns its registry so tests never trip over duplicate
// registration.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Business metrics
	NodesCreated   prometheus.Counter
	NodesDeleted   prometheus.Counter
	ClipboardOps   *prometheus.CounterVec
	NodesReordered prometheus.Counter

	// Storage metrics
	StorageErrors prometheus.Counter
}

// NewCollector creates a metrics collector under the given namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	nodesCreated := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_created_total",
			Help:      "Total number of nodes created",
		},
	)

	nodesDeleted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_deleted_total",
			Help:      "Total number of nodes deleted",
		},
	)

	clipboardOps := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clipboard_operations_total",
			Help:      "Total number of clipboard operations",
		},
		[]string{"operation"},
	)

	nodesReordered := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_reordered_total",
			Help:      "Total number of sibling reorder operations",
		},
	)

	storageErrors := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Total number of storage failures",
		},
	)

	registry.MustRegister(
		httpRequests,
		httpDuration,
		nodesCreated,
		nodesDeleted,
		clipboardOps,
		nodesReordered,
		storageErrors,
	)

	return &Collector{
		registry:       registry,
		HTTPRequests:   httpRequests,
		HTTPDuration:   httpDuration,
		NodesCreated:   nodesCreated,
		NodesDeleted:   nodesDeleted,
		ClipboardOps:   clipboardOps,
		NodesReordered: nodesReordered,
		StorageErrors:  storageErrors,
	}
}

// Handler serves the collector's registry in the Prometheus exposition
// format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry for this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
