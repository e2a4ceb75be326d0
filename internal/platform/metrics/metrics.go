// Package metrics owns the engine's Prometheus registry and the /metrics
// handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer for engine metrics. Adapters that register
// package-level collectors with promauto land in the default registry, which
// also carries the Go and process collectors; Handler serves both.
type Registry struct {
	*prometheus.Registry
}

func NewRegistry() *Registry {
	return &Registry{Registry: prometheus.NewRegistry()}
}

// Handler serves the engine registry merged with the default one in the
// Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	gatherers := prometheus.Gatherers{r.Registry, prometheus.DefaultGatherer}
	return promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{Registry: r.Registry})
}
