package metrics

import (
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPHandler serves reg in the Prometheus (or OpenMetrics) exposition
// format and counts its own scrapes on reg. A nil reg serves the default
// registry.
func HTTPHandler(reg *prom.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	opts := promhttp.HandlerOpts{EnableOpenMetrics: true, Registry: reg}
	return promhttp.InstrumentMetricHandler(reg, promhttp.HandlerFor(reg, opts))
}
