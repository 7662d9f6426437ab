package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/retrato-ai/retrato/internal/store"
)

type PrometheusMetricsHandler struct{}

// NewPrometheusMetricsHandler registers the scrape-time job collector on the
// default registry. Call it once per process.
func NewPrometheusMetricsHandler(s store.Store) *PrometheusMetricsHandler {
	prometheus.MustRegister(newJobStatsCollector(s))
	return &PrometheusMetricsHandler{}
}

func (h *PrometheusMetricsHandler) Handler() http.Handler {
	return promhttp.Handler()
}
