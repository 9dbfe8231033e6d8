package httpserver

import (
	"net/http"

	"github.com/kroma-labs/sentinel-connect/lifecycle"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusHandler returns an http.Handler exposing the default registry
// in the Prometheus text format.
func PrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// PrometheusHandlerFor returns a Prometheus handler for a custom gatherer.
func PrometheusHandlerFor(g prometheus.Gatherer, opts promhttp.HandlerOpts) http.Handler {
	return promhttp.HandlerFor(g, opts)
}

// RegisterPrometheus serves h as GET path on the scope, so the endpoint
// goes through the scope's hooks and middleware. A nil h serves the default
// registry.
//
//	httpserver.RegisterPrometheus(app.Scope, "/metrics", nil)
func RegisterPrometheus(s *lifecycle.Scope, path string, h http.Handler) {
	if h == nil {
		h = PrometheusHandler()
	}
	s.Get(path, func(req *lifecycle.Request, rep *lifecycle.Reply) error {
		for k, v := range rep.Headers() {
			rep.Raw().Header()[k] = v
		}
		h.ServeHTTP(rep.Raw(), req.Raw())
		return nil
	})
}
