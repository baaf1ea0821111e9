package middleware

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/metrics"
)

// Metrics instruments one route. route is the mux pattern, which keeps
// document and collection ids out of the label values.
func Metrics(m *metrics.Metrics, route string) func(http.Handler) http.Handler {
	labels := prometheus.Labels{"route": route}
	requests := m.HTTPRequestsTotal.MustCurryWith(labels)
	duration := m.HTTPRequestDuration.MustCurryWith(labels)
	return func(next http.Handler) http.Handler {
		h := promhttp.InstrumentHandlerCounter(requests, next)
		h = promhttp.InstrumentHandlerDuration(duration, h)
		return promhttp.InstrumentHandlerInFlight(m.HTTPRequestsInFlight, h)
	}
}
