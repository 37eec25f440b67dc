// Package metrics instruments the status server and serves the Prometheus
// scrape endpoint.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const unmatchedRoute = "unmatched"

var (
	statusRequests *prometheus.CounterVec
	statusLatency  *prometheus.HistogramVec
	statusInFlight prometheus.Gauge

	once sync.Once
)

// Init registers the status server collectors with the default registry.
// Repeated calls are no-ops.
func Init() {
	once.Do(func() {
		statusRequests = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hostcrawl_status_requests_total",
			Help: "Requests served by the status server, labeled by route and status code.",
		}, []string{"route", "code"})
		statusLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hostcrawl_status_request_duration_seconds",
			Help:    "Status server response latency by route.",
			Buckets: []float64{0.001, 0.005, 0.025, 0.1, 0.5, 2.5},
		}, []string{"route"})
		statusInFlight = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "hostcrawl_status_requests_in_flight",
			Help: "Status server requests currently being handled.",
		})
	})
}

// Handler serves every collector in the default registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ObserveRequest records one served request.
func ObserveRequest(route string, code int, elapsed time.Duration) {
	Init()
	statusRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	statusLatency.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Middleware labels requests by their chi route pattern so path parameters
// do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	Init()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		statusInFlight.Inc()
		defer statusInFlight.Dec()

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		ObserveRequest(routeOf(r), code, time.Since(start))
	})
}

func routeOf(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return unmatchedRoute
}
