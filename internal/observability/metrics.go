// Package observability exposes the console's Prometheus metrics: inbound
// console requests by route and outbound CRM API calls by operation.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConsoleRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_requests_total",
			Help: "Console requests by route pattern and status code",
		}, []string{"route", "code"},
	)
	ConsoleLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "console_request_duration_seconds",
		Help:    "Console request latency seconds by route pattern",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	RemoteCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_api_calls_total",
			Help: "Calls to the CRM API by operation and outcome",
		}, []string{"op", "outcome"},
	)
	RemoteLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crm_api_call_duration_seconds",
		Help:    "CRM API call latency seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	OpenComposers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "console_open_composers",
		Help: "Campaign composer views currently open",
	})
)

func init() {
	prometheus.MustRegister(ConsoleRequests, ConsoleLatency, RemoteCalls, RemoteLatency, OpenComposers)
}

func MetricsHandler() http.Handler { return promhttp.Handler() }

// ObserveRemote records one outbound CRM API call.
func ObserveRemote(op, outcome string, d time.Duration) {
	RemoteCalls.WithLabelValues(op, outcome).Inc()
	RemoteLatency.WithLabelValues(op).Observe(d.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// Measure records console requests under their chi route pattern, so
// composer ids never become label values. It must run inside a chi router.
func Measure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		ConsoleLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
		ConsoleRequests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
	})
}
