// Package metrics exposes Prometheus counters and histograms for the relay
// pipelines and the LINE callback server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Relay outcomes.
const (
	OutcomeRelayed  = "relayed"
	OutcomeIgnored  = "ignored"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Recorder holds every metric the relay records. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	gatherer prometheus.Gatherer

	events       *prometheus.CounterVec
	sendDuration *prometheus.HistogramVec
	fetches      *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge
}

// New registers the relay metrics on reg. Pass prometheus.NewRegistry() in
// tests to keep registrations isolated.
func New(reg *prometheus.Registry) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		gatherer: reg,
		events: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relaybot_events_total",
				Help: "Inbound platform events by source and relay outcome",
			},
			[]string{"source", "outcome"},
		),
		sendDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relaybot_send_duration_seconds",
				Help:    "Time spent rendering and dispatching one message",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"target"},
		),
		fetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relaybot_content_fetches_total",
				Help: "Attachment and avatar fetches by outcome",
			},
			[]string{"outcome"},
		),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relaybot_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relaybot_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		httpInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "relaybot_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),
	}
}

// Event counts one inbound event.
func (r *Recorder) Event(source, outcome string) {
	if r == nil {
		return
	}
	r.events.WithLabelValues(source, outcome).Inc()
}

// ObserveSend records how long a send to target took.
func (r *Recorder) ObserveSend(target string, d time.Duration) {
	if r == nil {
		return
	}
	r.sendDuration.WithLabelValues(target).Observe(d.Seconds())
}

// Fetch counts one content fetch.
func (r *Recorder) Fetch(err error) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.fetches.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		r.httpInFlight.Inc()
		defer r.httpInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, req)

		// Use chi's route pattern if available to avoid high cardinality
		path := req.URL.Path
		if routeCtx := chi.RouteContext(req.Context()); routeCtx != nil {
			if pattern := routeCtx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		r.httpRequests.WithLabelValues(req.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		r.httpDuration.WithLabelValues(req.Method, path).Observe(time.Since(start).Seconds())
	})
}
