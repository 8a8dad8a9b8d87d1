// Package metrics exposes Prometheus collectors for the game and HTTP layer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	GeofenceChecks  *prometheus.CounterVec
	Submissions     prometheus.Counter
	Reviews         *prometheus.CounterVec
	HintsRevealed   prometheus.Counter
	TeamsJoined     prometheus.Counter
	RealtimeClients prometheus.Gauge
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		GeofenceChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ralli",
			Name:      "geofence_checks_total",
			Help:      "Location checks by outcome.",
		}, []string{"outcome"}),
		Submissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ralli",
			Name:      "submissions_total",
			Help:      "Proof photos accepted for review.",
		}),
		Reviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ralli",
			Name:      "reviews_total",
			Help:      "Organizer decisions on submissions.",
		}, []string{"decision"}),
		HintsRevealed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ralli",
			Name:      "hints_revealed_total",
			Help:      "Hints paid for by teams.",
		}),
		TeamsJoined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ralli",
			Name:      "teams_joined_total",
			Help:      "Teams registered into a race.",
		}),
		RealtimeClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ralli",
			Name:      "realtime_clients",
			Help:      "Connected websocket clients.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ralli",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ralli",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		m.GeofenceChecks, m.Submissions, m.Reviews, m.HintsRevealed, m.TeamsJoined,
		m.RealtimeClients, m.HTTPRequests, m.HTTPDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// The helpers below accept a nil receiver so services can run without metrics.

func (m *Metrics) ObserveGeofence(outcome string) {
	if m == nil {
		return
	}
	m.GeofenceChecks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSubmission() {
	if m == nil {
		return
	}
	m.Submissions.Inc()
}

func (m *Metrics) ObserveReview(decision string) {
	if m == nil {
		return
	}
	m.Reviews.WithLabelValues(decision).Inc()
}

func (m *Metrics) ObserveHint() {
	if m == nil {
		return
	}
	m.HintsRevealed.Inc()
}

func (m *Metrics) ObserveJoin() {
	if m == nil {
		return
	}
	m.TeamsJoined.Inc()
}

func (m *Metrics) AddRealtimeClients(delta int) {
	if m == nil {
		return
	}
	m.RealtimeClients.Add(float64(delta))
}

// Middleware records request counts and latency labelled by the chi route
// pattern, so ids in the path do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
