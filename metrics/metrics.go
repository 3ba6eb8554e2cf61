// Package metrics holds the prometheus collectors of the agent.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "salesagent_build_info",
		Help: "Build information of the sales agent",
	}, []string{"version", "commit", "date"})

	Turns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "salesagent_turns_total",
		Help: "User turns handled, by response category",
	}, []string{"category"})

	TurnDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "salesagent_turn_duration_seconds",
		Help:    "Time to answer a user turn",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"category"})

	Queries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "salesagent_queries_total",
		Help: "Sales database queries, by outcome",
	}, []string{"outcome"})

	TruncatedResults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "salesagent_truncated_results_total",
		Help: "Query results cut at the row cap",
	})

	ChartAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "salesagent_chart_attempts_total",
		Help: "Chart script executions, by outcome",
	}, []string{"outcome"})

	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "salesagent_llm_requests_total",
		Help: "Chat completion requests, by provider and outcome",
	}, []string{"provider", "outcome"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "salesagent_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "salesagent_http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "salesagent_http_requests_in_flight",
		Help: "Number of HTTP requests currently being processed",
	})
)

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// ルートパターンがなければパスをそのまま使う
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
