// Package metrics provides Prometheus instrumentation for the engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActionsTotal counts simulated actions, partitioned by kind and by
	// whether they executed.
	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmx_actions_total",
		Help: "Total number of actions processed",
	}, []string{"kind", "executed"})

	// ActionLatency tracks action execution latency.
	ActionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gmx_action_latency_seconds",
		Help:    "Action execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	// ActiveMarkets tracks the number of markets in the book.
	ActiveMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gmx_active_markets",
		Help: "Number of markets in the book",
	})

	// PoolValue tracks the maximized pool value per market, in USD.
	PoolValue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gmx_pool_value_usd",
		Help: "Pool value of a market in USD",
	}, []string{"market"})

	// OpenInterest tracks open interest per market and side, in USD.
	OpenInterest = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gmx_open_interest_usd",
		Help: "Open interest of a market side in USD",
	}, []string{"market", "side"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gmx_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmx_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gmx_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// PositionLimitRejections counts orders rejected by the exposure limiter.
	PositionLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gmx_position_limit_rejections_total",
		Help: "Orders rejected by the exposure limiter",
	})

	// PublishFailures counts action records that could not be published.
	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gmx_publish_failures_total",
		Help: "Action records that failed to publish",
	})
)

// ObserveAction records one processed action.
func ObserveAction(kind string, executed bool, elapsed time.Duration) {
	ActionsTotal.WithLabelValues(kind, strconv.FormatBool(executed)).Inc()
	ActionLatency.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades through the wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
