package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the API and the billing flows.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	previews        *prometheus.CounterVec
	commits         *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	committedAmount prometheus.Counter
	reportCache     *prometheus.CounterVec
}

// NewMetrics initialises the registry and every collector.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schoolbooks_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "schoolbooks_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	previews := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schoolbooks_billing_previews_total",
		Help: "Billing previews computed, by flow and grouping mode.",
	}, []string{"flow", "mode"})
	commits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schoolbooks_billing_commits_total",
		Help: "Committed invoice groups and receipts by outcome.",
	}, []string{"flow", "outcome"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schoolbooks_billing_rejections_total",
		Help: "Commits rejected by issue code.",
	}, []string{"code"})
	amount := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "schoolbooks_billing_committed_amount_total",
		Help: "Sum of committed invoice totals.",
	})
	cache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schoolbooks_report_cache_total",
		Help: "Billing report cache lookups by result.",
	}, []string{"result"})
	registry.MustRegister(requests, duration, previews, commits, rejections, amount, cache)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		previews:        previews,
		commits:         commits,
		rejections:      rejections,
		committedAmount: amount,
		reportCache:     cache,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for extra collectors such as job metrics.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObservePreview counts one computed preview.
func (m *Metrics) ObservePreview(flow, mode string) {
	if m == nil {
		return
	}
	m.previews.WithLabelValues(flow, mode).Inc()
}

// ObserveCommit counts one commit attempt. amount is added to the committed total only for
// created records.
func (m *Metrics) ObserveCommit(flow, outcome string, amount float64) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(flow, outcome).Inc()
	if outcome == "created" && amount > 0 {
		m.committedAmount.Add(amount)
	}
}

// ObserveRejection counts a rejected commit by issue code.
func (m *Metrics) ObserveRejection(code string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(code).Inc()
}

// ObserveReportCache counts a report cache hit or miss.
func (m *Metrics) ObserveReportCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.reportCache.WithLabelValues(result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
