package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	jobmetrics "github.com/odyssey-erp/schoolbooks/internal/jobs"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobMetrics(t *testing.T) {
	metrics := NewMetrics()
	jobs := jobmetrics.NewMetrics(metrics.Registerer())
	_ = jobs.Track("invoice:notify").End(nil)

	body := scrape(t, metrics)
	if !strings.Contains(body, `schoolbooks_jobs_total{job="invoice:notify",status="success"} 1`) {
		t.Fatalf("expected body to contain schoolbooks_jobs_total, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsBody := scrape(t, metrics)
	if !strings.Contains(metricsBody, "http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}

func TestBillingCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObservePreview("invoicing", "CLASS")
	metrics.ObserveCommit("invoicing", "created", 450)
	metrics.ObserveCommit("invoicing", "failed", 99)
	metrics.ObserveRejection("NO_BILLABLE_LINES")
	metrics.ObserveReportCache(true)
	metrics.ObserveReportCache(false)
	metrics.ObserveReportCache(false)

	body := scrape(t, metrics)
	for _, want := range []string{
		`schoolbooks_billing_previews_total{flow="invoicing",mode="CLASS"} 1`,
		`schoolbooks_billing_commits_total{flow="invoicing",outcome="created"} 1`,
		`schoolbooks_billing_commits_total{flow="invoicing",outcome="failed"} 1`,
		`schoolbooks_billing_committed_amount_total 450`,
		`schoolbooks_billing_rejections_total{code="NO_BILLABLE_LINES"} 1`,
		`schoolbooks_report_cache_total{result="miss"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output, got: %s", want, body)
		}
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var metrics *Metrics
	metrics.ObservePreview("invoicing", "NONE")
	metrics.ObserveCommit("receipts", "created", 1)
	metrics.ObserveReportCache(true)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from nil metrics, got %d", rr.Code)
	}
}
