package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/schoolbooks/internal/billing"
	"github.com/odyssey-erp/schoolbooks/internal/observability"
	"github.com/odyssey-erp/schoolbooks/jobs"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DEFAULT_GROUP_MODE", "class")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 60, cfg.RateLimitPerMinute)
	require.Equal(t, 720, cfg.IdempotencyKeepFor)
	require.Equal(t, 10, cfg.RedisPoolSize)
	require.Equal(t, billing.GroupByClass, cfg.GroupMode())
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsBadRateLimit(t *testing.T) {
	t.Setenv("RATE_LIMIT_PER_MINUTE", "0")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestTestModeFlag(t *testing.T) {
	t.Setenv(testModeEnv, "true")
	RefreshTestMode()
	require.True(t, InTestMode())
	t.Setenv(testModeEnv, "nope")
	RefreshTestMode()
	require.False(t, InTestMode())
}

func TestLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, &Config{AppEnv: "production", LogFormat: "json"}).Info("hello")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "schoolbooks", entry["service"])
	require.Equal(t, "production", entry["env"])
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	var logs bytes.Buffer
	cfg := &Config{AppEnv: "development", RateLimitPerMinute: 100}
	metrics := observability.NewMetrics()
	router := NewRouter(RouterParams{
		Logger:     newLogger(&logs, cfg),
		Config:     cfg,
		Metrics:    metrics,
		JobHandler: jobs.NewHandler(nil, newLogger(&logs, cfg)),
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.NotEmpty(t, rec.Header().Get("X-Ratelimit-Limit"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queues":[
		{"queue":"critical","pending":0,"active":0,"scheduled":0,"retry":0,"archived":0},
		{"queue":"default","pending":0,"active":0,"scheduled":0,"retry":0,"archived":0},
		{"queue":"maintenance","pending":0,"active":0,"scheduled":0,"retry":0,"archived":0}]}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "schoolbooks_http_requests_total")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoicing/preview", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
