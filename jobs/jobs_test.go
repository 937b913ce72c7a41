package jobs

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/schoolbooks/internal/jobs"
)

type stubWarmer struct {
	schools []string
	err     error
}

func (s *stubWarmer) Warmup(ctx context.Context, schoolID string) (int, error) {
	s.schools = append(s.schools, schoolID)
	if s.err != nil {
		return 0, s.err
	}
	return 3, nil
}

type stubCleaner struct {
	retention time.Duration
}

func (s *stubCleaner) Cleanup(ctx context.Context, olderThan time.Duration) error {
	s.retention = olderThan
	return nil
}

func testLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, nil))
}

func TestInvoiceNotifyLogsAndCounts(t *testing.T) {
	var buf bytes.Buffer
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	job := NewInvoiceNotifyJob(testLogger(&buf), metrics)

	task, err := NewInvoiceNotifyTask(InvoiceNotifyPayload{InvoiceID: "abc", Ref: "INV-ABC", SchoolID: "SCH1", GroupKey: "5", Total: "450.00"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Contains(t, buf.String(), "ref=INV-ABC")
	require.Contains(t, buf.String(), "job=invoice:notify")
}

func TestInvoiceNotifySkipsBadPayload(t *testing.T) {
	job := NewInvoiceNotifyJob(nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	err := job.Handle(context.Background(), asynq.NewTask(TaskInvoiceNotify, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	err = job.Handle(context.Background(), asynq.NewTask(TaskInvoiceNotify, []byte(`{}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestReportWarmupPassesSchool(t *testing.T) {
	warmer := &stubWarmer{}
	job := NewReportWarmupJob(warmer, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewReportWarmupTask("SCH9")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []string{"SCH9"}, warmer.schools)

	warmer.err = errors.New("redis down")
	require.Error(t, job.Handle(context.Background(), task))
}

func TestReportWarmupRequiresService(t *testing.T) {
	job := &ReportWarmupJob{}
	require.Error(t, job.Handle(context.Background(), asynq.NewTask(TaskReportWarmup, nil)))
}

func TestIdempotencyCleanupDefaultsRetention(t *testing.T) {
	cleaner := &stubCleaner{}
	job := NewIdempotencyCleanupJob(cleaner, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewIdempotencyCleanupTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 30*24*time.Hour, cleaner.retention)
}

func TestTrackerCountsFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	job := NewReportWarmupJob(&stubWarmer{err: errors.New("boom")}, nil, metrics)
	task, _ := NewReportWarmupTask("")
	_ = job.Handle(context.Background(), task)

	count, err := testutil.GatherAndCount(reg, "schoolbooks_jobs_failures_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, slog.Default()).MountRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queues":[
		{"queue":"critical","pending":0,"active":0,"scheduled":0,"retry":0,"archived":0},
		{"queue":"default","pending":0,"active":0,"scheduled":0,"retry":0,"archived":0},
		{"queue":"maintenance","pending":0,"active":0,"scheduled":0,"retry":0,"archived":0}]}`, rec.Body.String())
}

func TestQueueRouting(t *testing.T) {
	require.Equal(t, QueueCritical, QueueFor(TaskInvoiceNotify))
	require.Equal(t, QueueDefault, QueueFor(TaskReportWarmup))
	require.Equal(t, QueueMaintenance, QueueFor(TaskIdempotencyCleanup))
	for _, q := range []string{QueueCritical, QueueDefault, QueueMaintenance} {
		require.Positive(t, Queues[q])
	}
}
