package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/schoolbooks/internal/jobs"
)

// ReportWarmer precomputes cached billing reports.
type ReportWarmer interface {
	Warmup(ctx context.Context, schoolID string) (int, error)
}

// ReportWarmupJob fills the report cache ahead of office hours.
type ReportWarmupJob struct {
	Reports ReportWarmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
}

// NewReportWarmupJob wires dependencies for the warmup handler.
func NewReportWarmupJob(reports ReportWarmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReportWarmupJob {
	return &ReportWarmupJob{Reports: reports, Logger: logger, Metrics: metrics, Timeout: 2 * time.Minute}
}

// Handle processes TaskReportWarmup tasks.
func (j *ReportWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reports == nil {
		return errors.New("report warmup: handler not configured")
	}
	var payload ReportWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskReportWarmup)
	logger := jobLogger(j.Logger, TaskReportWarmup).With(slog.String("school_id", payload.SchoolID))

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	start := time.Now()
	warmed, err := j.Reports.Warmup(ctx, payload.SchoolID)
	if err != nil {
		logger.Error("report warmup", slog.Int("warmed", warmed), slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("completed report warmup", slog.Int("reports", warmed), slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}
