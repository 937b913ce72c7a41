package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/schoolbooks/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// InvoiceNotifyJob announces committed invoices. Delivery channels other than the log
// are out of scope, so the job records the notice and counts it.
type InvoiceNotifyJob struct {
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewInvoiceNotifyJob wires dependencies for the notify handler.
func NewInvoiceNotifyJob(logger *slog.Logger, metrics *jobmetrics.Metrics) *InvoiceNotifyJob {
	return &InvoiceNotifyJob{Logger: logger, Metrics: metrics}
}

// Handle processes TaskInvoiceNotify tasks.
func (j *InvoiceNotifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("invoice notify: handler not configured")
	}
	var payload InvoiceNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.InvoiceID == "" {
		return asynq.SkipRetry
	}
	tracker := j.metrics().Track(TaskInvoiceNotify)
	jobLogger(j.Logger, TaskInvoiceNotify).Info("invoice committed",
		slog.String("invoice_id", payload.InvoiceID),
		slog.String("ref", payload.Ref),
		slog.String("requirement_id", payload.RequirementID),
		slog.String("school_id", payload.SchoolID),
		slog.String("group_key", payload.GroupKey),
		slog.String("total", payload.Total),
	)
	j.metrics().AddNotification("log")
	return tracker.End(nil)
}

func (j *InvoiceNotifyJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger != nil {
		return logger.With(slog.String("job", job))
	}
	return slog.Default().With(slog.String("job", job))
}
