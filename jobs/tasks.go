package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueCritical carries invoice notifications.
	QueueCritical = "critical"
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueMaintenance carries housekeeping such as key pruning.
	QueueMaintenance = "maintenance"

	// TaskInvoiceNotify announces a committed invoice.
	TaskInvoiceNotify = "invoice:notify"
	// TaskReportWarmup precomputes billing reports.
	TaskReportWarmup = "report:warmup"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// Queues lists every queue with its processing weight.
var Queues = map[string]int{
	QueueCritical:    6,
	QueueDefault:     3,
	QueueMaintenance: 1,
}

// QueueFor returns the queue a task type is routed to.
func QueueFor(taskType string) string {
	switch taskType {
	case TaskInvoiceNotify:
		return QueueCritical
	case TaskIdempotencyCleanup:
		return QueueMaintenance
	default:
		return QueueDefault
	}
}

// InvoiceNotifyPayload describes a committed invoice to announce.
type InvoiceNotifyPayload struct {
	InvoiceID     string `json:"invoice_id"`
	Ref           string `json:"ref"`
	RequirementID string `json:"requirement_id"`
	SchoolID      string `json:"school_id"`
	GroupKey      string `json:"group_key"`
	Total         string `json:"total"`
}

// NewInvoiceNotifyTask constructs an Asynq task.
func NewInvoiceNotifyTask(payload InvoiceNotifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInvoiceNotify, data), nil
}

// ReportWarmupPayload scopes a warmup run. A blank SchoolID warms every school.
type ReportWarmupPayload struct {
	SchoolID string `json:"school_id,omitempty"`
}

// NewReportWarmupTask constructs an Asynq task.
func NewReportWarmupTask(schoolID string) (*asynq.Task, error) {
	data, err := json.Marshal(ReportWarmupPayload{SchoolID: schoolID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportWarmup, data), nil
}

// IdempotencyCleanupPayload sets the retention window in hours.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs an Asynq task.
func NewIdempotencyCleanupTask(retentionHours int) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
