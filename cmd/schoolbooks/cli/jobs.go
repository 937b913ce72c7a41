package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/schoolbooks/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) *JobsCLI {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return &JobsCLI{client: asynq.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// BuildTask maps a job name and optional argument to a queue task.
func BuildTask(name, arg string) (*asynq.Task, error) {
	switch name {
	case jobs.TaskReportWarmup:
		return jobs.NewReportWarmupTask(arg)
	case jobs.TaskIdempotencyCleanup:
		hours := 0
		if arg != "" {
			n, err := strconv.Atoi(arg)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("jobs cli: retention hours %q must be a positive integer", arg)
			}
			hours = n
		}
		return jobs.NewIdempotencyCleanupTask(hours)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// Trigger enqueues a supported job by name.
func (c *JobsCLI) Trigger(ctx context.Context, name, arg string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	task, err := BuildTask(name, arg)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(jobs.QueueFor(task.Type())), asynq.MaxRetry(3))
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
}

// InspectQueues reports the state of every worker queue, sorted by name.
func (c *JobsCLI) InspectQueues(ctx context.Context) ([]QueueStats, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	names := make([]string, 0, len(jobs.Queues))
	for name := range jobs.Queues {
		names = append(names, name)
	}
	sort.Strings(names)

	existing, err := c.inspector.Queues()
	if err != nil {
		return nil, fmt.Errorf("jobs cli: list queues: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, name := range existing {
		known[name] = true
	}

	out := make([]QueueStats, 0, len(names))
	for _, name := range names {
		stats := QueueStats{Queue: name}
		if known[name] {
			info, err := c.inspector.GetQueueInfo(name)
			if err != nil {
				return nil, fmt.Errorf("jobs cli: inspect %s: %w", name, err)
			}
			stats.Pending = info.Pending
			stats.Active = info.Active
			stats.Scheduled = info.Scheduled
			stats.Retry = info.Retry
		}
		out = append(out, stats)
	}
	return out, nil
}
