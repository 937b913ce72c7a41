package cli

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/schoolbooks/jobs"
)

func TestBuildTaskPayloads(t *testing.T) {
	task, err := BuildTask(jobs.TaskReportWarmup, "SCH1")
	require.NoError(t, err)
	var warm jobs.ReportWarmupPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &warm))
	require.Equal(t, "SCH1", warm.SchoolID)

	task, err = BuildTask(jobs.TaskIdempotencyCleanup, "48")
	require.NoError(t, err)
	var cleanup jobs.IdempotencyCleanupPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &cleanup))
	require.Equal(t, 48, cleanup.RetentionHours)
}

func TestBuildTaskRejectsUnknownInput(t *testing.T) {
	_, err := BuildTask(jobs.TaskInvoiceNotify, "")
	require.ErrorContains(t, err, "unsupported job")

	_, err = BuildTask(jobs.TaskIdempotencyCleanup, "12h")
	require.ErrorContains(t, err, "positive integer")
}

func TestNilCLIRefusesWork(t *testing.T) {
	var c *JobsCLI
	_, err := c.Trigger(context.Background(), jobs.TaskReportWarmup, "")
	require.Error(t, err)
	_, err = c.InspectQueues(context.Background())
	require.Error(t, err)
}
