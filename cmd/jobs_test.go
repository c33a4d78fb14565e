package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Boomnana/test-agent/internal/model"
	"github.com/Boomnana/test-agent/internal/monitoring"
)

func sampleJobs() []model.JobStatus {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	finished := now.Add(90 * time.Second)
	return []model.JobStatus{
		{
			ID:         "abc12345-6789-0000-0000-000000000000",
			State:      model.JobCompleted,
			Log:        []model.LogEntry{{Time: now, Message: "Job accepted."}},
			ResultRef:  "/reports/result_abc12345.json",
			CreatedAt:  now,
			UpdatedAt:  finished,
			FinishedAt: &finished,
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			State:     model.JobFailed,
			Error:     "job timed out after 1h0m0s; retry or reduce the input size",
			CreatedAt: now.Add(-time.Hour),
			UpdatedAt: now,
		},
	}
}

func TestFormatJobsList(t *testing.T) {
	var buf bytes.Buffer
	formatJobsList(&buf, sampleJobs())

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "STATE")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "completed")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "1m30s")
	assert.Contains(t, output, "failed")
	assert.Contains(t, output, "job timed out after 1h0m0s; retry or ...")
}

func TestEncodeAs_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, encodeAs(&buf, "json", sampleJobs()[0]))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "completed", got["status"])
	assert.Equal(t, "/reports/result_abc12345.json", got["report_url"])
}

func TestEncodeAs_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, encodeAs(&buf, "yaml", sampleJobs()))

	var got []map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "abc12345-6789-0000-0000-000000000000", got[0]["job_id"])
	assert.Equal(t, "failed", got[1]["status"])
	assert.Contains(t, buf.String(), "  - time:")
}

func TestCheckFormat(t *testing.T) {
	assert.NoError(t, checkFormat("yaml", "json", "yaml"))
	err := checkFormat("csv", "json", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"csv"`)
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}

func TestFormatJobStats(t *testing.T) {
	var buf bytes.Buffer
	formatJobStats(&buf, &monitoring.MetricsSnapshot{
		JobsTotal:     10,
		JobsCompleted: 6,
		JobsFailed:    2,
		JobsTimedOut:  1,
		JobsCancelled: 1,
		JobsActive:    1,
		FailRate:      0.25,
		AvgDurSecs:    42.5,
		Lookback:      24 * time.Hour,
	})

	output := buf.String()
	assert.Contains(t, output, "24h0m0s")
	assert.Contains(t, output, "Total jobs:")
	assert.Contains(t, output, "25.0%")
	assert.Contains(t, output, "42.5s")
}
