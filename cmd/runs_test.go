package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pulse-metrics/insights-cli/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.PipelineRun{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			Status:    model.RunStatusCompleted,
			StartedAt: now,
			EndedAt:   now.Add(90 * time.Second),
			Outcomes: []model.ModuleOutcome{
				{Module: "engagement_summary", Status: model.ModuleCompleted},
				{Module: "posting_cadence", Status: model.ModuleSkipped},
			},
		},
		{
			ID:               "def12345-6789-0000-0000-000000000000",
			Status:           model.RunStatusFailed,
			RecoveryAttempts: 2,
			StartedAt:        now.Add(-time.Hour),
			Outcomes: []model.ModuleOutcome{
				{Module: "engagement_summary", Status: model.ModuleFailed},
			},
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "abc12345")
	assert.Contains(t, output, "completed")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "1m30s")
	assert.Contains(t, output, "def12345")
	assert.Contains(t, output, "failed")
}

func TestFormatRunsList_RunningShowsDashDuration(t *testing.T) {
	runs := []model.PipelineRun{
		{ID: "run-1", Status: model.RunStatusRunning, StartedAt: time.Now()},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	assert.Contains(t, buf.String(), "-")
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abc12345", shortID("abc12345-6789-0000-0000-000000000000"))
	assert.Equal(t, "run-1", shortID("run-1"))
}
