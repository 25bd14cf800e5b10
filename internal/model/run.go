package model

import "time"

// RunStatus is the overall state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// ModuleStatus is the outcome state of one analysis module execution.
type ModuleStatus string

const (
	ModuleCompleted ModuleStatus = "completed"
	ModuleSkipped   ModuleStatus = "skipped"
	ModuleFailed    ModuleStatus = "failed"
)

// ModuleOutcome records the result of one analysis stage's execution.
// A skip is a precondition signal, not a fault: Reason carries the
// precondition text and Error stays empty.
type ModuleOutcome struct {
	Module       string         `json:"module"`
	Status       ModuleStatus   `json:"status"`
	Error        string         `json:"error,omitempty"`
	Reason       string         `json:"reason,omitempty"`
	FallbackUsed bool           `json:"fallback_used,omitempty"`
	Attempts     int            `json:"attempts"`
	DurationMs   int64          `json:"duration_ms"`
	Metrics      map[string]any `json:"metrics,omitempty"`
}

// PipelineRun is one end-to-end execution of the analysis pipeline.
// Created when orchestration starts, appended to as modules complete,
// persisted once at the end of the run.
type PipelineRun struct {
	ID               string          `json:"id"`
	Status           RunStatus       `json:"status"`
	Outcomes         []ModuleOutcome `json:"outcomes"`
	RecoveryAttempts int             `json:"recovery_attempts"`
	Error            string          `json:"error,omitempty"`
	StartedAt        time.Time       `json:"started_at"`
	EndedAt          time.Time       `json:"ended_at"`
}

// Prediction is one artifact emitted by a completed analysis module.
type Prediction struct {
	ID             string         `json:"id"`
	Module         string         `json:"module"`
	PredictionType string         `json:"prediction_type"`
	Payload        map[string]any `json:"payload"`
	CreatedAt      time.Time      `json:"created_at"`
}

// RunSummary is the caller-facing result of PipelineOrchestrator.Execute.
// Failures surface here as structured counts, never as a raw stack trace.
type RunSummary struct {
	RunID            string    `json:"run_id"`
	Status           RunStatus `json:"status"`
	ModulesExecuted  int       `json:"modules_executed"`
	Successful       int       `json:"successful"`
	Failed           int       `json:"failed"`
	Skipped          int       `json:"skipped"`
	DurationSeconds  float64   `json:"duration_seconds"`
	RecoveryAttempts int       `json:"recovery_attempts"`
	Error            string    `json:"error,omitempty"`
}

// ImportRecord is the audit row written for every ingestion attempt,
// successful or not. Duplicate counts make the store's insert-if-absent
// drop visible to operators.
type ImportRecord struct {
	ID             string        `json:"id"`
	SourceName     string        `json:"source_name"`
	Variant        FormatVariant `json:"variant"`
	RowsIn         int           `json:"rows_in"`
	PostsSaved     int           `json:"posts_saved"`
	PostsDuplicate int           `json:"posts_duplicate"`
	RowsSkipped    int           `json:"rows_skipped"`
	Error          string        `json:"error,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
}
