package store

import (
	"context"

	"github.com/pulse-metrics/insights-cli/internal/model"
)

// RunFilter specifies criteria for listing pipeline runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines persistence for canonical posts and pipeline bookkeeping.
//
// SavePosts is insert-if-absent: a post whose post_id already exists is
// silently dropped, never refreshed. Corrected re-exports therefore do NOT
// update stored rows; that is the documented contract, not an oversight.
// The existence check and the insert are separate statements, so the store
// is safe only under a single writer at a time.
type Store interface {
	// Posts
	SavePosts(ctx context.Context, posts []model.CanonicalPost) (int, error)
	LoadPosts(ctx context.Context) ([]model.CanonicalPost, error)
	CountPosts(ctx context.Context) (int, error)

	// Pipeline runs
	CreateRun(ctx context.Context, run *model.PipelineRun) error
	CompleteRun(ctx context.Context, run *model.PipelineRun) error
	GetRun(ctx context.Context, runID string) (*model.PipelineRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error)

	// Module results and predictions
	SaveModuleResult(ctx context.Context, runID string, outcome model.ModuleOutcome) error
	SavePrediction(ctx context.Context, p model.Prediction) error
	ListPredictions(ctx context.Context, module string, limit int) ([]model.Prediction, error)

	// Import audit
	RecordImport(ctx context.Context, rec model.ImportRecord) error
	ListImports(ctx context.Context, limit int) ([]model.ImportRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
