// Package pipeline runs the analysis side of the system: it loads the
// canonical dataset, preprocesses it, executes the registered analysis
// modules with bounded retry and fallback, and persists one run record plus
// per-module predictions.
package pipeline

import (
	"context"

	"github.com/pulse-metrics/insights-cli/internal/model"
)

// Dataset is the preprocessed post collection handed to analysis modules.
// Posts are in load order (timestamp, then post id).
type Dataset struct {
	Posts []model.CanonicalPost
}

// Result is what a module produces on success.
type Result struct {
	Metrics     map[string]any
	Predictions []model.Prediction
}

// Module is one analysis stage. Precondition and Fallback are declared
// up front rather than buried in the stage body, so the registry doubles
// as an inspectable capability map.
type Module struct {
	Name string

	// Precondition reports why the stage cannot run against ds. A non-nil
	// error skips the stage without consuming any attempt.
	Precondition func(ds *Dataset) error

	Run func(ctx context.Context, ds *Dataset) (*Result, error)

	// Fallback, when set, is a reduced-scope variant substituted after Run
	// has thrown at least once.
	Fallback func(ctx context.Context, ds *Dataset) (*Result, error)
}

// SkipError lets a module bow out mid-run when it discovers a precondition
// problem only visible once it is looking at the data. The runner records a
// skip, not a failure, and consumes no attempt.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string { return e.Reason }

// Registry holds analysis modules in execution order. Order affects
// reporting only: stages are independent and never consume one another's
// output.
type Registry struct {
	modules []Module
}

func NewRegistry(mods ...Module) *Registry {
	return &Registry{modules: mods}
}

// Modules returns the stages in registration order.
func (r *Registry) Modules() []Module { return r.modules }

func (r *Registry) Len() int { return len(r.modules) }

// Names returns the stage names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.modules))
	for _, m := range r.modules {
		names = append(names, m.Name)
	}
	return names
}
