package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/pulse-metrics/insights-cli/internal/model"
)

// DefaultRetryAttempts bounds how often a stage is tried before its
// failure is recorded.
const DefaultRetryAttempts = 3

// ModuleRunner executes one stage with bounded retry, fixed exponential
// backoff, and an optional reduced-scope fallback. It reports outcomes
// instead of returning errors: a failing stage must never abort its
// siblings.
type ModuleRunner struct {
	attempts int
	sleep    func(time.Duration)
}

func NewModuleRunner(attempts int) *ModuleRunner {
	if attempts <= 0 {
		attempts = DefaultRetryAttempts
	}
	return &ModuleRunner{attempts: attempts, sleep: time.Sleep}
}

// Run executes mod against ds. The returned Result is non-nil only when
// the stage completed; its predictions still need persisting.
//
// A skip, whether from the declared precondition or a SkipError thrown
// mid-run, consumes no attempts. Failed attempts wait 2^attempt seconds
// before the next try, so three attempts wait twice: 2s then 4s.
func (r *ModuleRunner) Run(ctx context.Context, mod Module, ds *Dataset) (model.ModuleOutcome, *Result) {
	log := zap.L().With(zap.String("module", mod.Name))
	start := time.Now()

	outcome, res := r.run(ctx, mod, ds, log)
	outcome.Module = mod.Name
	outcome.DurationMs = time.Since(start).Milliseconds()

	switch outcome.Status {
	case model.ModuleCompleted:
		log.Info("module completed",
			zap.Int("attempts", outcome.Attempts),
			zap.Bool("fallback_used", outcome.FallbackUsed),
			zap.Int64("duration_ms", outcome.DurationMs))
	case model.ModuleSkipped:
		log.Info("module skipped", zap.String("reason", outcome.Reason))
	case model.ModuleFailed:
		log.Error("module failed",
			zap.Int("attempts", outcome.Attempts),
			zap.String("error", outcome.Error))
	}
	return outcome, res
}

func (r *ModuleRunner) run(ctx context.Context, mod Module, ds *Dataset, log *zap.Logger) (model.ModuleOutcome, *Result) {
	if mod.Precondition != nil {
		if err := mod.Precondition(ds); err != nil {
			return model.ModuleOutcome{
				Status: model.ModuleSkipped,
				Reason: err.Error(),
			}, nil
		}
	}

	var lastErr error
	useFallback := false
	for attempt := 1; attempt <= r.attempts; attempt++ {
		runFn := mod.Run
		if useFallback {
			runFn = mod.Fallback
		}

		res, err := runFn(ctx, ds)
		if err == nil {
			return model.ModuleOutcome{
				Status:       model.ModuleCompleted,
				FallbackUsed: useFallback,
				Attempts:     attempt,
				Metrics:      res.Metrics,
			}, res
		}

		var skip *SkipError
		if errors.As(err, &skip) {
			return model.ModuleOutcome{
				Status: model.ModuleSkipped,
				Reason: skip.Reason,
			}, nil
		}

		lastErr = err
		log.Warn("module attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		if mod.Fallback != nil {
			useFallback = true
		}
		if attempt < r.attempts {
			r.sleep(time.Duration(1<<attempt) * time.Second)
		}
	}

	return model.ModuleOutcome{
		Status:   model.ModuleFailed,
		Error:    lastErr.Error(),
		Attempts: r.attempts,
	}, nil
}
