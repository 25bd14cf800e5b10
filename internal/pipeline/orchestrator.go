package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulse-metrics/insights-cli/internal/model"
	"github.com/pulse-metrics/insights-cli/internal/preprocess"
	"github.com/pulse-metrics/insights-cli/internal/store"
)

// DefaultMaxRecoveryAttempts bounds full pipeline restarts after loading
// or preprocessing failures.
const DefaultMaxRecoveryAttempts = 2

// recoveryBackoff is the linear restart delay unit: restart n waits n
// times this long.
const recoveryBackoff = 5 * time.Second

// runState names where an execution currently is.
type runState string

const (
	stateInit           runState = "INIT"
	stateLoading        runState = "LOADING"
	statePreprocessing  runState = "PREPROCESSING"
	stateRunningModules runState = "RUNNING_MODULES"
	statePersisting     runState = "PERSISTING"
	stateDone           runState = "DONE"
	stateFailed         runState = "FAILED"
)

// Options configures one pipeline execution.
type Options struct {
	// RunID pre-assigns the run id. Empty means a fresh UUID; the HTTP
	// surface assigns ids up front so it can answer before the run ends.
	RunID string

	// SampleSize caps the dataset after downsampling. Zero means
	// preprocess.DefaultSampleSize.
	SampleSize int

	// RetryAttempts bounds per-module attempts. Zero means
	// DefaultRetryAttempts.
	RetryAttempts int

	// RecoveryAttempts bounds full restarts after fatal loading or
	// preprocessing errors. Zero means DefaultMaxRecoveryAttempts.
	RecoveryAttempts int
}

// Orchestrator drives an analysis run end to end: load, preprocess, run
// the registered modules, persist the outcome.
type Orchestrator struct {
	store store.Store
	reg   *Registry

	// sleep is shared by module backoff and recovery backoff.
	sleep func(time.Duration)
}

func NewOrchestrator(st store.Store, reg *Registry) *Orchestrator {
	return &Orchestrator{store: st, reg: reg, sleep: time.Sleep}
}

// Execute performs one full run and always returns a summary. The error is
// non-nil only when loading or preprocessing kept failing after every
// recovery restart; module failures are reported inside the summary
// instead. Loading and preprocessing run at most 1+RecoveryAttempts times,
// and each module at most RetryAttempts times.
func (o *Orchestrator) Execute(ctx context.Context, opts Options) (*model.RunSummary, error) {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	log := zap.L().With(zap.String("run_id", runID))

	maxRecovery := opts.RecoveryAttempts
	if maxRecovery <= 0 {
		maxRecovery = DefaultMaxRecoveryAttempts
	}

	state := stateInit
	setState := func(next runState) {
		log.Debug("pipeline: state change",
			zap.String("from", string(state)), zap.String("to", string(next)))
		state = next
	}

	started := time.Now().UTC()
	run := &model.PipelineRun{ID: runID, Status: model.RunStatusRunning, StartedAt: started}
	if err := o.store.CreateRun(ctx, run); err != nil {
		log.Warn("pipeline: create run failed", zap.Error(err))
	}

	// Loading and preprocessing failures restart the run from LOADING with
	// a linear backoff until recovery is exhausted.
	var posts []model.CanonicalPost
	recoveryUsed := 0
	var fatalErr error
	for attempt := 0; ; attempt++ {
		setState(stateLoading)
		loaded, err := o.store.LoadPosts(ctx)
		if err == nil {
			setState(statePreprocessing)
			var stats preprocess.Stats
			posts, stats, err = preprocess.Run(loaded, preprocess.Options{SampleSize: opts.SampleSize})
			if err == nil {
				log.Info("pipeline: dataset ready",
					zap.Int("rows_in", stats.RowsIn),
					zap.Int("rows_out", stats.RowsOut),
					zap.Bool("downsampled", stats.Downsampled))
				fatalErr = nil
				break
			}
		}
		fatalErr = err
		if attempt >= maxRecovery {
			break
		}
		recoveryUsed = attempt + 1
		wait := time.Duration(recoveryUsed) * recoveryBackoff
		log.Warn("pipeline: restarting after fatal error",
			zap.Int("recovery_attempt", recoveryUsed),
			zap.Duration("backoff", wait),
			zap.Error(err))
		o.sleep(wait)
	}

	if fatalErr != nil {
		setState(stateFailed)
		run.Status = model.RunStatusFailed
		run.Error = fatalErr.Error()
		run.RecoveryAttempts = recoveryUsed
		run.EndedAt = time.Now().UTC()
		if err := o.store.CompleteRun(ctx, run); err != nil {
			log.Warn("pipeline: complete run failed", zap.Error(err))
		}

		log.Error("pipeline: run failed",
			zap.Int("recovery_attempts", recoveryUsed), zap.Error(fatalErr))
		return &model.RunSummary{
			RunID:            runID,
			Status:           model.RunStatusFailed,
			DurationSeconds:  time.Since(started).Seconds(),
			RecoveryAttempts: recoveryUsed,
			Error:            fatalErr.Error(),
		}, fatalErr
	}

	setState(stateRunningModules)
	runner := NewModuleRunner(opts.RetryAttempts)
	runner.sleep = o.sleep
	ds := &Dataset{Posts: posts}

	outcomes := make([]model.ModuleOutcome, 0, o.reg.Len())
	var predictions []model.Prediction
	for _, mod := range o.reg.Modules() {
		outcome, res := runner.Run(ctx, mod, ds)
		outcomes = append(outcomes, outcome)
		if res == nil {
			continue
		}
		for _, p := range res.Predictions {
			if p.Module == "" {
				p.Module = mod.Name
			}
			predictions = append(predictions, p)
		}
	}

	var successful, failed, skipped int
	for _, oc := range outcomes {
		switch oc.Status {
		case model.ModuleCompleted:
			successful++
		case model.ModuleFailed:
			failed++
		case model.ModuleSkipped:
			skipped++
		}
	}
	status := model.RunStatusCompleted
	if failed > 0 {
		status = model.RunStatusPartial
		if successful == 0 {
			status = model.RunStatusFailed
		}
		run.Error = fmt.Sprintf("%d of %d modules failed", failed, len(outcomes))
	}

	// Persistence is best effort: computed results are never rolled back
	// because a write failed.
	setState(statePersisting)
	for _, oc := range outcomes {
		if err := o.store.SaveModuleResult(ctx, runID, oc); err != nil {
			log.Warn("pipeline: save module result failed",
				zap.String("module", oc.Module), zap.Error(err))
		}
	}
	for _, p := range predictions {
		if err := o.store.SavePrediction(ctx, p); err != nil {
			log.Warn("pipeline: save prediction failed",
				zap.String("module", p.Module), zap.Error(err))
		}
	}
	run.Status = status
	run.Outcomes = outcomes
	run.RecoveryAttempts = recoveryUsed
	run.EndedAt = time.Now().UTC()
	if err := o.store.CompleteRun(ctx, run); err != nil {
		log.Warn("pipeline: complete run failed", zap.Error(err))
	}
	setState(stateDone)

	summary := &model.RunSummary{
		RunID:            runID,
		Status:           status,
		ModulesExecuted:  len(outcomes),
		Successful:       successful,
		Failed:           failed,
		Skipped:          skipped,
		DurationSeconds:  time.Since(started).Seconds(),
		RecoveryAttempts: recoveryUsed,
		Error:            run.Error,
	}
	log.Info("pipeline: run complete",
		zap.String("status", string(status)),
		zap.Int("successful", successful),
		zap.Int("failed", failed),
		zap.Int("skipped", skipped),
		zap.Float64("duration_seconds", summary.DurationSeconds))
	return summary, nil
}
