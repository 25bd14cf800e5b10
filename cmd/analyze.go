package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/pulse-metrics/insights-cli/internal/pipeline"
)

var (
	analyzeSampleSize  int
	analyzeRetries     int
	analyzeRecovery    int
	analyzeModulesFile string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the analysis pipeline over the canonical store",
	Long:  "Loads canonical posts, preprocesses them, runs every registered analysis module with bounded retries and fallback, and persists the run record plus per-module predictions. Prints a structured run summary.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("analyze"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		reg, err := buildRegistry()
		if err != nil {
			return err
		}

		opts := pipeline.Options{
			SampleSize:       cfg.Pipeline.SampleSize,
			RetryAttempts:    cfg.Pipeline.RetryAttempts,
			RecoveryAttempts: cfg.Pipeline.MaxRecoveryAttempts,
		}
		if analyzeSampleSize > 0 {
			opts.SampleSize = analyzeSampleSize
		}
		if analyzeRetries > 0 {
			opts.RetryAttempts = analyzeRetries
		}
		if analyzeRecovery > 0 {
			opts.RecoveryAttempts = analyzeRecovery
		}

		orch := pipeline.NewOrchestrator(st, reg)
		summary, execErr := orch.Execute(ctx, opts)

		// The summary is the caller-facing contract; it is printed even when
		// the run failed so operators never have to read a stack trace.
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return eris.Wrap(err, "encode summary")
		}

		if execErr != nil {
			return eris.Errorf("pipeline failed after %d recovery attempts: %s",
				summary.RecoveryAttempts, summary.Error)
		}
		return nil
	},
}

// buildRegistry assembles the analysis stage set, honoring the optional
// modules config file.
func buildRegistry() (*pipeline.Registry, error) {
	path := cfg.Pipeline.ModulesFile
	if analyzeModulesFile != "" {
		path = analyzeModulesFile
	}
	if path == "" {
		return pipeline.DefaultRegistry(), nil
	}

	mc, err := pipeline.LoadModulesConfig(path)
	if err != nil {
		return nil, err
	}
	return pipeline.BuildRegistry(mc), nil
}

func init() {
	analyzeCmd.Flags().IntVar(&analyzeSampleSize, "sample-size", 0, "max dataset rows before deterministic downsampling (default from config)")
	analyzeCmd.Flags().IntVar(&analyzeRetries, "retry-attempts", 0, "per-module attempt ceiling (default from config)")
	analyzeCmd.Flags().IntVar(&analyzeRecovery, "recovery-attempts", 0, "max full restarts after loading/preprocessing failures (default from config)")
	analyzeCmd.Flags().StringVar(&analyzeModulesFile, "modules", "", "path to a modules YAML file enabling/tuning stages")
	rootCmd.AddCommand(analyzeCmd)
}
