package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mrcode/glucose-insights/internal/ingest"
	"github.com/mrcode/glucose-insights/internal/learning"
	"github.com/mrcode/glucose-insights/internal/models"
	"github.com/mrcode/glucose-insights/internal/storage"
)

var learnFlags struct {
	files   []string
	noStore bool
}

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Feed a batch of observations to the learning engine",
	Long: `Read learning batches (JSON or YAML with glucose, insulin, environmental and
lifestyle observations) and run one learning call per file, in order, on the
same engine. Observations without an actual value are skipped. Every outcome
is stored with the engine status, which includes the recent learning trend.`,
	Example: `  glucose-insights learn --file batch.yaml
  glucose-insights learn -f monday.yaml -f tuesday.yaml -f wednesday.yaml
  cat batch.json | glucose-insights learn --file - -o json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runLearn(cmd)
	},
}

func init() {
	learnCmd.Flags().StringSliceVarP(&learnFlags.files, "file", "f", nil, "Learning batch file, repeatable (- for stdin)")
	learnCmd.Flags().BoolVar(&learnFlags.noStore, "no-store", false, "Do not save the outcome")
	_ = learnCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(learnCmd)
}

// learnResult is the output of the learn command
type learnResult struct {
	Outcomes []models.LearningOutcome `json:"outcomes" yaml:"outcomes"`
	Status   models.SystemStatus      `json:"status" yaml:"status"`
}

func runLearn(cmd *cobra.Command) error {
	ctx := cmd.Context()

	batches := make([]models.LearningBatch, 0, len(learnFlags.files))
	for _, file := range learnFlags.files {
		data, err := readInput(cmd, file)
		if err != nil {
			return err
		}
		res, err := ingest.ParseLearningBatch(data)
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		warnRejected(res.Errors)
		if res.Batch.Empty() {
			appLogger.Warn("batch has no observations", "file", file)
		}
		batches = append(batches, res.Batch)
	}

	var store storage.Store
	if !learnFlags.noStore {
		var err error
		if store, err = openStore(ctx); err != nil {
			return err
		}
		if store != nil {
			defer func() { _ = store.Close() }()
		}
	}

	engine := learning.New(cfg.EngineConfig(), learning.WithLogger(appLogger))
	result := learnResult{Outcomes: make([]models.LearningOutcome, 0, len(batches))}
	for _, batch := range batches {
		outcome := engine.Learn(ctx, batch)
		status := engine.Status()
		if store != nil {
			if err := store.SaveOutcome(ctx, &outcome, status); err != nil {
				return err
			}
		}
		result.Outcomes = append(result.Outcomes, outcome)
		result.Status = status
	}
	appLogger.Debug("learning trend", "trend", result.Status.Insights.Trend, "calls", len(batches))

	return writeOutput(cmd.OutOrStdout(), output, result, func(w io.Writer) {
		printLearn(w, result.Outcomes, result.Status)
	})
}
