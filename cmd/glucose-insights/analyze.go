package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrcode/glucose-insights/internal/analysis"
	"github.com/mrcode/glucose-insights/internal/ingest"
	"github.com/mrcode/glucose-insights/internal/models"
	"github.com/mrcode/glucose-insights/internal/notifications"
	"github.com/mrcode/glucose-insights/internal/render"
)

var analyzeFlags struct {
	file       string
	nightscout bool
	hours      int
	medication string
	chart      string
	stress     float64
	sleep      float64
	exercise   float64
	threshold  float64
	notify     bool
	noStore    bool
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze glucose data and print an insight bundle",
	Long: `Analyze a records file ({metric, timestamp, value, unit} JSON array, "-" for
stdin) or the last hours of Nightscout data. Insulin doses are aligned onto
the glucose timeline before correlation. Lifestyle flags add lifestyle risks.`,
	Example: `  glucose-insights analyze --file records.json --chart glucose.png
  glucose-insights analyze --nightscout --hours 12 --stress 8 --sleep 5 --notify`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runAnalyze(cmd)
	},
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVarP(&analyzeFlags.file, "file", "f", "", "Records file to analyze (- for stdin)")
	f.BoolVar(&analyzeFlags.nightscout, "nightscout", false, "Fetch data from the configured Nightscout server")
	f.IntVar(&analyzeFlags.hours, "hours", 0, "Hours of Nightscout data to fetch (default from config)")
	f.StringVar(&analyzeFlags.medication, "medication", "", "Medication before/after file (JSON or YAML)")
	f.StringVar(&analyzeFlags.chart, "chart", "", "Write a PNG chart to this path")
	f.Float64Var(&analyzeFlags.stress, "stress", 0, "Stress level 0-10")
	f.Float64Var(&analyzeFlags.sleep, "sleep", 0, "Sleep hours per night")
	f.Float64Var(&analyzeFlags.exercise, "exercise", 0, "Exercise minutes per day")
	f.Float64Var(&analyzeFlags.threshold, "threshold", 0, "Anomaly z-score threshold (default from config)")
	f.BoolVar(&analyzeFlags.notify, "notify", false, "Send desktop notifications for risks")
	f.BoolVar(&analyzeFlags.noStore, "no-store", false, "Do not save the bundle")
	analyzeCmd.MarkFlagsMutuallyExclusive("file", "nightscout")
	analyzeCmd.MarkFlagsOneRequired("file", "nightscout")

	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command) error {
	ctx := cmd.Context()

	in, err := loadAnalysisInput(ctx, cmd)
	if err != nil {
		return err
	}

	agg := analysis.NewAggregator(
		analysis.WithClusters(cfg.Analysis.Clusters),
		analysis.WithLogger(appLogger),
	)
	bundle, err := agg.Analyze(ctx, in)
	if err != nil {
		return err
	}

	if analyzeFlags.chart != "" {
		if err := writeChart(analyzeFlags.chart, in.Glucose, bundle); err != nil {
			return err
		}
		appLogger.Info("chart written", "path", analyzeFlags.chart)
	}

	if !analyzeFlags.noStore {
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		if store != nil {
			defer func() { _ = store.Close() }()
			if err := store.SaveInsights(ctx, bundle); err != nil {
				return err
			}
		}
	}

	if analyzeFlags.notify {
		manager := notifications.NewManager(cfg.NotificationSettings(), nil, appLogger)
		if _, err := manager.CheckAndNotify(bundle); err != nil {
			appLogger.Warn("notification failed", "error", err)
		}
	}

	return writeOutput(cmd.OutOrStdout(), output, bundle, func(w io.Writer) {
		printBundle(w, bundle, in.Glucose, cfg.Unit)
	})
}

// loadAnalysisInput assembles the aggregator input from flags and sources
func loadAnalysisInput(ctx context.Context, cmd *cobra.Command) (analysis.Input, error) {
	var glucose, insulin []models.Reading

	if analyzeFlags.nightscout {
		client, err := newNightscoutClient()
		if err != nil {
			return analysis.Input{}, err
		}
		hours := analyzeFlags.hours
		if hours <= 0 {
			hours = cfg.Nightscout.Hours
		}
		res, err := client.FetchSeries(ctx, hours)
		if err != nil {
			return analysis.Input{}, err
		}
		warnRejected(res.Rejected)
		glucose, insulin = res.Glucose.Readings, res.Insulin.Readings
	} else {
		data, err := readInput(cmd, analyzeFlags.file)
		if err != nil {
			return analysis.Input{}, err
		}
		res, err := ingest.ParseRecords(data)
		if err != nil {
			return analysis.Input{}, err
		}
		warnRejected(res.Errors)
		series := ingest.GroupByMetric(res.Records)
		glucose = series[models.MetricGlucose].Readings
		insulin = series[models.MetricInsulin].Readings
	}

	in := analysis.Input{
		Glucose:          models.SortReadings(glucose),
		Insulin:          alignInsulin(glucose, insulin),
		AnomalyThreshold: cfg.Analysis.AnomalyThreshold,
	}
	if analyzeFlags.threshold > 0 {
		in.AnomalyThreshold = analyzeFlags.threshold
	}

	if analyzeFlags.medication != "" {
		data, err := os.ReadFile(analyzeFlags.medication)
		if err != nil {
			return analysis.Input{}, fmt.Errorf("reading medication file: %w", err)
		}
		med, err := ingest.ParseMedication(data)
		if err != nil {
			return analysis.Input{}, err
		}
		in.Medication = med
	}

	flags := cmd.Flags()
	if flags.Changed("stress") || flags.Changed("sleep") || flags.Changed("exercise") {
		in.Lifestyle = &analysis.LifestyleInput{
			Stress:          analyzeFlags.stress,
			SleepHours:      analyzeFlags.sleep,
			ExerciseMinutes: analyzeFlags.exercise,
		}
		// Unset sleep would read as a sleep deficit
		if !flags.Changed("sleep") {
			in.Lifestyle.SleepHours = 8
		}
	}

	appLogger.Debug("analysis input", "glucose", len(in.Glucose), "insulin", len(insulin),
		"medication", in.Medication != nil, "lifestyle", in.Lifestyle != nil)
	return in, nil
}

// alignInsulin puts sparse doses on the glucose timeline, nil without doses
func alignInsulin(glucose, insulin []models.Reading) []models.Reading {
	if len(insulin) == 0 {
		return nil
	}
	return ingest.AlignToGlucose(glucose, insulin)
}

// readInput reads a file, or stdin for "-"
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // Path is given by the user
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// warnRejected logs records that failed validation
func warnRejected(errs ingest.Errors) {
	if len(errs) == 0 {
		return
	}
	appLogger.Warn("rejected records", "count", len(errs), "first", errs[0].Error())
	for _, e := range errs {
		appLogger.Debug("rejected record", "source", e.Source, "index", e.Index, "field", e.Field, "reason", e.Reason)
	}
}

func writeChart(path string, glucose []models.Reading, bundle *models.InsightBundle) error {
	var anomalies []models.Anomaly
	if p, ok := bundle.Pattern(models.PatternAnomalies); ok {
		if res, ok := p.Data.(models.AnomalyResult); ok {
			anomalies = res.Anomalies
		}
	}

	opts := render.DefaultChartOptions()
	opts.Unit = cfg.Unit
	data, err := render.Chart(glucose, anomalies, opts)
	if err != nil {
		return fmt.Errorf("rendering chart: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing chart: %w", err)
	}
	return nil
}
