package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/mrcode/glucose-insights/internal/models"
	"github.com/mrcode/glucose-insights/internal/render"
	"github.com/mrcode/glucose-insights/internal/storage"
)

// Output formats
const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

var (
	cyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

func checkOutput(format string) error {
	switch format {
	case outputTable, outputJSON, outputYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (use table, json or yaml)", format)
	}
}

// writeOutput encodes v as JSON or YAML, or calls table for the table format
func writeOutput(w io.Writer, format string, v any, table func(io.Writer)) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		table(w)
		return nil
	}
}

// formatGlucose renders a mg/dL value in the display unit
func formatGlucose(mgdl float64, unit string) string {
	if unit == models.UnitMmolL {
		return fmt.Sprintf("%.1f %s", models.ToMmol(mgdl), models.UnitMmolL)
	}
	return fmt.Sprintf("%.0f %s", mgdl, models.UnitMgDL)
}

// displayValues converts mg/dL readings into the display unit
func displayValues(readings []models.Reading, unit string) []float64 {
	values := models.Values(readings)
	if unit == models.UnitMmolL {
		for i, v := range values {
			values[i] = models.ToMmol(v)
		}
	}
	return values
}

// patternSummary describes a pattern in one line
func patternSummary(p models.Pattern, unit string) string {
	switch d := p.Data.(type) {
	case models.GlucoseStats:
		return fmt.Sprintf("%d readings, mean %s, median %s, in range %.0f%%, below %.0f%%, CV %.0f%%, GMI %.1f%%",
			d.Count, formatGlucose(d.Mean, unit), formatGlucose(d.Median, unit), d.TimeInRange, d.TimeBelowRange, d.CoefficientOfVariation, d.GMI)
	case models.TimeSeriesAnalysis:
		if d.Status == models.StatusInsufficient {
			return "insufficient data"
		}
		s := fmt.Sprintf("trend %s (slope %.2f), volatility %.1f, next %s", d.Trend, d.Slope, d.Volatility, formatGlucose(d.Prediction, unit))
		if d.Seasonality {
			s += ", seasonal"
		}
		return s
	case models.AnomalyResult:
		return fmt.Sprintf("%d anomalies of %d readings", len(d.Anomalies), len(d.ZScores))
	case models.ClusterResult:
		centroids := make([]string, len(d.Centroids))
		for i, c := range d.Centroids {
			centroids[i] = formatGlucose(c, unit)
		}
		return fmt.Sprintf("centroids %s after %d iterations", strings.Join(centroids, ", "), d.Iterations)
	case models.HypoglycemiaResult:
		if d.Episodes == 0 {
			return "no episodes"
		}
		return fmt.Sprintf("%d episodes (%.1f/day), severity %s, lowest %s", d.Episodes, d.Frequency, d.Severity, formatGlucose(d.MinValue, unit))
	case models.CorrelationResult:
		if d.Status == models.StatusInsufficient {
			return "insufficient data"
		}
		return fmt.Sprintf("%s, r=%.2f at lag %d", d.Pattern, d.Correlation, d.Lag)
	case models.MedicationResult:
		if d.Status == models.StatusInsufficient {
			return "insufficient data"
		}
		s := fmt.Sprintf("effectiveness %.1f%%, t=%.2f", d.Effectiveness, d.TStatistic)
		if d.StatisticalSignificance {
			s += ", significant"
		}
		return s
	default:
		return ""
	}
}

// printBundle writes an insight bundle as a colored report
func printBundle(w io.Writer, bundle *models.InsightBundle, glucose []models.Reading, unit string) {
	fmt.Fprintf(w, "\n%s\n", cyan("=== Glucose Insights ==="))
	fmt.Fprintf(w, "  ID:         %s\n", bundle.ID)
	fmt.Fprintf(w, "  Generated:  %s\n", bundle.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "  Confidence: %.2f", bundle.Confidence)
	if bundle.EnsembleScore > 0 {
		fmt.Fprintf(w, "  (ensemble %.2f)", bundle.EnsembleScore)
	}
	fmt.Fprintln(w)

	if chart := render.Sparkline(displayValues(glucose, unit), render.DefaultSparklineHeight); chart != "" {
		fmt.Fprintf(w, "\n%s\n", gray(chart))
	}

	fmt.Fprintf(w, "\n%s\n", yellow("Patterns:"))
	if len(bundle.Patterns) == 0 {
		fmt.Fprintf(w, "  %s\n", gray("No data to analyze"))
	}
	for _, p := range bundle.Patterns {
		fmt.Fprintf(w, "  %s %-28s %s %s\n", green("●"), p.Type, gray(fmt.Sprintf("(%.2f)", p.Confidence)), patternSummary(p, unit))
	}

	fmt.Fprintf(w, "\n%s\n", yellow("Risks:"))
	if len(bundle.Risks) == 0 {
		fmt.Fprintf(w, "  %s None\n", green("✓"))
	}
	for _, r := range bundle.Risks {
		level := yellow(r.Level)
		if r.Level == models.RiskLevelHigh {
			level = red(r.Level)
		}
		fmt.Fprintf(w, "  ⚠ [%s] %s\n", level, r.Message)
	}

	if len(bundle.Recommendations) > 0 {
		fmt.Fprintf(w, "\n%s\n", yellow("Recommendations:"))
		for _, rec := range bundle.Recommendations {
			fmt.Fprintf(w, "  • %s\n", rec)
		}
	}
	fmt.Fprintln(w)
}

// printLearn writes every learning outcome followed by the final engine status
func printLearn(w io.Writer, outcomes []models.LearningOutcome, status models.SystemStatus) {
	for _, outcome := range outcomes {
		printOutcome(w, outcome)
	}
	printEngineStatus(w, status)
	fmt.Fprintln(w)
}

func printOutcome(w io.Writer, outcome models.LearningOutcome) {
	fmt.Fprintf(w, "\n%s\n", cyan("=== Learning Outcome ==="))

	level := string(outcome.AdaptationLevel)
	switch {
	case outcome.Degraded:
		level = red(level + " (degraded)")
	case outcome.AdaptationLevel == models.AdaptationHigh:
		level = green(level)
	default:
		level = yellow(level)
	}
	fmt.Fprintf(w, "  %s\n", outcome.Summary)
	fmt.Fprintf(w, "  Adaptation: %s\n", level)

	if len(outcome.AccuracyImprovements) > 0 {
		fmt.Fprintf(w, "\n%s\n", yellow("Improvements:"))
		for _, domain := range sortedKeys(outcome.AccuracyImprovements) {
			fmt.Fprintf(w, "  %-14s %.3f\n", domain, outcome.AccuracyImprovements[domain])
		}
	}

	if len(outcome.NewInsights) > 0 {
		fmt.Fprintf(w, "\n%s\n", yellow("Insights:"))
		for _, in := range outcome.NewInsights {
			fmt.Fprintf(w, "  • %s\n", in)
		}
	}
}

func printEngineStatus(w io.Writer, status models.SystemStatus) {
	if len(status.AdaptiveWeights) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", yellow("Engine:"))
	fmt.Fprintf(w, "  Learning rate: %.4f\n", status.LearningRate)
	if ins := status.Insights; ins.Trend != "" {
		fmt.Fprintf(w, "  Trend: %s over %d calls (%+.3f)\n", ins.Trend, ins.MetricsConsidered, ins.Change)
		if ins.Recommendation != "" {
			fmt.Fprintf(w, "  %s\n", gray(ins.Recommendation))
		}
	}
	for _, m := range status.AdaptiveWeights.Methods() {
		fmt.Fprintf(w, "  %-14s weight %.3f\n", m, status.AdaptiveWeights[m])
	}
	for _, model := range sortedKeys(status.ModelAccuracies) {
		fmt.Fprintf(w, "  %-26s accuracy %.3f\n", model, status.ModelAccuracies[model])
	}
}

// statusReport is the output of the status command
type statusReport struct {
	Server   *models.ServerStatus     `json:"server,omitempty" yaml:"server,omitempty"`
	Current  *models.GlucoseEntry     `json:"current,omitempty" yaml:"current,omitempty"`
	Outcomes []*storage.OutcomeRecord `json:"outcomes" yaml:"outcomes"`
	Insights []*storage.InsightRecord `json:"insights" yaml:"insights"`
}

func printStatus(w io.Writer, report statusReport, unit string) {
	fmt.Fprintf(w, "\n%s\n", cyan("=== Glucose Insights Status ==="))

	if srv := report.Server; srv != nil {
		fmt.Fprintf(w, "  Server: %s %s %s\n", srv.Name, gray(srv.Version), srv.Status)
	}

	if c := report.Current; c != nil {
		fmt.Fprintf(w, "\n%s\n", yellow("Current:"))
		fmt.Fprintf(w, "  %s %s  %s\n", formatGlucose(float64(c.SGV), unit), c.TrendArrow(), gray(c.Time().Format("15:04")))
	}

	fmt.Fprintf(w, "\n%s\n", yellow("Recent learning:"))
	if len(report.Outcomes) == 0 {
		fmt.Fprintf(w, "  %s\n", gray("No stored outcomes"))
	}
	for _, rec := range report.Outcomes {
		icon := green("●")
		if rec.Outcome.Degraded {
			icon = red("✗")
		}
		fmt.Fprintf(w, "  %s %s [%s] %s\n", icon, rec.StoredAt.Local().Format("2006-01-02 15:04"), rec.Outcome.AdaptationLevel, rec.Outcome.Summary)
	}
	if len(report.Outcomes) > 0 {
		printEngineStatus(w, report.Outcomes[0].Status)
	}

	fmt.Fprintf(w, "\n%s\n", yellow("Recent insights:"))
	if len(report.Insights) == 0 {
		fmt.Fprintf(w, "  %s\n", gray("No stored insights"))
	}
	for _, rec := range report.Insights {
		b := rec.Bundle
		risks := green("no risks")
		if len(b.Risks) > 0 {
			risks = red(fmt.Sprintf("%d risks", len(b.Risks)))
		}
		fmt.Fprintf(w, "  %s %s confidence %.2f, %d patterns, %s\n", green("●"), rec.StoredAt.Local().Format("2006-01-02 15:04"), b.Confidence, len(b.Patterns), risks)
	}
	fmt.Fprintln(w)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
