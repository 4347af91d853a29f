package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mrcode/glucose-insights/internal/models"
)

// Confidence contributions of each data domain to the bundle confidence
const (
	glucoseConfidence     = 0.3
	correlationConfidence = 0.2
	lifestyleConfidence   = 0.1
	maxConfidence         = 1.0

	anomalyRateThreshold = 0.1
	highStress           = 7.0
	minSleepHours        = 7.0
	minExerciseMinutes   = 30.0

	// DefaultClusters is the number of glucose clusters computed per bundle
	DefaultClusters = 3
)

// Fixed per-pattern confidences for analyzers without an intrinsic score
const (
	timeSeriesPatternConfidence   = 0.8
	anomalyPatternConfidence      = 0.7
	clusterPatternConfidence      = 0.6
	hypoglycemiaPatternConfidence = 0.9
	lifestylePatternConfidence    = 0.6
)

// MedicationInput holds glucose values around a medication change
type MedicationInput struct {
	Before []float64 `json:"before" yaml:"before"`
	After  []float64 `json:"after" yaml:"after"`
}

// LifestyleInput holds self-reported lifestyle data
type LifestyleInput struct {
	Stress          float64 `json:"stress" yaml:"stress"`         // 0-10
	SleepHours      float64 `json:"sleepHours" yaml:"sleepHours"` // Hours per night
	ExerciseMinutes float64 `json:"exerciseMinutes" yaml:"exerciseMinutes"`
}

// Input is everything the aggregator can analyze in one pass.
// Nil or empty fields skip the corresponding analyzers.
type Input struct {
	Glucose    []models.Reading
	Insulin    []models.Reading
	Medication *MedicationInput
	Lifestyle  *LifestyleInput

	// AnomalyThreshold overrides DefaultAnomalyThreshold when > 0
	AnomalyThreshold float64

	// Weights are the ensemble weights published by the learning engine
	Weights models.AdaptiveWeights
}

// Aggregator runs the analyzers and merges their outputs into one bundle
type Aggregator struct {
	clusters int
	seed     *int64
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithClusters sets the number of glucose clusters
func WithClusters(k int) Option {
	return func(a *Aggregator) {
		if k > 0 {
			a.clusters = k
		}
	}
}

// WithSeed makes clustering deterministic
func WithSeed(seed int64) Option {
	return func(a *Aggregator) {
		a.seed = &seed
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// WithClock overrides the time source used to stamp bundles
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// NewAggregator creates a new Aggregator
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		clusters: DefaultClusters,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// analysisResults collects the outputs of one Analyze call; each field is
// written by exactly one goroutine
type analysisResults struct {
	stats        *models.GlucoseStats
	timeSeries   *models.TimeSeriesAnalysis
	anomalies    *models.AnomalyResult
	clusters     *models.ClusterResult
	hypoglycemia *models.HypoglycemiaResult
	correlation  *models.CorrelationResult
	medication   *models.MedicationResult
}

// Analyze runs every applicable analyzer and merges the results.
// It only fails when ctx is cancelled.
func (a *Aggregator) Analyze(ctx context.Context, in Input) (*models.InsightBundle, error) {
	res, err := a.run(ctx, in)
	if err != nil {
		return nil, err
	}

	bundle := &models.InsightBundle{
		ID:              uuid.NewString(),
		GeneratedAt:     a.now(),
		Patterns:        []models.Pattern{},
		Risks:           []models.Risk{},
		Recommendations: []string{},
	}
	recs := newRecommendationSet()

	if len(in.Glucose) > 0 {
		bundle.Confidence += glucoseConfidence
		bundle.Patterns = append(bundle.Patterns, models.Pattern{
			Type:       models.PatternGlucoseStats,
			Data:       *res.stats,
			Confidence: math.Min(1, float64(res.stats.Count)/100),
		})
	}

	if res.timeSeries != nil && res.timeSeries.Status == models.StatusComputed {
		bundle.Patterns = append(bundle.Patterns, models.Pattern{
			Type:       models.PatternTimeSeries,
			Data:       *res.timeSeries,
			Confidence: timeSeriesPatternConfidence,
		})
		if res.timeSeries.Trend == models.TrendIncreasing {
			bundle.Risks = append(bundle.Risks, models.Risk{
				Kind:    models.RiskIncreasingTrend,
				Level:   models.RiskLevelMedium,
				Message: fmt.Sprintf("Glucose is trending upward (%.1f mg/dL per reading)", res.timeSeries.Slope),
			})
		}
	}

	if res.anomalies != nil && len(res.anomalies.ZScores) > 0 {
		bundle.Patterns = append(bundle.Patterns, models.Pattern{
			Type:       models.PatternAnomalies,
			Data:       *res.anomalies,
			Confidence: anomalyPatternConfidence,
		})
		rate := float64(len(res.anomalies.Anomalies)) / float64(len(in.Glucose))
		if rate > anomalyRateThreshold {
			bundle.Risks = append(bundle.Risks, models.Risk{
				Kind:    models.RiskAnomalyRate,
				Level:   models.RiskLevelMedium,
				Message: fmt.Sprintf("%.0f%% of glucose readings are statistical outliers", rate*100),
			})
		}
	}

	if res.clusters != nil {
		bundle.Patterns = append(bundle.Patterns, models.Pattern{
			Type:       models.PatternClusters,
			Data:       *res.clusters,
			Confidence: clusterPatternConfidence,
		})
	}

	if res.hypoglycemia != nil {
		bundle.Patterns = append(bundle.Patterns, models.Pattern{
			Type:       models.PatternHypoglycemia,
			Data:       *res.hypoglycemia,
			Confidence: hypoglycemiaPatternConfidence,
		})
		if res.hypoglycemia.Episodes > 0 {
			recs.add(res.hypoglycemia.Prevention...)
		}
		if res.hypoglycemia.Severity == models.SeveritySevere {
			bundle.Risks = append(bundle.Risks, models.Risk{
				Kind:    models.RiskSevereHypoglycemia,
				Level:   models.RiskLevelHigh,
				Message: fmt.Sprintf("Severe hypoglycemia: %d episodes, lowest %.0f mg/dL", res.hypoglycemia.Episodes, res.hypoglycemia.MinValue),
			})
		}
	}

	if res.correlation != nil {
		bundle.Patterns = append(bundle.Patterns, models.Pattern{
			Type:       models.PatternCorrelation,
			Data:       *res.correlation,
			Confidence: res.correlation.Confidence,
		})
		if res.correlation.Status == models.StatusComputed {
			bundle.Confidence += correlationConfidence
			recs.add(res.correlation.Recommendations...)
		}
	}

	if res.medication != nil {
		confidence := 0.0
		if res.medication.Status == models.StatusComputed {
			confidence = 0.5
			if res.medication.StatisticalSignificance {
				confidence = 0.8
			}
		}
		bundle.Patterns = append(bundle.Patterns, models.Pattern{
			Type:       models.PatternMedication,
			Data:       *res.medication,
			Confidence: confidence,
		})
		recs.add(res.medication.Recommendations...)
	}

	if in.Lifestyle != nil {
		bundle.Confidence += lifestyleConfidence
		bundle.Patterns = append(bundle.Patterns, models.Pattern{
			Type:       models.PatternLifestyle,
			Data:       *in.Lifestyle,
			Confidence: lifestylePatternConfidence,
		})
		bundle.Risks = append(bundle.Risks, lifestyleRisks(in.Lifestyle)...)
		recs.add(lifestyleRecommendations(in.Lifestyle)...)
	}

	bundle.Confidence = math.Min(maxConfidence, bundle.Confidence)
	bundle.Recommendations = recs.items
	if len(in.Weights) > 0 {
		bundle.EnsembleScore = ensembleScore(bundle.Patterns, in.Weights)
	}

	a.logger.Debug("insights aggregated",
		"id", bundle.ID,
		"patterns", len(bundle.Patterns),
		"risks", len(bundle.Risks),
		"confidence", bundle.Confidence)

	return bundle, nil
}

// run fans the analyzers out; they share no state
func (a *Aggregator) run(ctx context.Context, in Input) (*analysisResults, error) {
	res := &analysisResults{}
	g, ctx := errgroup.WithContext(ctx)

	if len(in.Glucose) > 0 {
		glucose := models.SortReadings(in.Glucose)

		g.Go(func() error {
			stats := SummarizeGlucose(glucose)
			res.stats = &stats
			return ctx.Err()
		})
		g.Go(func() error {
			ts := AnalyzeTimeSeries(glucose)
			res.timeSeries = &ts
			return ctx.Err()
		})
		g.Go(func() error {
			anomalies := DetectReadingAnomalies(glucose, in.AnomalyThreshold)
			res.anomalies = &anomalies
			return ctx.Err()
		})
		g.Go(func() error {
			hypo := DetectHypoglycemiaPatterns(glucose)
			res.hypoglycemia = &hypo
			return ctx.Err()
		})
		if len(glucose) >= a.clusters {
			var rng *rand.Rand
			if a.seed != nil {
				rng = rand.New(rand.NewSource(*a.seed)) //nolint:gosec // Not used for security
			}
			g.Go(func() error {
				clusters := KMeans(models.Values(glucose), a.clusters, DefaultMaxIterations, rng)
				res.clusters = &clusters
				return ctx.Err()
			})
		}
		if len(in.Insulin) > 0 {
			g.Go(func() error {
				corr := AnalyzeGlucoseInsulinPatterns(glucose, in.Insulin)
				res.correlation = &corr
				return ctx.Err()
			})
		}
	}

	if in.Medication != nil {
		g.Go(func() error {
			med := AnalyzeMedicationEffectiveness(in.Medication.Before, in.Medication.After)
			res.medication = &med
			return ctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analyzing insights: %w", err)
	}
	return res, nil
}

func lifestyleRisks(l *LifestyleInput) []models.Risk {
	var risks []models.Risk
	if l.Stress > highStress {
		risks = append(risks, models.Risk{
			Kind:    models.RiskHighStress,
			Level:   models.RiskLevelMedium,
			Message: fmt.Sprintf("High stress level (%.0f/10) can raise glucose", l.Stress),
		})
	}
	if l.SleepHours < minSleepHours {
		risks = append(risks, models.Risk{
			Kind:    models.RiskInsufficientSleep,
			Level:   models.RiskLevelMedium,
			Message: fmt.Sprintf("Insufficient sleep (%.1fh) affects insulin sensitivity", l.SleepHours),
		})
	}
	return risks
}

func lifestyleRecommendations(l *LifestyleInput) []string {
	var recs []string
	if l.Stress > highStress {
		recs = append(recs, "Practice stress-reduction techniques such as breathing exercises or short walks")
	}
	if l.SleepHours < minSleepHours {
		recs = append(recs, "Aim for 7-9 hours of sleep to improve glucose stability")
	}
	if l.ExerciseMinutes < minExerciseMinutes {
		recs = append(recs, "Aim for at least 30 minutes of moderate activity on most days")
	}
	return recs
}

// ensembleScore combines pattern confidences with the adaptive weights of
// the method each pattern stands for
func ensembleScore(patterns []models.Pattern, weights models.AdaptiveWeights) float64 {
	byMethod := make(map[string][]float64)
	for _, p := range patterns {
		var method string
		switch p.Type {
		case models.PatternTimeSeries, models.PatternAnomalies:
			method = models.MethodStatistical
		case models.PatternCorrelation:
			method = models.MethodTemporal
		case models.PatternLifestyle:
			method = models.MethodEnvironmental
		case models.PatternClusters:
			method = models.MethodNeural
		default:
			continue
		}
		byMethod[method] = append(byMethod[method], p.Confidence)
	}

	var score, total float64
	for _, method := range weights.Methods() {
		confidences, ok := byMethod[method]
		if !ok {
			continue
		}
		score += weights[method] * Mean(confidences)
		total += weights[method]
	}
	if total == 0 {
		return 0
	}
	return score / total
}

// recommendationSet is an insertion-ordered set of strings
type recommendationSet struct {
	seen  map[string]bool
	items []string
}

func newRecommendationSet() *recommendationSet {
	return &recommendationSet{seen: make(map[string]bool), items: []string{}}
}

func (r *recommendationSet) add(recs ...string) {
	for _, rec := range recs {
		if !r.seen[rec] {
			r.seen[rec] = true
			r.items = append(r.items, rec)
		}
	}
}
