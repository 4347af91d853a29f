// Package learning implements the online self-calibration loop.
//
// An Engine keeps bounded memories of past predictions for four domains,
// scores each new observation against its prediction, nudges model
// accuracies upward, re-weights the ensemble methods and tunes its own
// learning rate. One Engine is owned by its caller; all methods are safe
// for concurrent use and Learn calls are serialized.
package learning

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mrcode/glucose-insights/internal/models"
)

// Tunable defaults
const (
	DefaultLearningRate        = 0.01
	MinLearningRate            = 0.005
	MaxLearningRate            = 0.02
	DefaultAdaptationThreshold = 0.1
	DefaultMaxMemorySize       = 10000
)

// Model names used as ModelAccuracy keys
const (
	ModelGlucosePrediction    = "glucose_prediction"
	ModelInsulinEffectiveness = "insulin_effectiveness"
	ModelEnvironmentalImpact  = "environmental_impact"
	ModelLifestyleImpact      = "lifestyle_impact"
)

const (
	maxInsightsPerCall  = 5
	maxHistory          = 100
	statusHistory       = 10
	insightsWindow      = 5
	trendDeadZone       = 0.05
	glucoseWindow       = 5
	accuracyStep        = 0.1
	weightStep          = 0.1
	maxWeight           = 0.5
	highAccuracy        = 0.9
	lowAccuracy         = 0.7
	rateStep            = 0.1
	highAdaptation      = 0.3
	mediumAdaptation    = 0.1
	errorScale          = 100.0
	expectedInsulin     = 0.8
	comfortTemperature  = 20.0
	comfortHumidity     = 50.0
	glucoseErrorAlarm   = 30.0
	effectivenessAlarm  = 0.5
	minTemperatureAlarm = 10.0
	maxTemperatureAlarm = 30.0
	stressAlarm         = 8.0
	sleepAlarm          = 6.0
	stressRisk          = 7.0
)

// Config holds the engine tunables. A zero field falls back to its default,
// so Config{} behaves like DefaultConfig().
type Config struct {
	LearningRate        float64 `json:"learningRate" yaml:"learningRate"`
	AdaptationThreshold float64 `json:"adaptationThreshold" yaml:"adaptationThreshold"`
	MaxMemorySize       int     `json:"maxMemorySize" yaml:"maxMemorySize"`
}

// DefaultConfig returns the default tunables
func DefaultConfig() Config {
	return Config{
		LearningRate:        DefaultLearningRate,
		AdaptationThreshold: DefaultAdaptationThreshold,
		MaxMemorySize:       DefaultMaxMemorySize,
	}
}

// normalized clamps the learning rate and replaces zero or invalid values
// with defaults
func (c Config) normalized() Config {
	if c.LearningRate == 0 {
		c.LearningRate = DefaultLearningRate
	}
	c.LearningRate = clamp(c.LearningRate, MinLearningRate, MaxLearningRate)
	if c.AdaptationThreshold <= 0 {
		c.AdaptationThreshold = DefaultAdaptationThreshold
	}
	if c.MaxMemorySize <= 0 {
		c.MaxMemorySize = DefaultMaxMemorySize
	}
	return c
}

// defaultAccuracies returns the prior accuracy of every model
func defaultAccuracies() models.ModelAccuracy {
	return models.ModelAccuracy{
		ModelGlucosePrediction:    0.75,
		ModelInsulinEffectiveness: 0.70,
		ModelEnvironmentalImpact:  0.65,
		ModelLifestyleImpact:      0.70,
	}
}

// methodFor maps a domain model to the ensemble method it feeds
var methodFor = map[string]string{
	ModelGlucosePrediction:    models.MethodNeural,
	ModelInsulinEffectiveness: models.MethodStatistical,
	ModelLifestyleImpact:      models.MethodTemporal,
	ModelEnvironmentalImpact:  models.MethodEnvironmental,
}

// state is everything a Learn call may change
type state struct {
	glucose       *Ring[models.GlucoseMemoryEntry]
	insulin       *Ring[models.InsulinMemoryEntry]
	environmental *Ring[models.EnvironmentalMemoryEntry]
	lifestyle     *Ring[models.LifestyleMemoryEntry]

	accuracy     models.ModelAccuracy
	weights      models.AdaptiveWeights
	history      []models.PerformanceMetric
	learningRate float64
	threshold    float64
}

func newState(cfg Config) *state {
	return &state{
		glucose:       NewRing[models.GlucoseMemoryEntry](cfg.MaxMemorySize),
		insulin:       NewRing[models.InsulinMemoryEntry](cfg.MaxMemorySize),
		environmental: NewRing[models.EnvironmentalMemoryEntry](cfg.MaxMemorySize),
		lifestyle:     NewRing[models.LifestyleMemoryEntry](cfg.MaxMemorySize),
		accuracy:      defaultAccuracies(),
		weights:       models.DefaultAdaptiveWeights(),
		history:       []models.PerformanceMetric{},
		learningRate:  cfg.LearningRate,
		threshold:     cfg.AdaptationThreshold,
	}
}

// reset empties the memories in place and restores the configured tunables
func (s *state) reset(cfg Config) {
	s.glucose.Reset()
	s.insulin.Reset()
	s.environmental.Reset()
	s.lifestyle.Reset()
	s.accuracy = defaultAccuracies()
	s.weights = models.DefaultAdaptiveWeights()
	s.history = []models.PerformanceMetric{}
	s.learningRate = cfg.LearningRate
	s.threshold = cfg.AdaptationThreshold
}

func (s *state) clone() *state {
	history := make([]models.PerformanceMetric, len(s.history))
	for i, m := range s.history {
		history[i] = m.Clone()
	}
	return &state{
		glucose:       s.glucose.Clone(),
		insulin:       s.insulin.Clone(),
		environmental: s.environmental.Clone(),
		lifestyle:     s.lifestyle.Clone(),
		accuracy:      s.accuracy.Clone(),
		weights:       s.weights.Clone(),
		history:       history,
		learningRate:  s.learningRate,
		threshold:     s.threshold,
	}
}

// Engine is the adaptive learning state machine
type Engine struct {
	mu     sync.Mutex
	cfg    Config
	st     *state
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an Engine. Out-of-range tunables are clamped or defaulted.
func New(cfg Config, opts ...Option) *Engine {
	cfg = cfg.normalized()
	e := &Engine{
		cfg:    cfg,
		st:     newState(cfg),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Learn scores a batch of observations and adapts the engine.
//
// Learn always returns an outcome. If the call fails or ctx is cancelled the
// outcome is marked degraded and the engine state is left untouched.
func (e *Engine) Learn(ctx context.Context, batch models.LearningBatch) (outcome models.LearningOutcome) {
	e.mu.Lock()
	defer e.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("learning panicked: %v", r)
			e.logger.Error("learning call failed", "error", err)
			// The clock may be what failed
			outcome = e.degraded(err, time.Now())
		}
	}()

	if err := ctx.Err(); err != nil {
		e.logger.Warn("learning call skipped", "error", err)
		return e.degraded(err, e.now())
	}

	work := e.st.clone()
	run := &learningRun{
		st:       work,
		now:      e.now,
		insights: []string{},
	}

	steps := []struct {
		model string
		learn func() (float64, int)
	}{
		{ModelGlucosePrediction, func() (float64, int) { return run.learnGlucose(batch.Glucose) }},
		{ModelInsulinEffectiveness, func() (float64, int) { return run.learnInsulin(batch.Insulin) }},
		{ModelEnvironmentalImpact, func() (float64, int) { return run.learnEnvironmental(batch.Environmental) }},
		{ModelLifestyleImpact, func() (float64, int) { return run.learnLifestyle(batch.Lifestyle) }},
	}

	improvements := make(map[string]float64)
	processed := 0
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("learning call cancelled", "error", err)
			return e.degraded(err, e.now())
		}
		imp, n := step.learn()
		if n == 0 {
			continue
		}
		processed += n
		improvements[step.model] = imp
		work.accuracy[step.model] = min(1, work.accuracy[step.model]+imp*accuracyStep)
	}

	if processed == 0 {
		return models.LearningOutcome{
			ID:                   uuid.NewString(),
			Timestamp:            e.now(),
			Summary:              "No observations with ground truth; nothing learned",
			AccuracyImprovements: map[string]float64{},
			NewInsights:          []string{},
			AdaptationLevel:      models.AdaptationLow,
		}
	}

	var total float64
	for _, imp := range improvements {
		total += imp
	}

	updateAdaptiveWeights(work.weights, improvements, total, work.threshold)
	work.learningRate = adaptLearningRate(work.learningRate, work.accuracy.Mean())

	metric := models.PerformanceMetric{
		ID:                     uuid.NewString(),
		Timestamp:              e.now(),
		OverallImprovement:     total,
		IndividualImprovements: improvements,
		ModelAccuracies:        work.accuracy.Clone(),
		AdaptiveWeights:        work.weights.Clone(),
	}
	work.history = append(work.history, metric)
	if len(work.history) > maxHistory {
		work.history = work.history[len(work.history)-maxHistory:]
	}

	e.st = work

	outcome = models.LearningOutcome{
		ID:        uuid.NewString(),
		Timestamp: metric.Timestamp,
		Summary: fmt.Sprintf("Processed %d observations across %d domains; total improvement %.3f",
			processed, len(improvements), total),
		AccuracyImprovements: copyImprovements(improvements),
		NewInsights:          run.insights,
		AdaptationLevel:      adaptationLevel(total),
	}

	e.logger.Debug("learning call completed",
		"observations", processed,
		"improvement", total,
		"level", outcome.AdaptationLevel,
		"learning_rate", work.learningRate)

	return outcome
}

func (e *Engine) degraded(err error, at time.Time) models.LearningOutcome {
	return models.LearningOutcome{
		ID:                   uuid.NewString(),
		Timestamp:            at,
		Summary:              "Learning failed; engine state unchanged",
		AccuracyImprovements: map[string]float64{},
		NewInsights:          []string{fmt.Sprintf("Learning call was skipped: %v", err)},
		AdaptationLevel:      models.AdaptationLow,
		Degraded:             true,
	}
}

// Status returns a snapshot of the engine state
func (e *Engine) Status() models.SystemStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	recent := e.st.history
	if len(recent) > statusHistory {
		recent = recent[len(recent)-statusHistory:]
	}
	performance := make([]models.PerformanceMetric, len(recent))
	for i, m := range recent {
		performance[i] = m.Clone()
	}

	return models.SystemStatus{
		MemorySizes: map[string]int{
			string(models.MetricGlucose):       e.st.glucose.Len(),
			string(models.MetricInsulin):       e.st.insulin.Len(),
			string(models.MetricEnvironmental): e.st.environmental.Len(),
			string(models.MetricLifestyle):     e.st.lifestyle.Len(),
		},
		MaxMemorySize:       e.cfg.MaxMemorySize,
		ModelAccuracies:     e.st.accuracy.Clone(),
		AdaptiveWeights:     e.st.weights.Clone(),
		RecentPerformance:   performance,
		LearningRate:        e.st.learningRate,
		AdaptationThreshold: e.st.threshold,
		Insights:            e.insights(),
	}
}

// Insights describes the trend of the last few learning calls
func (e *Engine) Insights() models.LearningInsights {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.insights()
}

// insights must be called with the lock held
func (e *Engine) insights() models.LearningInsights {
	recent := e.st.history
	if len(recent) > insightsWindow {
		recent = recent[len(recent)-insightsWindow:]
	}

	insights := models.LearningInsights{
		MetricsConsidered: len(recent),
		LearningRate:      e.st.learningRate,
		MeanAccuracy:      e.st.accuracy.Mean(),
	}

	if len(recent) < 2 {
		insights.Trend = models.LearningInsufficient
		insights.Recommendation = "Not enough learning history yet; keep feeding observations"
		return insights
	}

	insights.Change = recent[len(recent)-1].OverallImprovement - recent[0].OverallImprovement
	switch {
	case insights.Change > trendDeadZone:
		insights.Trend = models.LearningImproving
		insights.Recommendation = "Learning is improving; keep the current data cadence"
	case insights.Change < -trendDeadZone:
		insights.Trend = models.LearningDeclining
		insights.Recommendation = "Learning performance is declining; check data quality and sensor calibration"
	default:
		insights.Trend = models.LearningStable
		insights.Recommendation = "Learning is stable; add more varied observations to keep adapting"
	}
	return insights
}

// Weights returns a copy of the current ensemble weights
func (e *Engine) Weights() models.AdaptiveWeights {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.weights.Clone()
}

// GlucoseMemory returns a deep copy of the glucose memory, oldest first
func (e *Engine) GlucoseMemory() []models.GlucoseMemoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries := e.st.glucose.Snapshot()
	for i := range entries {
		entries[i].Context = entries[i].Context.Clone()
	}
	return entries
}

// Reset clears all memories and restores the configured tunables
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.st.reset(e.cfg)
	e.logger.Info("learning engine reset")
}

// updateAdaptiveWeights rewards methods whose domain improved, caps each
// boosted weight and renormalizes so the weights sum to 1
func updateAdaptiveWeights(weights models.AdaptiveWeights, improvements map[string]float64, total, threshold float64) {
	if total <= threshold {
		return
	}

	for model, imp := range improvements {
		method, ok := methodFor[model]
		if !ok || imp <= 0 {
			continue
		}
		weights[method] = min(maxWeight, weights[method]+imp*weightStep)
	}

	sum := weights.Sum()
	if sum == 0 {
		return
	}
	for _, method := range weights.Methods() {
		weights[method] /= sum
	}
}

// adaptLearningRate speeds up learning when models are accurate and slows
// it down when they are not
func adaptLearningRate(rate, meanAccuracy float64) float64 {
	switch {
	case meanAccuracy > highAccuracy:
		return min(MaxLearningRate, rate*(1+rateStep))
	case meanAccuracy < lowAccuracy:
		return max(MinLearningRate, rate*(1-rateStep))
	}
	return rate
}

func adaptationLevel(total float64) models.AdaptationLevel {
	switch {
	case total > highAdaptation:
		return models.AdaptationHigh
	case total > mediumAdaptation:
		return models.AdaptationMedium
	}
	return models.AdaptationLow
}

func copyImprovements(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
