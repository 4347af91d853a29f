package models

import (
	"sort"
	"time"
)

// MemoryContext carries free-form attributes recorded with a memory entry
type MemoryContext map[string]string

// Clone returns an independent copy, nil for a nil context
func (c MemoryContext) Clone() MemoryContext {
	if c == nil {
		return nil
	}
	out := make(MemoryContext, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// GlucoseMemoryEntry records one glucose prediction and its outcome
type GlucoseMemoryEntry struct {
	Timestamp time.Time     `json:"timestamp"`
	Predicted float64       `json:"predicted"`
	Actual    float64       `json:"actual"`
	Error     float64       `json:"error"`
	Context   MemoryContext `json:"context,omitempty"`
}

// InsulinMemoryEntry records one insulin effectiveness prediction
type InsulinMemoryEntry struct {
	Timestamp             time.Time     `json:"timestamp"`
	Dose                  float64       `json:"dose"`
	ExpectedEffectiveness float64       `json:"expectedEffectiveness"`
	ActualEffectiveness   float64       `json:"actualEffectiveness"`
	Error                 float64       `json:"error"`
	Context               MemoryContext `json:"context,omitempty"`
}

// EnvironmentalMemoryEntry records one environmental impact prediction
type EnvironmentalMemoryEntry struct {
	Timestamp       time.Time `json:"timestamp"`
	Temperature     float64   `json:"temperature"`
	Humidity        float64   `json:"humidity"`
	AirQuality      float64   `json:"airQuality"`
	PredictedImpact float64   `json:"predictedImpact"`
	ActualImpact    float64   `json:"actualImpact"`
	Error           float64   `json:"error"`
}

// LifestyleMemoryEntry records one lifestyle impact prediction
type LifestyleMemoryEntry struct {
	Timestamp       time.Time `json:"timestamp"`
	Exercise        bool      `json:"exercise"`
	Stress          float64   `json:"stress"`
	Sleep           float64   `json:"sleep"`
	PredictedImpact float64   `json:"predictedImpact"`
	ActualImpact    float64   `json:"actualImpact"`
	Error           float64   `json:"error"`
}

// Observations fed to the learning engine. A nil actual means no ground
// truth is available yet and the observation is skipped.

// GlucoseObservation is a measured glucose value
type GlucoseObservation struct {
	Timestamp time.Time     `json:"timestamp" yaml:"timestamp"`
	Actual    *float64      `json:"actual,omitempty" yaml:"actual,omitempty"`
	Context   MemoryContext `json:"context,omitempty" yaml:"context,omitempty"`
}

// InsulinObservation is a dose and its measured effectiveness (0-1)
type InsulinObservation struct {
	Timestamp           time.Time     `json:"timestamp" yaml:"timestamp"`
	Dose                float64       `json:"dose" yaml:"dose"`
	ActualEffectiveness *float64      `json:"actualEffectiveness,omitempty" yaml:"actualEffectiveness,omitempty"`
	Context             MemoryContext `json:"context,omitempty" yaml:"context,omitempty"`
}

// EnvironmentalObservation is an environment sample and its measured impact
type EnvironmentalObservation struct {
	Timestamp    time.Time `json:"timestamp" yaml:"timestamp"`
	Temperature  float64   `json:"temperature" yaml:"temperature"` // °C
	Humidity     float64   `json:"humidity" yaml:"humidity"`       // Percent
	AirQuality   float64   `json:"airQuality" yaml:"airQuality"`
	ActualImpact *float64  `json:"actualImpact,omitempty" yaml:"actualImpact,omitempty"`
}

// LifestyleObservation is a lifestyle sample and its measured impact
type LifestyleObservation struct {
	Timestamp    time.Time `json:"timestamp" yaml:"timestamp"`
	Exercise     bool      `json:"exercise" yaml:"exercise"`
	Stress       float64   `json:"stress" yaml:"stress"` // 0-10
	Sleep        float64   `json:"sleep" yaml:"sleep"`   // Hours
	ActualImpact *float64  `json:"actualImpact,omitempty" yaml:"actualImpact,omitempty"`
}

// LearningBatch is the input of one learning call
type LearningBatch struct {
	Glucose       []GlucoseObservation       `json:"glucose,omitempty" yaml:"glucose,omitempty"`
	Insulin       []InsulinObservation       `json:"insulin,omitempty" yaml:"insulin,omitempty"`
	Environmental []EnvironmentalObservation `json:"environmental,omitempty" yaml:"environmental,omitempty"`
	Lifestyle     []LifestyleObservation     `json:"lifestyle,omitempty" yaml:"lifestyle,omitempty"`
}

// Empty reports whether the batch carries no observations at all
func (b LearningBatch) Empty() bool {
	return len(b.Glucose) == 0 && len(b.Insulin) == 0 && len(b.Environmental) == 0 && len(b.Lifestyle) == 0
}

// GlucoseBatch builds a batch from measured glucose readings
func GlucoseBatch(readings []Reading) LearningBatch {
	batch := LearningBatch{Glucose: make([]GlucoseObservation, len(readings))}
	for i, r := range readings {
		v := r.Value
		batch.Glucose[i] = GlucoseObservation{Timestamp: r.Timestamp, Actual: &v}
	}
	return batch
}

// ModelAccuracy maps a model name to its accuracy in [0,1]
type ModelAccuracy map[string]float64

// Clone returns a copy of the map
func (m ModelAccuracy) Clone() ModelAccuracy {
	c := make(ModelAccuracy, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Mean returns the average accuracy over all models
func (m ModelAccuracy) Mean() float64 {
	if len(m) == 0 {
		return 0
	}
	var sum float64
	for _, v := range m {
		sum += v
	}
	return sum / float64(len(m))
}

// Ensemble method names
const (
	MethodNeural        = "neural"
	MethodStatistical   = "statistical"
	MethodTemporal      = "temporal"
	MethodEnvironmental = "environmental"
)

// AdaptiveWeights maps an ensemble method to its weight
type AdaptiveWeights map[string]float64

// DefaultAdaptiveWeights returns the initial ensemble weights
func DefaultAdaptiveWeights() AdaptiveWeights {
	return AdaptiveWeights{
		MethodNeural:        0.4,
		MethodStatistical:   0.3,
		MethodTemporal:      0.2,
		MethodEnvironmental: 0.1,
	}
}

// Clone returns a copy of the map
func (w AdaptiveWeights) Clone() AdaptiveWeights {
	c := make(AdaptiveWeights, len(w))
	for k, v := range w {
		c[k] = v
	}
	return c
}

// Sum returns the total of all weights
func (w AdaptiveWeights) Sum() float64 {
	var sum float64
	for _, k := range w.Methods() {
		sum += w[k]
	}
	return sum
}

// Methods returns the method names in a stable order
func (w AdaptiveWeights) Methods() []string {
	keys := make([]string, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PerformanceMetric is a snapshot appended after every learning call
type PerformanceMetric struct {
	ID                     string             `json:"id"`
	Timestamp              time.Time          `json:"timestamp"`
	OverallImprovement     float64            `json:"overallImprovement"`
	IndividualImprovements map[string]float64 `json:"individualImprovements"`
	ModelAccuracies        ModelAccuracy      `json:"modelAccuracies"`
	AdaptiveWeights        AdaptiveWeights    `json:"adaptiveWeights"`
}

// Clone returns a deep copy of the metric
func (p PerformanceMetric) Clone() PerformanceMetric {
	c := p
	c.IndividualImprovements = make(map[string]float64, len(p.IndividualImprovements))
	for k, v := range p.IndividualImprovements {
		c.IndividualImprovements[k] = v
	}
	c.ModelAccuracies = p.ModelAccuracies.Clone()
	c.AdaptiveWeights = p.AdaptiveWeights.Clone()
	return c
}

// AdaptationLevel summarizes how much a learning call changed the engine
type AdaptationLevel string

const (
	AdaptationLow    AdaptationLevel = "low"
	AdaptationMedium AdaptationLevel = "medium"
	AdaptationHigh   AdaptationLevel = "high"
)

// LearningOutcome is the result of one learning call
type LearningOutcome struct {
	ID                   string             `json:"id" yaml:"id"`
	Timestamp            time.Time          `json:"timestamp" yaml:"timestamp"`
	Summary              string             `json:"learningOutcome" yaml:"learningOutcome"`
	AccuracyImprovements map[string]float64 `json:"accuracyImprovements" yaml:"accuracyImprovements"`
	NewInsights          []string           `json:"newInsights" yaml:"newInsights"`
	AdaptationLevel      AdaptationLevel    `json:"adaptationLevel" yaml:"adaptationLevel"`
	// Degraded is set when the call failed and no state was changed
	Degraded bool `json:"degraded,omitempty" yaml:"degraded,omitempty"`
}

// SystemStatus is a read-only snapshot of the learning engine
type SystemStatus struct {
	MemorySizes         map[string]int      `json:"memorySizes" yaml:"memorySizes"`
	MaxMemorySize       int                 `json:"maxMemorySize" yaml:"maxMemorySize"`
	ModelAccuracies     ModelAccuracy       `json:"modelAccuracies" yaml:"modelAccuracies"`
	AdaptiveWeights     AdaptiveWeights     `json:"adaptiveWeights" yaml:"adaptiveWeights"`
	RecentPerformance   []PerformanceMetric `json:"recentPerformance" yaml:"recentPerformance"`
	LearningRate        float64             `json:"learningRate" yaml:"learningRate"`
	AdaptationThreshold float64             `json:"adaptationThreshold" yaml:"adaptationThreshold"`
	Insights            LearningInsights    `json:"insights" yaml:"insights"`
}

// LearningTrend is the direction of recent learning performance
type LearningTrend string

const (
	LearningImproving    LearningTrend = "improving"
	LearningStable       LearningTrend = "stable"
	LearningDeclining    LearningTrend = "declining"
	LearningInsufficient LearningTrend = "insufficient_data"
)

// LearningInsights describes how the engine has been performing recently
type LearningInsights struct {
	Trend             LearningTrend `json:"trend" yaml:"trend"`
	Recommendation    string        `json:"recommendation" yaml:"recommendation"`
	MetricsConsidered int           `json:"metricsConsidered" yaml:"metricsConsidered"`
	Change            float64       `json:"change" yaml:"change"`
	LearningRate      float64       `json:"learningRate" yaml:"learningRate"`
	MeanAccuracy      float64       `json:"meanAccuracy" yaml:"meanAccuracy"`
}
