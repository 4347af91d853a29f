package models

import "time"

// ResultStatus distinguishes computed results from degenerate-input results
type ResultStatus string

const (
	StatusComputed     ResultStatus = "computed"
	StatusInsufficient ResultStatus = "insufficient"
)

// Trend is the direction of a time series
type Trend string

const (
	TrendStable     Trend = "stable"
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
)

// Regression holds a least-squares fit
type Regression struct {
	Slope       float64 `json:"slope"`
	Intercept   float64 `json:"intercept"`
	Correlation float64 `json:"correlation"`
}

// Anomaly is a value whose z-score exceeded the detection threshold
type Anomaly struct {
	Index  int       `json:"index"`
	Value  float64   `json:"value"`
	ZScore float64   `json:"zScore"`
	Time   time.Time `json:"time,omitempty"`
}

// AnomalyResult is the output of z-score anomaly detection
type AnomalyResult struct {
	Anomalies []Anomaly `json:"anomalies"`
	Mean      float64   `json:"mean"`
	StdDev    float64   `json:"std"`
	ZScores   []float64 `json:"zScores"`
}

// TimeSeriesAnalysis summarizes trend, seasonality and volatility of a series
type TimeSeriesAnalysis struct {
	Status      ResultStatus `json:"status"`
	Trend       Trend        `json:"trend"`
	Slope       float64      `json:"slope"`
	Seasonality bool         `json:"seasonality"`
	Volatility  float64      `json:"volatility"`
	Prediction  float64      `json:"prediction"` // One step ahead
}

// GlucoseStats summarizes the distribution of glucose readings
type GlucoseStats struct {
	Count                  int     `json:"count"`
	Mean                   float64 `json:"mean"`
	Median                 float64 `json:"median"`
	StdDev                 float64 `json:"std"`
	TimeInRange            float64 `json:"timeInRange"`    // Percentage 70-180 mg/dL
	TimeBelowRange         float64 `json:"timeBelowRange"` // Percentage <70 mg/dL
	TimeAboveRange         float64 `json:"timeAboveRange"` // Percentage >180 mg/dL
	GMI                    float64 `json:"gmi"`            // Glucose Management Indicator (estimated HbA1c)
	CoefficientOfVariation float64 `json:"coefficientOfVariation"`
}

// ClusterResult is the output of 1-D k-means
type ClusterResult struct {
	Assignments    []int     `json:"clusters"`
	Centroids      []float64 `json:"centroids"`
	Inertia        float64   `json:"inertia"`
	Iterations     int       `json:"iterations"`
	InertiaHistory []float64 `json:"inertiaHistory,omitempty"`
}

// CorrelationPattern classifies the relationship between glucose and insulin
type CorrelationPattern string

const (
	PatternInsufficientData    CorrelationPattern = "insufficient_data"
	PatternInsulinLeadsGlucose CorrelationPattern = "insulin_leads_glucose"
	PatternGlucoseLeadsInsulin CorrelationPattern = "glucose_leads_insulin"
	PatternSynchronous         CorrelationPattern = "synchronous_changes"
)

// CorrelationResult is the output of the lagged cross-correlation search
type CorrelationResult struct {
	Status          ResultStatus       `json:"status"`
	Correlation     float64            `json:"correlation"`
	Lag             int                `json:"lag"`
	Pattern         CorrelationPattern `json:"pattern"`
	Confidence      float64            `json:"confidence"`
	Recommendations []string           `json:"recommendations"`
}

// Severity of hypoglycemia episodes
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// HypoglycemiaResult describes low-glucose episodes found in a series
type HypoglycemiaResult struct {
	Episodes        int       `json:"episodes"`
	EpisodeReadings []Reading `json:"episodeReadings,omitempty"`
	Frequency       float64   `json:"frequency"` // Episodes per day
	Severity        Severity  `json:"severity"`
	MinValue        float64   `json:"minValue,omitempty"`
	RiskFactors     []string  `json:"riskFactors"`
	Prevention      []string  `json:"prevention"`
}

// MedicationResult compares glucose before and after a medication change
type MedicationResult struct {
	Status                  ResultStatus `json:"status"`
	Effectiveness           float64      `json:"effectiveness"` // Percent change of the mean
	Improvement             bool         `json:"improvement"`
	TStatistic              float64      `json:"tStatistic"`
	StatisticalSignificance bool         `json:"statisticalSignificance"`
	Recommendations         []string     `json:"recommendations"`
}

// PatternType names one analyzer output inside an insight bundle
type PatternType string

const (
	PatternGlucoseStats PatternType = "glucose_statistics"
	PatternTimeSeries   PatternType = "time_series"
	PatternAnomalies    PatternType = "anomalies"
	PatternClusters     PatternType = "clusters"
	PatternHypoglycemia PatternType = "hypoglycemia"
	PatternCorrelation  PatternType = "glucose_insulin_correlation"
	PatternMedication   PatternType = "medication_effectiveness"
	PatternLifestyle    PatternType = "lifestyle"
)

// Pattern wraps one analyzer output
type Pattern struct {
	Type       PatternType `json:"type" yaml:"type"`
	Data       any         `json:"data" yaml:"data"`
	Confidence float64     `json:"confidence" yaml:"confidence"`
}

// RiskKind identifies the rule that raised a risk
type RiskKind string

const (
	RiskSevereHypoglycemia RiskKind = "severe_hypoglycemia"
	RiskIncreasingTrend    RiskKind = "increasing_trend"
	RiskAnomalyRate        RiskKind = "high_anomaly_rate"
	RiskHighStress         RiskKind = "high_stress"
	RiskInsufficientSleep  RiskKind = "insufficient_sleep"
)

// Risk level constants
const (
	RiskLevelHigh   = "high"
	RiskLevelMedium = "medium"
)

// Risk is a threshold-based warning raised while aggregating insights
type Risk struct {
	Kind    RiskKind `json:"kind" yaml:"kind"`
	Level   string   `json:"level" yaml:"level"`
	Message string   `json:"message" yaml:"message"`
}

// InsightBundle is the merged output of all analyzers
type InsightBundle struct {
	ID              string    `json:"id" yaml:"id"`
	GeneratedAt     time.Time `json:"generatedAt" yaml:"generatedAt"`
	Patterns        []Pattern `json:"patterns" yaml:"patterns"`
	Risks           []Risk    `json:"risks" yaml:"risks"`
	Recommendations []string  `json:"recommendations" yaml:"recommendations"`
	// Confidence is an additive, capped score of the data domains present
	Confidence float64 `json:"confidence" yaml:"confidence"`
	// EnsembleScore weights pattern confidences by the adaptive weights, 0 if none were supplied
	EnsembleScore float64 `json:"ensembleScore,omitempty" yaml:"ensembleScore,omitempty"`
}

// Pattern returns the first pattern of the given type
func (b *InsightBundle) Pattern(t PatternType) (Pattern, bool) {
	for _, p := range b.Patterns {
		if p.Type == t {
			return p, true
		}
	}
	return Pattern{}, false
}

// HasRisk reports whether a risk of the given kind was raised
func (b *InsightBundle) HasRisk(kind RiskKind) bool {
	for _, r := range b.Risks {
		if r.Kind == kind {
			return true
		}
	}
	return false
}
