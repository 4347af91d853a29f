package analysis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/mrcode/glucose-insights/internal/models"
)

const (
	minCorrelationPoints = 10
	maxCorrelationLag    = 5

	strongCorrelation   = 0.7
	moderateCorrelation = 0.4
)

// AnalyzeGlucoseInsulinPatterns searches lags in [-5,5] for the strongest
// correlation between glucose and insulin.
//
// A positive lag pairs glucose[i] with insulin[i+lag], i.e. insulin follows
// glucose. Both series must have the same length of at least 10 readings.
func AnalyzeGlucoseInsulinPatterns(glucose, insulin []models.Reading) models.CorrelationResult {
	if len(glucose) != len(insulin) || len(glucose) < minCorrelationPoints {
		return models.CorrelationResult{
			Status:          models.StatusInsufficient,
			Pattern:         models.PatternInsufficientData,
			Recommendations: []string{"Collect at least 10 paired glucose and insulin readings for correlation analysis"},
		}
	}

	g := models.Values(models.SortReadings(glucose))
	ins := models.Values(models.SortReadings(insulin))

	bestLag := 0
	bestCorr := 0.0
	for lag := -maxCorrelationLag; lag <= maxCorrelationLag; lag++ {
		corr := laggedCorrelation(g, ins, lag)
		if math.Abs(corr) > math.Abs(bestCorr) {
			bestCorr = corr
			bestLag = lag
		}
	}

	pattern := models.PatternSynchronous
	switch {
	case bestLag < 0:
		pattern = models.PatternInsulinLeadsGlucose
	case bestLag > 0:
		pattern = models.PatternGlucoseLeadsInsulin
	}

	confidence := math.Abs(bestCorr)
	return models.CorrelationResult{
		Status:          models.StatusComputed,
		Correlation:     bestCorr,
		Lag:             bestLag,
		Pattern:         pattern,
		Confidence:      confidence,
		Recommendations: correlationRecommendations(pattern, bestLag, confidence),
	}
}

// laggedCorrelation is the mean product of the z-normalized overlap of
// x[i] and y[i+lag]
func laggedCorrelation(x, y []float64, lag int) float64 {
	start, end := 0, len(x)
	if lag < 0 {
		start = -lag
	} else {
		end = len(x) - lag
	}
	if end-start < 2 {
		return 0
	}

	xs := zNormalize(x[start:end])
	ys := zNormalize(y[start+lag : end+lag])
	if xs == nil || ys == nil {
		return 0
	}

	var sum float64
	for i := range xs {
		sum += xs[i] * ys[i]
	}
	return sum / float64(len(xs))
}

// zNormalize scales values to zero mean and unit population variance.
// Constant input returns nil.
func zNormalize(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	mean, variance := stat.PopMeanVariance(values, nil)
	std := math.Sqrt(variance)
	if std == 0 {
		return nil
	}

	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = (v - mean) / std
	}
	return out
}

func correlationRecommendations(pattern models.CorrelationPattern, lag int, confidence float64) []string {
	var recs []string

	switch {
	case confidence > strongCorrelation:
		recs = append(recs, fmt.Sprintf("Strong glucose-insulin relationship detected (%.0f%% confidence); current dosing timing is a reliable baseline", confidence*100))
	case confidence > moderateCorrelation:
		recs = append(recs, "Moderate glucose-insulin relationship; review dose timing with your care team")
	default:
		recs = append(recs, "Weak glucose-insulin relationship; log doses and readings consistently to improve analysis")
	}

	switch pattern {
	case models.PatternInsulinLeadsGlucose:
		recs = append(recs, fmt.Sprintf("Insulin changes precede glucose changes by about %d readings", -lag))
	case models.PatternGlucoseLeadsInsulin:
		recs = append(recs, fmt.Sprintf("Insulin follows glucose changes by about %d readings; consider dosing earlier", lag))
	case models.PatternSynchronous:
		recs = append(recs, "Glucose and insulin change together without a measurable delay")
	}

	return recs
}
