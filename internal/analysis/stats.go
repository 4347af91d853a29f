// Package analysis detects statistical patterns in physiological time series.
//
// Every analyzer is a pure function over its inputs and safe for concurrent
// use. Inputs that are too small to analyze produce a well-defined
// insufficient or zero result instead of an error.
package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/mrcode/glucose-insights/internal/models"
)

const (
	// DefaultAnomalyThreshold is the z-score above which a value is anomalous
	DefaultAnomalyThreshold = 2.0

	stableSlope            = 0.1
	seasonalityCorrelation = 0.3
	minSeasonalityPoints   = 6
	minTimeSeriesPoints    = 3

	hyperglycemiaThreshold = 180.0
)

// Mean returns the arithmetic mean of values, 0 for an empty slice
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// SampleVariance returns the variance with an n-1 denominator, 0 for fewer
// than two values
func SampleVariance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.Variance(values, nil)
}

// SampleStdDev returns the sample standard deviation
func SampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.StdDev(values, nil)
}

// Median returns the median of values, 0 for an empty slice. An even count
// averages the two middle values.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	lower := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	if n%2 == 1 {
		return lower
	}
	return (lower + sorted[n/2]) / 2
}

// SummarizeGlucose calculates time in range, GMI and variability of readings
func SummarizeGlucose(readings []models.Reading) models.GlucoseStats {
	if len(readings) == 0 {
		return models.GlucoseStats{}
	}

	values := models.Values(readings)
	var inRange, belowRange, aboveRange int
	for _, v := range values {
		switch {
		case v < HypoglycemiaThreshold:
			belowRange++
		case v > hyperglycemiaThreshold:
			aboveRange++
		default:
			inRange++
		}
	}

	n := float64(len(values))
	stats := models.GlucoseStats{
		Count:          len(values),
		Mean:           Mean(values),
		Median:         Median(values),
		StdDev:         SampleStdDev(values),
		TimeInRange:    float64(inRange) / n * 100,
		TimeBelowRange: float64(belowRange) / n * 100,
		TimeAboveRange: float64(aboveRange) / n * 100,
	}

	// GMI = 3.31 + 0.02392 × mean glucose (mg/dL)
	stats.GMI = 3.31 + 0.02392*stats.Mean
	if stats.Mean > 0 {
		stats.CoefficientOfVariation = stats.StdDev / stats.Mean * 100
	}
	return stats
}

// LinearRegression fits y = slope*x + intercept by least squares.
// Mismatched or shorter than two points yields the zero result.
func LinearRegression(x, y []float64) models.Regression {
	n := len(x)
	if n != len(y) || n < 2 {
		return models.Regression{}
	}

	if stat.Variance(x, nil) == 0 {
		return models.Regression{Intercept: stat.Mean(y, nil)}
	}

	intercept, slope := stat.LinearRegression(x, y, nil, false)
	result := models.Regression{
		Slope:     slope,
		Intercept: intercept,
	}
	if stat.Variance(y, nil) > 0 {
		result.Correlation = stat.Correlation(x, y, nil)
	}
	return result
}

// DetectAnomalies flags values whose |z-score| exceeds threshold.
// A threshold <= 0 selects DefaultAnomalyThreshold.
func DetectAnomalies(values []float64, threshold float64) models.AnomalyResult {
	if threshold <= 0 {
		threshold = DefaultAnomalyThreshold
	}
	result := models.AnomalyResult{Anomalies: []models.Anomaly{}, ZScores: []float64{}}
	if len(values) < 2 {
		return result
	}

	result.Mean = Mean(values)
	result.StdDev = SampleStdDev(values)
	result.ZScores = make([]float64, len(values))

	if result.StdDev == 0 {
		return result
	}

	for i, v := range values {
		z := (v - result.Mean) / result.StdDev
		result.ZScores[i] = z
		if math.Abs(z) > threshold {
			result.Anomalies = append(result.Anomalies, models.Anomaly{Index: i, Value: v, ZScore: z})
		}
	}
	return result
}

// DetectReadingAnomalies runs DetectAnomalies on time-ordered readings and
// stamps each anomaly with the time of its reading
func DetectReadingAnomalies(readings []models.Reading, threshold float64) models.AnomalyResult {
	sorted := models.SortReadings(readings)
	result := DetectAnomalies(models.Values(sorted), threshold)
	for i := range result.Anomalies {
		result.Anomalies[i].Time = sorted[result.Anomalies[i].Index].Timestamp
	}
	return result
}

// DetectSeasonality reports whether the autocorrelation at lag n/4 is strong
func DetectSeasonality(values []float64) bool {
	if len(values) < minSeasonalityPoints {
		return false
	}
	return math.Abs(autocorrelation(values, len(values)/4)) > seasonalityCorrelation
}

// autocorrelation returns the lag autocovariance normalized by the variance
func autocorrelation(values []float64, lag int) float64 {
	n := len(values)
	if n < minSeasonalityPoints || lag <= 0 || lag >= n {
		return 0
	}

	mean, variance := stat.PopMeanVariance(values, nil)
	if variance == 0 {
		return 0
	}

	var cov float64
	for i := 0; i < n-lag; i++ {
		cov += (values[i] - mean) * (values[i+lag] - mean)
	}
	cov /= float64(n - lag)

	return cov / variance
}

// AnalyzeTimeSeries classifies the trend of readings and extrapolates one step
func AnalyzeTimeSeries(readings []models.Reading) models.TimeSeriesAnalysis {
	if len(readings) < minTimeSeriesPoints {
		return models.TimeSeriesAnalysis{
			Status: models.StatusInsufficient,
			Trend:  models.TrendStable,
		}
	}

	values := models.Values(models.SortReadings(readings))
	index := make([]float64, len(values))
	for i := range index {
		index[i] = float64(i)
	}

	reg := LinearRegression(index, values)

	trend := models.TrendStable
	switch {
	case math.Abs(reg.Slope) < stableSlope:
		trend = models.TrendStable
	case reg.Slope > 0:
		trend = models.TrendIncreasing
	default:
		trend = models.TrendDecreasing
	}

	return models.TimeSeriesAnalysis{
		Status:      models.StatusComputed,
		Trend:       trend,
		Slope:       reg.Slope,
		Seasonality: DetectSeasonality(values),
		Volatility:  SampleStdDev(values),
		Prediction:  values[len(values)-1] + reg.Slope,
	}
}
