package analysis

import (
	"math"
	"testing"
	"time"

	"github.com/mrcode/glucose-insights/internal/models"
)

const epsilon = 1e-9

func readingsFrom(start time.Time, step time.Duration, values ...float64) []models.Reading {
	readings := make([]models.Reading, len(values))
	for i, v := range values {
		readings[i] = models.Reading{
			Timestamp: start.Add(time.Duration(i) * step),
			Value:     v,
			Unit:      models.UnitMgDL,
		}
	}
	return readings
}

func TestMeanAndVariance(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	if got := Mean(values); got != 5 {
		t.Errorf("Mean() = %v, want 5", got)
	}
	// Sum of squares 32 over n-1 = 7
	if got := SampleVariance(values); math.Abs(got-32.0/7) > epsilon {
		t.Errorf("SampleVariance() = %v, want %v", got, 32.0/7)
	}
	if got := Mean(nil); got != 0 {
		t.Errorf("Mean(nil) = %v, want 0", got)
	}
	if got := SampleVariance([]float64{3}); got != 0 {
		t.Errorf("SampleVariance(single) = %v, want 0", got)
	}
	if got := SampleStdDev([]float64{3}); got != 0 {
		t.Errorf("SampleStdDev(single) = %v, want 0", got)
	}
	if got := SampleStdDev(values); math.Abs(got-math.Sqrt(32.0/7)) > epsilon {
		t.Errorf("SampleStdDev() = %v, want %v", got, math.Sqrt(32.0/7))
	}
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"odd", []float64{9, 1, 5}, 5},
		{"even", []float64{4, 1, 3, 2}, 2.5},
		{"single", []float64{7}, 7},
		{"pair", []float64{10, 20}, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Median(tt.values); got != tt.want {
				t.Errorf("Median() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLinearRegression(t *testing.T) {
	tests := []struct {
		name      string
		slope     float64
		intercept float64
		wantCorr  float64
	}{
		{"increasing", 3, 2, 1},
		{"decreasing", -2, 5, -1},
		{"fractional", 0.25, -10, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := make([]float64, 20)
			y := make([]float64, 20)
			for i := range x {
				x[i] = float64(i)
				y[i] = tt.slope*x[i] + tt.intercept
			}

			reg := LinearRegression(x, y)
			if math.Abs(reg.Slope-tt.slope) > epsilon {
				t.Errorf("Slope = %v, want %v", reg.Slope, tt.slope)
			}
			if math.Abs(reg.Intercept-tt.intercept) > epsilon {
				t.Errorf("Intercept = %v, want %v", reg.Intercept, tt.intercept)
			}
			if math.Abs(reg.Correlation-tt.wantCorr) > epsilon {
				t.Errorf("Correlation = %v, want %v", reg.Correlation, tt.wantCorr)
			}
		})
	}
}

func TestLinearRegression_Degenerate(t *testing.T) {
	if reg := LinearRegression([]float64{1, 2}, []float64{1}); reg != (models.Regression{}) {
		t.Errorf("mismatched lengths = %+v, want zero", reg)
	}
	if reg := LinearRegression([]float64{1}, []float64{1}); reg != (models.Regression{}) {
		t.Errorf("single point = %+v, want zero", reg)
	}

	reg := LinearRegression([]float64{2, 2, 2}, []float64{1, 2, 3})
	if reg.Slope != 0 || reg.Intercept != 2 {
		t.Errorf("vertical data = %+v, want slope 0 intercept 2", reg)
	}

	reg = LinearRegression([]float64{1, 2, 3}, []float64{4, 4, 4})
	if reg.Slope != 0 || reg.Correlation != 0 {
		t.Errorf("flat data = %+v, want slope 0 correlation 0", reg)
	}
}

func TestDetectAnomalies(t *testing.T) {
	values := []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 100}

	result := DetectAnomalies(values, 0)
	if len(result.Anomalies) != 1 {
		t.Fatalf("Anomalies = %d, want 1", len(result.Anomalies))
	}
	if result.Anomalies[0].Index != 9 || result.Anomalies[0].Value != 100 {
		t.Errorf("Anomaly = %+v, want index 9 value 100", result.Anomalies[0])
	}
	if result.Mean != 19 {
		t.Errorf("Mean = %v, want 19", result.Mean)
	}
	if len(result.ZScores) != len(values) {
		t.Errorf("ZScores = %d, want %d", len(result.ZScores), len(values))
	}
}

func TestDetectAnomalies_ShortSeries(t *testing.T) {
	// Sample std makes the outlier's z-score 72/40.25, so a threshold of 2
	// is not reached with only five points
	values := []float64{10, 10, 10, 10, 100}

	if got := DetectAnomalies(values, 2); len(got.Anomalies) != 0 {
		t.Errorf("threshold 2: Anomalies = %d, want 0", len(got.Anomalies))
	}

	got := DetectAnomalies(values, 1.5)
	if len(got.Anomalies) != 1 || got.Anomalies[0].Value != 100 {
		t.Errorf("threshold 1.5: Anomalies = %+v, want only 100", got.Anomalies)
	}
	if math.Abs(got.StdDev-math.Sqrt(1620)) > epsilon {
		t.Errorf("StdDev = %v, want %v", got.StdDev, math.Sqrt(1620))
	}
}

func TestDetectAnomalies_NoAnomalies(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
	}{
		{"empty", nil},
		{"single", []float64{120}},
		{"constant", []float64{120, 120, 120, 120}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DetectAnomalies(tt.values, 2)
			if result.Anomalies == nil {
				t.Error("Anomalies should be empty, not nil")
			}
			if len(result.Anomalies) != 0 {
				t.Errorf("Anomalies = %d, want 0", len(result.Anomalies))
			}
			for _, z := range result.ZScores {
				if z != 0 {
					t.Errorf("ZScore = %v, want 0", z)
				}
			}
		})
	}
}

func TestDetectReadingAnomalies_StampsTime(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	readings := readingsFrom(start, 5*time.Minute, 100, 100, 100, 100, 100, 100, 100, 100, 100, 400)
	// Shuffle order; detection runs over sorted readings
	readings[0], readings[9] = readings[9], readings[0]

	result := DetectReadingAnomalies(readings, 2)
	if len(result.Anomalies) != 1 {
		t.Fatalf("Anomalies = %d, want 1", len(result.Anomalies))
	}
	want := start.Add(45 * time.Minute)
	if !result.Anomalies[0].Time.Equal(want) {
		t.Errorf("Time = %v, want %v", result.Anomalies[0].Time, want)
	}
}

func TestDetectSeasonality(t *testing.T) {
	// Period 4 with n=16 puts lag n/4 exactly one period apart
	periodic := []float64{100, 200, 100, 0, 100, 200, 100, 0, 100, 200, 100, 0, 100, 200, 100, 0}
	if !DetectSeasonality(periodic) {
		t.Error("periodic series should be seasonal")
	}

	if DetectSeasonality([]float64{1, 2, 3, 4, 5}) {
		t.Error("fewer than six points should never be seasonal")
	}
	if DetectSeasonality([]float64{5, 5, 5, 5, 5, 5, 5, 5}) {
		t.Error("constant series should not be seasonal")
	}
}

func TestAnalyzeTimeSeries(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value func(i int) float64
		want  models.Trend
	}{
		{"increasing", func(i int) float64 { return 100 + 2*float64(i) }, models.TrendIncreasing},
		{"decreasing", func(i int) float64 { return 200 - 1.5*float64(i) }, models.TrendDecreasing},
		{"stable", func(i int) float64 { return 120 + 0.01*float64(i) }, models.TrendStable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := make([]float64, 12)
			for i := range values {
				values[i] = tt.value(i)
			}
			result := AnalyzeTimeSeries(readingsFrom(start, 5*time.Minute, values...))

			if result.Status != models.StatusComputed {
				t.Errorf("Status = %s, want computed", result.Status)
			}
			if result.Trend != tt.want {
				t.Errorf("Trend = %s, want %s", result.Trend, tt.want)
			}
			wantPrediction := values[len(values)-1] + result.Slope
			if math.Abs(result.Prediction-wantPrediction) > epsilon {
				t.Errorf("Prediction = %v, want %v", result.Prediction, wantPrediction)
			}
		})
	}
}

func TestAnalyzeTimeSeries_SortsReadings(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	readings := readingsFrom(start, time.Hour, 100, 110, 120, 130, 140)
	reversed := make([]models.Reading, len(readings))
	for i, r := range readings {
		reversed[len(readings)-1-i] = r
	}

	result := AnalyzeTimeSeries(reversed)
	if result.Trend != models.TrendIncreasing {
		t.Errorf("Trend = %s, want increasing", result.Trend)
	}
	if math.Abs(result.Prediction-150) > epsilon {
		t.Errorf("Prediction = %v, want 150", result.Prediction)
	}
}

func TestAnalyzeTimeSeries_Insufficient(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	result := AnalyzeTimeSeries(readingsFrom(start, time.Hour, 100, 300))

	if result.Status != models.StatusInsufficient {
		t.Errorf("Status = %s, want insufficient", result.Status)
	}
	if result.Trend != models.TrendStable || result.Seasonality || result.Volatility != 0 || result.Prediction != 0 {
		t.Errorf("result = %+v, want zero stable result", result)
	}
}

func TestSummarizeGlucose(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	stats := SummarizeGlucose(readingsFrom(start, 5*time.Minute, 60, 100, 150, 200))

	if stats.Count != 4 {
		t.Errorf("Count = %d, want 4", stats.Count)
	}
	if stats.TimeInRange != 50 || stats.TimeBelowRange != 25 || stats.TimeAboveRange != 25 {
		t.Errorf("ranges = %v/%v/%v, want 50/25/25", stats.TimeInRange, stats.TimeBelowRange, stats.TimeAboveRange)
	}
	// Median of 60, 100, 150, 200
	if stats.Median != 125 {
		t.Errorf("Median = %v, want 125", stats.Median)
	}
	wantGMI := 3.31 + 0.02392*127.5
	if math.Abs(stats.GMI-wantGMI) > epsilon {
		t.Errorf("GMI = %v, want %v", stats.GMI, wantGMI)
	}

	if empty := SummarizeGlucose(nil); empty != (models.GlucoseStats{}) {
		t.Errorf("SummarizeGlucose(nil) = %+v, want zero", empty)
	}
}
