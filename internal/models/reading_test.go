package models

import (
	"testing"
	"time"
)

func TestSeries_SortedIsStableCopy(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := Series{
		Metric: MetricGlucose,
		Readings: []Reading{
			{Timestamp: base.Add(10 * time.Minute), Value: 3},
			{Timestamp: base, Value: 1},
			{Timestamp: base, Value: 2},
		},
	}

	sorted := s.Sorted()
	got := sorted.Values()
	want := []float64{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Sorted().Values() = %v, want %v", got, want)
		}
	}

	if s.Readings[0].Value != 3 {
		t.Error("Sorted() modified the original series")
	}
}

func TestMetric_Valid(t *testing.T) {
	tests := []struct {
		metric Metric
		valid  bool
	}{
		{MetricGlucose, true},
		{MetricInsulin, true},
		{MetricEnvironmental, true},
		{MetricLifestyle, true},
		{Metric("ketones"), false},
		{Metric(""), false},
	}

	for _, tt := range tests {
		if tt.metric.Valid() != tt.valid {
			t.Errorf("Metric(%q).Valid() = %v, want %v", tt.metric, !tt.valid, tt.valid)
		}
	}
}

func TestAdaptiveWeights_DefaultsSumToOne(t *testing.T) {
	w := DefaultAdaptiveWeights()
	if sum := w.Sum(); sum < 0.999999 || sum > 1.000001 {
		t.Errorf("DefaultAdaptiveWeights().Sum() = %f, want 1", sum)
	}

	c := w.Clone()
	c[MethodNeural] = 0
	if w[MethodNeural] != 0.4 {
		t.Error("Clone() shares storage with the original")
	}
}

func TestGlucoseBatch(t *testing.T) {
	readings := []Reading{{Value: 100}, {Value: 150}}
	batch := GlucoseBatch(readings)

	if len(batch.Glucose) != 2 {
		t.Fatalf("len(Glucose) = %d, want 2", len(batch.Glucose))
	}
	if *batch.Glucose[0].Actual != 100 || *batch.Glucose[1].Actual != 150 {
		t.Errorf("actuals = %f, %f", *batch.Glucose[0].Actual, *batch.Glucose[1].Actual)
	}
	if batch.Empty() {
		t.Error("Empty() = true for a batch with observations")
	}
}
