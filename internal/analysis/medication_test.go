package analysis

import (
	"math"
	"testing"

	"github.com/mrcode/glucose-insights/internal/models"
)

func TestAnalyzeMedicationEffectiveness(t *testing.T) {
	tests := []struct {
		name            string
		before          []float64
		after           []float64
		wantImprovement bool
		wantSignificant bool
		wantT           float64
	}{
		{
			name:            "significant improvement",
			before:          []float64{200, 210, 190, 205, 195},
			after:           []float64{150, 160, 140, 155, 145},
			wantImprovement: true,
			wantSignificant: true,
			wantT:           10,
		},
		{
			name:            "significant worsening",
			before:          []float64{150, 160, 140, 155, 145},
			after:           []float64{200, 210, 190, 205, 195},
			wantImprovement: false,
			wantSignificant: true,
			wantT:           10,
		},
		{
			name:            "small improvement",
			before:          []float64{160, 170, 150, 165, 155},
			after:           []float64{155, 165, 145, 160, 150},
			wantImprovement: true,
			wantSignificant: false,
			wantT:           1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := AnalyzeMedicationEffectiveness(tt.before, tt.after)

			if result.Status != models.StatusComputed {
				t.Fatalf("Status = %s, want computed", result.Status)
			}
			if result.Improvement != tt.wantImprovement {
				t.Errorf("Improvement = %v, want %v", result.Improvement, tt.wantImprovement)
			}
			if result.StatisticalSignificance != tt.wantSignificant {
				t.Errorf("StatisticalSignificance = %v, want %v", result.StatisticalSignificance, tt.wantSignificant)
			}
			if math.Abs(result.TStatistic-tt.wantT) > 1e-9 {
				t.Errorf("TStatistic = %v, want %v", result.TStatistic, tt.wantT)
			}
			if len(result.Recommendations) != 2 {
				t.Errorf("Recommendations = %v, want 2 lines", result.Recommendations)
			}
		})
	}
}

func TestAnalyzeMedicationEffectiveness_Effectiveness(t *testing.T) {
	result := AnalyzeMedicationEffectiveness(
		[]float64{200, 210, 190, 205, 195},
		[]float64{150, 160, 140, 155, 145},
	)
	// |150-200| / 200
	if math.Abs(result.Effectiveness-25) > 1e-9 {
		t.Errorf("Effectiveness = %v, want 25", result.Effectiveness)
	}
}

func TestAnalyzeMedicationEffectiveness_Insufficient(t *testing.T) {
	result := AnalyzeMedicationEffectiveness([]float64{150, 160, 170, 180}, []float64{140, 150, 160, 170, 180})

	if result.Status != models.StatusInsufficient {
		t.Errorf("Status = %s, want insufficient", result.Status)
	}
	if result.Effectiveness != 0 || result.Improvement || result.StatisticalSignificance {
		t.Errorf("result = %+v, want zeroed", result)
	}
}

func TestAnalyzeMedicationEffectiveness_IdenticalValues(t *testing.T) {
	same := []float64{120, 120, 120, 120, 120}
	result := AnalyzeMedicationEffectiveness(same, same)

	if result.TStatistic != 0 || result.StatisticalSignificance {
		t.Errorf("TStatistic = %v significant = %v, want 0 false", result.TStatistic, result.StatisticalSignificance)
	}
}

func TestTStatistic(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		// Both variances 2.5, standard error sqrt(2.5 * 0.4) = 1
		{"shifted", []float64{1, 2, 3, 4, 5}, []float64{3, 4, 5, 6, 7}, 2},
		{"symmetric", []float64{3, 4, 5, 6, 7}, []float64{1, 2, 3, 4, 5}, 2},
		{"constant", []float64{5, 5, 5, 5, 5}, []float64{6, 6, 6, 6, 6}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tStatistic(tt.a, tt.b); math.Abs(got-tt.want) > epsilon {
				t.Errorf("tStatistic() = %v, want %v", got, tt.want)
			}
		})
	}
}
