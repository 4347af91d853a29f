package analysis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/mrcode/glucose-insights/internal/models"
)

// SignificanceThreshold is the t-statistic above which a before/after
// difference counts as significant. It is a rough fixed cut-off, not a
// critical value looked up for the sample sizes.
const SignificanceThreshold = 2.0

const minMedicationPoints = 5

// AnalyzeMedicationEffectiveness compares glucose values recorded before
// and after a medication change. Lower glucose afterwards counts as an
// improvement.
func AnalyzeMedicationEffectiveness(before, after []float64) models.MedicationResult {
	if len(before) < minMedicationPoints || len(after) < minMedicationPoints {
		return models.MedicationResult{
			Status:          models.StatusInsufficient,
			Recommendations: []string{"Insufficient data: record at least 5 readings before and after the change"},
		}
	}

	meanBefore, meanAfter := Mean(before), Mean(after)
	diff := meanAfter - meanBefore

	var effectiveness float64
	if meanBefore != 0 {
		effectiveness = math.Abs(diff) / meanBefore * 100
	}

	t := tStatistic(before, after)
	improvement := meanAfter < meanBefore
	significant := t > SignificanceThreshold

	return models.MedicationResult{
		Status:                  models.StatusComputed,
		Effectiveness:           effectiveness,
		Improvement:             improvement,
		TStatistic:              t,
		StatisticalSignificance: significant,
		Recommendations:         medicationRecommendations(improvement, significant, effectiveness),
	}
}

// tStatistic is the pooled-variance two-sample t statistic of the absolute
// mean difference
func tStatistic(a, b []float64) float64 {
	meanA, varA := stat.MeanVariance(a, nil)
	meanB, varB := stat.MeanVariance(b, nil)

	n1, n2 := float64(len(a)), float64(len(b))
	pooled := ((n1-1)*varA + (n2-1)*varB) / (n1 + n2 - 2)
	se := math.Sqrt(pooled * (1/n1 + 1/n2))
	if se == 0 {
		return 0
	}
	return math.Abs(meanB-meanA) / se
}

func medicationRecommendations(improvement, significant bool, effectiveness float64) []string {
	switch {
	case improvement && significant:
		return []string{
			fmt.Sprintf("Medication shows a significant improvement (%.1f%% lower mean glucose)", effectiveness),
			"Continue the current regimen and keep monitoring",
		}
	case improvement:
		return []string{
			"Glucose is trending lower but the change is not yet significant",
			"Continue monitoring to confirm the effect",
		}
	case significant:
		return []string{
			fmt.Sprintf("Mean glucose rose significantly (%.1f%%) after the change", effectiveness),
			"Discuss adjusting the medication with your healthcare provider",
		}
	default:
		return []string{
			"No significant change in glucose after the medication change",
			"Review adherence and timing before drawing conclusions",
		}
	}
}
