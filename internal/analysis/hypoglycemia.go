package analysis

import (
	"math"

	"github.com/mrcode/glucose-insights/internal/models"
)

// Glucose thresholds in mg/dL
const (
	HypoglycemiaThreshold = 70.0
	ModerateThreshold     = 54.0
	SevereThreshold       = 40.0

	rapidDecline = 30.0
)

// Risk factor descriptions
const (
	RiskFactorRapidDecline = "Rapid glucose decline detected"
	RiskFactorOvernight    = "Overnight hypoglycemia episodes detected"
	RiskFactorExercise     = "Exercise-related hypoglycemia possible"
	RiskFactorNone         = "No specific risk factors identified"
)

// DetectHypoglycemiaPatterns finds readings below 70 mg/dL and derives
// severity, contributing risk factors and prevention strategies
func DetectHypoglycemiaPatterns(glucose []models.Reading) models.HypoglycemiaResult {
	sorted := models.SortReadings(glucose)

	var episodes []models.Reading
	minValue := math.Inf(1)
	for _, r := range sorted {
		if r.Value < HypoglycemiaThreshold {
			episodes = append(episodes, r)
			minValue = math.Min(minValue, r.Value)
		}
	}

	if len(episodes) == 0 {
		return models.HypoglycemiaResult{
			Severity:    models.SeverityNone,
			RiskFactors: []string{},
			Prevention:  []string{"No hypoglycemia detected; continue current management"},
		}
	}

	severity := models.SeveritySevere
	switch {
	case minValue >= ModerateThreshold:
		severity = models.SeverityMild
	case minValue >= SevereThreshold:
		severity = models.SeverityModerate
	}

	riskFactors := hypoglycemiaRiskFactors(sorted, episodes)

	return models.HypoglycemiaResult{
		Episodes:        len(episodes),
		EpisodeReadings: episodes,
		Frequency:       float64(len(episodes)) / spanDays(sorted),
		Severity:        severity,
		MinValue:        minValue,
		RiskFactors:     riskFactors,
		Prevention:      preventionStrategies(riskFactors, severity),
	}
}

func hypoglycemiaRiskFactors(sorted, episodes []models.Reading) []string {
	var factors []string

	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].Value-sorted[i].Value > rapidDecline {
			factors = append(factors, RiskFactorRapidDecline)
			break
		}
	}

	overnight, exercise := false, false
	for _, e := range episodes {
		hour := e.Timestamp.Hour()
		if hour >= 22 || hour <= 6 {
			overnight = true
		}
		if hour >= 16 && hour <= 20 {
			exercise = true
		}
	}
	if overnight {
		factors = append(factors, RiskFactorOvernight)
	}
	if exercise {
		factors = append(factors, RiskFactorExercise)
	}

	if len(factors) == 0 {
		factors = append(factors, RiskFactorNone)
	}
	return factors
}

func preventionStrategies(riskFactors []string, severity models.Severity) []string {
	var strategies []string

	for _, f := range riskFactors {
		switch f {
		case RiskFactorRapidDecline:
			strategies = append(strategies,
				"Set a rate-of-change alert to catch rapid drops early",
				"Review bolus timing and size around meals")
		case RiskFactorOvernight:
			strategies = append(strategies,
				"Consider a bedtime snack with protein and complex carbohydrates",
				"Review overnight basal rates with your care team")
		case RiskFactorExercise:
			strategies = append(strategies,
				"Check glucose before, during and after exercise",
				"Reduce insulin or take extra carbohydrates before afternoon activity")
		}
	}

	if severity == models.SeveritySevere {
		strategies = append(strategies,
			"Consult your healthcare provider about severe hypoglycemia",
			"Consider a continuous glucose monitor with low alerts")
	}

	if len(strategies) == 0 {
		strategies = append(strategies, "Keep fast-acting glucose available and monitor regularly")
	}
	return strategies
}

// spanDays returns the covered time span in days, at least one
func spanDays(sorted []models.Reading) float64 {
	if len(sorted) < 2 {
		return 1
	}
	days := sorted[len(sorted)-1].Timestamp.Sub(sorted[0].Timestamp).Hours() / 24
	return math.Max(1, days)
}
