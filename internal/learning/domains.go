package learning

import (
	"fmt"
	"math"
	"time"

	"github.com/mrcode/glucose-insights/internal/models"
)

// learningRun holds the working state of one Learn call
type learningRun struct {
	st       *state
	now      func() time.Time
	insights []string
}

// insight records a message unless the per-call cap is reached
func (r *learningRun) insight(format string, args ...any) {
	if len(r.insights) >= maxInsightsPerCall {
		return
	}
	r.insights = append(r.insights, fmt.Sprintf(format, args...))
}

func (r *learningRun) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return r.now()
	}
	return t
}

// scorable reports whether an observation has a finite ground truth and
// finite inputs. Anything else would poison the accuracies.
func scorable(actual *float64, inputs ...float64) bool {
	if actual == nil || !finite(*actual) {
		return false
	}
	for _, v := range inputs {
		if !finite(v) {
			return false
		}
	}
	return true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// improvement converts an absolute prediction error into a score in [0,1]
func improvement(errAbs float64) float64 {
	return math.Max(0, 1-errAbs/errorScale)
}

// learnGlucose predicts each value as the mean of the last five remembered
// actuals. It returns the mean improvement and the number of observations
// scored.
func (r *learningRun) learnGlucose(obs []models.GlucoseObservation) (float64, int) {
	var sum float64
	n := 0
	for _, o := range obs {
		if !scorable(o.Actual) {
			continue
		}
		actual := *o.Actual
		predicted := r.predictGlucose(actual)
		errAbs := math.Abs(predicted - actual)

		r.st.glucose.Push(models.GlucoseMemoryEntry{
			Timestamp: r.stamp(o.Timestamp),
			Predicted: predicted,
			Actual:    actual,
			Error:     errAbs,
			Context:   o.Context.Clone(),
		})

		if errAbs > glucoseErrorAlarm {
			r.insight("Large glucose prediction error of %.0f mg/dL (predicted %.0f, actual %.0f)", errAbs, predicted, actual)
		}
		sum += improvement(errAbs)
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

// predictGlucose averages the newest remembered actuals. An empty memory
// predicts the current actual.
func (r *learningRun) predictGlucose(actual float64) float64 {
	recent := r.st.glucose.Last(glucoseWindow)
	if len(recent) == 0 {
		return actual
	}
	var sum float64
	for _, e := range recent {
		sum += e.Actual
	}
	return sum / float64(len(recent))
}

// learnInsulin scores measured effectiveness against a fixed expectation
func (r *learningRun) learnInsulin(obs []models.InsulinObservation) (float64, int) {
	var sum float64
	n := 0
	for _, o := range obs {
		if !scorable(o.ActualEffectiveness, o.Dose) {
			continue
		}
		actual := *o.ActualEffectiveness
		errAbs := math.Abs(expectedInsulin - actual)

		r.st.insulin.Push(models.InsulinMemoryEntry{
			Timestamp:             r.stamp(o.Timestamp),
			Dose:                  o.Dose,
			ExpectedEffectiveness: expectedInsulin,
			ActualEffectiveness:   actual,
			Error:                 errAbs,
			Context:               o.Context.Clone(),
		})

		if actual < effectivenessAlarm {
			r.insight("Low insulin effectiveness of %.2f for a %.1fU dose", actual, o.Dose)
		}
		sum += improvement(errAbs)
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

// predictEnvironmental is the mean normalized deviation from 20 °C and 50%
func predictEnvironmental(temperature, humidity float64) float64 {
	return (math.Abs(temperature-comfortTemperature)/comfortTemperature +
		math.Abs(humidity-comfortHumidity)/comfortHumidity) / 2
}

func (r *learningRun) learnEnvironmental(obs []models.EnvironmentalObservation) (float64, int) {
	var sum float64
	n := 0
	for _, o := range obs {
		if !scorable(o.ActualImpact, o.Temperature, o.Humidity, o.AirQuality) {
			continue
		}
		actual := *o.ActualImpact
		predicted := predictEnvironmental(o.Temperature, o.Humidity)
		errAbs := math.Abs(predicted - actual)

		r.st.environmental.Push(models.EnvironmentalMemoryEntry{
			Timestamp:       r.stamp(o.Timestamp),
			Temperature:     o.Temperature,
			Humidity:        o.Humidity,
			AirQuality:      o.AirQuality,
			PredictedImpact: predicted,
			ActualImpact:    actual,
			Error:           errAbs,
		})

		if o.Temperature < minTemperatureAlarm || o.Temperature > maxTemperatureAlarm {
			r.insight("Extreme temperature of %.1f°C may affect glucose levels", o.Temperature)
		}
		sum += improvement(errAbs)
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

// predictLifestyle scores exercise, high stress and short sleep additively
func predictLifestyle(exercise bool, stress, sleep float64) float64 {
	var score float64
	if exercise {
		score += 0.3
	}
	if stress > stressRisk {
		score += 0.4
	}
	if sleep < sleepAlarm {
		score += 0.3
	}
	return score
}

func (r *learningRun) learnLifestyle(obs []models.LifestyleObservation) (float64, int) {
	var sum float64
	n := 0
	for _, o := range obs {
		if !scorable(o.ActualImpact, o.Stress, o.Sleep) {
			continue
		}
		actual := *o.ActualImpact
		predicted := predictLifestyle(o.Exercise, o.Stress, o.Sleep)
		errAbs := math.Abs(predicted - actual)

		r.st.lifestyle.Push(models.LifestyleMemoryEntry{
			Timestamp:       r.stamp(o.Timestamp),
			Exercise:        o.Exercise,
			Stress:          o.Stress,
			Sleep:           o.Sleep,
			PredictedImpact: predicted,
			ActualImpact:    actual,
			Error:           errAbs,
		})

		if o.Stress > stressAlarm {
			r.insight("Very high stress level of %.0f/10 recorded", o.Stress)
		}
		if o.Sleep < sleepAlarm {
			r.insight("Short sleep of %.1f hours recorded", o.Sleep)
		}
		sum += improvement(errAbs)
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}
