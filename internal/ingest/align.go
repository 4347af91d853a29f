package ingest

import "github.com/mrcode/glucose-insights/internal/models"

// AlignToGlucose resamples sparse insulin doses onto the glucose timeline.
// Each output reading carries the glucose timestamp and the total insulin
// dosed since the previous glucose reading, so both series have equal
// length. Doses before the first glucose reading are dropped.
func AlignToGlucose(glucose, insulin []models.Reading) []models.Reading {
	g := models.SortReadings(glucose)
	ins := models.SortReadings(insulin)

	aligned := make([]models.Reading, len(g))
	j := 0
	for i, r := range g {
		aligned[i] = models.Reading{Timestamp: r.Timestamp, Unit: models.UnitU}
		for j < len(ins) && !ins[j].Timestamp.After(r.Timestamp) {
			if i > 0 && ins[j].Timestamp.After(g[i-1].Timestamp) {
				aligned[i].Value += ins[j].Value
			}
			j++
		}
	}
	return aligned
}
