package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/mrcode/glucose-insights/internal/analysis"
	"github.com/mrcode/glucose-insights/internal/models"
)

// BatchResult holds the valid observations of a learning batch document
type BatchResult struct {
	Batch  models.LearningBatch
	Errors Errors
}

// decodeDocument decodes JSON when the document starts like JSON and YAML
// otherwise
func decodeDocument(data []byte, v any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty document")
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return json.Unmarshal(trimmed, v)
	}
	return yaml.Unmarshal(trimmed, v)
}

// Bounds of environmental samples
const (
	minTemperature = -60.0
	maxTemperature = 60.0
)

var unbounded = math.Inf(1)

// bound is one numeric field of an observation and its accepted range
type bound struct {
	field  string
	value  float64
	lo, hi float64
}

// invalid returns the first field that is not finite or out of range
func invalid(bounds ...bound) (string, string, bool) {
	for _, b := range bounds {
		switch {
		case math.IsNaN(b.value) || math.IsInf(b.value, 0):
			return b.field, fmt.Sprintf("must be finite, got %v", b.value), true
		case b.value < b.lo || b.value > b.hi:
			return b.field, rangeReason(b), true
		}
	}
	return "", "", false
}

func rangeReason(b bound) string {
	switch {
	case b.lo == 0 && b.hi == unbounded:
		return fmt.Sprintf("must not be negative, got %v", b.value)
	case b.hi == unbounded:
		return fmt.Sprintf("must be at least %v, got %v", b.lo, b.value)
	default:
		return fmt.Sprintf("must be within [%v,%v], got %v", b.lo, b.hi, b.value)
	}
}

// optional adds a bound for a ground-truth field that may be absent
func optional(bounds []bound, field string, v *float64, lo, hi float64) []bound {
	if v == nil {
		return bounds
	}
	return append(bounds, bound{field, *v, lo, hi})
}

// ParseLearningBatch parses a learning batch in JSON or YAML. Observations
// with non-finite or out-of-range fields are rejected; missing actuals are
// kept and later skipped by the engine.
func ParseLearningBatch(data []byte) (BatchResult, error) {
	var doc models.LearningBatch
	if err := decodeDocument(data, &doc); err != nil {
		return BatchResult{}, fmt.Errorf("decoding %s: %w", SourceBatch, err)
	}

	var res BatchResult
	reject := func(domain string, i int, field, reason string) {
		res.Errors.add(SourceBatch+"."+domain, i, field, reason)
	}

	for i, o := range doc.Glucose {
		if o.Actual != nil && *o.Actual <= 0 {
			reject("glucose", i, "actual", fmt.Sprintf("must be positive, got %v", *o.Actual))
			continue
		}
		if field, reason, bad := invalid(optional(nil, "actual", o.Actual, 0, unbounded)...); bad {
			reject("glucose", i, field, reason)
			continue
		}
		res.Batch.Glucose = append(res.Batch.Glucose, o)
	}

	for i, o := range doc.Insulin {
		bounds := optional([]bound{{"dose", o.Dose, 0, unbounded}}, "actualEffectiveness", o.ActualEffectiveness, 0, unbounded)
		if field, reason, bad := invalid(bounds...); bad {
			reject("insulin", i, field, reason)
			continue
		}
		res.Batch.Insulin = append(res.Batch.Insulin, o)
	}

	for i, o := range doc.Environmental {
		bounds := optional([]bound{
			{"temperature", o.Temperature, minTemperature, maxTemperature},
			{"humidity", o.Humidity, 0, 100},
			{"airQuality", o.AirQuality, 0, unbounded},
		}, "actualImpact", o.ActualImpact, -unbounded, unbounded)
		if field, reason, bad := invalid(bounds...); bad {
			reject("environmental", i, field, reason)
			continue
		}
		res.Batch.Environmental = append(res.Batch.Environmental, o)
	}

	for i, o := range doc.Lifestyle {
		bounds := optional([]bound{
			{"stress", o.Stress, 0, 10},
			{"sleep", o.Sleep, 0, 24},
		}, "actualImpact", o.ActualImpact, -unbounded, unbounded)
		if field, reason, bad := invalid(bounds...); bad {
			reject("lifestyle", i, field, reason)
			continue
		}
		res.Batch.Lifestyle = append(res.Batch.Lifestyle, o)
	}

	return res, nil
}

// ParseMedication parses {before: [...], after: [...]} glucose values in
// JSON or YAML
func ParseMedication(data []byte) (*analysis.MedicationInput, error) {
	var doc analysis.MedicationInput
	if err := decodeDocument(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", SourceMedication, err)
	}

	var errs Errors
	for i, v := range doc.Before {
		if !(v > 0) || math.IsInf(v, 1) {
			errs.add(SourceMedication, i, "before", fmt.Sprintf("must be positive and finite, got %v", v))
		}
	}
	for i, v := range doc.After {
		if !(v > 0) || math.IsInf(v, 1) {
			errs.add(SourceMedication, i, "after", fmt.Sprintf("must be positive and finite, got %v", v))
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	return &doc, nil
}
