package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mrcode/glucose-insights/internal/models"
)

// Result holds the valid readings of a document and the rejected records
type Result struct {
	Readings []models.Reading
	Errors   Errors
}

// TreatmentResult splits Nightscout treatments into insulin and carb readings
type TreatmentResult struct {
	Insulin []models.Reading
	Carbs   []models.Reading
	Errors  Errors
}

type entryRecord struct {
	SGV        *float64        `json:"sgv"`
	Date       json.RawMessage `json:"date"`
	DateString string          `json:"dateString"`
	Type       string          `json:"type"`
}

type treatmentRecord struct {
	EventType string          `json:"eventType"`
	Date      json.RawMessage `json:"date"`
	CreatedAt string          `json:"created_at"`
	Insulin   *float64        `json:"insulin"`
	Carbs     *float64        `json:"carbs"`
}

// decodeArray splits a JSON array into its raw elements
func decodeArray(data []byte, source string) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", source, err)
	}
	return items, nil
}

// ParseNightscoutEntries parses the JSON array returned by /api/v1/entries.
// Entries of a type other than sgv are ignored. The error is only set when
// the document itself is not a JSON array.
func ParseNightscoutEntries(data []byte) (Result, error) {
	items, err := decodeArray(data, SourceEntries)
	if err != nil {
		return Result{}, err
	}

	res := Result{Readings: make([]models.Reading, 0, len(items))}
	for i, item := range items {
		var rec entryRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			res.Errors.add(SourceEntries, i, "", "malformed entry: "+err.Error())
			continue
		}
		if rec.Type != "" && !strings.EqualFold(rec.Type, "sgv") {
			continue
		}

		if rec.SGV == nil {
			res.Errors.add(SourceEntries, i, "sgv", "missing")
			continue
		}
		if *rec.SGV <= 0 || math.IsNaN(*rec.SGV) {
			res.Errors.add(SourceEntries, i, "sgv", fmt.Sprintf("must be positive, got %v", *rec.SGV))
			continue
		}

		ts, err := parseTimestamp(rec.Date)
		if errors.Is(err, errMissing) {
			ts, err = parseTimeString(rec.DateString)
		}
		if err != nil {
			res.Errors.add(SourceEntries, i, "date", err.Error())
			continue
		}

		res.Readings = append(res.Readings, models.Reading{
			Timestamp: ts,
			Value:     *rec.SGV,
			Unit:      models.UnitMgDL,
		})
	}
	return res, nil
}

// ParseNightscoutTreatments parses the JSON array returned by
// /api/v1/treatments. Treatments without insulin or carbs are ignored.
func ParseNightscoutTreatments(data []byte) (TreatmentResult, error) {
	items, err := decodeArray(data, SourceTreatments)
	if err != nil {
		return TreatmentResult{}, err
	}

	res := TreatmentResult{Insulin: []models.Reading{}, Carbs: []models.Reading{}}
	for i, item := range items {
		var rec treatmentRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			res.Errors.add(SourceTreatments, i, "", "malformed treatment: "+err.Error())
			continue
		}

		hasInsulin := rec.Insulin != nil && *rec.Insulin != 0
		hasCarbs := rec.Carbs != nil && *rec.Carbs != 0
		if !hasInsulin && !hasCarbs {
			continue
		}
		if hasInsulin && *rec.Insulin < 0 {
			res.Errors.add(SourceTreatments, i, "insulin", fmt.Sprintf("must not be negative, got %v", *rec.Insulin))
			continue
		}
		if hasCarbs && *rec.Carbs < 0 {
			res.Errors.add(SourceTreatments, i, "carbs", fmt.Sprintf("must not be negative, got %v", *rec.Carbs))
			continue
		}

		ts, err := parseTimestamp(rec.Date)
		if errors.Is(err, errMissing) {
			ts, err = parseTimeString(rec.CreatedAt)
		}
		if err != nil {
			res.Errors.add(SourceTreatments, i, "created_at", err.Error())
			continue
		}

		if hasInsulin {
			res.Insulin = append(res.Insulin, models.Reading{Timestamp: ts, Value: *rec.Insulin, Unit: models.UnitU})
		}
		if hasCarbs {
			res.Carbs = append(res.Carbs, models.Reading{Timestamp: ts, Value: *rec.Carbs, Unit: models.UnitGrams})
		}
	}
	return res, nil
}
