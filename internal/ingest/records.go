package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mrcode/glucose-insights/internal/models"
)

// Record is one validated reading tagged with its metric
type Record struct {
	Metric  models.Metric
	Reading models.Reading
}

// RecordResult holds the valid records of a document and the rejected ones
type RecordResult struct {
	Records []Record
	Errors  Errors
}

type rawRecord struct {
	Metric    string          `json:"metric"`
	Timestamp json.RawMessage `json:"timestamp"`
	Value     *float64        `json:"value"`
	Unit      string          `json:"unit"`
}

// ParseRecords parses a JSON array of {metric, timestamp, value, unit}
// objects. Glucose in mmol/L is converted to mg/dL.
func ParseRecords(data []byte) (RecordResult, error) {
	items, err := decodeArray(data, SourceRecords)
	if err != nil {
		return RecordResult{}, err
	}

	res := RecordResult{Records: make([]Record, 0, len(items))}
	for i, item := range items {
		var raw rawRecord
		if err := json.Unmarshal(item, &raw); err != nil {
			res.Errors.add(SourceRecords, i, "", "malformed record: "+err.Error())
			continue
		}

		rec, field, reason := validateRecord(raw)
		if reason != "" {
			res.Errors.add(SourceRecords, i, field, reason)
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

func validateRecord(raw rawRecord) (Record, string, string) {
	metric := models.Metric(strings.ToLower(raw.Metric))
	if raw.Metric == "" {
		return Record{}, "metric", "missing"
	}
	if !metric.Valid() {
		return Record{}, "metric", fmt.Sprintf("unknown metric %q", raw.Metric)
	}

	ts, err := parseTimestamp(raw.Timestamp)
	if err != nil {
		return Record{}, "timestamp", err.Error()
	}

	if raw.Value == nil {
		return Record{}, "value", "missing"
	}
	value := *raw.Value
	unit := raw.Unit

	if metric == models.MetricGlucose {
		switch strings.ToLower(unit) {
		case "", strings.ToLower(models.UnitMgDL):
		case strings.ToLower(models.UnitMmolL):
			value = models.ToMgdl(value)
		default:
			return Record{}, "unit", fmt.Sprintf("unsupported glucose unit %q", raw.Unit)
		}
		if value <= 0 {
			return Record{}, "value", fmt.Sprintf("glucose must be positive, got %v", *raw.Value)
		}
		unit = models.UnitMgDL
	}
	if metric == models.MetricInsulin && value < 0 {
		return Record{}, "value", fmt.Sprintf("insulin must not be negative, got %v", value)
	}
	if metric == models.MetricInsulin && unit == "" {
		unit = models.UnitU
	}

	return Record{
		Metric:  metric,
		Reading: models.Reading{Timestamp: ts, Value: value, Unit: unit},
	}, "", ""
}

// GroupByMetric builds one time-ordered series per metric present
func GroupByMetric(records []Record) map[models.Metric]models.Series {
	grouped := make(map[models.Metric][]models.Reading)
	for _, r := range records {
		grouped[r.Metric] = append(grouped[r.Metric], r.Reading)
	}

	series := make(map[models.Metric]models.Series, len(grouped))
	for metric, readings := range grouped {
		series[metric] = models.Series{Metric: metric, Readings: models.SortReadings(readings)}
	}
	return series
}
