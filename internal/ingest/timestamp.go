package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

var errMissing = errors.New("missing")

// parseTimestamp accepts an RFC3339-like string or Unix milliseconds
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, errMissing
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("invalid string: %w", err)
		}
		return parseTimeString(s)
	}

	var ms float64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return time.Time{}, fmt.Errorf("not a string or number: %s", raw)
	}
	if ms <= 0 || math.IsInf(ms, 0) {
		return time.Time{}, fmt.Errorf("invalid epoch milliseconds %v", ms)
	}
	return time.UnixMilli(int64(ms)), nil
}

func parseTimeString(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errMissing
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
