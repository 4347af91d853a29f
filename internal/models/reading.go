// Package models contains data structures used throughout the application
package models

import (
	"sort"
	"time"
)

// Metric identifies the physiological quantity a series measures
type Metric string

const (
	MetricGlucose       Metric = "glucose"
	MetricInsulin       Metric = "insulin"
	MetricEnvironmental Metric = "environmental"
	MetricLifestyle     Metric = "lifestyle"
)

// Valid reports whether m is one of the supported metrics
func (m Metric) Valid() bool {
	switch m {
	case MetricGlucose, MetricInsulin, MetricEnvironmental, MetricLifestyle:
		return true
	}
	return false
}

// Unit constants
const (
	UnitMgDL  = "mg/dL"
	UnitMmolL = "mmol/L"
	UnitU     = "U"
	UnitGrams = "g"
)

// Reading is a single timestamped scalar measurement
type Reading struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Value     float64   `json:"value" yaml:"value"`
	Unit      string    `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// Series is an ordered sequence of readings for one metric.
// Readings sharing a timestamp are kept as-is.
type Series struct {
	Metric   Metric    `json:"metric"`
	Readings []Reading `json:"readings"`
}

// Len returns the number of readings
func (s Series) Len() int {
	return len(s.Readings)
}

// Sorted returns a copy of the series ordered by timestamp
func (s Series) Sorted() Series {
	return Series{Metric: s.Metric, Readings: SortReadings(s.Readings)}
}

// Values returns the reading values in their current order
func (s Series) Values() []float64 {
	return Values(s.Readings)
}

// SortReadings returns a copy of readings stably sorted by timestamp
func SortReadings(readings []Reading) []Reading {
	sorted := make([]Reading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}

// Values extracts the values of readings
func Values(readings []Reading) []float64 {
	values := make([]float64, len(readings))
	for i, r := range readings {
		values[i] = r.Value
	}
	return values
}
