package render

import (
	"bytes"
	"errors"
	"image/png"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/mrcode/glucose-insights/internal/models"
)

func TestSparkline(t *testing.T) {
	values := []float64{100, 110, 120, 130, 140, 150, 140, 130, 120, 110, 100}

	chart := Sparkline(values, 10)
	if chart == "" {
		t.Fatal("Expected chart to be generated, got empty string")
	}

	lines := strings.Split(chart, "\n")
	// Max label, 10 chart lines, Min label
	if len(lines) != 12 {
		t.Fatalf("Got %d lines, want 12", len(lines))
	}
	if lines[0] != "Max: 160" {
		t.Errorf("top label = %q, want %q", lines[0], "Max: 160")
	}
	if lines[11] != "Min: 90" {
		t.Errorf("bottom label = %q, want %q", lines[11], "Min: 90")
	}
	for i, line := range lines[1:11] {
		if n := utf8.RuneCountInString(line); n != len(values) {
			t.Errorf("line %d has %d columns, want %d", i, n, len(values))
		}
	}

	// The buffer keeps the top line clear; the peak reaches the line below
	if lines[1] != strings.Repeat(string(blocks[0]), len(values)) {
		t.Errorf("top line = %q, want empty", lines[1])
	}
	if got := []rune(lines[2])[5]; got != blocks[2] {
		t.Errorf("peak column = %q, want %q", got, blocks[2])
	}
	first := []rune(lines[10])[0]
	if first != blocks[len(blocks)-1] {
		t.Errorf("first column bottom = %q, want full", first)
	}
	if got := []rune(lines[9])[0]; got != blocks[2] {
		t.Errorf("first column second line = %q, want %q", got, blocks[2])
	}

	t.Logf("Generated Chart:\n%s", chart)
}

func TestSparkline_Midpoint(t *testing.T) {
	// [100, 100] with buffer 10 normalizes to 0.5: the bottom half is full
	chart := Sparkline([]float64{100, 100}, 10)
	lines := strings.Split(chart, "\n")[1:11]

	for i, line := range lines {
		want := blocks[0]
		if i >= 5 {
			want = blocks[len(blocks)-1]
		}
		for _, r := range line {
			if r != want {
				t.Errorf("line %d = %q, want all %q", i, line, want)
				break
			}
		}
	}
}

func TestSparkline_TooShort(t *testing.T) {
	if got := Sparkline([]float64{100}, 5); got != "" {
		t.Errorf("Sparkline() = %q, want empty", got)
	}
	if got := CompactSparkline(nil); got != "" {
		t.Errorf("CompactSparkline() = %q, want empty", got)
	}
}

func TestSparkline_DefaultHeight(t *testing.T) {
	lines := strings.Split(Sparkline([]float64{80, 200}, 0), "\n")
	if len(lines) != DefaultSparklineHeight+2 {
		t.Errorf("Got %d lines, want %d", len(lines), DefaultSparklineHeight+2)
	}
}

func TestCompactSparkline(t *testing.T) {
	chart := CompactSparkline([]float64{100, 150, 200})
	lines := strings.Split(chart, "\n")
	if len(lines) != 2 {
		t.Fatalf("Got %d lines, want 2", len(lines))
	}

	top, bottom := []rune(lines[0]), []rune(lines[1])
	full := blocks[len(blocks)-1]

	// Minimum keeps a baseline, midpoint fills the bottom, maximum fills both
	if top[0] != blocks[0] || bottom[0] != blocks[1] {
		t.Errorf("min column = %q/%q", top[0], bottom[0])
	}
	if top[1] != blocks[0] || bottom[1] != full {
		t.Errorf("mid column = %q/%q", top[1], bottom[1])
	}
	if top[2] != full || bottom[2] != full {
		t.Errorf("max column = %q/%q", top[2], bottom[2])
	}
}

func testReadings() []models.Reading {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	values := []float64{120, 140, 180, 220, 160, 90, 60, 45, 80, 110}
	readings := make([]models.Reading, len(values))
	for i, v := range values {
		readings[i] = models.Reading{Timestamp: start.Add(time.Duration(i) * 5 * time.Minute), Value: v}
	}
	return readings
}

func TestChart(t *testing.T) {
	opts := DefaultChartOptions()
	opts.Width, opts.Height = 320, 160

	data, err := Chart(testReadings(), []models.Anomaly{{Index: 7, Value: 45}, {Index: 99}}, opts)
	if err != nil {
		t.Fatalf("Chart() error = %v", err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 320 || b.Dy() != 160 {
		t.Errorf("bounds = %v, want 320x160", b)
	}
}

func TestChart_NotEnoughData(t *testing.T) {
	_, err := Chart(testReadings()[:1], nil, DefaultChartOptions())
	if !errors.Is(err, ErrNotEnoughData) {
		t.Errorf("Chart() error = %v, want ErrNotEnoughData", err)
	}
}

func TestScale(t *testing.T) {
	opts := DefaultChartOptions()
	readings := testReadings()
	s := newScale(readings, opts)

	if s.minVal != 35 || s.maxVal != 230 {
		t.Errorf("range = [%v, %v], want [35, 230]", s.minVal, s.maxVal)
	}
	if got := s.x(0, readings[0].Timestamp); got != s.left {
		t.Errorf("x(first) = %v, want %v", got, s.left)
	}
	if got := s.x(9, readings[9].Timestamp); got != s.right {
		t.Errorf("x(last) = %v, want %v", got, s.right)
	}
	if s.y(230) != s.top || s.y(35) != s.bottom {
		t.Error("y should map the value range onto the plot area")
	}

	// Identical timestamps fall back to index spacing
	same := []models.Reading{{Value: 100}, {Value: 110}, {Value: 120}}
	s = newScale(same, opts)
	if got, want := s.x(1, time.Time{}), (s.left+s.right)/2; got != want {
		t.Errorf("x(middle) = %v, want %v", got, want)
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		unit     string
		expected string
	}{
		{models.UnitMgDL, "180 mg/dL"},
		{models.UnitMmolL, "10.0 mmol/L"},
		{"", "180 mg/dL"},
	}

	for _, tt := range tests {
		if got := formatValue(180, tt.unit); got != tt.expected {
			t.Errorf("formatValue(180, %q) = %s, want %s", tt.unit, got, tt.expected)
		}
	}
}

func TestParseHexColor(t *testing.T) {
	r, g, b := parseHexColor("#ef4444")
	if r != 0xef || g != 0x44 || b != 0x44 {
		t.Errorf("parseHexColor() = %d,%d,%d", r, g, b)
	}
	r, g, b = parseHexColor("red")
	if r != 0 || g != 0 || b != 0 {
		t.Error("invalid input should yield black")
	}
}
