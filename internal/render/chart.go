// Package render draws glucose series as PNG charts and terminal sparklines
package render

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"image/png"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/mrcode/glucose-insights/internal/models"
)

// ErrNotEnoughData is returned when a series has fewer than two readings
var ErrNotEnoughData = errors.New("at least two readings are required")

// Chart colors
const (
	colorBackground = "#111827"
	colorBand       = "#4ade80"
	colorHypo       = "#ef4444"
	colorLine       = "#e5e7eb"
	colorAnomaly    = "#f97316"
	colorText       = "#9ca3af"
)

// ChartOptions controls chart geometry and reference lines. Thresholds are
// in mg/dL; Unit only affects labels.
type ChartOptions struct {
	Width      int
	Height     int
	Title      string
	Unit       string
	TargetLow  float64
	TargetHigh float64
	HypoLimit  float64
	Padding    float64
	FontSize   float64
	MarkerSize float64
	LineWidth  float64
}

// DefaultChartOptions returns a 1024x512 chart with the 70-180 target band
func DefaultChartOptions() ChartOptions {
	return ChartOptions{
		Width:      1024,
		Height:     512,
		Title:      "Glucose",
		Unit:       models.UnitMgDL,
		TargetLow:  70,
		TargetHigh: 180,
		HypoLimit:  54,
		Padding:    48,
		FontSize:   16,
		MarkerSize: 5,
		LineWidth:  2,
	}
}

// scale maps readings into pixel space
type scale struct {
	start, end     time.Time
	minVal, maxVal float64
	left, right    float64
	top, bottom    float64
	count          int
}

func newScale(readings []models.Reading, opts ChartOptions) scale {
	values := models.Values(readings)
	minVal, maxVal := minMax(values)
	minVal = min(minVal, opts.HypoLimit, opts.TargetLow) - sparklineBuffer
	maxVal = max(maxVal, opts.TargetHigh) + sparklineBuffer
	if minVal < 0 {
		minVal = 0
	}

	return scale{
		start:  readings[0].Timestamp,
		end:    readings[len(readings)-1].Timestamp,
		minVal: minVal,
		maxVal: maxVal,
		left:   opts.Padding,
		right:  float64(opts.Width) - opts.Padding/2,
		top:    opts.Padding,
		bottom: float64(opts.Height) - opts.Padding,
		count:  len(readings),
	}
}

// x places a reading by time, or by index when all timestamps coincide
func (s scale) x(i int, ts time.Time) float64 {
	span := s.end.Sub(s.start)
	var frac float64
	if span > 0 {
		frac = float64(ts.Sub(s.start)) / float64(span)
	} else {
		frac = float64(i) / float64(s.count-1)
	}
	return s.left + frac*(s.right-s.left)
}

func (s scale) y(v float64) float64 {
	frac := (v - s.minVal) / (s.maxVal - s.minVal)
	return s.bottom - frac*(s.bottom-s.top)
}

// Chart renders a glucose series as PNG with the target band, the
// hypoglycemia line and markers for anomalies
func Chart(readings []models.Reading, anomalies []models.Anomaly, opts ChartOptions) ([]byte, error) {
	if len(readings) < 2 {
		return nil, ErrNotEnoughData
	}
	readings = models.SortReadings(readings)
	s := newScale(readings, opts)

	dc := gg.NewContext(opts.Width, opts.Height)
	dc.SetHexColor(colorBackground)
	dc.Clear()

	// Target band
	dc.SetColor(withAlpha(colorBand, 48))
	dc.DrawRectangle(s.left, s.y(opts.TargetHigh), s.right-s.left, s.y(opts.TargetLow)-s.y(opts.TargetHigh))
	dc.Fill()

	// Hypoglycemia line
	dc.SetHexColor(colorHypo)
	dc.SetLineWidth(1)
	dc.SetDash(6, 4)
	dc.DrawLine(s.left, s.y(opts.HypoLimit), s.right, s.y(opts.HypoLimit))
	dc.Stroke()
	dc.SetDash()

	// Series
	dc.SetHexColor(colorLine)
	dc.SetLineWidth(opts.LineWidth)
	for i, r := range readings {
		if i == 0 {
			dc.MoveTo(s.x(i, r.Timestamp), s.y(r.Value))
			continue
		}
		dc.LineTo(s.x(i, r.Timestamp), s.y(r.Value))
	}
	dc.Stroke()

	// Anomalies index into the sorted series
	dc.SetHexColor(colorAnomaly)
	for _, a := range anomalies {
		if a.Index < 0 || a.Index >= len(readings) {
			continue
		}
		r := readings[a.Index]
		dc.DrawCircle(s.x(a.Index, r.Timestamp), s.y(r.Value), opts.MarkerSize)
		dc.Fill()
	}

	if err := loadFont(dc, opts.FontSize); err != nil {
		return nil, fmt.Errorf("loading font: %w", err)
	}
	values := models.Values(readings)
	minVal, maxVal := minMax(values)
	dc.SetHexColor(colorText)
	dc.DrawStringAnchored(opts.Title, s.left, opts.Padding/2, 0, 0.5)
	dc.DrawStringAnchored("Max: "+formatValue(maxVal, opts.Unit), s.right, opts.Padding/2, 1, 0.5)
	dc.DrawStringAnchored("Min: "+formatValue(minVal, opts.Unit), s.right, float64(opts.Height)-opts.Padding/2, 1, 0.5)
	dc.DrawStringAnchored(readings[0].Timestamp.Format("Jan 2 15:04"), s.left, float64(opts.Height)-opts.Padding/2, 0, 0.5)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}

// loadFont sets the Go regular face at the given size
func loadFont(dc *gg.Context, size float64) error {
	font, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return err
	}
	dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: size}))
	return nil
}

func formatValue(mgdl float64, unit string) string {
	if unit == models.UnitMmolL {
		return fmt.Sprintf("%.1f %s", models.ToMmol(mgdl), unit)
	}
	return fmt.Sprintf("%.0f %s", mgdl, models.UnitMgDL)
}

// withAlpha parses a #rrggbb color and applies an alpha
func withAlpha(hex string, alpha uint8) color.NRGBA {
	r, g, b := parseHexColor(hex)
	return color.NRGBA{R: r, G: g, B: b, A: alpha}
}

// parseHexColor parses a hex color string to RGB values
func parseHexColor(hex string) (r, g, b byte) {
	if len(hex) == 7 && hex[0] == '#' {
		_, _ = fmt.Sscanf(hex, "#%02x%02x%02x", &r, &g, &b)
	}
	return
}
