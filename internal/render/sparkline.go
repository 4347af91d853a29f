package render

import (
	"fmt"
	"math"
	"strings"
)

// Braille blocks with 4 sub-blocks per line: empty, 1/4, 1/2, 3/4, full
var blocks = []rune{'⠀', '⣀', '⣤', '⣶', '⣿'}

const (
	subBlocksPerLine = 4.0
	sparklineBuffer  = 10.0
	// DefaultSparklineHeight is the line count used by the CLI
	DefaultSparklineHeight = 8
)

// minMax returns the smallest and largest value
func minMax(values []float64) (float64, float64) {
	minVal, maxVal := values[0], values[0]
	for _, v := range values {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	return minVal, maxVal
}

// Sparkline renders values as a multi-line braille chart framed by
// max and min labels. It returns an empty string for fewer than two
// values.
func Sparkline(values []float64, height int) string {
	if len(values) < 2 {
		return ""
	}
	if height <= 0 {
		height = DefaultSparklineHeight
	}

	minVal, maxVal := minMax(values)

	// Dynamic scaling with buffer
	minVal = math.Max(0, minVal-sparklineBuffer)
	maxVal += sparklineBuffer
	rangeVal := maxVal - minVal

	rows := make([][]rune, height)
	for i := range rows {
		rows[i] = []rune(strings.Repeat(string(blocks[0]), len(values)))
	}

	for x, val := range values {
		totalSubBlocks := (val - minVal) / rangeVal * float64(height) * subBlocksPerLine

		// Fill lines from bottom up
		for y := 0; y < height; y++ {
			lineIdx := height - 1 - y
			lineStart := float64(y) * subBlocksPerLine
			lineEnd := float64(y+1) * subBlocksPerLine

			if totalSubBlocks >= lineEnd {
				rows[lineIdx][x] = blocks[len(blocks)-1]
			} else if totalSubBlocks > lineStart {
				remainder := int(math.Round(totalSubBlocks - lineStart))
				remainder = max(0, min(remainder, len(blocks)-1))
				rows[lineIdx][x] = blocks[remainder]
			}
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Max: %.0f\n", maxVal)
	for _, row := range rows {
		b.WriteString(string(row))
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Min: %.0f", minVal)
	return b.String()
}

// CompactSparkline renders values as a two-line braille chart without labels
func CompactSparkline(values []float64) string {
	if len(values) < 2 {
		return ""
	}

	minVal, maxVal := minMax(values)
	rangeVal := maxVal - minVal
	if rangeVal == 0 {
		rangeVal = 1
	}

	var top, bottom strings.Builder
	for _, val := range values {
		// Scale to 0-8 sub-blocks across both lines
		h := int(math.Round((val - minVal) / rangeVal * 2 * subBlocksPerLine))
		lower := min(h, len(blocks)-1)
		upper := max(0, h-(len(blocks)-1))
		if lower == 0 {
			// Keep a baseline so flat stretches stay visible
			lower = 1
		}
		top.WriteRune(blocks[upper])
		bottom.WriteRune(blocks[lower])
	}
	return top.String() + "\n" + bottom.String()
}
