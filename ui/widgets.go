package ui

import (
	"math"
	"strings"
)

var blocks = []rune("▁▂▃▄▅▆▇█")

// Spark renders the most recent width values scaled between their own min and max
func Spark(vals []float64, width int) string {
	if len(vals) == 0 || width <= 0 {
		return ""
	}
	if len(vals) > width {
		vals = vals[len(vals)-width:]
	}

	lo, hi := vals[0], vals[0]
	for _, v := range vals {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := hi - lo

	var b strings.Builder
	for _, v := range vals {
		norm := 0.5
		if span > 0 {
			norm = (v - lo) / span
		}
		level := int(math.Round(clamp01(norm) * float64(len(blocks)-1)))
		b.WriteRune(blocks[level])
	}
	return b.String()
}

// Gauge renders a vertical bar of height rows filled to fraction v, top row first.
// Rows at the high and low marks are drawn with a tick.
func Gauge(v float64, height int, highMark, lowMark float64) []string {
	if height <= 0 {
		return nil
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	fill := int(math.Round(clamp01(v) * float64(height)))
	highRow := height - int(math.Round(clamp01(highMark)*float64(height)))
	lowRow := height - int(math.Round(clamp01(lowMark)*float64(height)))

	rows := make([]string, height)
	for i := 0; i < height; i++ {
		cell := "   "
		if height-i <= fill {
			cell = "███"
		}
		tick := " "
		if i == highRow || i == lowRow {
			tick = "┤"
		}
		rows[i] = tick + cell
	}
	return rows
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
