package rest

import (
	"math"
	"strconv"
	"strings"
)

// formatStep renders value floored to a multiple of step, with exactly as
// many decimals as the step carries. The broker rejects prices and
// quantities finer than the instrument increments.
func formatStep(value, step float64) string {
	if step <= 0 {
		return strconv.FormatFloat(value, 'f', -1, 64)
	}
	floored := math.Floor(value/step+1e-9) * step
	return strconv.FormatFloat(floored, 'f', decimalsOf(step), 64)
}

// decimalsOf counts the significant fractional digits of a step, 0.001 -> 3.
// Steps come from instrument metadata and are short decimal fractions; the
// 18-digit fallback covers a step that formats in exponent notation.
func decimalsOf(step float64) int {
	text := strconv.FormatFloat(step, 'f', -1, 64)
	if strings.ContainsAny(text, "eE") {
		text = strconv.FormatFloat(step, 'f', 18, 64)
	}

	dot := strings.IndexByte(text, '.')
	if dot < 0 {
		return 0
	}
	return len(strings.TrimRight(text[dot+1:], "0"))
}
