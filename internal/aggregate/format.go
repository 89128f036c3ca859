package aggregate

import (
	"fmt"
	"math"
	"strconv"
)

// formatFixed2 renders f with two decimals the way browsers render
// Number.prototype.toFixed(2): the exact binary value is rounded to the
// nearest hundredth and exact ties go away from zero.
func formatFixed2(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	if f == 0 {
		return "0.00"
	}
	// toFixed falls back to the shortest exponent form from 1e21 upwards.
	if math.Abs(f) >= 1e21 {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}

	// A hundredths tie needs f*100 to end in exactly .5, which for a binary
	// float only happens when f is a multiple of 1/8.
	abs := math.Abs(f)
	eighths := abs * 8
	if eighths == math.Trunc(eighths) && eighths < 1<<50 {
		twoHundredths := int64(eighths) * 25
		hundredths := (twoHundredths + 1) / 2
		s := fmt.Sprintf("%d.%02d", hundredths/100, hundredths%100)
		if f < 0 {
			return "-" + s
		}
		return s
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}

func parseFixed(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse total %q: %w", s, err)
	}
	return f, nil
}
