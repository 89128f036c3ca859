package aggregate

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	monthLabelLayout = "2006-01"
	dayLabelLayout   = "02-01-2006"
)

// Labeled is implemented by series entries keyed by a "<month>-<year>" label.
type Labeled interface {
	PeriodLabel() string
}

func consumptionLabel(month, year int) string {
	return fmt.Sprintf("%02d-%04d", month, year)
}

// parseMonthYear reads "<month>-<year>" labels; the month may or may not be
// zero padded.
func parseMonthYear(label string) (time.Time, error) {
	m, y, ok := strings.Cut(strings.TrimSpace(label), "-")
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriodLabel, label)
	}
	month, err := strconv.Atoi(m)
	if err != nil || month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriodLabel, label)
	}
	year, err := strconv.Atoi(y)
	if err != nil || year < 1 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriodLabel, label)
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), nil
}

// SortByDate returns a copy of series ordered most recent period first.
// Entries sharing a period keep their relative order.
func SortByDate[T Labeled](series []T) ([]T, error) {
	keys := make(map[string]time.Time, len(series))
	for _, entry := range series {
		label := entry.PeriodLabel()
		if _, seen := keys[label]; seen {
			continue
		}
		t, err := parseMonthYear(label)
		if err != nil {
			return nil, err
		}
		keys[label] = t
	}

	out := slices.Clone(series)
	if out == nil {
		out = []T{}
	}
	slices.SortStableFunc(out, func(a, b T) int {
		return keys[b.PeriodLabel()].Compare(keys[a.PeriodLabel()])
	})
	return out, nil
}

// DefaultRecentWindow is how many periods the consumption bar chart shows.
const DefaultRecentWindow = 6

// LimitRecent returns at most n leading entries. n <= 0 selects
// DefaultRecentWindow.
func LimitRecent[T any](series []T, n int) []T {
	if n <= 0 {
		n = DefaultRecentWindow
	}
	if len(series) < n {
		n = len(series)
	}
	out := make([]T, n)
	copy(out, series[:n])
	return out
}
