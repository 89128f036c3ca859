package aggregate

import (
	"slices"
	"time"

	"certdash/internal/core"
)

// MonthlyTransactions totals transaction prices for one calendar month.
type MonthlyTransactions struct {
	Name  string  `json:"name"`
	Total float64 `json:"total"`
	Avg   float64 `json:"avg"`
}

// DailyTransactions totals transaction prices for one calendar day. Total and
// Avg are pre-formatted with two decimals for display.
type DailyTransactions struct {
	Name  string `json:"name"`
	Total string `json:"total"`
	Avg   string `json:"avg"`
}

// Totaler is a series entry that carries a total.
type Totaler interface {
	TotalValue() (float64, error)
}

func (m MonthlyTransactions) TotalValue() (float64, error) {
	return m.Total, nil
}

func (d DailyTransactions) TotalValue() (float64, error) {
	return parseFixed(d.Total)
}

type bucket struct {
	key   time.Time
	label string
	total float64
	count int
}

// groupTransactions accumulates price per calendar bucket and returns the
// buckets in ascending date order.
func groupTransactions(txs []core.TransactionRecord, keyOf func(time.Time) time.Time, layout string) ([]*bucket, error) {
	var buckets []*bucket
	index := make(map[time.Time]*bucket)

	for i, tx := range txs {
		if err := tx.Validate(); err != nil {
			return nil, newRecordError(i, err)
		}
		day, _ := tx.CalendarDate()
		key := keyOf(day)
		b, ok := index[key]
		if !ok {
			b = &bucket{key: key, label: key.Format(layout)}
			index[key] = b
			buckets = append(buckets, b)
		}
		b.total += tx.Price
		b.count++
	}

	slices.SortStableFunc(buckets, func(a, b *bucket) int {
		return a.key.Compare(b.key)
	})
	return buckets, nil
}

func monthKey(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func dayKey(t time.Time) time.Time {
	return t
}

// TransactionsByMonth groups transactions into "YYYY-MM" periods, oldest
// first, with the price total and average per period.
func TransactionsByMonth(txs []core.TransactionRecord) ([]MonthlyTransactions, error) {
	buckets, err := groupTransactions(txs, monthKey, monthLabelLayout)
	if err != nil {
		return nil, err
	}
	out := make([]MonthlyTransactions, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, MonthlyTransactions{
			Name:  b.label,
			Total: b.total,
			Avg:   b.total / float64(b.count),
		})
	}
	return out, nil
}

// TransactionsByDay groups transactions into "DD-MM-YYYY" days, oldest first.
// Ordering uses the calendar date, not the label text.
func TransactionsByDay(txs []core.TransactionRecord) ([]DailyTransactions, error) {
	buckets, err := groupTransactions(txs, dayKey, dayLabelLayout)
	if err != nil {
		return nil, err
	}
	out := make([]DailyTransactions, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, DailyTransactions{
			Name:  b.label,
			Total: formatFixed2(b.total),
			Avg:   formatFixed2(b.total / float64(b.count)),
		})
	}
	return out, nil
}

// TotalAcrossSeries sums the totals of a transformed series, converting
// formatted totals back to numbers.
func TotalAcrossSeries[T Totaler](series []T) (float64, error) {
	var sum float64
	for _, entry := range series {
		v, err := entry.TotalValue()
		if err != nil {
			return 0, err
		}
		sum += v
	}
	return sum, nil
}

// DayOf parses a "DD-MM-YYYY" label produced by TransactionsByDay.
func DayOf(label string) (time.Time, error) {
	t, err := time.Parse(dayLabelLayout, label)
	if err != nil {
		return time.Time{}, ErrInvalidPeriodLabel
	}
	return t, nil
}

// MonthOf parses a "YYYY-MM" label produced by TransactionsByMonth.
func MonthOf(label string) (time.Time, error) {
	t, err := time.Parse(monthLabelLayout, label)
	if err != nil {
		return time.Time{}, ErrInvalidPeriodLabel
	}
	return t, nil
}

// Latest returns the most recent month of an ascending monthly series.
func Latest(series []MonthlyTransactions) (MonthlyTransactions, bool) {
	if len(series) == 0 {
		return MonthlyTransactions{}, false
	}
	return series[len(series)-1], true
}
