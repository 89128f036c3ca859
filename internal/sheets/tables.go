package sheets

import (
	"fmt"
	"time"

	"certdash/internal/aggregate"
	"certdash/internal/core"
)

// ActivityHeader is the first row of every activity tab.
var ActivityHeader = []string{"Occurred at", "Event", "Kind", "User", "Email", "Quantity", "Price", "Month", "Year"}

// ConsumptionTable has one row per month and one column per energy type.
func ConsumptionTable(year int, series []aggregate.MonthlyConsumption) Table {
	header := []string{"Month"}
	for _, e := range core.EnergyTypes {
		header = append(header, e.Label())
	}
	header = append(header, "Total")

	rows := make([][]any, 0, len(series))
	for _, m := range series {
		row := []any{m.Name}
		for _, e := range core.EnergyTypes {
			row = append(row, m.Values[e])
		}
		rows = append(rows, append(row, m.Total()))
	}
	return Table{Name: "Consumption", Year: year, Header: header, Rows: rows}
}

func CategoryTable(year int, totals []aggregate.CategoryTotal) Table {
	rows := make([][]any, 0, len(totals))
	for _, c := range totals {
		rows = append(rows, []any{c.Name, c.Value, c.Type.Color()})
	}
	return Table{Name: "Categories", Year: year, Header: []string{"Category", "Consumed", "Colour"}, Rows: rows}
}

// MonthlyTransactionTable ends with a grand total row.
func MonthlyTransactionTable(year int, side string, series []aggregate.MonthlyTransactions, grandTotal float64) Table {
	rows := make([][]any, 0, len(series)+1)
	for _, m := range series {
		rows = append(rows, []any{m.Name, m.Total, m.Avg})
	}
	rows = append(rows, []any{"Total", grandTotal, ""})
	return Table{
		Name:   fmt.Sprintf("%s monthly", side),
		Year:   year,
		Header: []string{"Month", "Total", "Average"},
		Rows:   rows,
	}
}

// DailyTransactionTable keeps the two-decimal strings as they are shown on
// the dashboard.
func DailyTransactionTable(year int, side string, series []aggregate.DailyTransactions) Table {
	rows := make([][]any, 0, len(series))
	for _, d := range series {
		rows = append(rows, []any{d.Name, d.Total, d.Avg})
	}
	return Table{
		Name:   fmt.Sprintf("%s daily", side),
		Year:   year,
		Header: []string{"Day", "Total", "Average"},
		Rows:   rows,
	}
}

// ActivityRow renders e in ActivityHeader order.
func ActivityRow(e core.ActivityEvent) []any {
	return []any{
		e.OccurredAt.UTC().Format(time.RFC3339),
		e.ID,
		string(e.Kind),
		e.UserID,
		e.Email,
		e.Quantity,
		e.Price,
		e.Month,
		e.Year,
	}
}
