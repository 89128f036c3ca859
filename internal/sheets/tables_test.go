package sheets

import (
	"testing"
	"time"

	"certdash/internal/aggregate"
	"certdash/internal/core"
)

func TestConsumptionTable(t *testing.T) {
	series := []aggregate.MonthlyConsumption{
		{Name: "12-2024", Values: map[core.EnergyType]float64{core.EnergySolar: 100, core.EnergyWind: 200}},
	}
	tbl := ConsumptionTable(2024, series)

	if len(tbl.Header) != len(core.EnergyTypes)+2 {
		t.Fatalf("header = %v", tbl.Header)
	}
	if tbl.Header[1] != "Solar" || tbl.Header[len(tbl.Header)-1] != "Total" {
		t.Errorf("header = %v", tbl.Header)
	}
	if len(tbl.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(tbl.Rows))
	}
	row := tbl.Rows[0]
	if row[0] != "12-2024" || row[1] != 100.0 || row[2] != 200.0 || row[len(row)-1] != 300.0 {
		t.Errorf("row = %v", row)
	}
	// Missing categories are written as zero.
	if row[3] != 0.0 {
		t.Errorf("hydro column = %v, want 0", row[3])
	}
}

func TestMonthlyTransactionTable(t *testing.T) {
	series := []aggregate.MonthlyTransactions{
		{Name: "2024-05", Total: 30, Avg: 15},
		{Name: "2024-06", Total: 12, Avg: 12},
	}
	tbl := MonthlyTransactionTable(2024, "bought", series, 42)

	if tbl.Name != "bought monthly" {
		t.Errorf("Name = %q", tbl.Name)
	}
	if len(tbl.Rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(tbl.Rows))
	}
	last := tbl.Rows[2]
	if last[0] != "Total" || last[1] != 42.0 {
		t.Errorf("total row = %v", last)
	}
}

func TestDailyTransactionTable(t *testing.T) {
	tbl := DailyTransactionTable(2024, "sold", []aggregate.DailyTransactions{{Name: "01-05-2024", Total: "10.00", Avg: "10.00"}})
	if tbl.Rows[0][1] != "10.00" {
		t.Errorf("row = %v", tbl.Rows[0])
	}
}

func TestActivityRow(t *testing.T) {
	e := core.ActivityEvent{
		ID:         "evt-1",
		Kind:       core.ActivityPurchase,
		UserID:     "u-1",
		Quantity:   3,
		Price:      37.5,
		Month:      12,
		Year:       2024,
		OccurredAt: time.Date(2024, 12, 15, 10, 0, 0, 0, time.FixedZone("CET", 3600)),
	}
	row := ActivityRow(e)
	if len(row) != len(ActivityHeader) {
		t.Fatalf("row has %d cells, header %d", len(row), len(ActivityHeader))
	}
	if row[0] != "2024-12-15T09:00:00Z" {
		t.Errorf("occurred at = %v", row[0])
	}
	if row[2] != "purchase" || row[5] != 3 {
		t.Errorf("row = %v", row)
	}
}
