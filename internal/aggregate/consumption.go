package aggregate

import (
	"bytes"
	"encoding/json"

	"certdash/internal/core"
)

// MonthlyConsumption is the energy consumed in one month, split by category.
// Only categories present in the period have an entry in Values.
type MonthlyConsumption struct {
	Name   string
	Values map[core.EnergyType]float64
}

// CategoryTotal is one slice of the category summary.
type CategoryTotal struct {
	Type  core.EnergyType `json:"-"`
	Name  string          `json:"name"`
	Value float64         `json:"value"`
}

func (m MonthlyConsumption) PeriodLabel() string {
	return m.Name
}

// Total sums every category in the period.
func (m MonthlyConsumption) Total() float64 {
	var sum float64
	for _, e := range core.EnergyTypes {
		sum += m.Values[e]
	}
	return sum
}

// Categories lists the categories present, in display order.
func (m MonthlyConsumption) Categories() []core.EnergyType {
	out := make([]core.EnergyType, 0, len(m.Values))
	for _, e := range core.EnergyTypes {
		if _, ok := m.Values[e]; ok {
			out = append(out, e)
		}
	}
	return out
}

// MarshalJSON emits {"name": ..., "<Category>": sum, ...} with categories in
// display order, which is the shape chart components consume.
func (m MonthlyConsumption) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"name":`)
	name, err := json.Marshal(m.Name)
	if err != nil {
		return nil, err
	}
	buf.Write(name)
	for _, e := range m.Categories() {
		v, err := json.Marshal(m.Values[e])
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		label, _ := json.Marshal(e.Label())
		buf.Write(label)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ConsumptionByMonth groups records by (month, year) and sums energy per
// category. Periods appear in the order they are first seen.
func ConsumptionByMonth(records []core.ConsumptionRecord) ([]MonthlyConsumption, error) {
	out := []MonthlyConsumption{}
	index := make(map[string]int)

	for i, r := range records {
		if err := r.Validate(); err != nil {
			return nil, newRecordError(i, err)
		}
		label := consumptionLabel(r.ConsumptionMonth, r.ConsumptionYear)
		pos, ok := index[label]
		if !ok {
			pos = len(out)
			index[label] = pos
			out = append(out, MonthlyConsumption{Name: label, Values: make(map[core.EnergyType]float64)})
		}
		out[pos].Values[r.Category()] += r.EnergyConsumed
	}
	return out, nil
}

// RecentConsumption groups records by month and keeps the n most recent
// periods, newest first.
func RecentConsumption(records []core.ConsumptionRecord, n int) ([]MonthlyConsumption, error) {
	monthly, err := ConsumptionByMonth(records)
	if err != nil {
		return nil, err
	}
	sorted, err := SortByDate(monthly)
	if err != nil {
		return nil, err
	}
	return LimitRecent(sorted, n), nil
}

// AggregateByCategory sums energy per category across all records. Categories
// are listed in first-seen order and omitted when their sum is zero.
func AggregateByCategory(records []core.ConsumptionRecord) ([]CategoryTotal, error) {
	var order []core.EnergyType
	sums := make(map[core.EnergyType]float64)

	for i, r := range records {
		if err := r.Validate(); err != nil {
			return nil, newRecordError(i, err)
		}
		cat := r.Category()
		if _, ok := sums[cat]; !ok {
			order = append(order, cat)
		}
		sums[cat] += r.EnergyConsumed
	}

	out := make([]CategoryTotal, 0, len(order))
	for _, cat := range order {
		if sums[cat] == 0 {
			continue
		}
		out = append(out, CategoryTotal{Type: cat, Name: cat.Label(), Value: sums[cat]})
	}
	return out, nil
}
