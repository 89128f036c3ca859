// Package render draws dashboard series as PNG images.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"certdash/internal/aggregate"
	"certdash/internal/core"
)

// ErrNoData is returned when a series has nothing to draw.
var ErrNoData = errors.New("no data to render")

// Kinds of chart served as images.
const (
	KindConsumption = "consumption"
	KindCategories  = "categories"
	KindDaily       = "daily"
)

// Renderer holds the image size shared by every chart.
type Renderer struct {
	Width  int
	Height int
}

func NewRenderer() *Renderer {
	return &Renderer{Width: 800, Height: 400}
}

func background() chart.Style {
	return chart.Style{
		Padding:   chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		FillColor: chart.ColorWhite,
	}
}

// ConsumptionBars stacks each month's consumption by energy type. Months are
// drawn oldest on the left; months with no consumption are skipped.
func (r *Renderer) ConsumptionBars(series []aggregate.MonthlyConsumption) ([]byte, error) {
	bars := make([]chart.StackedBar, 0, len(series))
	for i := len(series) - 1; i >= 0; i-- {
		m := series[i]
		if m.Total() <= 0 {
			continue
		}
		values := make([]chart.Value, 0, len(m.Values))
		for _, e := range m.Categories() {
			v := m.Values[e]
			if v <= 0 {
				continue
			}
			values = append(values, chart.Value{
				Label: e.Label(),
				Value: v,
				Style: fill(e),
			})
		}
		bars = append(bars, chart.StackedBar{Name: m.Name, Values: values})
	}
	if len(bars) == 0 {
		return nil, ErrNoData
	}

	graph := chart.StackedBarChart{
		Title:      "Consumption",
		Width:      r.Width,
		Height:     r.Height,
		Background: background(),
		BarSpacing: 30,
		Bars:       bars,
	}
	return renderPNG("consumption chart", graph.Render)
}

// CategoryPie draws one slice per energy type in the palette colours.
func (r *Renderer) CategoryPie(totals []aggregate.CategoryTotal) ([]byte, error) {
	values := make([]chart.Value, 0, len(totals))
	var sum float64
	for _, c := range totals {
		if c.Value <= 0 {
			continue
		}
		sum += c.Value
		values = append(values, chart.Value{Label: c.Name, Value: c.Value, Style: fill(c.Type)})
	}
	if len(values) == 0 {
		return nil, ErrNoData
	}
	for i := range values {
		values[i].Label = fmt.Sprintf("%s (%.1f%%)", values[i].Label, values[i].Value/sum*100)
	}

	pie := chart.PieChart{
		Title:      "Consumption by source",
		Width:      r.Height,
		Height:     r.Height,
		Background: background(),
		Values:     values,
	}
	return renderPNG("category chart", pie.Render)
}

// DailyLine plots daily transaction totals.
func (r *Renderer) DailyLine(series []aggregate.DailyTransactions) ([]byte, error) {
	if len(series) == 0 {
		return nil, ErrNoData
	}
	xs := make([]time.Time, 0, len(series))
	ys := make([]float64, 0, len(series))
	var maxY float64
	for _, d := range series {
		day, err := aggregate.DayOf(d.Name)
		if err != nil {
			return nil, fmt.Errorf("parse day %q: %w", d.Name, err)
		}
		total, err := strconv.ParseFloat(d.Total, 64)
		if err != nil {
			return nil, fmt.Errorf("parse total %q: %w", d.Total, err)
		}
		xs = append(xs, day)
		ys = append(ys, total)
		if total > maxY {
			maxY = total
		}
	}
	if maxY <= 0 {
		maxY = 1
	}

	graph := chart.Chart{
		Width:      r.Width,
		Height:     r.Height,
		Background: background(),
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatterWithFormat("02-01"),
			Range:          dayRange(xs),
		},
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: maxY * 1.1},
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.2f", f)
				}
				return ""
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Total",
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeColor: drawing.ColorFromHex("8884d8"),
					StrokeWidth: 2,
					DotWidth:    3,
					DotColor:    drawing.ColorFromHex("8884d8"),
				},
			},
		},
	}
	return renderPNG("daily chart", graph.Render)
}

// dayRange pads the x axis by a day on each side so a single point still
// has a non-empty range.
func dayRange(xs []time.Time) *chart.ContinuousRange {
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		if x.Before(lo) {
			lo = x
		}
		if x.After(hi) {
			hi = x
		}
	}
	return &chart.ContinuousRange{
		Min: chart.TimeToFloat64(lo.AddDate(0, 0, -1)),
		Max: chart.TimeToFloat64(hi.AddDate(0, 0, 1)),
	}
}

func fill(e core.EnergyType) chart.Style {
	c := drawing.ColorFromHex(strings.TrimPrefix(e.Color(), "#"))
	return chart.Style{FillColor: c, StrokeColor: c}
}

func renderPNG(name string, render func(chart.RendererProvider, io.Writer) error) ([]byte, error) {
	var buf bytes.Buffer
	if err := render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}
