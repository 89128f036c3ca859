package http

import (
	"net/http"

	"certdash/internal/aggregate"
	"certdash/internal/core"
	"certdash/internal/services"
	"certdash/internal/session"
)

// consumptionRow is one month of the consumption table, values in the order
// of core.EnergyTypes.
type consumptionRow struct {
	Name   string
	Values []string
	Total  string
}

type dashboardView struct {
	page
	Dash        *services.Dashboard
	Years       []int
	Windows     []int
	EnergyTypes []core.EnergyType
	Consumption []consumptionRow
	Side        services.Side
}

var chartWindows = []int{3, 6, 12}

func consumptionRows(series []aggregate.MonthlyConsumption) []consumptionRow {
	rows := make([]consumptionRow, 0, len(series))
	for _, m := range series {
		row := consumptionRow{Name: m.Name, Total: formatAmount(m.Total())}
		for _, e := range core.EnergyTypes {
			v, ok := m.Values[e]
			if !ok {
				row.Values = append(row.Values, "")
				continue
			}
			row.Values = append(row.Values, formatAmount(v))
		}
		rows = append(rows, row)
	}
	return rows
}

// handleDashboard renders the home page for the signed-in account.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	now := s.now()
	q := r.URL.Query()
	year := ParseIntParam(q, "year", now.Year())
	window := ParseIntParam(q, "window", s.opts.ChartWindow)
	if year < 1 || year > 9999 {
		s.fail(w, r, "dashboard", core.ErrInvalidYear)
		return
	}
	if window < 1 || window > 36 {
		window = s.opts.ChartWindow
	}

	ctx, cancel := upstream(r.Context())
	defer cancel()
	dash, err := s.deps.Dashboard.Load(ctx, sess, year, window)
	if err != nil {
		s.fail(w, r, "dashboard", err)
		return
	}

	s.render(w, r, http.StatusOK, "dashboard_page", dashboardView{
		page:        s.newPage(r, "Dashboard", "dashboard"),
		Dash:        dash,
		Years:       yearRange(now.Year()-4, now.Year()),
		Windows:     chartWindows,
		EnergyTypes: core.EnergyTypes,
		Consumption: consumptionRows(dash.Consumption),
		Side:        dash.Transactions.Side,
	})
}
