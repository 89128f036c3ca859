package http

import (
	"errors"
	"net/http"
	"strings"

	"certdash/internal/aggregate"
	"certdash/internal/log"
	"certdash/internal/render"
	"certdash/internal/services"
	"certdash/internal/session"
)

// requireAPIAuth answers anonymous chart requests with a JSON 401 instead of
// the login redirect pages get.
func requireAPIAuth(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !session.FromContext(r.Context()).IsAuthenticated() {
			writeJSONError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		h(w, r)
	})
}

// chartFail writes err as a JSON error body.
func (s *Server) chartFail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg := userError(err)
	logger := log.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.NewStructuredLogger(logger).LogError(r.Context(), "Chart request failed", err, op, nil)
	} else {
		logger.WarnContext(r.Context(), "Chart request rejected", log.FieldOperation, op, log.FieldError, err, log.FieldStatusCode, status)
	}
	writeJSONError(w, status, msg)
}

// chartQuery reads year and window with the dashboard defaults.
func (s *Server) chartQuery(r *http.Request) (year, window int) {
	q := r.URL.Query()
	year = ParseIntParam(q, "year", s.now().Year())
	window = ParseIntParam(q, "window", s.opts.ChartWindow)
	if window < 1 || window > 36 {
		window = s.opts.ChartWindow
	}
	return year, window
}

func (s *Server) handleConsumptionJSON(w http.ResponseWriter, r *http.Request) {
	year, window := s.chartQuery(r)
	ctx, cancel := upstream(r.Context())
	defer cancel()
	series, err := s.deps.Dashboard.Consumption(ctx, session.FromContext(r.Context()), year, window)
	if err != nil {
		s.chartFail(w, r, log.OpFetch, err)
		return
	}
	if series == nil {
		series = []aggregate.MonthlyConsumption{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"year":   year,
		"window": window,
		"series": series,
	})
}

func (s *Server) handleCategoriesJSON(w http.ResponseWriter, r *http.Request) {
	year, _ := s.chartQuery(r)
	ctx, cancel := upstream(r.Context())
	defer cancel()
	totals, err := s.deps.Dashboard.Categories(ctx, session.FromContext(r.Context()), year)
	if err != nil {
		s.chartFail(w, r, log.OpFetch, err)
		return
	}
	if totals == nil {
		totals = []aggregate.CategoryTotal{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"year":       year,
		"categories": totals,
	})
}

// transactions resolves the side query value and loads that side's view.
func (s *Server) transactions(w http.ResponseWriter, r *http.Request) (services.TransactionView, bool) {
	sess := session.FromContext(r.Context())
	side, err := services.ParseSide(r.URL.Query().Get("side"), sess)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return services.TransactionView{}, false
	}
	ctx, cancel := upstream(r.Context())
	defer cancel()
	view, err := s.deps.Dashboard.Transactions(ctx, sess, side)
	if err != nil {
		s.chartFail(w, r, log.OpFetch, err)
		return services.TransactionView{}, false
	}
	return view, true
}

func (s *Server) handleMonthlyTransactionsJSON(w http.ResponseWriter, r *http.Request) {
	view, ok := s.transactions(w, r)
	if !ok {
		return
	}
	series := view.Monthly
	if series == nil {
		series = []aggregate.MonthlyTransactions{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"side":       view.Side,
		"series":     series,
		"grandTotal": view.GrandTotal,
	})
}

func (s *Server) handleDailyTransactionsJSON(w http.ResponseWriter, r *http.Request) {
	view, ok := s.transactions(w, r)
	if !ok {
		return
	}
	series := view.Daily
	if series == nil {
		series = []aggregate.DailyTransactions{}
	}
	total, err := aggregate.TotalAcrossSeries(series)
	if err != nil {
		s.chartFail(w, r, log.OpFetch, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"side":       view.Side,
		"series":     series,
		"grandTotal": total,
	})
}

// handleChartPNG serves /charts/{kind}.png rendered server side.
func (s *Server) handleChartPNG(w http.ResponseWriter, r *http.Request) {
	kind, ok := strings.CutSuffix(r.PathValue("file"), ".png")
	if !ok {
		http.NotFound(w, r)
		return
	}
	sess := session.FromContext(r.Context())
	year, window := s.chartQuery(r)

	ctx, cancel := upstream(r.Context())
	defer cancel()

	var (
		img []byte
		err error
	)
	switch kind {
	case render.KindConsumption:
		var series []aggregate.MonthlyConsumption
		if series, err = s.deps.Dashboard.Consumption(ctx, sess, year, window); err == nil {
			img, err = s.deps.Renderer.ConsumptionBars(series)
		}
	case render.KindCategories:
		var totals []aggregate.CategoryTotal
		if totals, err = s.deps.Dashboard.Categories(ctx, sess, year); err == nil {
			img, err = s.deps.Renderer.CategoryPie(totals)
		}
	case render.KindDaily:
		var side services.Side
		if side, err = services.ParseSide(r.URL.Query().Get("side"), sess); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var view services.TransactionView
		if view, err = s.deps.Dashboard.Transactions(ctx, sess, side); err == nil {
			img, err = s.deps.Renderer.DailyLine(view.Daily)
		}
	default:
		http.NotFound(w, r)
		return
	}

	switch {
	case err == nil:
	case errors.Is(err, render.ErrNoData):
		http.Error(w, "no data to chart", http.StatusNotFound)
		return
	default:
		s.fail(w, r, log.OpRender, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(img)
}
