package services

import (
	"context"
	"fmt"
	"time"

	"certdash/internal/aggregate"
	"certdash/internal/core"
	"certdash/internal/log"
	"certdash/internal/session"
	"certdash/internal/sheets"
)

// ExportResult lists the ranges written by one export.
type ExportResult struct {
	Year   int
	Side   Side
	Ranges []string
}

// ExportService writes a year of chart series to a spreadsheet.
type ExportService struct {
	dashboard *DashboardService
	writer    sheets.TableWriter
	logger    *log.Logger
}

func NewExportService(dashboard *DashboardService, writer sheets.TableWriter, logger *log.Logger) *ExportService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &ExportService{
		dashboard: dashboard,
		writer:    writer,
		logger:    logger.WithComponent(log.ComponentSheets),
	}
}

// Export writes the consumption, category and primary-side transaction
// tables for year.
func (e *ExportService) Export(ctx context.Context, s *session.Session, year int) (ExportResult, error) {
	if !s.IsAuthenticated() {
		return ExportResult{}, session.ErrSessionNotFound
	}
	if year < 1 || year > 9999 {
		return ExportResult{}, core.ErrInvalidYear
	}

	start := time.Now()
	side := PrimarySide(s)
	tables, err := e.tables(ctx, s, year, side)
	if err != nil {
		return ExportResult{}, err
	}

	res := ExportResult{Year: year, Side: side}
	for _, t := range tables {
		ref, err := e.writer.WriteTable(ctx, t)
		if err != nil {
			return res, fmt.Errorf("write %s table: %w", t.Name, err)
		}
		res.Ranges = append(res.Ranges, ref)
	}

	e.logger.InfoContext(ctx, "Export completed",
		log.FieldOperation, log.OpExport,
		log.FieldYear, year,
		"side", string(side),
		"tables", len(res.Ranges),
		log.FieldDuration, time.Since(start).Milliseconds())
	return res, nil
}

func (e *ExportService) tables(ctx context.Context, s *session.Session, year int, side Side) ([]sheets.Table, error) {
	consumptions, err := e.dashboard.ConsumptionRecords(ctx, s, year)
	if err != nil {
		return nil, err
	}
	monthly, err := aggregate.RecentConsumption(consumptions, 12)
	if err != nil {
		return nil, fmt.Errorf("aggregate consumption: %w", err)
	}
	categories, err := aggregate.AggregateByCategory(consumptions)
	if err != nil {
		return nil, fmt.Errorf("aggregate categories: %w", err)
	}

	txs, err := e.dashboard.TransactionRecords(ctx, s, side)
	if err != nil {
		return nil, err
	}
	view, err := buildTransactionView(side, transactionsIn(txs, year))
	if err != nil {
		return nil, fmt.Errorf("aggregate transactions: %w", err)
	}

	return []sheets.Table{
		sheets.ConsumptionTable(year, monthly),
		sheets.CategoryTable(year, categories),
		sheets.MonthlyTransactionTable(year, string(side), view.Monthly, view.GrandTotal),
		sheets.DailyTransactionTable(year, string(side), view.Daily),
	}, nil
}

// transactionsIn keeps the records dated in year. Records without a valid
// date are kept so aggregation reports them.
func transactionsIn(txs []core.TransactionRecord, year int) []core.TransactionRecord {
	out := make([]core.TransactionRecord, 0, len(txs))
	for _, tx := range txs {
		day, err := tx.CalendarDate()
		if err == nil && day.Year() != year {
			continue
		}
		out = append(out, tx)
	}
	return out
}
