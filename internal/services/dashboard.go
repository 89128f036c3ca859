package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"certdash/internal/aggregate"
	"certdash/internal/api"
	"certdash/internal/cache"
	"certdash/internal/core"
	"certdash/internal/log"
	"certdash/internal/session"
)

// Side selects which transactions a chart shows.
type Side string

const (
	SideSold   Side = "sold"
	SideBought Side = "bought"
)

// ParseSide maps a query value to a Side. Empty selects the account's own side.
func ParseSide(v string, s *session.Session) (Side, error) {
	switch Side(v) {
	case SideSold, SideBought:
		return Side(v), nil
	case "":
		return PrimarySide(s), nil
	}
	return "", fmt.Errorf("unknown transaction side %q", v)
}

// PrimarySide is sold for business accounts and bought for consumers.
func PrimarySide(s *session.Session) Side {
	if s.IsBusiness() {
		return SideSold
	}
	return SideBought
}

// TransactionView is one side's transactions in chart form.
type TransactionView struct {
	Side       Side                            `json:"side"`
	Monthly    []aggregate.MonthlyTransactions `json:"monthly"`
	Daily      []aggregate.DailyTransactions   `json:"daily"`
	GrandTotal float64                         `json:"grandTotal"`
}

// MoneyResume is the dashboard header: totals over the account's own side.
type MoneyResume struct {
	Verb           string  `json:"verb"`
	Total          float64 `json:"total"`
	LastMonth      string  `json:"lastMonth"`
	LastMonthLabel string  `json:"lastMonthLabel"`
	LastMonthTotal float64 `json:"lastMonthTotal"`
	LastMonthAvg   float64 `json:"lastMonthAvg"`
	HasData        bool    `json:"hasData"`
}

// NewMoneyResume builds the header from a monthly series. The most recent
// month is reported as the last month.
func NewMoneyResume(s *session.Session, monthly []aggregate.MonthlyTransactions) (MoneyResume, error) {
	verb := "spent"
	if s.IsBusiness() {
		verb = "earned"
	}
	total, err := aggregate.TotalAcrossSeries(monthly)
	if err != nil {
		return MoneyResume{}, err
	}
	m := MoneyResume{Verb: verb, Total: total}
	if last, ok := aggregate.Latest(monthly); ok {
		m.HasData = true
		m.LastMonth = last.Name
		month, err := aggregate.MonthOf(last.Name)
		if err != nil {
			return MoneyResume{}, fmt.Errorf("label last month %q: %w", last.Name, err)
		}
		m.LastMonthLabel = fmt.Sprintf("%s %d", month.Month(), month.Year())
		m.LastMonthTotal = last.Total
		m.LastMonthAvg = last.Avg
	}
	return m, nil
}

// Dashboard is everything the home page renders.
type Dashboard struct {
	Year         int
	Window       int
	Business     bool
	Owned        []core.Certificate
	Consumption  []aggregate.MonthlyConsumption
	Categories   []aggregate.CategoryTotal
	Transactions TransactionView
	Money        MoneyResume
}

// DashboardService fetches records from the API and aggregates them. Raw
// records are cached per session; concurrent identical fetches share one call.
type DashboardService struct {
	api          api.Backend
	consumptions *cache.LRUCache[[]core.ConsumptionRecord]
	transactions *cache.LRUCache[[]core.TransactionRecord]
	flight       singleflight.Group
	window       int
	logger       *log.Logger
}

func NewDashboardService(backend api.Backend, size int, ttl time.Duration, window int, logger *log.Logger) *DashboardService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DashboardService{
		api:          backend,
		consumptions: cache.NewLRUCache[[]core.ConsumptionRecord](size, ttl),
		transactions: cache.NewLRUCache[[]core.TransactionRecord](size, ttl),
		window:       window,
		logger:       logger.WithComponent(log.ComponentDashboard),
	}
}

// RegisterCaches hands the service caches to a cleanup manager.
func (d *DashboardService) RegisterCaches(m *cache.Manager) {
	m.Register(d.consumptions)
	m.Register(d.transactions)
}

// CacheStats reports combined hit and miss counts.
func (d *DashboardService) CacheStats() cache.Stats {
	a, b := d.consumptions.Stats(), d.transactions.Stats()
	return cache.Stats{Hits: a.Hits + b.Hits, Misses: a.Misses + b.Misses, Size: a.Size + b.Size}
}

// Invalidate drops everything cached for the session.
func (d *DashboardService) Invalidate(s *session.Session) {
	prefix := s.ID + ":"
	n := d.consumptions.DeletePrefix(prefix) + d.transactions.DeletePrefix(prefix)
	if n > 0 {
		d.logger.Debug("Dashboard cache invalidated", log.FieldSessionID, s.ID, "entries", n)
	}
}

// sharedFetchTimeout bounds a coalesced fetch, which outlives the caller
// that started it.
const sharedFetchTimeout = 10 * time.Second

func cached[T any](ctx context.Context, d *DashboardService, c *cache.LRUCache[T], key string, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	ch := d.flight.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()
		res, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, res)
		return res, nil
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		return r.Val.(T), nil
	}
}

// ConsumptionRecords returns the session's consumption records for year.
func (d *DashboardService) ConsumptionRecords(ctx context.Context, s *session.Session, year int) ([]core.ConsumptionRecord, error) {
	key := s.ID + ":consumption:" + strconv.Itoa(year)
	recs, err := cached(ctx, d, d.consumptions, key, func(ctx context.Context) ([]core.ConsumptionRecord, error) {
		return d.api.Consumptions(ctx, s.Token, year)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch consumptions: %w", err)
	}
	return recs, nil
}

// TransactionRecords returns the session's sold or bought transactions.
func (d *DashboardService) TransactionRecords(ctx context.Context, s *session.Session, side Side) ([]core.TransactionRecord, error) {
	fetch := d.api.Bought
	if side == SideSold {
		fetch = d.api.Sold
	}
	recs, err := cached(ctx, d, d.transactions, s.ID+":"+string(side), func(ctx context.Context) ([]core.TransactionRecord, error) {
		return fetch(ctx, s.Token)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s transactions: %w", side, err)
	}
	return recs, nil
}

// Consumption returns the most recent window months of year, newest first.
func (d *DashboardService) Consumption(ctx context.Context, s *session.Session, year, window int) ([]aggregate.MonthlyConsumption, error) {
	recs, err := d.ConsumptionRecords(ctx, s, year)
	if err != nil {
		return nil, err
	}
	if window <= 0 {
		window = d.window
	}
	return aggregate.RecentConsumption(recs, window)
}

// Categories returns year's consumption per energy type.
func (d *DashboardService) Categories(ctx context.Context, s *session.Session, year int) ([]aggregate.CategoryTotal, error) {
	recs, err := d.ConsumptionRecords(ctx, s, year)
	if err != nil {
		return nil, err
	}
	return aggregate.AggregateByCategory(recs)
}

// Transactions returns monthly and daily series for side.
func (d *DashboardService) Transactions(ctx context.Context, s *session.Session, side Side) (TransactionView, error) {
	recs, err := d.TransactionRecords(ctx, s, side)
	if err != nil {
		return TransactionView{}, err
	}
	return buildTransactionView(side, recs)
}

func buildTransactionView(side Side, recs []core.TransactionRecord) (TransactionView, error) {
	monthly, err := aggregate.TransactionsByMonth(recs)
	if err != nil {
		return TransactionView{}, err
	}
	daily, err := aggregate.TransactionsByDay(recs)
	if err != nil {
		return TransactionView{}, err
	}
	total, err := aggregate.TotalAcrossSeries(monthly)
	if err != nil {
		return TransactionView{}, err
	}
	return TransactionView{Side: side, Monthly: monthly, Daily: daily, GrandTotal: total}, nil
}

// Load fetches owned certificates, consumptions and the account's
// transactions in parallel and aggregates them.
func (d *DashboardService) Load(ctx context.Context, s *session.Session, year, window int) (*Dashboard, error) {
	var (
		owned        []core.Certificate
		consumptions []core.ConsumptionRecord
		transactions []core.TransactionRecord
		side         = PrimarySide(s)
	)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		owned, err = d.api.OwnedCertificates(gctx, s.Token)
		if err != nil {
			return fmt.Errorf("fetch owned certificates: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		consumptions, err = d.ConsumptionRecords(gctx, s, year)
		return err
	})
	g.Go(func() error {
		var err error
		transactions, err = d.TransactionRecords(gctx, s, side)
		return err
	})
	if err := g.Wait(); err != nil {
		d.logger.ErrorContext(ctx, "Dashboard fetch failed", log.FieldError, err, log.FieldYear, year)
		return nil, err
	}

	if window <= 0 {
		window = d.window
	}
	dash := &Dashboard{Year: year, Window: window, Business: s.IsBusiness(), Owned: owned}

	var err error
	if dash.Consumption, err = aggregate.RecentConsumption(consumptions, window); err != nil {
		return nil, fmt.Errorf("aggregate consumption: %w", err)
	}
	if dash.Categories, err = aggregate.AggregateByCategory(consumptions); err != nil {
		return nil, fmt.Errorf("aggregate categories: %w", err)
	}
	if dash.Transactions, err = buildTransactionView(side, transactions); err != nil {
		return nil, fmt.Errorf("aggregate transactions: %w", err)
	}
	if dash.Money, err = NewMoneyResume(s, dash.Transactions.Monthly); err != nil {
		return nil, fmt.Errorf("money resume: %w", err)
	}

	d.logger.DebugContext(ctx, "Dashboard loaded",
		log.FieldYear, year,
		log.FieldRecords, len(consumptions)+len(transactions),
		log.FieldDuration, time.Since(start).Milliseconds())
	return dash, nil
}
