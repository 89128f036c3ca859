package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"certdash/internal/api"
	"certdash/internal/api/memory"
	"certdash/internal/core"
	"certdash/internal/session"
)

var testNow = time.Date(2024, 12, 15, 9, 0, 0, 0, time.UTC)

// countingAPI wraps a backend and counts record fetches.
type countingAPI struct {
	api.Backend
	consumptions atomic.Int32
	sold         atomic.Int32
	bought       atomic.Int32
	delay        time.Duration
	// gate, when set, holds consumption fetches until it is closed or the
	// fetch context ends.
	gate chan struct{}
}

func (c *countingAPI) Consumptions(ctx context.Context, token string, year int) ([]core.ConsumptionRecord, error) {
	c.consumptions.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return c.Backend.Consumptions(ctx, token, year)
}

func (c *countingAPI) Sold(ctx context.Context, token string) ([]core.TransactionRecord, error) {
	c.sold.Add(1)
	return c.Backend.Sold(ctx, token)
}

func (c *countingAPI) Bought(ctx context.Context, token string) ([]core.TransactionRecord, error) {
	c.bought.Add(1)
	return c.Backend.Bought(ctx, token)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []core.ActivityEvent
	err    error
}

func (r *recordingPublisher) PublishActivity(_ context.Context, e core.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingPublisher) kinds() []core.ActivityKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.ActivityKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

type fixture struct {
	backend   *memory.Backend
	api       *countingAPI
	dashboard *DashboardService
	certs     *CertificateService
	accounts  *AccountService
	events    *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := memory.NewSeeded(memory.WithClock(func() time.Time { return testNow }))
	counting := &countingAPI{Backend: backend}
	events := &recordingPublisher{}
	activity := NewActivityRecorder(events, nil)
	dashboard := NewDashboardService(counting, 16, time.Minute, 6, nil)
	manager := session.NewManager(session.NewMemoryStore(), counting, time.Hour, nil)
	certs := NewCertificateService(counting, dashboard, activity, nil)
	certs.now = func() time.Time { return testNow }
	return &fixture{
		backend:   backend,
		api:       counting,
		dashboard: dashboard,
		certs:     certs,
		accounts:  NewAccountService(counting, manager, dashboard, activity, nil),
		events:    events,
	}
}

func (f *fixture) login(t *testing.T, email string) *session.Session {
	t.Helper()
	s, err := f.accounts.Login(context.Background(), core.Credentials{Email: email, Password: memory.DemoPassword})
	if err != nil {
		t.Fatalf("Login(%s) error: %v", email, err)
	}
	return s
}

func TestDashboard_LoadConsumer(t *testing.T) {
	f := newFixture(t)
	s := f.login(t, memory.DemoConsumerEmail)

	dash, err := f.dashboard.Load(context.Background(), s, 2024, 0)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if dash.Business || dash.Window != 6 {
		t.Errorf("unexpected dashboard flags %+v", dash)
	}
	if len(dash.Consumption) != 6 || dash.Consumption[0].Name != "12-2024" || dash.Consumption[5].Name != "07-2024" {
		t.Fatalf("consumption window = %+v", dash.Consumption)
	}
	if len(dash.Categories) != 4 || dash.Categories[0].Name != "Solar" {
		t.Errorf("categories = %+v", dash.Categories)
	}
	if dash.Transactions.Side != SideBought {
		t.Errorf("side = %q, want bought", dash.Transactions.Side)
	}
	if len(dash.Owned) != 7 {
		t.Errorf("owned = %d, want 7", len(dash.Owned))
	}

	m := dash.Money
	if m.Verb != "spent" || !m.HasData {
		t.Fatalf("money resume = %+v", m)
	}
	if m.LastMonth != "2024-01" || m.LastMonthTotal != 13.05 {
		t.Errorf("last month = %s %.2f, want most recent month 2024-01 13.05", m.LastMonth, m.LastMonthTotal)
	}
	if m.LastMonthLabel != "January 2024" {
		t.Errorf("LastMonthLabel = %q, want January 2024", m.LastMonthLabel)
	}
	want := 11.75 + 12.10 + 12.50 + 12.50 + 13.20 + 12.80 + 13.05
	if diff := m.Total - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("total = %v, want %v", m.Total, want)
	}
	if m.Total != dash.Transactions.GrandTotal {
		t.Errorf("money total %v differs from grand total %v", m.Total, dash.Transactions.GrandTotal)
	}
}

func TestDashboard_LoadBusinessUsesSold(t *testing.T) {
	f := newFixture(t)
	s := f.login(t, memory.DemoBusinessEmail)

	dash, err := f.dashboard.Load(context.Background(), s, 2024, 3)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !dash.Business || dash.Money.Verb != "earned" || dash.Transactions.Side != SideSold {
		t.Fatalf("unexpected business dashboard %+v", dash.Money)
	}
	if len(dash.Consumption) != 3 {
		t.Errorf("window = %d, want 3", len(dash.Consumption))
	}
	if f.api.bought.Load() != 0 || f.api.sold.Load() != 1 {
		t.Errorf("fetched bought=%d sold=%d", f.api.bought.Load(), f.api.sold.Load())
	}
}

func TestDashboard_CachesPerSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.login(t, memory.DemoConsumerEmail)

	for i := 0; i < 3; i++ {
		if _, err := f.dashboard.Consumption(ctx, s, 2024, 0); err != nil {
			t.Fatal(err)
		}
		if _, err := f.dashboard.Categories(ctx, s, 2024); err != nil {
			t.Fatal(err)
		}
	}
	if n := f.api.consumptions.Load(); n != 1 {
		t.Errorf("API consumptions calls = %d, want 1", n)
	}
	if st := f.dashboard.CacheStats(); st.Hits != 5 || st.Misses != 1 {
		t.Errorf("cache stats = %+v", st)
	}

	other := f.login(t, memory.DemoConsumerEmail)
	if _, err := f.dashboard.Consumption(ctx, other, 2024, 0); err != nil {
		t.Fatal(err)
	}
	if n := f.api.consumptions.Load(); n != 2 {
		t.Errorf("second session should miss the cache, calls = %d", n)
	}

	f.dashboard.Invalidate(s)
	if _, err := f.dashboard.Consumption(ctx, s, 2024, 0); err != nil {
		t.Fatal(err)
	}
	if n := f.api.consumptions.Load(); n != 3 {
		t.Errorf("invalidated session should refetch, calls = %d", n)
	}
}

func TestDashboard_CoalescesConcurrentFetches(t *testing.T) {
	f := newFixture(t)
	f.api.delay = 50 * time.Millisecond
	s := f.login(t, memory.DemoConsumerEmail)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.dashboard.ConsumptionRecords(context.Background(), s, 2024); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if n := f.api.consumptions.Load(); n != 1 {
		t.Errorf("API consumptions calls = %d, want 1", n)
	}
}

func TestDashboard_SharedFetchSurvivesCancelledCaller(t *testing.T) {
	f := newFixture(t)
	f.api.gate = make(chan struct{})
	s := f.login(t, memory.DemoConsumerEmail)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.dashboard.ConsumptionRecords(firstCtx, s, 2024)
		firstErr <- err
	}()
	deadline := time.Now().Add(2 * time.Second)
	for f.api.consumptions.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first fetch never reached the API")
		}
		time.Sleep(time.Millisecond)
	}

	type result struct {
		recs []core.ConsumptionRecord
		err  error
	}
	second := make(chan result, 1)
	go func() {
		recs, err := f.dashboard.ConsumptionRecords(context.Background(), s, 2024)
		second <- result{recs, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller error = %v, want context.Canceled", err)
	}
	close(f.api.gate)

	select {
	case r := <-second:
		if r.err != nil {
			t.Fatalf("second caller error = %v, want shared result", r.err)
		}
		if len(r.recs) == 0 {
			t.Error("second caller got no records")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never returned")
	}
	if n := f.api.consumptions.Load(); n != 1 {
		t.Errorf("API consumptions calls = %d, want 1", n)
	}
}

func TestDashboard_UnauthorizedPropagates(t *testing.T) {
	f := newFixture(t)
	s := &session.Session{ID: "forged", Token: "forged"}
	_, err := f.dashboard.Load(context.Background(), s, 2024, 0)
	if !api.IsUnauthorized(err) {
		t.Fatalf("Load() error = %v, want unauthorized", err)
	}
}

func TestParseSide(t *testing.T) {
	business := &session.Session{ID: "b", Token: "t", Claims: session.Claims{UserType: core.UserBusiness}}
	consumer := &session.Session{ID: "c", Token: "t", Claims: session.Claims{UserType: core.UserConsumer}}

	tests := []struct {
		in      string
		s       *session.Session
		want    Side
		wantErr bool
	}{
		{in: "", s: business, want: SideSold},
		{in: "", s: consumer, want: SideBought},
		{in: "bought", s: business, want: SideBought},
		{in: "sold", s: consumer, want: SideSold},
		{in: "both", s: consumer, wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseSide(tt.in, tt.s)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseSide(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestCertificates_BuyInvalidatesAndPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.login(t, memory.DemoConsumerEmail)

	before, err := f.dashboard.Transactions(ctx, s, SideBought)
	if err != nil {
		t.Fatal(err)
	}

	q, err := f.certs.Quote(ctx, s, 2)
	if err != nil || q.Price != 25 {
		t.Fatalf("Quote() = %+v, %v", q, err)
	}
	if err := f.certs.Buy(ctx, s, core.Purchase{Quantity: 2, UsableMonth: 12, UsableYear: 2024}); err != nil {
		t.Fatalf("Buy() error: %v", err)
	}

	after, err := f.dashboard.Transactions(ctx, s, SideBought)
	if err != nil {
		t.Fatal(err)
	}
	if diff := after.GrandTotal - before.GrandTotal - 25; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("grand total %v -> %v, want +25", before.GrandTotal, after.GrandTotal)
	}
	latest := after.Monthly[len(after.Monthly)-1]
	if latest.Name != "2024-12" || latest.Total != 25 || latest.Avg != 12.5 {
		t.Errorf("latest month = %+v", latest)
	}

	kinds := f.events.kinds()
	if len(kinds) != 2 || kinds[0] != core.ActivityLogin || kinds[1] != core.ActivityPurchase {
		t.Errorf("events = %v", kinds)
	}
}

func TestCertificates_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	consumer := f.login(t, memory.DemoConsumerEmail)
	business := f.login(t, memory.DemoBusinessEmail)

	if _, err := f.certs.Quote(ctx, consumer, 0); !errors.Is(err, core.ErrInvalidQuantity) {
		t.Errorf("Quote(0) = %v", err)
	}
	if _, err := f.certs.Available(ctx, consumer, core.Period{Month: 13, Year: 2024}); !errors.Is(err, core.ErrInvalidMonth) {
		t.Errorf("Available(13) = %v", err)
	}
	if _, err := f.certs.Available(ctx, consumer, core.Period{Month: 1, Year: 2022}); !errors.Is(err, core.ErrInvalidYear) {
		t.Errorf("Available(2022) = %v", err)
	}
	if err := f.certs.Buy(ctx, consumer, core.Purchase{Quantity: 0, UsableMonth: 1, UsableYear: 2024}); !errors.Is(err, core.ErrInvalidQuantity) {
		t.Errorf("Buy(0) = %v", err)
	}

	req := core.CertificateRequest{UsableMonth: 5, UsableYear: 2025, RegulatoryAuthorityID: "GSE"}
	if err := f.certs.Create(ctx, consumer, req); !errors.Is(err, ErrNotBusiness) {
		t.Errorf("consumer Create() = %v", err)
	}
	far := req
	far.UsableYear = 2030
	if err := f.certs.Create(ctx, business, far); !errors.Is(err, core.ErrCertificateFuture) {
		t.Errorf("far-future Create() = %v", err)
	}
	if err := f.certs.Create(ctx, business, req); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	certs, err := f.certs.Available(ctx, consumer, core.Period{Month: 5, Year: 2025})
	if err != nil || len(certs) != 1 {
		t.Fatalf("Available() = %d, %v", len(certs), err)
	}
}

func TestAccounts_SignUpAndLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg := core.Registration{
		Email: "shop@example.com", Password: "pw", Name: "Shop", Address: "Via Po 2",
		City: "Torino", PostalCode: "10100", UserType: core.UserBusiness,
	}
	if err := f.accounts.SignUp(ctx, reg); err != nil {
		t.Fatalf("SignUp() error: %v", err)
	}
	bad := reg
	bad.Name = ""
	if err := f.accounts.SignUp(ctx, bad); !errors.Is(err, core.ErrEmptyName) {
		t.Errorf("SignUp(no name) = %v", err)
	}

	s, err := f.accounts.Login(ctx, core.Credentials{Email: reg.Email, Password: reg.Password})
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if !s.IsBusiness() {
		t.Error("new business account should have a business session")
	}
	if err := f.accounts.Logout(ctx, s); err != nil {
		t.Fatalf("Logout() error: %v", err)
	}
	if err := f.accounts.Logout(ctx, nil); err != nil {
		t.Errorf("Logout(nil) = %v", err)
	}

	kinds := f.events.kinds()
	want := []core.ActivityKind{core.ActivitySignUp, core.ActivityLogin, core.ActivityLogout}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v", kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, kinds[i], want[i])
		}
	}
}

func TestActivityRecorder_PublishFailureIsSwallowed(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	r := NewActivityRecorder(pub, nil)
	r.now = func() time.Time { return testNow }
	s := &session.Session{Claims: session.Claims{UserID: "u", Email: "a@b.c"}}

	r.Record(context.Background(), core.ActivityPurchase, s, func(e *core.ActivityEvent) { e.Quantity = 4 })

	if len(pub.events) != 1 {
		t.Fatalf("events = %d", len(pub.events))
	}
	e := pub.events[0]
	if e.ID == "" || e.UserID != "u" || e.Quantity != 4 || !e.OccurredAt.Equal(testNow) {
		t.Errorf("event = %+v", e)
	}
}

type fakePurger struct {
	calls atomic.Int32
	n     int64
	err   error
}

func (f *fakePurger) PurgeExpired(context.Context) (int64, error) {
	f.calls.Add(1)
	return f.n, f.err
}

func TestSessionJanitor(t *testing.T) {
	p := &fakePurger{n: 3}
	j := NewSessionJanitor(p, JanitorConfig{Interval: time.Hour}, nil)
	ctx := context.Background()

	if err := j.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := j.Start(ctx); err == nil {
		t.Error("second Start() should fail")
	}
	if !j.IsRunning() {
		t.Error("IsRunning() = false")
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := j.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if j.IsRunning() {
		t.Error("IsRunning() after Stop = true")
	}
	if p.calls.Load() < 1 {
		t.Error("loop should purge once on start")
	}

	p.err = errors.New("locked")
	if n := j.Purge(ctx); n != 0 {
		t.Errorf("Purge() with error = %d", n)
	}
}
