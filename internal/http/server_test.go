package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"certdash/internal/aggregate"
	"certdash/internal/api"
	"certdash/internal/api/memory"
	"certdash/internal/backend"
	"certdash/internal/core"
	"certdash/internal/log"
	"certdash/internal/services"
	"certdash/internal/session"
)

type testEnv struct {
	srv     *Server
	backend *memory.Backend
}

func newTestEnv(t *testing.T, opts Options, checks map[string]backend.CheckFunc) *testEnv {
	t.Helper()
	logger := log.New(log.Config{Output: &bytes.Buffer{}})
	b := memory.NewSeeded()
	sessions := session.NewManager(session.NewMemoryStore(), b, time.Hour, logger)
	dashboard := services.NewDashboardService(b, 64, time.Minute, 6, logger)
	activity := services.NewActivityRecorder(nil, logger)

	if opts.RateLimitPerMinute == 0 {
		opts.RateLimitPerMinute = 1000
	}
	srv := NewServer(opts, Deps{
		Dashboard:    dashboard,
		Certificates: services.NewCertificateService(b, dashboard, activity, logger),
		Accounts:     services.NewAccountService(b, sessions, dashboard, activity, logger),
		Sessions:     sessions,
		Checks:       checks,
	}, logger)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, backend: b}
}

func (e *testEnv) do(req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) get(path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest(http.MethodGet, path, nil), cookie)
}

func (e *testEnv) post(path string, form url.Values, cookie *http.Cookie, htmx bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	return e.do(req, cookie)
}

func (e *testEnv) login(t *testing.T, email string) *http.Cookie {
	t.Helper()
	return e.loginWith(t, email, memory.DemoPassword)
}

func (e *testEnv) loginWith(t *testing.T, email, password string) *http.Cookie {
	t.Helper()
	rr := e.post("/login", url.Values{"email": {email}, "password": {password}}, nil, false)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("login status=%d body=%s", rr.Code, rr.Body.String())
	}
	for _, c := range rr.Result().Cookies() {
		if c.Name == session.CookieName && c.Value != "" {
			return c
		}
	}
	t.Fatal("login did not set the session cookie")
	return nil
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return body
}

func TestHealthAndReadiness(t *testing.T) {
	env := newTestEnv(t, Options{}, map[string]backend.CheckFunc{
		"api": func(context.Context) error { return nil },
	})

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := env.get(path, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s missing X-Request-ID", path)
		}
	}

	failing := newTestEnv(t, Options{}, map[string]backend.CheckFunc{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	rr := failing.get("/readyz", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with failing check status=%d", rr.Code)
	}
	body := decode(t, rr)
	checks, _ := body["checks"].(map[string]any)
	if got, _ := checks["redis"].(string); !strings.Contains(got, "connection refused") {
		t.Errorf("redis check = %q", got)
	}
}

func TestAnonymousPagesRedirectToLogin(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)

	for _, path := range []string{"/", "/certificates", "/certificates/request", "/charts/consumption.png"} {
		rr := env.get(path, nil)
		if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login" {
			t.Errorf("%s: status=%d location=%q", path, rr.Code, rr.Header().Get("Location"))
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/certificates", nil)
	req.Header.Set("HX-Request", "true")
	rr := env.do(req, nil)
	if rr.Code != http.StatusUnauthorized || rr.Header().Get("HX-Redirect") != "/login" {
		t.Errorf("htmx anonymous: status=%d redirect=%q", rr.Code, rr.Header().Get("HX-Redirect"))
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)

	rr := env.get("/login", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Sign in") {
		t.Fatalf("login page status=%d", rr.Code)
	}

	rr = env.post("/login", url.Values{"email": {memory.DemoConsumerEmail}, "password": {"nope"}}, nil, false)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Wrong email or password") {
		t.Errorf("wrong password body missing message")
	}

	rr = env.post("/login", url.Values{"email": {"not-an-email"}, "password": {"x"}}, nil, false)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid email status=%d", rr.Code)
	}

	cookie := env.login(t, memory.DemoConsumerEmail)
	rr = env.get("/login", cookie)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/" {
		t.Errorf("signed-in login page: status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}

	rr = env.post("/login", url.Values{"email": {memory.DemoConsumerEmail}, "password": {memory.DemoPassword}}, nil, true)
	if rr.Header().Get("HX-Redirect") != "/" {
		t.Errorf("htmx login HX-Redirect=%q", rr.Header().Get("HX-Redirect"))
	}
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)
	cookie := env.login(t, memory.DemoConsumerEmail)
	prev := time.Now().Year() - 1

	rr := env.get("/?year="+strconv.Itoa(prev), cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("dashboard status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, want := range []string{"spent", "Consumption", fmt.Sprintf("12-%d", prev)} {
		if !strings.Contains(body, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}
	if rr.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("Cache-Control=%q", rr.Header().Get("Cache-Control"))
	}

	rr = env.get("/?year=0", cookie)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("year=0 status=%d", rr.Code)
	}

	business := env.login(t, memory.DemoBusinessEmail)
	rr = env.get("/", business)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "earned") {
		t.Errorf("business dashboard status=%d", rr.Code)
	}
}

func TestChartJSON(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)
	cookie := env.login(t, memory.DemoConsumerEmail)
	prev := time.Now().Year() - 1

	rr := env.get(fmt.Sprintf("/api/charts/consumption?year=%d&window=3", prev), cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("consumption status=%d", rr.Code)
	}
	series, _ := decode(t, rr)["series"].([]any)
	if len(series) != 3 {
		t.Fatalf("consumption rows = %d, want 3", len(series))
	}
	newest, _ := series[0].(map[string]any)
	if newest["name"] != fmt.Sprintf("12-%d", prev) {
		t.Errorf("newest month = %v", newest["name"])
	}
	if _, ok := newest[core.EnergySolar.Label()]; !ok {
		t.Errorf("newest month missing %s: %v", core.EnergySolar.Label(), newest)
	}

	rr = env.get(fmt.Sprintf("/api/charts/categories?year=%d", prev), cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("categories status=%d", rr.Code)
	}
	cats, _ := decode(t, rr)["categories"].([]any)
	if len(cats) != 4 {
		t.Errorf("categories = %d, want 4", len(cats))
	}

	rr = env.get("/api/charts/transactions/monthly", cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("monthly status=%d", rr.Code)
	}
	monthly := decode(t, rr)
	if monthly["side"] != string(services.SideBought) {
		t.Errorf("side = %v", monthly["side"])
	}
	if total, _ := monthly["grandTotal"].(float64); total <= 0 {
		t.Errorf("grandTotal = %v", monthly["grandTotal"])
	}

	rr = env.get("/api/charts/transactions/daily?side=bought", cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("daily status=%d", rr.Code)
	}
	daily := decode(t, rr)
	dailyTotal, _ := daily["grandTotal"].(float64)
	monthlyTotal, _ := monthly["grandTotal"].(float64)
	if math.Abs(dailyTotal-monthlyTotal) > 0.01 {
		t.Errorf("daily grandTotal %v != monthly %v", dailyTotal, monthlyTotal)
	}

	rr = env.get("/api/charts/transactions/monthly?side=sideways", cookie)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad side status=%d", rr.Code)
	}

	rr = env.get("/api/charts/consumption", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("anonymous api status=%d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("anonymous api Content-Type=%q", ct)
	}
}

func TestChartPNG(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)
	cookie := env.login(t, memory.DemoConsumerEmail)
	prev := time.Now().Year() - 1

	tests := []struct {
		path string
		code int
	}{
		{fmt.Sprintf("/charts/consumption.png?year=%d", prev), http.StatusOK},
		{fmt.Sprintf("/charts/categories.png?year=%d", prev), http.StatusOK},
		{"/charts/daily.png", http.StatusOK},
		{"/charts/consumption.png?year=1990", http.StatusNotFound},
		{"/charts/radar.png", http.StatusNotFound},
		{"/charts/consumption.svg", http.StatusNotFound},
	}
	for _, tt := range tests {
		rr := env.get(tt.path, cookie)
		if rr.Code != tt.code {
			t.Errorf("%s status=%d, want %d", tt.path, rr.Code, tt.code)
			continue
		}
		if tt.code == http.StatusOK {
			if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
				t.Errorf("%s Content-Type=%q", tt.path, ct)
			}
			if !bytes.HasPrefix(rr.Body.Bytes(), []byte("\x89PNG")) {
				t.Errorf("%s body is not a PNG", tt.path)
			}
		}
	}
}

func TestRequestAndBuy(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)
	cookie := env.login(t, memory.DemoConsumerEmail)

	rr := env.get("/certificates/request", cookie)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `hx-trigger="load"`) {
		t.Fatalf("request page status=%d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/certificates/request?month=12&year=2024", nil)
	req.Header.Set("HX-Request", "true")
	rr = env.do(req, cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("available partial status=%d", rr.Code)
	}
	if body := rr.Body.String(); strings.Contains(body, "<html") || !strings.Contains(body, "20 certificate(s) available") {
		t.Errorf("available partial body = %s", body)
	}

	rr = env.get("/certificates/request?month=13&year=2024", cookie)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("month=13 status=%d", rr.Code)
	}

	rr = env.post("/certificates/quote", url.Values{"quantity": {"3"}, "month": {"12"}, "year": {"2024"}}, cookie, true)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "3 certificate(s)") {
		t.Fatalf("quote status=%d body=%s", rr.Code, rr.Body.String())
	}
	for _, qty := range []string{"0", "abc", ""} {
		rr = env.post("/certificates/quote", url.Values{"quantity": {qty}}, cookie, true)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("quote quantity=%q status=%d", qty, rr.Code)
		}
	}

	rr = env.post("/certificates/buy", url.Values{"quantity": {"2"}, "month": {"12"}, "year": {"2024"}}, cookie, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("buy status=%d body=%s", rr.Code, rr.Body.String())
	}
	trigger := rr.Header().Get("HX-Trigger")
	for _, part := range []string{`"certificate:bought"`, `"quantity":2`, `"dashboard:refresh"`} {
		if !strings.Contains(trigger, part) {
			t.Errorf("HX-Trigger missing %s: %s", part, trigger)
		}
	}

	rr = env.post("/certificates/buy", url.Values{"quantity": {"100"}, "month": {"12"}, "year": {"2024"}}, cookie, true)
	if rr.Code != http.StatusConflict {
		t.Errorf("oversized buy status=%d", rr.Code)
	}

	rr = env.get("/certificates", cookie)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "12-2024") {
		t.Errorf("owned page status=%d", rr.Code)
	}
}

func TestCreateCertificate(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)
	consumer := env.login(t, memory.DemoConsumerEmail)
	business := env.login(t, memory.DemoBusinessEmail)
	year := time.Now().Year()

	rr := env.get("/certificates/create", consumer)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Only business accounts") {
		t.Errorf("consumer create page status=%d", rr.Code)
	}

	form := url.Values{"month": {"6"}, "year": {strconv.Itoa(year)}, "regulatoryAuthorityID": {"GSE"}}
	rr = env.post("/certificates/create", form, consumer, true)
	if rr.Code != http.StatusForbidden {
		t.Errorf("consumer create status=%d", rr.Code)
	}

	rr = env.post("/certificates/create", form, business, true)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Header().Get("HX-Trigger"), "certificate:created") {
		t.Errorf("business create status=%d trigger=%q", rr.Code, rr.Header().Get("HX-Trigger"))
	}

	rr = env.post("/certificates/create", form, business, false)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/certificates" {
		t.Errorf("non-htmx create status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}

	future := url.Values{"month": {"1"}, "year": {strconv.Itoa(year + 2)}, "regulatoryAuthorityID": {"GSE"}}
	rr = env.post("/certificates/create", future, business, true)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("future create status=%d", rr.Code)
	}

	missing := url.Values{"month": {"1"}, "year": {strconv.Itoa(year)}}
	rr = env.post("/certificates/create", missing, business, true)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing authority status=%d", rr.Code)
	}
}

func TestSignupAndLogout(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)

	rr := env.get("/signup", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("signup page status=%d", rr.Code)
	}

	form := url.Values{
		"email":      {"new@example.com"},
		"password":   {"secret"},
		"name":       {"New Home"},
		"address":    {"Via Roma 1"},
		"city":       {"Torino"},
		"postalCode": {"10100"},
		"userType":   {"1"},
	}
	rr = env.post("/signup", form, nil, false)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login?created=1" {
		t.Fatalf("signup status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}

	rr = env.post("/signup", form, nil, false)
	if rr.Code != http.StatusConflict {
		t.Errorf("duplicate signup status=%d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "secret") {
		t.Error("signup page echoed the password")
	}

	form.Set("userType", "7")
	form.Set("email", "other@example.com")
	rr = env.post("/signup", form, nil, false)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad user type status=%d", rr.Code)
	}

	cookie := env.loginWith(t, "new@example.com", form.Get("password"))
	rr = env.post("/logout", url.Values{}, cookie, false)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login" {
		t.Fatalf("logout status=%d", rr.Code)
	}
	rr = env.get("/", cookie)
	if rr.Code != http.StatusSeeOther {
		t.Errorf("dashboard after logout status=%d", rr.Code)
	}
}

func TestMetricsAndRateLimit(t *testing.T) {
	env := newTestEnv(t, Options{RateLimitPerMinute: 2}, nil)

	form := url.Values{"email": {memory.DemoConsumerEmail}, "password": {"nope"}}
	for i := 0; i < 2; i++ {
		if rr := env.post("/login", form, nil, false); rr.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d status=%d", i+1, rr.Code)
		}
	}
	rr := env.post("/login", form, nil, false)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("third attempt status=%d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}

	// GETs are not limited.
	if rr := env.get("/login", nil); rr.Code != http.StatusOK {
		t.Errorf("GET after limit status=%d", rr.Code)
	}

	rr = env.get("/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rr.Code)
	}
	for _, want := range []string{"http_requests_total", "rate_limit_hits_total 1", "cache_hit_ratio", "uptime_seconds"} {
		if !strings.Contains(rr.Body.String(), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestUserError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"credentials", fmt.Errorf("login: %w", api.ErrInvalidCredentials), http.StatusUnauthorized},
		{"expired token", &api.StatusError{Op: "owned", StatusCode: http.StatusUnauthorized}, http.StatusUnauthorized},
		{"session", session.ErrSessionNotFound, http.StatusUnauthorized},
		{"not business", services.ErrNotBusiness, http.StatusForbidden},
		{"quantity", core.ErrInvalidQuantity, http.StatusUnprocessableEntity},
		{"future", core.ErrCertificateFuture, http.StatusUnprocessableEntity},
		{"record", &aggregate.RecordError{Index: 2, Err: core.ErrInvalidMonth}, http.StatusBadGateway},
		{"wrapped record year", fmt.Errorf("load dashboard: %w", &aggregate.RecordError{Index: 0, Field: "year", Err: core.ErrInvalidYear}), http.StatusBadGateway},
		{"form month", fmt.Errorf("lookup: %w", core.ErrInvalidMonth), http.StatusUnprocessableEntity},
		{"form year", core.ErrInvalidYear, http.StatusUnprocessableEntity},
		{"conflict", &api.StatusError{Op: "buy", StatusCode: http.StatusConflict, Body: "sold out"}, http.StatusConflict},
		{"upstream 500", &api.StatusError{Op: "buy", StatusCode: http.StatusInternalServerError}, http.StatusBadGateway},
		{"malformed", errMalformedBody, http.StatusBadRequest},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, msg := userError(tt.err)
			if code != tt.code {
				t.Errorf("status = %d, want %d", code, tt.code)
			}
			if msg == "" {
				t.Error("empty message")
			}
			var recErr *aggregate.RecordError
			if errors.As(tt.err, &recErr) && !strings.Contains(msg, "malformed") {
				t.Errorf("record error message = %q, want the malformed data notice", msg)
			}
		})
	}
}
