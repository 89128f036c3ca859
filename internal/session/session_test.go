package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"certdash/internal/api"
	"certdash/internal/api/memory"
	"certdash/internal/core"
)

func TestParseClaims(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	signed := func(claims jwt.MapClaims) string {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
		if err != nil {
			t.Fatal(err)
		}
		return tok
	}

	tests := []struct {
		name     string
		token    string
		wantType core.UserType
		wantID   string
		wantExp  bool
	}{
		{
			name:     "business jwt",
			token:    signed(jwt.MapClaims{"sub": "u1", "email": "b@x.y", "userType": 2, "exp": exp.Unix()}),
			wantType: core.UserBusiness,
			wantID:   "u1",
			wantExp:  true,
		},
		{
			name:     "string user type",
			token:    signed(jwt.MapClaims{"sub": "u2", "userType": "business"}),
			wantType: core.UserBusiness,
			wantID:   "u2",
		},
		{
			name:     "unknown user type falls back to consumer",
			token:    signed(jwt.MapClaims{"sub": "u3", "userType": 7}),
			wantType: core.UserConsumer,
			wantID:   "u3",
		},
		{
			name:     "opaque token",
			token:    "not-a-jwt",
			wantType: core.UserConsumer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, gotExp := ParseClaims(tt.token)
			if c.UserType != tt.wantType || c.UserID != tt.wantID {
				t.Errorf("ParseClaims() = %+v", c)
			}
			if tt.wantExp != !gotExp.IsZero() {
				t.Errorf("expiry = %v, wantExp %v", gotExp, tt.wantExp)
			}
			if tt.wantExp && !gotExp.Equal(exp) {
				t.Errorf("expiry = %v, want %v", gotExp, exp)
			}
		})
	}
}

func newManager(t *testing.T, store Store) *Manager {
	t.Helper()
	return NewManager(store, memory.NewSeeded(), time.Hour, nil)
}

func TestManager_LoginInitLogout(t *testing.T) {
	store := NewMemoryStore()
	m := newManager(t, store)
	ctx := context.Background()

	s, err := m.Login(ctx, core.Credentials{Email: memory.DemoBusinessEmail, Password: memory.DemoPassword})
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if !s.IsAuthenticated() || !s.IsBusiness() {
		t.Fatalf("unexpected session %+v", s)
	}
	if got := s.ExpiresAt.Sub(s.CreatedAt); got != time.Hour {
		t.Errorf("session lifetime = %v, want capped at 1h", got)
	}

	restored, err := m.Init(ctx, s.ID)
	if err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	if restored.Token != s.Token || restored.Claims.Email != memory.DemoBusinessEmail {
		t.Errorf("restored session differs: %+v", restored)
	}

	if err := m.Logout(ctx, restored); err != nil {
		t.Fatalf("Logout() error: %v", err)
	}
	if _, err := m.Init(ctx, s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Init() after logout = %v, want ErrSessionNotFound", err)
	}
	if err := m.Logout(ctx, nil); err != nil {
		t.Errorf("Logout(nil) = %v", err)
	}
}

func TestManager_LoginErrors(t *testing.T) {
	m := newManager(t, NewMemoryStore())
	ctx := context.Background()

	if _, err := m.Login(ctx, core.Credentials{Email: "bad", Password: "x"}); !errors.Is(err, core.ErrInvalidEmail) {
		t.Errorf("Login(bad email) = %v", err)
	}
	_, err := m.Login(ctx, core.Credentials{Email: memory.DemoConsumerEmail, Password: "wrong"})
	if !errors.Is(err, api.ErrInvalidCredentials) {
		t.Errorf("Login(wrong password) = %v", err)
	}
}

func TestManager_InitExpired(t *testing.T) {
	store := NewMemoryStore()
	m := newManager(t, store)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	store.Save(ctx, &Session{ID: "old", Token: "t", CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)})
	store.now = m.now
	if _, err := m.Init(ctx, "old"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Init(expired) = %v", err)
	}
	if _, err := m.Init(ctx, ""); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Init(\"\") = %v", err)
	}
}

type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisStore(t *testing.T) {
	fake := newFakeRedis()
	store := NewRedisStore(fake)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	s := &Session{
		ID:        "abc",
		Token:     "tok",
		Claims:    Claims{Email: "a@b.c", UserType: core.UserBusiness},
		CreatedAt: now,
		ExpiresAt: now.Add(30 * time.Minute),
	}
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if ttl := fake.ttls["certdash:session:abc"]; ttl != 30*time.Minute {
		t.Errorf("ttl = %v, want 30m", ttl)
	}

	got, err := store.Load(ctx, "abc")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.Token != "tok" || !got.IsBusiness() || !got.ExpiresAt.Equal(s.ExpiresAt) {
		t.Errorf("Load() = %+v", got)
	}

	if err := store.Delete(ctx, "abc"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := store.Load(ctx, "abc"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Load() after delete = %v", err)
	}

	s.ExpiresAt = now.Add(-time.Second)
	if err := store.Save(ctx, s); err == nil {
		t.Error("Save() of expired session should fail")
	}
}

func TestMiddleware(t *testing.T) {
	store := NewMemoryStore()
	m := newManager(t, store)
	ctx := context.Background()
	s, err := m.Login(ctx, core.Credentials{Email: memory.DemoConsumerEmail, Password: memory.DemoPassword})
	if err != nil {
		t.Fatal(err)
	}

	var seen *Session
	h := m.Middleware(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	t.Run("valid cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: s.ID})
		h.ServeHTTP(httptest.NewRecorder(), req)
		if seen == nil || seen.ID != s.ID {
			t.Fatalf("session not restored: %+v", seen)
		}
	})

	t.Run("stale cookie is cleared", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: "gone"})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if seen != nil {
			t.Fatalf("expected anonymous request, got %+v", seen)
		}
		cookies := rec.Result().Cookies()
		if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
			t.Fatalf("expected clearing cookie, got %+v", cookies)
		}
	})
}

func TestRequireAuth(t *testing.T) {
	protected := RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	tests := []struct {
		name       string
		session    *Session
		htmx       bool
		wantStatus int
	}{
		{name: "anonymous page", wantStatus: http.StatusSeeOther},
		{name: "anonymous htmx", htmx: true, wantStatus: http.StatusUnauthorized},
		{name: "signed in", session: &Session{ID: "x", Token: "t"}, wantStatus: http.StatusTeapot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/certificates", nil)
			if tt.htmx {
				req.Header.Set("HX-Request", "true")
			}
			if tt.session != nil {
				req = req.WithContext(WithSession(req.Context(), tt.session))
			}
			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.htmx && rec.Header().Get("HX-Redirect") != "/login" {
				t.Errorf("missing HX-Redirect")
			}
		})
	}
}
