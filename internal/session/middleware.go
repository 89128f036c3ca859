package session

import (
	"context"
	"errors"
	"net/http"

	"certdash/internal/log"
)

// CookieName is the browser cookie holding the session id.
const CookieName = "certdash_session"

type contextKey struct{}

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the request's session, or nil for anonymous requests.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(contextKey{}).(*Session)
	return s
}

// Middleware restores the session named by the cookie and stores it in the
// request context. Stale cookies are cleared.
func (m *Manager) Middleware(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(CookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			s, err := m.Init(r.Context(), cookie.Value)
			switch {
			case err == nil:
				ctx := WithSession(r.Context(), s)
				ctx = log.WithLogger(ctx, log.FromContext(ctx).With(log.FieldSessionID, s.ID))
				r = r.WithContext(ctx)
			case errors.Is(err, ErrSessionNotFound):
				ClearCookie(w, secure)
			default:
				m.logger.ErrorContext(r.Context(), "Failed to restore session", log.FieldError, err)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SetCookie writes the session cookie.
func SetCookie(w http.ResponseWriter, s *Session, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    s.ID,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// RequireAuth sends anonymous requests to the login page. HTMX requests get
// an HX-Redirect header so the whole page navigates.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()).IsAuthenticated() {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("HX-Request") == "true" {
			w.Header().Set("HX-Redirect", "/login")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	})
}
