package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"certdash/internal/aggregate"
	"certdash/internal/api"
	"certdash/internal/core"
	"certdash/internal/services"
	"certdash/internal/session"
)

var (
	errTemplatesMissing = errors.New("templates not loaded")
	errMalformedBody    = errors.New("malformed request body")
)

// upstreamTimeout bounds every call a handler makes to the trading API.
const upstreamTimeout = 7 * time.Second

func upstream(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, upstreamTimeout)
}

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// formatAmount renders a price or energy figure with two decimals.
func formatAmount(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

func monthName(m int) string {
	if m < 1 || m > 12 {
		return strconv.Itoa(m)
	}
	return time.Month(m).String()
}

// yearRange lists the years from first to last inclusive.
func yearRange(first, last int) []int {
	if last < first {
		return nil
	}
	years := make([]int, 0, last-first+1)
	for y := first; y <= last; y++ {
		years = append(years, y)
	}
	return years
}

// userError maps a service or API error to a status and a message safe to
// show in the page.
func userError(err error) (int, string) {
	var (
		recErr    *aggregate.RecordError
		statusErr *api.StatusError
	)
	switch {
	case errors.As(err, &recErr):
		return http.StatusBadGateway, "The trading platform returned malformed data"
	case errors.Is(err, errMalformedBody):
		return http.StatusBadRequest, "Invalid request format"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "The trading platform took too long to answer"
	case errors.Is(err, api.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Wrong email or password"
	case api.IsUnauthorized(err), errors.Is(err, session.ErrSessionNotFound):
		return http.StatusUnauthorized, "Your session has expired, please sign in again"
	case errors.Is(err, services.ErrNotBusiness):
		return http.StatusForbidden, "Only business accounts can create certificates"
	case errors.Is(err, core.ErrInvalidQuantity):
		return http.StatusUnprocessableEntity, "Quantity must be at least 1"
	case errors.Is(err, core.ErrInvalidMonth):
		return http.StatusUnprocessableEntity, "Choose a month between 1 and 12"
	case errors.Is(err, core.ErrInvalidYear):
		return http.StatusUnprocessableEntity, "Choose a year from " + strconv.Itoa(core.MinCertificateYear)
	case errors.Is(err, core.ErrCertificateFuture):
		return http.StatusUnprocessableEntity, "Certificates can be created at most one year ahead"
	case errors.Is(err, core.ErrEmptyAuthority):
		return http.StatusUnprocessableEntity, "Regulatory authority is required"
	case errors.Is(err, core.ErrInvalidEmail):
		return http.StatusUnprocessableEntity, "Enter a valid email address"
	case errors.Is(err, core.ErrEmptyPassword):
		return http.StatusUnprocessableEntity, "Password is required"
	case errors.Is(err, core.ErrEmptyName):
		return http.StatusUnprocessableEntity, "Name is required"
	case errors.Is(err, core.ErrMissingAddress):
		return http.StatusUnprocessableEntity, "Address, city and postal code are required"
	case errors.Is(err, core.ErrInvalidUserType):
		return http.StatusUnprocessableEntity, "Choose consumer or business"
	case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict:
		if statusErr.Body != "" {
			return http.StatusConflict, "Request refused: " + statusErr.Body
		}
		return http.StatusConflict, "The request conflicts with the platform state"
	case api.StatusCode(err) != 0:
		return http.StatusBadGateway, "The trading platform rejected the request"
	default:
		return http.StatusInternalServerError, "Something went wrong"
	}
}

// isHTMX reports whether the request came from htmx.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
