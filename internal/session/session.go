// Package session keeps the API token of a signed-in browser on the server.
package session

import (
	"context"
	"errors"
	"time"

	"certdash/internal/core"
)

// ErrSessionNotFound is returned by stores for unknown or expired ids.
var ErrSessionNotFound = errors.New("session not found")

// Claims is what certdash knows about the token holder.
type Claims struct {
	UserID   string        `json:"userId,omitempty"`
	Email    string        `json:"email,omitempty"`
	Name     string        `json:"name,omitempty"`
	UserType core.UserType `json:"userType"`
}

// Session binds a browser cookie to the bearer token the API issued.
type Session struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	Claims    Claims    `json:"claims"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IsAuthenticated reports whether the session carries a token.
func (s *Session) IsAuthenticated() bool {
	return s != nil && s.Token != ""
}

// IsBusiness reports whether the holder may create certificates.
func (s *Session) IsBusiness() bool {
	return s.IsAuthenticated() && s.Claims.UserType == core.UserBusiness
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Store persists sessions by id.
type Store interface {
	Save(ctx context.Context, s *Session) error
	Load(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}
