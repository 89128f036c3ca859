package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"certdash/internal/api"
	"certdash/internal/core"
	"certdash/internal/log"
)

// Manager creates, restores and ends sessions.
type Manager struct {
	store  Store
	auth   api.Authenticator
	ttl    time.Duration
	now    func() time.Time
	logger *log.Logger
}

func NewManager(store Store, auth api.Authenticator, ttl time.Duration, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Manager{
		store:  store,
		auth:   auth,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.WithComponent(log.ComponentSession),
	}
}

// TTL is the longest a session lives.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Init restores the persisted session for id. It returns ErrSessionNotFound
// when the id is empty, unknown or expired.
func (m *Manager) Init(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}
	s, err := m.store.Load(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			return nil, fmt.Errorf("load session: %w", err)
		}
		return nil, err
	}
	if s.Expired(m.now()) {
		if err := m.store.Delete(ctx, id); err != nil {
			m.logger.WarnContext(ctx, "Failed to delete expired session", log.FieldSessionID, id, log.FieldError, err)
		}
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Login exchanges credentials for a token and persists a new session.
func (m *Manager) Login(ctx context.Context, creds core.Credentials) (*Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	token, err := m.auth.Login(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	now := m.now()
	claims, exp := ParseClaims(token)
	if claims.Email == "" {
		claims.Email = creds.Email
	}
	expiresAt := now.Add(m.ttl)
	if !exp.IsZero() && exp.Before(expiresAt) {
		expiresAt = exp
	}

	s := &Session{
		ID:        uuid.NewString(),
		Token:     token,
		Claims:    claims,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
	if err := m.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	m.logger.InfoContext(ctx, "Session created",
		log.FieldSessionID, s.ID,
		log.FieldUserType, claims.UserType.String(),
		"expires_at", expiresAt)
	return s, nil
}

// Logout deletes the session from the store.
func (m *Manager) Logout(ctx context.Context, s *Session) error {
	if s == nil || s.ID == "" {
		return nil
	}
	if err := m.store.Delete(ctx, s.ID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	m.logger.InfoContext(ctx, "Session ended", log.FieldSessionID, s.ID)
	return nil
}
