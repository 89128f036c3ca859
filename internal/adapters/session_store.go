package adapters

import (
	"context"
	"errors"
	"time"

	"certdash/internal/core"
	"certdash/internal/session"
	"certdash/internal/storage"
)

// SQLiteSessionStore adapts SQLiteRepository to session.Store.
type SQLiteSessionStore struct {
	repo *storage.SQLiteRepository
	now  func() time.Time
}

var _ session.Store = (*SQLiteSessionStore)(nil)

func NewSQLiteSessionStore(repo *storage.SQLiteRepository) *SQLiteSessionStore {
	return &SQLiteSessionStore{repo: repo, now: time.Now}
}

// Save implements session.Store
func (a *SQLiteSessionStore) Save(ctx context.Context, s *session.Session) error {
	return a.repo.SaveSession(ctx, storage.Session{
		ID:        s.ID,
		Token:     s.Token,
		UserID:    s.Claims.UserID,
		Email:     s.Claims.Email,
		UserType:  int64(s.Claims.UserType),
		CreatedAt: s.CreatedAt.Unix(),
		ExpiresAt: s.ExpiresAt.Unix(),
	})
}

// Load implements session.Store
func (a *SQLiteSessionStore) Load(ctx context.Context, id string) (*session.Session, error) {
	row, err := a.repo.GetSession(ctx, id, a.now())
	if errors.Is(err, storage.ErrNotFound) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session.Session{
		ID:    row.ID,
		Token: row.Token,
		Claims: session.Claims{
			UserID:   row.UserID,
			Email:    row.Email,
			UserType: core.UserType(row.UserType),
		},
		CreatedAt: time.Unix(row.CreatedAt, 0),
		ExpiresAt: time.Unix(row.ExpiresAt, 0),
	}, nil
}

// Delete implements session.Store
func (a *SQLiteSessionStore) Delete(ctx context.Context, id string) error {
	return a.repo.DeleteSession(ctx, id)
}

// PurgeExpired removes expired sessions and returns how many were dropped.
func (a *SQLiteSessionStore) PurgeExpired(ctx context.Context) (int64, error) {
	return a.repo.DeleteExpiredSessions(ctx, a.now())
}
