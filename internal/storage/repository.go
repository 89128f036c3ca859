package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"certdash/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) SaveSession(ctx context.Context, s Session) error {
	if err := r.queries.UpsertSession(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// GetSession returns ErrNotFound for unknown or expired sessions.
func (r *SQLiteRepository) GetSession(ctx context.Context, id string, now time.Time) (Session, error) {
	s, err := r.queries.GetSession(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	if s.ExpiresAt <= now.Unix() {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, id string) error {
	if err := r.queries.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions past their expiry and returns how many.
func (r *SQLiteRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	n, err := r.queries.DeleteExpiredSessions(ctx, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return n, nil
}

// AppendActivity stores an activity event. Replayed events are ignored.
func (r *SQLiteRepository) AppendActivity(ctx context.Context, e core.ActivityEvent) error {
	err := r.queries.InsertActivity(ctx, ActivityLog{
		ID:         e.ID,
		Kind:       string(e.Kind),
		UserID:     e.UserID,
		Email:      e.Email,
		Quantity:   int64(e.Quantity),
		Price:      e.Price,
		Month:      int64(e.Month),
		Year:       int64(e.Year),
		OccurredAt: e.OccurredAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

// RecentActivity returns up to limit events, newest first.
func (r *SQLiteRepository) RecentActivity(ctx context.Context, limit int) ([]core.ActivityEvent, error) {
	rows, err := r.queries.ListRecentActivity(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	return toActivityEvents(rows), nil
}

// PendingExport returns up to limit events not yet exported, oldest first.
func (r *SQLiteRepository) PendingExport(ctx context.Context, limit int) ([]core.ActivityEvent, error) {
	rows, err := r.queries.ListUnexportedActivity(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list unexported activity: %w", err)
	}
	return toActivityEvents(rows), nil
}

// ActivityExported reports whether the event has been exported.
func (r *SQLiteRepository) ActivityExported(ctx context.Context, id string) (bool, error) {
	exportedAt, err := r.queries.GetActivityExportedAt(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("get activity %s: %w", id, err)
	}
	return exportedAt.Valid, nil
}

func (r *SQLiteRepository) MarkExported(ctx context.Context, id string, at time.Time) error {
	if err := r.queries.MarkActivityExported(ctx, at.Unix(), id); err != nil {
		return fmt.Errorf("mark activity %s exported: %w", id, err)
	}
	return nil
}

func toActivityEvents(rows []ActivityLog) []core.ActivityEvent {
	out := make([]core.ActivityEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, core.ActivityEvent{
			ID:         row.ID,
			Kind:       core.ActivityKind(row.Kind),
			UserID:     row.UserID,
			Email:      row.Email,
			Quantity:   int(row.Quantity),
			Price:      row.Price,
			Month:      int(row.Month),
			Year:       int(row.Year),
			OccurredAt: time.Unix(row.OccurredAt, 0).UTC(),
		})
	}
	return out
}
