package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"certdash/internal/core"
)

func newTestRepo(t *testing.T) (*SQLiteRepository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sub", "certdash.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo, path
}

func TestMigrationsApplied(t *testing.T) {
	_, path := newTestRepo(t)

	version, dirty, err := SchemaVersion(path)
	if err != nil {
		t.Fatalf("SchemaVersion() error: %v", err)
	}
	if version != 3 || dirty {
		t.Errorf("SchemaVersion() = %d, dirty=%v; want 3, false", version, dirty)
	}
	if err := RunMigrations(path); err != nil {
		t.Errorf("re-running migrations should be a no-op, got %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC)

	s := Session{
		ID:        "sess-1",
		Token:     "tok",
		UserID:    "u1",
		Email:     "a@b.c",
		UserType:  2,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	}
	if err := repo.SaveSession(ctx, s); err != nil {
		t.Fatalf("SaveSession() error: %v", err)
	}

	got, err := repo.GetSession(ctx, "sess-1", now)
	if err != nil {
		t.Fatalf("GetSession() error: %v", err)
	}
	if got != s {
		t.Errorf("GetSession() = %+v, want %+v", got, s)
	}

	s.Token = "tok-2"
	if err := repo.SaveSession(ctx, s); err != nil {
		t.Fatalf("SaveSession() update error: %v", err)
	}
	got, _ = repo.GetSession(ctx, "sess-1", now)
	if got.Token != "tok-2" {
		t.Errorf("token not updated: %q", got.Token)
	}

	if _, err := repo.GetSession(ctx, "sess-1", now.Add(2*time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired GetSession() error = %v, want ErrNotFound", err)
	}

	if err := repo.DeleteSession(ctx, "sess-1"); err != nil {
		t.Fatalf("DeleteSession() error: %v", err)
	}
	if _, err := repo.GetSession(ctx, "sess-1", now); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSession() after delete = %v, want ErrNotFound", err)
	}
}

func TestDeleteExpiredSessions(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC)

	for i, exp := range []time.Duration{-time.Hour, -time.Minute, time.Hour} {
		err := repo.SaveSession(ctx, Session{
			ID:        string(rune('a' + i)),
			Token:     "t",
			CreatedAt: now.Add(-2 * time.Hour).Unix(),
			ExpiresAt: now.Add(exp).Unix(),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	n, err := repo.DeleteExpiredSessions(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpiredSessions() error: %v", err)
	}
	if n != 2 {
		t.Errorf("DeleteExpiredSessions() = %d, want 2", n)
	}
	if _, err := repo.GetSession(ctx, "c", now); err != nil {
		t.Errorf("live session removed: %v", err)
	}
}

func TestActivityLog(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC)

	events := []core.ActivityEvent{
		{ID: "e1", Kind: core.ActivityLogin, Email: "a@b.c", OccurredAt: base},
		{ID: "e2", Kind: core.ActivityPurchase, Quantity: 3, Price: 37.5, Month: 12, Year: 2024, OccurredAt: base.Add(time.Minute)},
	}
	for _, e := range events {
		if err := repo.AppendActivity(ctx, e); err != nil {
			t.Fatalf("AppendActivity() error: %v", err)
		}
	}
	if err := repo.AppendActivity(ctx, events[0]); err != nil {
		t.Fatalf("replayed AppendActivity() error: %v", err)
	}

	got, err := repo.RecentActivity(ctx, 10)
	if err != nil {
		t.Fatalf("RecentActivity() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("RecentActivity() returned %d events, want 2", len(got))
	}
	if got[0].ID != "e2" || got[0].Price != 37.5 || got[0].Kind != core.ActivityPurchase {
		t.Errorf("newest event = %+v", got[0])
	}
	if !got[1].OccurredAt.Equal(base) {
		t.Errorf("OccurredAt = %v, want %v", got[1].OccurredAt, base)
	}
	if err := repo.Ping(ctx); err != nil {
		t.Errorf("Ping() error: %v", err)
	}
}

func TestActivityExport(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"e1", "e2", "e3"} {
		e := core.ActivityEvent{ID: id, Kind: core.ActivityLogin, OccurredAt: base.Add(time.Duration(i) * time.Minute)}
		if err := repo.AppendActivity(ctx, e); err != nil {
			t.Fatalf("AppendActivity() error: %v", err)
		}
	}

	if err := repo.MarkExported(ctx, "e1", base.Add(time.Hour)); err != nil {
		t.Fatalf("MarkExported() error: %v", err)
	}

	exported, err := repo.ActivityExported(ctx, "e1")
	if err != nil || !exported {
		t.Errorf("ActivityExported(e1) = %v, %v; want true", exported, err)
	}
	exported, err = repo.ActivityExported(ctx, "e2")
	if err != nil || exported {
		t.Errorf("ActivityExported(e2) = %v, %v; want false", exported, err)
	}
	if _, err := repo.ActivityExported(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ActivityExported(missing) error = %v, want ErrNotFound", err)
	}

	pending, err := repo.PendingExport(ctx, 10)
	if err != nil {
		t.Fatalf("PendingExport() error: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "e2" || pending[1].ID != "e3" {
		t.Errorf("PendingExport() = %+v, want e2, e3 oldest first", pending)
	}

	limited, err := repo.PendingExport(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Errorf("PendingExport(1) = %d events, %v", len(limited), err)
	}
}
