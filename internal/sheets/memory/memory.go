package memory

import (
	"context"
	"fmt"
	"sync"

	"certdash/internal/core"
	"certdash/internal/sheets"
)

// Store keeps written tables and appended activity in memory.
type Store struct {
	mu       sync.Mutex
	tables   map[string]sheets.Table
	activity []core.ActivityEvent
}

var (
	_ sheets.TableWriter      = (*Store)(nil)
	_ sheets.ActivityAppender = (*Store)(nil)
)

func New() *Store {
	return &Store{tables: make(map[string]sheets.Table)}
}

func tableKey(name string, year int) string {
	return fmt.Sprintf("%d %s", year, name)
}

// WriteTable replaces any table with the same name and year.
func (s *Store) WriteTable(_ context.Context, t sheets.Table) (string, error) {
	if len(t.Header) == 0 {
		return "", fmt.Errorf("table %q has no header", t.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := tableKey(t.Name, t.Year)
	s.tables[key] = t
	return "mem:" + key, nil
}

// AppendActivity stores e and returns a synthetic row reference.
func (s *Store) AppendActivity(_ context.Context, e core.ActivityEvent) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = append(s.activity, e)
	return fmt.Sprintf("mem:activity:%d", len(s.activity)), nil
}

// Table returns a written table.
func (s *Store) Table(name string, year int) (sheets.Table, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[tableKey(name, year)]
	return t, ok
}

// Tables returns the number of tables written.
func (s *Store) Tables() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tables)
}

// Activity returns a copy of the appended events.
func (s *Store) Activity() []core.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.ActivityEvent(nil), s.activity...)
}
