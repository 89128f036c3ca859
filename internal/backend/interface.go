package backend

import (
	"context"
	"errors"

	"certdash/internal/api"
	"certdash/internal/services"
	"certdash/internal/session"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// CheckFunc reports whether a dependency is ready to serve.
type CheckFunc func(ctx context.Context) error

// Components are the wired dependencies the server and commands share.
type Components struct {
	API       api.Backend
	Sessions  session.Store
	Publisher services.EventPublisher
	// Purger is set when the session store needs periodic expiry.
	Purger services.Purger
	Checks map[string]CheckFunc

	cleanups []CleanupFunc
}

func (c *Components) addCleanup(fn CleanupFunc) {
	c.cleanups = append(c.cleanups, fn)
}

func (c *Components) addCheck(name string, fn CheckFunc) {
	if c.Checks == nil {
		c.Checks = make(map[string]CheckFunc)
	}
	c.Checks[name] = fn
}

// Close releases resources in reverse creation order.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.cleanups) - 1; i >= 0; i-- {
		if err := c.cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.cleanups = nil
	return errors.Join(errs...)
}

// Factory creates components based on configuration
type Factory interface {
	Build(ctx context.Context, config Config) (*Components, error)
}

// APIType selects the remote trading API implementation.
type APIType string

const (
	HTTPAPI   APIType = "http"
	MemoryAPI APIType = "memory"
)

// String implements fmt.Stringer
func (t APIType) String() string {
	return string(t)
}

func (t APIType) IsValid() bool {
	switch t {
	case HTTPAPI, MemoryAPI:
		return true
	default:
		return false
	}
}

// StoreType selects where sessions are persisted.
type StoreType string

const (
	SQLiteStore StoreType = "sqlite"
	RedisStore  StoreType = "redis"
	MemoryStore StoreType = "memory"
)

// String implements fmt.Stringer
func (t StoreType) String() string {
	return string(t)
}

func (t StoreType) IsValid() bool {
	switch t {
	case SQLiteStore, RedisStore, MemoryStore:
		return true
	default:
		return false
	}
}
