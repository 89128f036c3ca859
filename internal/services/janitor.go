package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"certdash/internal/log"
)

// Purger removes expired rows and reports how many were dropped.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// JanitorConfig holds configuration for the session janitor
type JanitorConfig struct {
	// Interval is how often expired sessions are purged (default: 10m)
	Interval time.Duration
}

// DefaultJanitorConfig returns sensible defaults
func DefaultJanitorConfig() JanitorConfig {
	return JanitorConfig{Interval: 10 * time.Minute}
}

// SessionJanitor periodically purges expired sessions from persistent stores.
type SessionJanitor struct {
	purger Purger
	config JanitorConfig
	logger *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSessionJanitor(purger Purger, config JanitorConfig, logger *log.Logger) *SessionJanitor {
	if config.Interval <= 0 {
		config.Interval = DefaultJanitorConfig().Interval
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &SessionJanitor{
		purger: purger,
		config: config,
		logger: logger.WithComponent(log.ComponentSession),
	}
}

// Start begins the purge loop. Returns an error if already running.
func (j *SessionJanitor) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return fmt.Errorf("session janitor is already running")
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	go j.runLoop(ctx)

	j.logger.InfoContext(ctx, "Session janitor started", "interval", j.config.Interval)
	return nil
}

// Stop signals the loop and waits for it to finish or ctx to expire.
func (j *SessionJanitor) Stop(ctx context.Context) error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = false
	stopCh, doneCh := j.stopCh, j.doneCh
	j.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		j.logger.InfoContext(ctx, "Session janitor stopped")
		return nil
	case <-ctx.Done():
		j.logger.WarnContext(ctx, "Session janitor stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the janitor loop is active
func (j *SessionJanitor) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *SessionJanitor) runLoop(ctx context.Context) {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	j.Purge(ctx)
	for {
		select {
		case <-j.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Purge(ctx)
		}
	}
}

// Purge runs one pass and returns the number of removed sessions.
func (j *SessionJanitor) Purge(ctx context.Context) int64 {
	n, err := j.purger.PurgeExpired(ctx)
	if err != nil {
		j.logger.ErrorContext(ctx, "Failed to purge expired sessions", log.FieldError, err)
		return 0
	}
	if n > 0 {
		j.logger.InfoContext(ctx, "Expired sessions purged", "count", n)
	}
	return n
}
