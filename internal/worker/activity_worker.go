package worker

import (
	"context"
	"fmt"
	"time"

	"certdash/internal/amqp"
	"certdash/internal/core"
	"certdash/internal/log"
	"certdash/internal/sheets"
)

// ActivityStore is the durable activity log the worker writes through.
type ActivityStore interface {
	AppendActivity(ctx context.Context, e core.ActivityEvent) error
	ActivityExported(ctx context.Context, id string) (bool, error)
	MarkExported(ctx context.Context, id string, at time.Time) error
	PendingExport(ctx context.Context, limit int) ([]core.ActivityEvent, error)
}

// ActivityWorker stores consumed activity events and mirrors them to a
// spreadsheet when one is configured.
type ActivityWorker struct {
	store     ActivityStore
	sheets    sheets.ActivityAppender
	batchSize int
	now       func() time.Time
	logger    *log.Logger
}

// NewActivityWorker creates a worker. appender may be nil, in which case
// events are only stored.
func NewActivityWorker(store ActivityStore, appender sheets.ActivityAppender, batchSize int, logger *log.Logger) *ActivityWorker {
	if batchSize < 1 {
		batchSize = 50
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &ActivityWorker{
		store:     store,
		sheets:    appender,
		batchSize: batchSize,
		now:       time.Now,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// HandleActivityMessage processes a single activity message from AMQP.
// Redelivered messages are stored once and exported once.
func (w *ActivityWorker) HandleActivityMessage(ctx context.Context, msg *amqp.ActivityMessage) error {
	e := msg.Event
	w.logger.InfoContext(ctx, "Processing activity message",
		"event_id", e.ID,
		log.FieldActivity, string(e.Kind),
		"version", msg.Version)

	if err := w.store.AppendActivity(ctx, e); err != nil {
		return fmt.Errorf("store activity: %w", err)
	}
	if w.sheets == nil {
		return nil
	}

	exported, err := w.store.ActivityExported(ctx, e.ID)
	if err != nil {
		return fmt.Errorf("check export state: %w", err)
	}
	if exported {
		w.logger.DebugContext(ctx, "Activity already exported", "event_id", e.ID)
		return nil
	}
	return w.export(ctx, e)
}

// ProcessPending exports events whose export failed or whose message was
// lost. It is a backup for the message path and safe to run periodically.
func (w *ActivityWorker) ProcessPending(ctx context.Context) (exported, failed int, err error) {
	if w.sheets == nil {
		return 0, 0, nil
	}
	pending, err := w.store.PendingExport(ctx, w.batchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending activity: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	w.logger.InfoContext(ctx, "Processing pending activity", "count", len(pending))
	for _, e := range pending {
		if ctx.Err() != nil {
			return exported, failed, ctx.Err()
		}
		if err := w.export(ctx, e); err != nil {
			w.logger.ErrorContext(ctx, "Failed to export activity", "event_id", e.ID, log.FieldError, err)
			failed++
			continue
		}
		exported++
	}

	w.logger.InfoContext(ctx, "Pending activity processed",
		"total", len(pending),
		"exported", exported,
		"errors", failed)
	return exported, failed, nil
}

func (w *ActivityWorker) export(ctx context.Context, e core.ActivityEvent) error {
	ref, err := w.sheets.AppendActivity(ctx, e)
	if err != nil {
		return fmt.Errorf("append to sheets: %w", err)
	}

	// The row is written; a failed mark only means a later duplicate.
	if err := w.store.MarkExported(ctx, e.ID, w.now()); err != nil {
		w.logger.ErrorContext(ctx, "Failed to mark activity exported", "event_id", e.ID, log.FieldError, err)
	}

	w.logger.InfoContext(ctx, "Exported activity",
		"event_id", e.ID,
		"sheets_ref", ref,
		log.FieldActivity, string(e.Kind))
	return nil
}
