package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"certdash/internal/core"
	"certdash/internal/log"
	"certdash/internal/session"
)

// EventPublisher delivers activity events to interested consumers.
type EventPublisher interface {
	PublishActivity(ctx context.Context, e core.ActivityEvent) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishActivity(context.Context, core.ActivityEvent) error { return nil }

// ActivityRecorder turns user actions into events. Publishing is best
// effort: failures are logged and never fail the user's request.
type ActivityRecorder struct {
	publisher EventPublisher
	logger    *log.Logger
	now       func() time.Time
}

func NewActivityRecorder(publisher EventPublisher, logger *log.Logger) *ActivityRecorder {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &ActivityRecorder{
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentAMQP),
		now:       time.Now,
	}
}

// Record publishes an event of kind for s. fill may add kind-specific fields.
func (r *ActivityRecorder) Record(ctx context.Context, kind core.ActivityKind, s *session.Session, fill func(*core.ActivityEvent)) {
	e := core.ActivityEvent{
		ID:         uuid.NewString(),
		Kind:       kind,
		OccurredAt: r.now().UTC(),
	}
	if s != nil {
		e.UserID = s.Claims.UserID
		e.Email = s.Claims.Email
	}
	if fill != nil {
		fill(&e)
	}

	if err := r.publisher.PublishActivity(ctx, e); err != nil {
		r.logger.ErrorContext(ctx, "Failed to publish activity event",
			log.FieldActivity, string(kind),
			log.FieldError, err)
		return
	}
	r.logger.DebugContext(ctx, "Activity event published", log.FieldActivity, string(kind), "event_id", e.ID)
}
