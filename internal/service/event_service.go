package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/course-feedback-api/internal/models"
	"github.com/noah-isme/course-feedback-api/pkg/jobs"
	"github.com/noah-isme/course-feedback-api/pkg/messaging"
	"github.com/noah-isme/course-feedback-api/pkg/middleware/requestid"
)

type eventQueue interface {
	TryEnqueue(job jobs.Job) error
}

// EventEmitter is implemented by services that publish lifecycle events.
type EventEmitter interface {
	Emit(ctx context.Context, event models.Event)
}

// EventService hands lifecycle events to a background queue that publishes
// them to the broker. Emit never fails the caller.
type EventService struct {
	queue  eventQueue
	logger *zap.Logger
	now    func() time.Time
}

// NewEventService constructs the service. A nil queue disables publishing.
func NewEventService(queue eventQueue, logger *zap.Logger) *EventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{queue: queue, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Emit enqueues the event, logging and dropping it when the queue is unavailable.
func (s *EventService) Emit(ctx context.Context, event models.Event) {
	if s == nil || s.queue == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	if event.RequestID == "" {
		event.RequestID = requestid.FromContext(ctx)
	}
	if err := s.queue.TryEnqueue(jobs.Job{ID: event.ID, Type: event.Type, Payload: event}); err != nil {
		s.logger.Warn("dropping lifecycle event", zap.String("type", event.Type), zap.String("event_id", event.ID), zap.Error(err))
	}
}

// NewEventPublishHandler returns the queue handler that publishes events with
// the event type as routing key.
func NewEventPublishHandler(publisher messaging.Publisher, metrics *MetricsService) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		event, ok := job.Payload.(models.Event)
		if !ok {
			return fmt.Errorf("unexpected event payload %T", job.Payload)
		}
		body, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		err = publisher.Publish(ctx, event.Type, body)
		metrics.RecordEventPublished(event.Type, err)
		return err
	}
}
