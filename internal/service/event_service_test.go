package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-feedback-api/internal/models"
	"github.com/noah-isme/course-feedback-api/pkg/jobs"
	"github.com/noah-isme/course-feedback-api/pkg/middleware/requestid"
)

func TestEventServiceEmitFillsIdentity(t *testing.T) {
	queue := &fakeQueue{}
	svc := NewEventService(queue, nil)

	ctx := requestid.WithValue(context.Background(), "req-42")
	svc.Emit(ctx, models.Event{Type: models.EventMessageSent, CourseID: 3, MessageID: 9})

	require.Len(t, queue.jobs, 1)
	job := queue.jobs[0]
	event, ok := job.Payload.(models.Event)
	require.True(t, ok)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, event.ID, job.ID)
	assert.Equal(t, models.EventMessageSent, job.Type)
	assert.False(t, event.OccurredAt.IsZero())
	assert.Equal(t, "req-42", event.RequestID)
}

func TestEventServiceEmitNeverFails(t *testing.T) {
	svc := NewEventService(&fakeQueue{err: jobs.ErrQueueFull}, nil)
	svc.Emit(context.Background(), models.Event{Type: models.EventCommentAdded})

	var disabled *EventService
	disabled.Emit(context.Background(), models.Event{Type: models.EventCommentAdded})

	NewEventService(nil, nil).Emit(context.Background(), models.Event{Type: models.EventCommentAdded})
}

func TestEventPublishHandler(t *testing.T) {
	publisher := &fakePublisher{}
	metrics := NewMetricsService()
	handler := NewEventPublishHandler(publisher, metrics)

	event := models.Event{ID: "evt-1", Type: models.EventMessageReplied, CourseID: 1, MessageID: 2}
	require.NoError(t, handler(context.Background(), jobs.Job{ID: event.ID, Payload: event}))
	require.Equal(t, []string{models.EventMessageReplied}, publisher.keys)

	var decoded models.Event
	require.NoError(t, json.Unmarshal(publisher.body[0], &decoded))
	assert.Equal(t, int64(2), decoded.MessageID)

	publisher.err = errors.New("broker down")
	assert.Error(t, handler(context.Background(), jobs.Job{Payload: event}))
	assert.Error(t, handler(context.Background(), jobs.Job{Payload: "not an event"}))

	snapshot := metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.EventsPublished)
	assert.Equal(t, uint64(1), snapshot.EventsFailed)
}
