package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/course-feedback-api/internal/models"
	"github.com/noah-isme/course-feedback-api/internal/repository"
	appErrors "github.com/noah-isme/course-feedback-api/pkg/errors"
)

const maxMessageLength = 5000

type messageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	ListByCourse(ctx context.Context, courseID int64) ([]models.MessageView, error)
	ListByStudent(ctx context.Context, studentID int64) ([]models.MessageView, error)
	Reply(ctx context.Context, id int64, reply string) (*models.Message, error)
}

type courseLookup interface {
	FindByID(ctx context.Context, id int64) (*models.Course, error)
}

type boardInvalidator interface {
	Forget(ctx context.Context, courseIDs ...int64) error
}

// MessageService implements the message and reply workflow.
type MessageService struct {
	messages messageRepository
	courses  courseLookup
	cache    boardInvalidator
	events   EventEmitter
	logger   *zap.Logger
}

// NewMessageService constructs the service. cache and events may be nil.
func NewMessageService(messages messageRepository, courses courseLookup, cache boardInvalidator, events EventEmitter, logger *zap.Logger) *MessageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{messages: messages, courses: courses, cache: cache, events: events, logger: logger}
}

// SendMessage stores student feedback. Anonymous messages keep no student id.
func (s *MessageService) SendMessage(ctx context.Context, student *models.Principal, req models.SendMessageRequest) (*models.Message, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "content is required")
	}
	if len(content) > maxMessageLength {
		return nil, appErrors.Clone(appErrors.ErrValidation, "content is too long")
	}
	if req.CourseID <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course_id is required")
	}
	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "course does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	msg := &models.Message{CourseID: req.CourseID, Content: content, IsAnonymous: req.IsAnonymous}
	if !req.IsAnonymous && student != nil {
		id := student.UserID
		msg.StudentID = &id
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		if errors.Is(err, repository.ErrMissingReference) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "course does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to send message")
	}

	s.afterWrite(ctx, models.Event{Type: models.EventMessageSent, CourseID: msg.CourseID, MessageID: msg.ID})
	return msg, nil
}

// GetMessagesByCourse lists course messages newest first. Unknown courses yield an empty list.
func (s *MessageService) GetMessagesByCourse(ctx context.Context, courseID int64) ([]models.MessageView, error) {
	messages, err := s.messages.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list messages")
	}
	return messages, nil
}

// ListForStudent returns the student's own named messages.
func (s *MessageService) ListForStudent(ctx context.Context, student *models.Principal) ([]models.MessageView, error) {
	messages, err := s.messages.ListByStudent(ctx, student.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list messages")
	}
	return messages, nil
}

// ReplyToMessage overwrites the reply of a message. Callers check course ownership first.
func (s *MessageService) ReplyToMessage(ctx context.Context, messageID int64, reply string) (*models.Message, error) {
	reply = strings.TrimSpace(reply)
	if messageID <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "messageId is required")
	}
	if reply == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "replyContent is required")
	}
	if len(reply) > maxMessageLength {
		return nil, appErrors.Clone(appErrors.ErrValidation, "replyContent is too long")
	}

	msg, err := s.messages.Reply(ctx, messageID, reply)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "message not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reply to message")
	}

	s.afterWrite(ctx, models.Event{Type: models.EventMessageReplied, CourseID: msg.CourseID, MessageID: msg.ID})
	return msg, nil
}

func (s *MessageService) afterWrite(ctx context.Context, event models.Event) {
	if s.cache != nil {
		if err := s.cache.Forget(ctx, event.CourseID); err != nil {
			s.logger.Warn("failed to invalidate board cache", zap.Int64("course_id", event.CourseID), zap.Error(err))
		}
	}
	if s.events != nil {
		s.events.Emit(ctx, event)
	}
}
