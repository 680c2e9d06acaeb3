package service

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/course-feedback-api/internal/models"
	appErrors "github.com/noah-isme/course-feedback-api/pkg/errors"
)

const maxCommentLength = 2000

type guestAccessStore interface {
	ReserveAttempt(ctx context.Context, courseID int64, clientIP string, window time.Duration) (int, error)
	ResetPinAttempts(ctx context.Context, courseID int64, clientIP string) error
	Grant(ctx context.Context, sessionID string, courseID int64, ttl time.Duration) error
	HasGrant(ctx context.Context, sessionID string, courseID int64) (bool, error)
	HasAnyGrant(ctx context.Context, sessionID string) (bool, error)
}

type boardMessageReader interface {
	FindByID(ctx context.Context, id int64) (*models.Message, error)
	ListByCourse(ctx context.Context, courseID int64) ([]models.MessageView, error)
}

type commentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	ListByMessages(ctx context.Context, messageIDs []int64) ([]models.Comment, error)
}

type boardCache interface {
	Load(ctx context.Context, courseID int64) (*models.Board, bool)
	Store(ctx context.Context, board *models.Board)
	Forget(ctx context.Context, courseIDs ...int64) error
}

// GuestConfig bounds PIN guessing and grant lifetime.
type GuestConfig struct {
	MaxAttempts int
	Lockout     time.Duration
	GrantTTL    time.Duration
}

// GuestService authorizes guests by course PIN and serves the guest board.
type GuestService struct {
	courses  courseLookup
	messages boardMessageReader
	comments commentRepository
	access   guestAccessStore
	cache    boardCache
	events   EventEmitter
	metrics  *MetricsService
	logger   *zap.Logger
	config   GuestConfig
	now      func() time.Time
}

// NewGuestService constructs the service.
func NewGuestService(courses courseLookup, messages boardMessageReader, comments commentRepository, access guestAccessStore,
	cache boardCache, events EventEmitter, metrics *MetricsService, logger *zap.Logger, config GuestConfig) *GuestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.Lockout <= 0 {
		config.Lockout = 15 * time.Minute
	}
	if config.GrantTTL <= 0 {
		config.GrantTTL = 12 * time.Hour
	}
	return &GuestService{
		courses:  courses,
		messages: messages,
		comments: comments,
		access:   access,
		cache:    cache,
		events:   events,
		metrics:  metrics,
		logger:   logger,
		config:   config,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AuthorizePin checks a course PIN and grants the guest session access to the
// course. Unknown courses and wrong PINs are indistinguishable to the caller.
// A blank or malformed session id is replaced by a fresh one. Every attempt is counted
// before the comparison, so at most MaxAttempts PINs are checked per window.
func (s *GuestService) AuthorizePin(ctx context.Context, sessionID string, courseID int64, pin, clientIP string) (*models.PinAuthorization, error) {
	pin = strings.TrimSpace(pin)
	if courseID <= 0 || pin == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course_id and pin are required")
	}

	attempts, err := s.access.ReserveAttempt(ctx, courseID, clientIP, s.config.Lockout)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record pin attempt")
	}
	if attempts > s.config.MaxAttempts {
		s.metrics.RecordPinAttempt(PinResultLocked)
		s.logger.Warn("guest pin locked", zap.Int64("course_id", courseID), zap.String("client_ip", clientIP))
		return nil, appErrors.Clone(appErrors.ErrPinLocked, "")
	}

	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course == nil || subtle.ConstantTimeCompare([]byte(course.PinCode), []byte(pin)) != 1 {
		s.metrics.RecordPinAttempt(PinResultFailure)
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid course pin")
	}

	if err := s.access.ResetPinAttempts(ctx, courseID, clientIP); err != nil {
		s.logger.Warn("failed to reset pin attempts", zap.Int64("course_id", courseID), zap.Error(err))
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		sessionID = uuid.NewString()
	}
	if err := s.access.Grant(ctx, sessionID, courseID, s.config.GrantTTL); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grant guest access")
	}
	s.metrics.RecordPinAttempt(PinResultSuccess)

	return &models.PinAuthorization{
		CourseID:     courseID,
		GuestSession: sessionID,
		ExpiresAt:    s.now().Add(s.config.GrantTTL),
	}, nil
}

// Board returns the guest view of an authorized course and whether it came from cache.
func (s *GuestService) Board(ctx context.Context, sessionID string, courseID int64) (*models.Board, bool, error) {
	if err := s.requireGrant(ctx, sessionID, courseID); err != nil {
		return nil, false, err
	}

	if cached, hit := s.cache.Load(ctx, courseID); hit {
		return cached, true, nil
	}

	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	messages, err := s.messages.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list messages")
	}
	ids := make([]int64, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	comments, err := s.comments.ListByMessages(ctx, ids)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list comments")
	}

	byMessage := make(map[int64][]models.BoardComment, len(messages))
	for _, c := range comments {
		byMessage[c.MessageID] = append(byMessage[c.MessageID], models.BoardComment{
			ID:        c.ID,
			Author:    c.DisplayName(),
			Content:   c.Content,
			CreatedAt: c.CreatedAt,
		})
	}

	board := &models.Board{
		CourseID:   course.ID,
		CourseCode: course.Code,
		CourseName: course.Name,
		Messages:   make([]models.BoardMessage, 0, len(messages)),
	}
	for _, m := range messages {
		entry := models.BoardMessage{
			ID:        m.ID,
			Content:   m.Content,
			Reply:     m.Reply,
			RepliedAt: m.RepliedAt,
			CreatedAt: m.CreatedAt,
			Comments:  byMessage[m.ID],
		}
		if entry.Comments == nil {
			entry.Comments = []models.BoardComment{}
		}
		board.Messages = append(board.Messages, entry)
	}

	s.cache.Store(ctx, board)
	return board, false, nil
}

// AddComment attaches a guest comment to a message of an authorized course.
// Callers without any grant get 401 whether or not the message exists.
func (s *GuestService) AddComment(ctx context.Context, sessionID string, messageID int64, req models.AddCommentRequest) (*models.Comment, error) {
	if sessionID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "guest session required")
	}
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.missingMessage(ctx, sessionID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load message")
	}
	if err := s.requireGrant(ctx, sessionID, msg.CourseID); err != nil {
		return nil, err
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "content is required")
	}
	if len(content) > maxCommentLength {
		return nil, appErrors.Clone(appErrors.ErrValidation, "content is too long")
	}
	var guestName *string
	if req.GuestName != nil {
		if name := strings.TrimSpace(*req.GuestName); name != "" {
			if len(name) > 100 {
				return nil, appErrors.Clone(appErrors.ErrValidation, "guest_name is too long")
			}
			guestName = &name
		}
	}

	comment := &models.Comment{MessageID: messageID, GuestName: guestName, Content: content}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add comment")
	}

	if err := s.cache.Forget(ctx, msg.CourseID); err != nil {
		s.logger.Warn("failed to invalidate board cache", zap.Int64("course_id", msg.CourseID), zap.Error(err))
	}
	if s.events != nil {
		s.events.Emit(ctx, models.Event{Type: models.EventCommentAdded, CourseID: msg.CourseID, MessageID: messageID, CommentID: comment.ID})
	}
	return comment, nil
}

func (s *GuestService) missingMessage(ctx context.Context, sessionID string) error {
	granted, err := s.access.HasAnyGrant(ctx, sessionID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check guest access")
	}
	if !granted {
		return appErrors.Clone(appErrors.ErrUnauthorized, "guest is not authorized for this course")
	}
	return appErrors.Clone(appErrors.ErrNotFound, "message not found")
}

func (s *GuestService) requireGrant(ctx context.Context, sessionID string, courseID int64) error {
	if sessionID == "" {
		return appErrors.Clone(appErrors.ErrUnauthorized, "guest session required")
	}
	ok, err := s.access.HasGrant(ctx, sessionID, courseID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check guest access")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrUnauthorized, "guest is not authorized for this course")
	}
	return nil
}
