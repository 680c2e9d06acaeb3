package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-feedback-api/internal/models"
	"github.com/noah-isme/course-feedback-api/internal/repository"
	appErrors "github.com/noah-isme/course-feedback-api/pkg/errors"
)

type courseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	FindByID(ctx context.Context, id int64) (*models.Course, error)
	FindByMessageID(ctx context.Context, messageID int64) (*models.Course, error)
	List(ctx context.Context) ([]models.Course, error)
	ListByLecturer(ctx context.Context, lecturerID int64) ([]models.Course, error)
	UpdatePin(ctx context.Context, id int64, pin string) error
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CourseService manages courses and the lecturer ownership gate.
type CourseService struct {
	repo      courseRepository
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs the service.
func NewCourseService(repo courseRepository, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CourseService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// Create registers a course for the lecturer.
func (s *CourseService) Create(ctx context.Context, lecturer *models.Principal, req models.CreateCourseRequest) (*models.OwnedCourse, error) {
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	req.Name = strings.TrimSpace(req.Name)
	req.PinCode = strings.TrimSpace(req.PinCode)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid course payload")
	}

	course := &models.Course{Code: req.Code, Name: req.Name, PinCode: req.PinCode, LecturerID: lecturer.UserID}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, s.translateWriteError(err, "failed to create course")
	}
	s.logger.Info("course created", zap.Int64("course_id", course.ID), zap.Int64("lecturer_id", lecturer.UserID))
	owned := models.NewOwnedCourse(*course)
	return &owned, nil
}

// List returns every course without PINs.
func (s *CourseService) List(ctx context.Context) ([]models.Course, error) {
	courses, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, nil
}

// ListForLecturer returns the lecturer's courses including PINs.
func (s *CourseService) ListForLecturer(ctx context.Context, lecturer *models.Principal) ([]models.OwnedCourse, error) {
	courses, err := s.repo.ListByLecturer(ctx, lecturer.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	owned := make([]models.OwnedCourse, 0, len(courses))
	for _, c := range courses {
		owned = append(owned, models.NewOwnedCourse(c))
	}
	return owned, nil
}

// Get returns a course without its PIN.
func (s *CourseService) Get(ctx context.Context, id int64) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// RotatePin replaces the PIN of a course owned by the lecturer. Existing guest
// grants stay valid until they expire.
func (s *CourseService) RotatePin(ctx context.Context, lecturer *models.Principal, courseID int64, req models.RotatePinRequest) (*models.OwnedCourse, error) {
	req.PinCode = strings.TrimSpace(req.PinCode)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid pin payload")
	}
	course, err := s.EnsureOwner(ctx, lecturer, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdatePin(ctx, courseID, req.PinCode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, s.translateWriteError(err, "failed to update pin")
	}
	course.PinCode = req.PinCode

	resourceID := strconv.FormatInt(courseID, 10)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &lecturer.UserID,
		Action:     models.AuditActionPinRotate,
		Resource:   "course",
		ResourceID: &resourceID,
	}); err != nil {
		s.logger.Warn("failed to record pin rotation", zap.Error(err))
	}

	owned := models.NewOwnedCourse(*course)
	return &owned, nil
}

// EnsureOwner loads the course and checks the principal owns it. Admins pass.
func (s *CourseService) EnsureOwner(ctx context.Context, principal *models.Principal, courseID int64) (*models.Course, error) {
	course, err := s.Get(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !owns(principal, course) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "course belongs to another lecturer")
	}
	return course, nil
}

// EnsureMessageOwner checks the principal owns the course of a message.
func (s *CourseService) EnsureMessageOwner(ctx context.Context, principal *models.Principal, messageID int64) (*models.Course, error) {
	course, err := s.repo.FindByMessageID(ctx, messageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "message not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load message course")
	}
	if !owns(principal, course) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "message belongs to another lecturer's course")
	}
	return course, nil
}

func owns(principal *models.Principal, course *models.Course) bool {
	if principal == nil {
		return false
	}
	return principal.Role == models.RoleAdmin || (principal.Role == models.RoleLecturer && course.LecturerID == principal.UserID)
}

func (s *CourseService) translateWriteError(err error, message string) error {
	if constraint, ok := repository.DuplicateConstraint(err); ok {
		switch constraint {
		case repository.ConstraintCourseCode:
			return appErrors.Clone(appErrors.ErrConflict, "course code already exists")
		case repository.ConstraintCoursePin:
			return appErrors.Clone(appErrors.ErrConflict, "pin code already in use")
		default:
			return appErrors.Clone(appErrors.ErrConflict, "course already exists")
		}
	}
	if errors.Is(err, repository.ErrMissingReference) {
		return appErrors.Clone(appErrors.ErrForbidden, "lecturer profile required")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
