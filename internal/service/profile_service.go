package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/course-feedback-api/internal/models"
	appErrors "github.com/noah-isme/course-feedback-api/pkg/errors"
	"github.com/noah-isme/course-feedback-api/pkg/storage"
)

const mediaScope = "media"

var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
}

type profileRepository interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
	FindStudent(ctx context.Context, userID int64) (*models.Student, error)
	FindLecturer(ctx context.Context, userID int64) (*models.Lecturer, error)
	UpdateLecturerImage(ctx context.Context, userID int64, key string) (*string, error)
}

type objectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// ProfileConfig limits profile image uploads.
type ProfileConfig struct {
	APIPrefix     string
	MaxImageBytes int64
	AllowedTypes  []string
}

// MediaObject is an opened media object. The caller closes Body.
type MediaObject struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// ProfileService serves user profiles and lecturer images.
type ProfileService struct {
	users   profileRepository
	objects objectStore
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ProfileConfig
	allowed map[string]bool
}

// NewProfileService constructs the service. A nil object store disables image uploads.
func NewProfileService(users profileRepository, objects objectStore, signer *storage.SignedURLSigner, cfg ProfileConfig, logger *zap.Logger) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = 2 * 1024 * 1024
	}
	allowed := make(map[string]bool)
	for _, t := range cfg.AllowedTypes {
		if _, ok := imageExtensions[t]; ok {
			allowed[t] = true
		}
	}
	if len(allowed) == 0 {
		for t := range imageExtensions {
			allowed[t] = true
		}
	}
	return &ProfileService{users: users, objects: objects, signer: signer, logger: logger, cfg: cfg, allowed: allowed}
}

// GetProfile returns the user with its role extension.
func (s *ProfileService) GetProfile(ctx context.Context, principal *models.Principal) (*models.Profile, error) {
	user, err := s.users.FindByID(ctx, principal.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	profile := &models.Profile{User: *user}

	switch user.Role {
	case models.RoleStudent:
		student, err := s.users.FindStudent(ctx, user.ID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
		}
		profile.Student = student
	case models.RoleLecturer:
		lecturer, err := s.users.FindLecturer(ctx, user.ID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lecturer profile")
		}
		if lecturer != nil && lecturer.ProfileImageKey != nil {
			profile.ProfileImageURL = s.mediaURL(*lecturer.ProfileImageKey)
		}
	case models.RoleAdmin, models.RoleGuest:
	}
	return profile, nil
}

// UploadLecturerImage stores a new profile image and replaces the previous one.
// The declared content type is ignored; the type is sniffed from the data.
func (s *ProfileService) UploadLecturerImage(ctx context.Context, lecturer *models.Principal, size int64, r io.Reader) (*models.Profile, error) {
	if s.objects == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "media storage is disabled")
	}
	if size <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "image is empty")
	}
	if size > s.cfg.MaxImageBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("image exceeds %d bytes", s.cfg.MaxImageBytes))
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to read image")
	}
	head = head[:n]
	contentType := http.DetectContentType(head)
	if !s.allowed[contentType] {
		return nil, appErrors.Clone(appErrors.ErrValidation, "image must be png, jpeg or webp")
	}

	key := fmt.Sprintf("lecturers/%d/%s%s", lecturer.UserID, uuid.NewString(), imageExtensions[contentType])
	body := io.MultiReader(bytes.NewReader(head), r)
	if err := s.objects.Put(ctx, key, body, size, contentType); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store image")
	}

	previous, err := s.users.UpdateLecturerImage(ctx, lecturer.UserID, key)
	if err != nil {
		if delErr := s.objects.Delete(ctx, key); delErr != nil {
			s.logger.Warn("failed to remove orphaned image", zap.String("key", key), zap.Error(delErr))
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lecturer profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile image")
	}
	if previous != nil && *previous != "" && *previous != key {
		if err := s.objects.Delete(ctx, *previous); err != nil {
			s.logger.Warn("failed to remove previous image", zap.String("key", *previous), zap.Error(err))
		}
	}

	return s.GetProfile(ctx, lecturer)
}

// OpenMedia resolves a signed media token to the stored object.
func (s *ProfileService) OpenMedia(ctx context.Context, token string) (*MediaObject, error) {
	if s.objects == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "media storage is disabled")
	}
	key, _, err := s.signer.Parse(token, mediaScope, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "media link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrNotFound, "media not found")
	}
	body, info, err := s.objects.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "media not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open media")
	}
	return &MediaObject{Body: body, ContentType: info.ContentType, Size: info.Size}, nil
}

func (s *ProfileService) mediaURL(key string) string {
	token, _, err := s.signer.Generate(mediaScope, key)
	if err != nil {
		s.logger.Warn("failed to sign media url", zap.String("key", key), zap.Error(err))
		return ""
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return prefix + "/media/" + token
}
