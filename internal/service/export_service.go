package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-feedback-api/internal/models"
	appErrors "github.com/noah-isme/course-feedback-api/pkg/errors"
	"github.com/noah-isme/course-feedback-api/pkg/export"
	"github.com/noah-isme/course-feedback-api/pkg/storage"
)

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

const exportScope = "export"

type fileStorage interface {
	Save(relPath string, data []byte) (string, error)
	Open(relPath string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type renderer interface {
	ContentType() string
	Extension() string
	Render(data export.Dataset) ([]byte, error)
}

type courseOwnerGate interface {
	EnsureOwner(ctx context.Context, principal *models.Principal, courseID int64) (*models.Course, error)
}

type courseMessageLister interface {
	ListByCourse(ctx context.Context, courseID int64) ([]models.MessageView, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
	CSVBOM    bool
}

// ExportResult describes a rendered export ready for download.
type ExportResult struct {
	Format    string    `json:"format"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExportDownload is an opened export file. The caller closes File.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
}

// ExportService renders course feedback into CSV or PDF files.
type ExportService struct {
	courses   courseOwnerGate
	messages  courseMessageLister
	storage   fileStorage
	signer    *storage.SignedURLSigner
	renderers map[string]renderer
	audit     auditWriter
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(courses courseOwnerGate, messages courseMessageLister, files fileStorage, signer *storage.SignedURLSigner, audit auditWriter, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = time.Hour
	}
	return &ExportService{
		courses:  courses,
		messages: messages,
		storage:  files,
		signer:   signer,
		renderers: map[string]renderer{
			ExportFormatCSV: &export.CSVExporter{BOM: cfg.CSVBOM},
			ExportFormatPDF: export.NewPDFExporter(),
		},
		audit:  audit,
		logger: logger,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ExportCourse renders every message of an owned course and returns a signed download URL.
func (s *ExportService) ExportCourse(ctx context.Context, principal *models.Principal, courseID int64, format string) (*ExportResult, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	r, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	course, err := s.courses.EnsureOwner(ctx, principal, courseID)
	if err != nil {
		return nil, err
	}
	messages, err := s.messages.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list messages")
	}

	payload, err := r.Render(buildCourseDataset(course, messages))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	relPath := fmt.Sprintf("courses/%d/%s_%s.%s", course.ID, sanitizeFilename(course.Code), s.now().Format("20060102_150405"), r.Extension())
	if _, err := s.storage.Save(relPath, payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	token, expiresAt, err := s.signer.Generate(exportScope, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export")
	}

	resourceID := strconv.FormatInt(course.ID, 10)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &principal.UserID,
		Action:     models.AuditActionExport,
		Resource:   "course",
		ResourceID: &resourceID,
		NewValues:  []byte(`{"format":"` + format + `"}`),
	}); err != nil {
		s.logger.Warn("failed to record export audit log", zap.Error(err))
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return &ExportResult{Format: format, URL: prefix + "/exports/" + token, ExpiresAt: expiresAt}, nil
}

// OpenDownload resolves a signed token to the stored file.
func (s *ExportService) OpenDownload(token string) (*ExportDownload, error) {
	relPath, _, err := s.signer.Parse(token, exportScope, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export")
	}

	name := relPath[strings.LastIndex(relPath, "/")+1:]
	contentType := "application/octet-stream"
	for _, r := range s.renderers {
		if strings.HasSuffix(name, "."+r.Extension()) {
			contentType = r.ContentType()
		}
	}
	return &ExportDownload{File: file, Filename: name, ContentType: contentType}, nil
}

// Cleanup removes exports older than the result TTL.
func (s *ExportService) Cleanup() ([]string, error) {
	return s.storage.CleanupOlderThan(s.cfg.ResultTTL)
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (s *ExportService) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.Cleanup()
			if err != nil {
				s.logger.Warn("export cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				s.logger.Info("expired exports removed", zap.Int("count", len(removed)))
			}
		}
	}
}

func buildCourseDataset(course *models.Course, messages []models.MessageView) export.Dataset {
	headers := []string{"ID", "Created At", "Author", "Content", "Reply", "Replied At", "Comments"}
	rows := make([]map[string]string, 0, len(messages))
	for _, m := range messages {
		row := map[string]string{
			"ID":         strconv.FormatInt(m.ID, 10),
			"Created At": m.CreatedAt.UTC().Format(time.RFC3339),
			"Author":     m.Author(),
			"Content":    m.Content,
			"Comments":   strconv.Itoa(m.CommentsCount),
		}
		if m.Reply != nil {
			row["Reply"] = *m.Reply
		}
		if m.RepliedAt != nil {
			row["Replied At"] = m.RepliedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, row)
	}
	return export.Dataset{
		Title:   fmt.Sprintf("%s %s feedback", course.Code, course.Name),
		Headers: headers,
		Rows:    rows,
	}
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "course"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	result := replacer.Replace(raw)
	if len(result) > 64 {
		return result[:64]
	}
	return result
}
