package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-feedback-api/internal/models"
	"github.com/noah-isme/course-feedback-api/internal/service"
	appErrors "github.com/noah-isme/course-feedback-api/pkg/errors"
	"github.com/noah-isme/course-feedback-api/pkg/response"
)

type courseService interface {
	List(ctx context.Context) ([]models.Course, error)
	Get(ctx context.Context, id int64) (*models.Course, error)
	ListForLecturer(ctx context.Context, lecturer *models.Principal) ([]models.OwnedCourse, error)
	Create(ctx context.Context, lecturer *models.Principal, req models.CreateCourseRequest) (*models.OwnedCourse, error)
	RotatePin(ctx context.Context, lecturer *models.Principal, courseID int64, req models.RotatePinRequest) (*models.OwnedCourse, error)
	EnsureOwner(ctx context.Context, principal *models.Principal, courseID int64) (*models.Course, error)
	EnsureMessageOwner(ctx context.Context, principal *models.Principal, messageID int64) (*models.Course, error)
}

type exportService interface {
	ExportCourse(ctx context.Context, principal *models.Principal, courseID int64, format string) (*service.ExportResult, error)
	OpenDownload(token string) (*service.ExportDownload, error)
}

// CourseHandler exposes course catalogue and lecturer course management.
type CourseHandler struct {
	courses courseService
	exports exportService
}

// NewCourseHandler constructs the handler.
func NewCourseHandler(courses courseService, exports exportService) *CourseHandler {
	return &CourseHandler{courses: courses, exports: exports}
}

// List godoc
// @Summary List courses
// @Tags Courses
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	courses, err := h.courses.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// Get godoc
// @Summary Get course
// @Tags Courses
// @Produce json
// @Security BearerAuth
// @Param id path int true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	course, err := h.courses.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// ListOwn godoc
// @Summary List own courses
// @Description Courses of the calling lecturer including their PINs
// @Tags Lecturer
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /lecturer/courses [get]
func (h *CourseHandler) ListOwn(c *gin.Context) {
	principal, err := principalFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	courses, err := h.courses.ListForLecturer(c.Request.Context(), principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// Create godoc
// @Summary Create course
// @Tags Lecturer
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /lecturer/courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	principal, err := principalFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req models.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course payload"))
		return
	}
	course, err := h.courses.Create(c.Request.Context(), principal, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// RotatePin godoc
// @Summary Replace course PIN
// @Tags Lecturer
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Course ID"
// @Param payload body models.RotatePinRequest true "New PIN"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /lecturer/courses/{id}/pin [put]
func (h *CourseHandler) RotatePin(c *gin.Context) {
	principal, err := principalFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req models.RotatePinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid pin payload"))
		return
	}
	course, err := h.courses.RotatePin(c.Request.Context(), principal, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Export godoc
// @Summary Export course feedback
// @Description Render the course's messages as CSV or PDF and return a signed download URL
// @Tags Lecturer
// @Produce json
// @Security BearerAuth
// @Param id path int true "Course ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /lecturer/courses/{id}/export [get]
func (h *CourseHandler) Export(c *gin.Context) {
	principal, err := principalFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.exports.ExportCourse(c.Request.Context(), principal, id, c.DefaultQuery("format", service.ExportFormatCSV))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Download godoc
// @Summary Download export
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed export token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *CourseHandler) Download(c *gin.Context) {
	download, err := h.exports.OpenDownload(routerToken(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export"))
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+download.Filename+`"`)
	c.Header("Content-Type", download.ContentType)
	http.ServeContent(c.Writer, c.Request, download.Filename, info.ModTime(), download.File)
}
