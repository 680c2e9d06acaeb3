package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-feedback-api/internal/models"
	"github.com/noah-isme/course-feedback-api/internal/service"
	appErrors "github.com/noah-isme/course-feedback-api/pkg/errors"
	"github.com/noah-isme/course-feedback-api/pkg/response"
	"github.com/noah-isme/course-feedback-api/pkg/router"
)

type profileService interface {
	GetProfile(ctx context.Context, principal *models.Principal) (*models.Profile, error)
	UploadLecturerImage(ctx context.Context, lecturer *models.Principal, size int64, r io.Reader) (*models.Profile, error)
	OpenMedia(ctx context.Context, token string) (*service.MediaObject, error)
}

// ProfileHandler serves profiles and lecturer images.
type ProfileHandler struct {
	service profileService
}

// NewProfileHandler constructs the handler.
func NewProfileHandler(svc profileService) *ProfileHandler {
	return &ProfileHandler{service: svc}
}

// Get godoc
// @Summary Current profile
// @Description User with its student or lecturer extension
// @Tags Profile
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /profile [get]
func (h *ProfileHandler) Get(c *gin.Context) {
	principal, err := principalFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	profile, err := h.service.GetProfile(c.Request.Context(), principal)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, profile, nil)
}

// UploadImage godoc
// @Summary Upload lecturer profile image
// @Tags Profile
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param image formData file true "PNG, JPEG or WebP image"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /lecturer/profile/image [put]
func (h *ProfileHandler) UploadImage(c *gin.Context) {
	principal, err := principalFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "image file is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unable to read image"))
		return
	}
	defer file.Close()

	profile, err := h.service.UploadLecturerImage(c.Request.Context(), principal, fileHeader.Size, file)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, profile, nil)
}

// Media godoc
// @Summary Stream media object
// @Tags Profile
// @Produce octet-stream
// @Param token path string true "Signed media token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /media/{token} [get]
func (h *ProfileHandler) Media(c *gin.Context) {
	media, err := h.service.OpenMedia(c.Request.Context(), router.Param(c, "token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer media.Body.Close()

	c.Header("Content-Type", media.ContentType)
	c.Header("Content-Length", strconv.FormatInt(media.Size, 10))
	c.Header("Cache-Control", "private, max-age=300")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, media.Body)
}
