package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-feedback-api/internal/middleware"
	"github.com/noah-isme/course-feedback-api/internal/models"
	appErrors "github.com/noah-isme/course-feedback-api/pkg/errors"
	"github.com/noah-isme/course-feedback-api/pkg/response"
)

// GuestSessionHeader lets non-browser clients present the guest session without cookies.
const GuestSessionHeader = "X-Guest-Session"

type guestService interface {
	AuthorizePin(ctx context.Context, sessionID string, courseID int64, pin, clientIP string) (*models.PinAuthorization, error)
	Board(ctx context.Context, sessionID string, courseID int64) (*models.Board, bool, error)
	AddComment(ctx context.Context, sessionID string, messageID int64, req models.AddCommentRequest) (*models.Comment, error)
}

// GuestHandler serves PIN authorization and the guest board.
type GuestHandler struct {
	guests     guestService
	cookieName string
	secure     bool
}

// NewGuestHandler constructs the handler.
func NewGuestHandler(guests guestService, cookieName string, secure bool) *GuestHandler {
	if cookieName == "" {
		cookieName = "guest_session"
	}
	return &GuestHandler{guests: guests, cookieName: cookieName, secure: secure}
}

// Authorize godoc
// @Summary Authorize with course PIN
// @Description Grants the guest session access to the course. Repeated failures lock the client out.
// @Tags Guest
// @Produce json
// @Param course_id query int true "Course ID"
// @Param pin query string true "Course PIN"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /guest/authorize [get]
func (h *GuestHandler) Authorize(c *gin.Context) {
	courseID, err := parseID(c.Query("course_id"), "course_id")
	if err != nil {
		response.Error(c, err)
		return
	}

	auth, err := h.guests.AuthorizePin(c.Request.Context(), h.sessionID(c), courseID, c.Query("pin"), c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}

	maxAge := int(time.Until(auth.ExpiresAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, auth.GuestSession, maxAge, "/", "", h.secure, true)
	response.JSON(c, http.StatusOK, auth, nil)
}

// Board godoc
// @Summary Guest board
// @Description Messages of an authorized course with replies and comments
// @Tags Guest
// @Produce json
// @Param id path int true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /guest/courses/{id}/messages [get]
func (h *GuestHandler) Board(c *gin.Context) {
	courseID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	board, hit, err := h.guests.Board(c.Request.Context(), h.sessionID(c), courseID)
	if err != nil {
		response.Error(c, err)
		return
	}

	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, board, nil, middleware.ExtractMeta(c))
}

// AddComment godoc
// @Summary Comment on a message
// @Tags Guest
// @Accept json
// @Produce json
// @Param id path int true "Message ID"
// @Param payload body models.AddCommentRequest true "Comment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /guest/messages/{id}/comments [post]
func (h *GuestHandler) AddComment(c *gin.Context) {
	messageID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req models.AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid comment payload"))
		return
	}

	comment, err := h.guests.AddComment(c.Request.Context(), h.sessionID(c), messageID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, comment)
}

func (h *GuestHandler) sessionID(c *gin.Context) string {
	if id := c.GetHeader(GuestSessionHeader); id != "" {
		return id
	}
	id, _ := c.Cookie(h.cookieName)
	return id
}
