package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-feedback-api/internal/middleware"
	"github.com/noah-isme/course-feedback-api/internal/models"
	appErrors "github.com/noah-isme/course-feedback-api/pkg/errors"
	"github.com/noah-isme/course-feedback-api/pkg/response"
)

type messageService interface {
	SendMessage(ctx context.Context, student *models.Principal, req models.SendMessageRequest) (*models.Message, error)
	GetMessagesByCourse(ctx context.Context, courseID int64) ([]models.MessageView, error)
	ListForStudent(ctx context.Context, student *models.Principal) ([]models.MessageView, error)
	ReplyToMessage(ctx context.Context, messageID int64, reply string) (*models.Message, error)
}

// MessageHandler serves the student and lecturer sides of the message workflow.
type MessageHandler struct {
	messages messageService
	courses  courseService
}

// NewMessageHandler constructs the handler.
func NewMessageHandler(messages messageService, courses courseService) *MessageHandler {
	return &MessageHandler{messages: messages, courses: courses}
}

// Send godoc
// @Summary Send feedback message
// @Tags Student
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.SendMessageRequest true "Message payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /student/message/send [post]
func (h *MessageHandler) Send(c *gin.Context) {
	principal, err := principalFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid message payload"))
		return
	}
	msg, err := h.messages.SendMessage(c.Request.Context(), principal, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, msg, nil)
}

// ListOwn godoc
// @Summary List own messages
// @Description Messages the student sent under their name, newest first
// @Tags Student
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /student/messages [get]
func (h *MessageHandler) ListOwn(c *gin.Context) {
	principal, err := principalFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	messages, err := h.messages.ListForStudent(c.Request.Context(), principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, messages, nil)
}

// ListForCourse godoc
// @Summary List course messages
// @Description Messages of an owned course, newest first
// @Tags Lecturer
// @Produce json
// @Security BearerAuth
// @Param courseId query int true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /lecturer/messages [get]
func (h *MessageHandler) ListForCourse(c *gin.Context) {
	principal, err := principalFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	courseID, err := parseID(c.Query("courseId"), "courseId")
	if err != nil {
		response.Error(c, err)
		return
	}
	if _, err := h.courses.EnsureOwner(c.Request.Context(), principal, courseID); err != nil {
		response.Error(c, err)
		return
	}
	messages, err := h.messages.GetMessagesByCourse(c.Request.Context(), courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, messages, nil)
}

// Reply godoc
// @Summary Reply to a message
// @Description Overwrites any previous reply
// @Tags Lecturer
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.ReplyRequest true "Reply payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lecturer/message/reply [post]
func (h *MessageHandler) Reply(c *gin.Context) {
	var req models.ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reply payload"))
		return
	}
	msg, err := h.reply(c, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, msg, nil)
}

func (h *MessageHandler) reply(c *gin.Context, req models.ReplyRequest) (*models.Message, error) {
	principal, err := principalFromContext(c)
	if err != nil {
		return nil, err
	}
	if req.MessageID <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "messageId is required")
	}
	if _, err := h.courses.EnsureMessageOwner(c.Request.Context(), principal, req.MessageID); err != nil {
		return nil, err
	}
	msg, err := h.messages.ReplyToMessage(c.Request.Context(), req.MessageID, req.ReplyContent)
	if err != nil {
		return nil, err
	}
	middleware.SetAuditResource(c, msg.ID)
	return msg, nil
}
