package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-feedback-api/internal/middleware"
	"github.com/noah-isme/course-feedback-api/internal/models"
	"github.com/noah-isme/course-feedback-api/internal/service"
	appErrors "github.com/noah-isme/course-feedback-api/pkg/errors"
	"github.com/noah-isme/course-feedback-api/pkg/response"
)

// LoginForm describes the fields the web login form posts.
type LoginForm struct {
	Action string   `json:"action"`
	Method string   `json:"method"`
	Fields []string `json:"fields"`
}

// Dashboard is the role-specific landing view of a web session.
type Dashboard struct {
	Principal models.Principal     `json:"principal"`
	Messages  []models.MessageView `json:"messages,omitempty"`
	Courses   interface{}          `json:"courses,omitempty"`
}

type sessionAuthService interface {
	SessionLogin(ctx context.Context, req models.LoginRequest) (*models.Session, error)
	SessionLogout(ctx context.Context, sessionID string, principal *models.Principal, meta service.RequestMeta) error
}

// WebHandler serves the cookie-session surface.
type WebHandler struct {
	auth     sessionAuthService
	cookies  *middleware.SessionCookies
	courses  courseService
	messages messageService
	replies  *MessageHandler
}

// NewWebHandler constructs the handler. Replies share the lecturer API path.
func NewWebHandler(auth sessionAuthService, cookies *middleware.SessionCookies, courses courseService, messages messageService, replies *MessageHandler) *WebHandler {
	return &WebHandler{auth: auth, cookies: cookies, courses: courses, messages: messages, replies: replies}
}

// LoginPage describes the login form.
func (h *WebHandler) LoginPage(c *gin.Context) {
	response.JSON(c, http.StatusOK, LoginForm{
		Action: middleware.LoginPath,
		Method: http.MethodPost,
		Fields: []string{"email", "password"},
	}, nil)
}

// Login opens a session from form credentials and redirects to the role's home page.
func (h *WebHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login form"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	session, err := h.auth.SessionLogin(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.cookies.Save(c, session.ID); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write session cookie"))
		return
	}
	c.Redirect(http.StatusSeeOther, session.Principal.Role.HomePath())
}

// Logout discards the session and returns to the login page.
func (h *WebHandler) Logout(c *gin.Context) {
	principal, _ := middleware.PrincipalFrom(c)
	if err := h.auth.SessionLogout(c.Request.Context(), h.cookies.SessionID(c), principal, requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	h.cookies.Clear(c)
	c.Redirect(http.StatusSeeOther, middleware.LoginPath)
}

// Dashboard returns the principal with the view matching its role.
func (h *WebHandler) Dashboard(c *gin.Context) {
	principal, err := principalFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	ctx := c.Request.Context()
	view := Dashboard{Principal: *principal}

	switch principal.Role {
	case models.RoleStudent:
		view.Messages, err = h.messages.ListForStudent(ctx, principal)
	case models.RoleLecturer:
		view.Courses, err = h.courses.ListForLecturer(ctx, principal)
	case models.RoleAdmin, models.RoleGuest:
		view.Courses, err = h.courses.List(ctx)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// CourseMessages lists the messages of a course the lecturer owns.
func (h *WebHandler) CourseMessages(c *gin.Context) {
	principal, err := principalFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	courseID, err := pathID(c, "id")
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

// Reply stores the posted reply and returns to the course's message list.
func (h *WebHandler) Reply(c *gin.Context) {
	messageID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	req := models.ReplyRequest{MessageID: messageID, ReplyContent: c.PostForm("replyContent")}

	msg, err := h.replies.reply(c, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, fmt.Sprintf("/web/lecturer/courses/%d/messages", msg.CourseID))
}
