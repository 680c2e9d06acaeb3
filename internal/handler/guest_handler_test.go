package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-feedback-api/internal/models"
	appErrors "github.com/noah-isme/course-feedback-api/pkg/errors"
)

type guestServiceMock struct {
	authErr error
	hit     bool

	sessionSeen string
	pinSeen     string
	ipSeen      string
	comment     *models.AddCommentRequest
}

func (m *guestServiceMock) AuthorizePin(ctx context.Context, sessionID string, courseID int64, pin, clientIP string) (*models.PinAuthorization, error) {
	m.sessionSeen, m.pinSeen, m.ipSeen = sessionID, pin, clientIP
	if m.authErr != nil {
		return nil, m.authErr
	}
	if sessionID == "" {
		sessionID = "issued-session"
	}
	return &models.PinAuthorization{CourseID: courseID, GuestSession: sessionID, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (m *guestServiceMock) Board(ctx context.Context, sessionID string, courseID int64) (*models.Board, bool, error) {
	m.sessionSeen = sessionID
	if sessionID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrUnauthorized, "course not authorized")
	}
	return &models.Board{CourseID: courseID, CourseCode: "CS101", Messages: []models.BoardMessage{}}, m.hit, nil
}

func (m *guestServiceMock) AddComment(ctx context.Context, sessionID string, messageID int64, req models.AddCommentRequest) (*models.Comment, error) {
	m.sessionSeen = sessionID
	m.comment = &req
	return &models.Comment{ID: 1, MessageID: messageID, Content: req.Content}, nil
}

func TestGuestHandlerAuthorizeSetsSessionCookie(t *testing.T) {
	guests := &guestServiceMock{}
	h := NewGuestHandler(guests, "", false)

	w := serve(t, http.MethodGet, "/authorize", jsonRequest(http.MethodGet, "/authorize?course_id=1&pin=1234", nil), nil, h.Authorize)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1234", guests.pinSeen)
	assert.Empty(t, guests.sessionSeen)
	assert.NotEmpty(t, guests.ipSeen)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "guest_session", cookies[0].Name)
	assert.Equal(t, "issued-session", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestGuestHandlerAuthorizeReusesPresentedSession(t *testing.T) {
	guests := &guestServiceMock{}
	h := NewGuestHandler(guests, "guest_session", false)

	req := jsonRequest(http.MethodGet, "/authorize?course_id=1&pin=1234", nil)
	req.AddCookie(&http.Cookie{Name: "guest_session", Value: "from-cookie"})
	serve(t, http.MethodGet, "/authorize", req, nil, h.Authorize)
	assert.Equal(t, "from-cookie", guests.sessionSeen)

	req = jsonRequest(http.MethodGet, "/authorize?course_id=1&pin=1234", nil)
	req.AddCookie(&http.Cookie{Name: "guest_session", Value: "from-cookie"})
	req.Header.Set(GuestSessionHeader, "from-header")
	serve(t, http.MethodGet, "/authorize", req, nil, h.Authorize)
	assert.Equal(t, "from-header", guests.sessionSeen)
}

func TestGuestHandlerAuthorizeFailures(t *testing.T) {
	h := NewGuestHandler(&guestServiceMock{}, "", false)
	w := serve(t, http.MethodGet, "/authorize", jsonRequest(http.MethodGet, "/authorize?course_id=abc&pin=1234", nil), nil, h.Authorize)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	h = NewGuestHandler(&guestServiceMock{authErr: appErrors.Clone(appErrors.ErrUnauthorized, "invalid course or pin")}, "", false)
	w = serve(t, http.MethodGet, "/authorize", jsonRequest(http.MethodGet, "/authorize?course_id=1&pin=0000", nil), nil, h.Authorize)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, w.Result().Cookies())

	h = NewGuestHandler(&guestServiceMock{authErr: appErrors.ErrPinLocked}, "", false)
	w = serve(t, http.MethodGet, "/authorize", jsonRequest(http.MethodGet, "/authorize?course_id=1&pin=0000", nil), nil, h.Authorize)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestGuestHandlerBoardReportsCacheHit(t *testing.T) {
	h := NewGuestHandler(&guestServiceMock{hit: true}, "", false)

	req := jsonRequest(http.MethodGet, "/guest/courses/4/messages", nil)
	req.Header.Set(GuestSessionHeader, "sid")
	w := serve(t, http.MethodGet, "/guest/courses/{id}/messages", req, nil, h.Board)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data models.Board           `json:"data"`
		Meta map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(4), body.Data.CourseID)
	assert.Equal(t, true, body.Meta["cache_hit"])
	assert.Contains(t, body.Meta, "processing_time_ms")
}

func TestGuestHandlerBoardWithoutSession(t *testing.T) {
	h := NewGuestHandler(&guestServiceMock{}, "", false)
	w := serve(t, http.MethodGet, "/guest/courses/{id}/messages", jsonRequest(http.MethodGet, "/guest/courses/4/messages", nil), nil, h.Board)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGuestHandlerAddComment(t *testing.T) {
	guests := &guestServiceMock{}
	h := NewGuestHandler(guests, "", false)

	req := jsonRequest(http.MethodPost, "/guest/messages/1/comments", strings.NewReader(`{"content":"Agreed"}`))
	req.Header.Set(GuestSessionHeader, "sid")
	w := serve(t, http.MethodPost, "/guest/messages/{id}/comments", req, nil, h.AddComment)

	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, guests.comment)
	assert.Equal(t, "Agreed", guests.comment.Content)
	assert.Nil(t, guests.comment.GuestName)
	assert.Equal(t, "sid", guests.sessionSeen)

	w = serve(t, http.MethodPost, "/guest/messages/{id}/comments", jsonRequest(http.MethodPost, "/guest/messages/x/comments", strings.NewReader(`{}`)), nil, h.AddComment)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
