package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-feedback-api/internal/middleware"
	"github.com/noah-isme/course-feedback-api/internal/models"
	"github.com/noah-isme/course-feedback-api/internal/service"
	"github.com/noah-isme/course-feedback-api/pkg/router"
)

// serve runs handlers behind a one-route table so placeholders resolve as in production.
func serve(t *testing.T, method, pattern string, req *http.Request, principal *models.Principal, handlers ...gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	chain := []gin.HandlerFunc{func(c *gin.Context) {
		if principal != nil {
			c.Set(middleware.ContextUserKey, principal)
		}
	}}
	chain = append(chain, handlers...)

	table, err := router.NewTable(router.Route{Method: method, Pattern: pattern, Name: "test", Handlers: chain})
	require.NoError(t, err)

	r := gin.New()
	r.Use(middleware.WithResponseMeta())
	r.NoRoute(table.Dispatch())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func jsonRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

type courseServiceMock struct {
	courses   []models.Course
	owned     []models.OwnedCourse
	course    *models.Course
	ownerErr  error
	createErr error

	createdWith models.CreateCourseRequest
}

func (m *courseServiceMock) List(ctx context.Context) ([]models.Course, error) {
	return m.courses, nil
}

func (m *courseServiceMock) Get(ctx context.Context, id int64) (*models.Course, error) {
	return m.course, nil
}

func (m *courseServiceMock) ListForLecturer(ctx context.Context, lecturer *models.Principal) ([]models.OwnedCourse, error) {
	return m.owned, nil
}

func (m *courseServiceMock) Create(ctx context.Context, lecturer *models.Principal, req models.CreateCourseRequest) (*models.OwnedCourse, error) {
	m.createdWith = req
	if m.createErr != nil {
		return nil, m.createErr
	}
	owned := models.NewOwnedCourse(models.Course{ID: 1, Code: req.Code, Name: req.Name, PinCode: req.PinCode, LecturerID: lecturer.UserID})
	return &owned, nil
}

func (m *courseServiceMock) RotatePin(ctx context.Context, lecturer *models.Principal, courseID int64, req models.RotatePinRequest) (*models.OwnedCourse, error) {
	owned := models.NewOwnedCourse(models.Course{ID: courseID, PinCode: req.PinCode, LecturerID: lecturer.UserID})
	return &owned, nil
}

func (m *courseServiceMock) EnsureOwner(ctx context.Context, principal *models.Principal, courseID int64) (*models.Course, error) {
	if m.ownerErr != nil {
		return nil, m.ownerErr
	}
	return &models.Course{ID: courseID, LecturerID: principal.UserID}, nil
}

func (m *courseServiceMock) EnsureMessageOwner(ctx context.Context, principal *models.Principal, messageID int64) (*models.Course, error) {
	if m.ownerErr != nil {
		return nil, m.ownerErr
	}
	return &models.Course{ID: 3, LecturerID: principal.UserID}, nil
}

type messageServiceMock struct {
	views   []models.MessageView
	sendErr error

	sent       *models.SendMessageRequest
	listCalled bool
	repliedTo  int64
	replyText  string
}

func (m *messageServiceMock) SendMessage(ctx context.Context, student *models.Principal, req models.SendMessageRequest) (*models.Message, error) {
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sent = &req
	sid := student.UserID
	return &models.Message{ID: 1, CourseID: req.CourseID, StudentID: &sid, Content: req.Content}, nil
}

func (m *messageServiceMock) GetMessagesByCourse(ctx context.Context, courseID int64) ([]models.MessageView, error) {
	m.listCalled = true
	return m.views, nil
}

func (m *messageServiceMock) ListForStudent(ctx context.Context, student *models.Principal) ([]models.MessageView, error) {
	return m.views, nil
}

func (m *messageServiceMock) ReplyToMessage(ctx context.Context, messageID int64, reply string) (*models.Message, error) {
	m.repliedTo = messageID
	m.replyText = reply
	return &models.Message{ID: messageID, CourseID: 3, Content: "Too fast!", Reply: &reply}, nil
}

type auditRecorder struct {
	logs []models.AuditLog
}

func (r *auditRecorder) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	r.logs = append(r.logs, *log)
	return nil
}

type sessionAuthMock struct {
	session  *models.Session
	loginErr error

	loggedOut string
}

func (m *sessionAuthMock) SessionLogin(ctx context.Context, req models.LoginRequest) (*models.Session, error) {
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	return m.session, nil
}

func (m *sessionAuthMock) SessionLogout(ctx context.Context, sessionID string, principal *models.Principal, meta service.RequestMeta) error {
	m.loggedOut = sessionID
	return nil
}
