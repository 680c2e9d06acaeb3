package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-feedback-api/internal/models"
	appErrors "github.com/noah-isme/course-feedback-api/pkg/errors"
)

func newTestCourseService(db *memDB) *CourseService {
	return NewCourseService(fakeCourses{db}, fakeUsers{db}, validator.New(), zap.NewNop())
}

func lecturerPrincipal(id int64) *models.Principal {
	return &models.Principal{UserID: id, Role: models.RoleLecturer}
}

func TestCourseServiceCreateNormalizesCode(t *testing.T) {
	svc := newTestCourseService(newMemDB())

	course, err := svc.Create(context.Background(), lecturerPrincipal(1), models.CreateCourseRequest{Code: " cs101 ", Name: "Intro", PinCode: "1234"})
	require.NoError(t, err)
	assert.Equal(t, "CS101", course.Code)
	assert.Equal(t, "1234", course.PinCode)
	assert.Equal(t, int64(1), course.LecturerID)
}

func TestCourseServiceCreateValidation(t *testing.T) {
	svc := newTestCourseService(newMemDB())

	cases := []models.CreateCourseRequest{
		{Code: "", Name: "Intro", PinCode: "1234"},
		{Code: "CS1", Name: "Intro", PinCode: "12"},
		{Code: "CS1", Name: "Intro", PinCode: "12a4"},
		{Code: "CS1", Name: "", PinCode: "1234"},
	}
	for _, req := range cases {
		_, err := svc.Create(context.Background(), lecturerPrincipal(1), req)
		requireAppError(t, err, appErrors.ErrValidation)
	}
}

func TestCourseServiceCreateConflicts(t *testing.T) {
	svc := newTestCourseService(newMemDB())
	_, err := svc.Create(context.Background(), lecturerPrincipal(1), models.CreateCourseRequest{Code: "CS101", Name: "Intro", PinCode: "1234"})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), lecturerPrincipal(2), models.CreateCourseRequest{Code: "cs101", Name: "Other", PinCode: "9999"})
	appErr := requireAppError(t, err, appErrors.ErrConflict)
	assert.Equal(t, "course code already exists", appErr.Message)

	_, err = svc.Create(context.Background(), lecturerPrincipal(2), models.CreateCourseRequest{Code: "MA201", Name: "Calculus", PinCode: "1234"})
	appErr = requireAppError(t, err, appErrors.ErrConflict)
	assert.Equal(t, "pin code already in use", appErr.Message)
}

func TestCourseServiceListForLecturerShowsOwnPins(t *testing.T) {
	svc := newTestCourseService(newMemDB())
	_, err := svc.Create(context.Background(), lecturerPrincipal(1), models.CreateCourseRequest{Code: "CS101", Name: "Intro", PinCode: "1234"})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), lecturerPrincipal(2), models.CreateCourseRequest{Code: "MA201", Name: "Calculus", PinCode: "5678"})
	require.NoError(t, err)

	owned, err := svc.ListForLecturer(context.Background(), lecturerPrincipal(1))
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "CS101", owned[0].Code)
	assert.Equal(t, "1234", owned[0].PinCode)

	all, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCourseServiceRotatePin(t *testing.T) {
	db := newMemDB()
	svc := newTestCourseService(db)
	first, err := svc.Create(context.Background(), lecturerPrincipal(1), models.CreateCourseRequest{Code: "CS101", Name: "Intro", PinCode: "1234"})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), lecturerPrincipal(1), models.CreateCourseRequest{Code: "CS102", Name: "Data", PinCode: "5678"})
	require.NoError(t, err)

	rotated, err := svc.RotatePin(context.Background(), lecturerPrincipal(1), first.ID, models.RotatePinRequest{PinCode: "4321"})
	require.NoError(t, err)
	assert.Equal(t, "4321", rotated.PinCode)
	require.Len(t, db.audit, 1)
	assert.Equal(t, models.AuditActionPinRotate, db.audit[0].Action)

	_, err = svc.RotatePin(context.Background(), lecturerPrincipal(1), first.ID, models.RotatePinRequest{PinCode: "5678"})
	requireAppError(t, err, appErrors.ErrConflict)

	_, err = svc.RotatePin(context.Background(), lecturerPrincipal(2), first.ID, models.RotatePinRequest{PinCode: "1111"})
	requireAppError(t, err, appErrors.ErrForbidden)

	_, err = svc.RotatePin(context.Background(), lecturerPrincipal(1), 999, models.RotatePinRequest{PinCode: "1111"})
	requireAppError(t, err, appErrors.ErrNotFound)
}

func TestCourseServiceOwnershipGate(t *testing.T) {
	db := newMemDB()
	svc := newTestCourseService(db)
	course, err := svc.Create(context.Background(), lecturerPrincipal(1), models.CreateCourseRequest{Code: "CS101", Name: "Intro", PinCode: "1234"})
	require.NoError(t, err)
	msg := &models.Message{CourseID: course.ID, Content: "hello"}
	require.NoError(t, fakeMessages{db}.Create(context.Background(), msg))

	_, err = svc.EnsureOwner(context.Background(), lecturerPrincipal(1), course.ID)
	require.NoError(t, err)
	_, err = svc.EnsureOwner(context.Background(), &models.Principal{UserID: 42, Role: models.RoleAdmin}, course.ID)
	require.NoError(t, err)
	_, err = svc.EnsureOwner(context.Background(), &models.Principal{UserID: 1, Role: models.RoleStudent}, course.ID)
	requireAppError(t, err, appErrors.ErrForbidden)

	_, err = svc.EnsureMessageOwner(context.Background(), lecturerPrincipal(1), msg.ID)
	require.NoError(t, err)
	_, err = svc.EnsureMessageOwner(context.Background(), lecturerPrincipal(2), msg.ID)
	requireAppError(t, err, appErrors.ErrForbidden)
	_, err = svc.EnsureMessageOwner(context.Background(), lecturerPrincipal(1), 999)
	requireAppError(t, err, appErrors.ErrNotFound)
}
