package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-feedback-api/internal/models"
)

var messageRowColumns = []string{"id", "course_id", "student_id", "content", "is_anonymous", "reply", "replied_at", "created_at", "updated_at"}

func TestMessageCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMessageRepository(db)

	now := time.Now()
	studentID := int64(2)
	mock.ExpectQuery("INSERT INTO messages").
		WithArgs(int64(1), &studentID, "Too fast!", false).
		WillReturnRows(sqlmock.NewRows(messageRowColumns).AddRow(1, 1, 2, "Too fast!", false, nil, nil, now, now))

	msg := &models.Message{CourseID: 1, StudentID: &studentID, Content: "Too fast!"}
	require.NoError(t, repo.Create(context.Background(), msg))
	assert.Equal(t, int64(1), msg.ID)
	assert.Nil(t, msg.Reply)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageCreateMissingCourse(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMessageRepository(db)

	mock.ExpectQuery("INSERT INTO messages").WillReturnError(&pq.Error{Code: "23503", Constraint: "messages_course_id_fkey"})

	err := repo.Create(context.Background(), &models.Message{CourseID: 99, Content: "x"})
	assert.ErrorIs(t, err, ErrMissingReference)
}

func TestMessageListByCourseOrdersNewestFirst(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMessageRepository(db)

	now := time.Now()
	cols := append(append([]string{}, messageRowColumns...), "author_name", "comments_count")
	mock.ExpectQuery("WHERE m.course_id = \\$1 ORDER BY m.created_at DESC, m.id DESC").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(2, 1, nil, "second", true, nil, nil, now, now, nil, 0).
			AddRow(1, 1, 3, "first", false, "ok", now, now.Add(-time.Minute), now, "Alice", 2))

	messages, err := repo.ListByCourse(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, models.AnonymousName, messages[0].Author())
	assert.Equal(t, "Alice", messages[1].Author())
	assert.Equal(t, 2, messages[1].CommentsCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageReply(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMessageRepository(db)

	now := time.Now()
	mock.ExpectQuery("UPDATE messages SET reply = \\$2, replied_at = NOW\\(\\)").
		WithArgs(int64(1), "Will slow down").
		WillReturnRows(sqlmock.NewRows(messageRowColumns).AddRow(1, 1, nil, "Too fast!", true, "Will slow down", now, now, now))

	msg, err := repo.Reply(context.Background(), 1, "Will slow down")
	require.NoError(t, err)
	require.NotNil(t, msg.Reply)
	assert.Equal(t, "Will slow down", *msg.Reply)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageReplyMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMessageRepository(db)

	mock.ExpectQuery("UPDATE messages SET reply").WillReturnRows(sqlmock.NewRows(messageRowColumns))

	_, err := repo.Reply(context.Background(), 404, "x")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestCommentCreateAndList(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCommentRepository(db)

	now := time.Now()
	commentCols := []string{"id", "message_id", "guest_name", "content", "created_at"}
	mock.ExpectQuery("INSERT INTO comments").
		WithArgs(int64(1), nil, "Agreed").
		WillReturnRows(sqlmock.NewRows(commentCols).AddRow(1, 1, nil, "Agreed", now))
	mock.ExpectQuery("WHERE message_id = ANY\\(\\$1\\) ORDER BY created_at ASC").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(commentCols).AddRow(1, 1, nil, "Agreed", now))

	comment := &models.Comment{MessageID: 1, Content: "Agreed"}
	require.NoError(t, repo.Create(context.Background(), comment))
	assert.Equal(t, int64(1), comment.ID)
	assert.Equal(t, models.AnonymousName, comment.DisplayName())

	comments, err := repo.ListByMessages(context.Background(), []int64{1})
	require.NoError(t, err)
	assert.Len(t, comments, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommentListEmptyInput(t *testing.T) {
	db, _, cleanup := newMock(t)
	defer cleanup()
	repo := NewCommentRepository(db)

	comments, err := repo.ListByMessages(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, comments)
}
