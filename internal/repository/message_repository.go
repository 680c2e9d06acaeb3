package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-feedback-api/internal/models"
)

const messageColumns = `id, course_id, student_id, content, is_anonymous, reply, replied_at, created_at, updated_at`

const messageViewSelect = `SELECT m.id, m.course_id, m.student_id, m.content, m.is_anonymous, m.reply, m.replied_at, m.created_at, m.updated_at,
CASE WHEN m.is_anonymous THEN NULL ELSE u.full_name END AS author_name,
(SELECT COUNT(*) FROM comments cm WHERE cm.message_id = m.id) AS comments_count
FROM messages m LEFT JOIN users u ON u.id = m.student_id`

// MessageRepository persists course messages and replies.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository constructs the repository.
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts a message in a single statement. A missing course surfaces as
// ErrMissingReference.
func (r *MessageRepository) Create(ctx context.Context, msg *models.Message) error {
	const query = `INSERT INTO messages (course_id, student_id, content, is_anonymous) VALUES ($1, $2, $3, $4)
RETURNING ` + messageColumns
	if err := r.db.GetContext(ctx, msg, query, msg.CourseID, msg.StudentID, msg.Content, msg.IsAnonymous); err != nil {
		return fmt.Errorf("create message: %w", classify(err))
	}
	return nil
}

// FindByID returns a message by id.
func (r *MessageRepository) FindByID(ctx context.Context, id int64) (*models.Message, error) {
	const query = `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`
	var msg models.Message
	if err := r.db.GetContext(ctx, &msg, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find message: %w", err)
	}
	return &msg, nil
}

// ListByCourse returns course messages newest first.
func (r *MessageRepository) ListByCourse(ctx context.Context, courseID int64) ([]models.MessageView, error) {
	const query = messageViewSelect + ` WHERE m.course_id = $1 ORDER BY m.created_at DESC, m.id DESC`
	messages := make([]models.MessageView, 0)
	if err := r.db.SelectContext(ctx, &messages, query, courseID); err != nil {
		return nil, fmt.Errorf("list course messages: %w", err)
	}
	return messages, nil
}

// ListByStudent returns a student's named messages newest first.
func (r *MessageRepository) ListByStudent(ctx context.Context, studentID int64) ([]models.MessageView, error) {
	const query = messageViewSelect + ` WHERE m.student_id = $1 ORDER BY m.created_at DESC, m.id DESC`
	messages := make([]models.MessageView, 0)
	if err := r.db.SelectContext(ctx, &messages, query, studentID); err != nil {
		return nil, fmt.Errorf("list student messages: %w", err)
	}
	return messages, nil
}

// Reply overwrites the reply in one statement; the last writer wins.
func (r *MessageRepository) Reply(ctx context.Context, id int64, reply string) (*models.Message, error) {
	const query = `UPDATE messages SET reply = $2, replied_at = NOW(), updated_at = NOW() WHERE id = $1
RETURNING ` + messageColumns
	var msg models.Message
	if err := r.db.GetContext(ctx, &msg, query, id, reply); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("reply to message: %w", err)
	}
	return &msg, nil
}
