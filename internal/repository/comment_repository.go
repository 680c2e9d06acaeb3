package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/course-feedback-api/internal/models"
)

// CommentRepository persists guest comments.
type CommentRepository struct {
	db *sqlx.DB
}

// NewCommentRepository constructs the repository.
func NewCommentRepository(db *sqlx.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

// Create inserts a comment with a single statement.
func (r *CommentRepository) Create(ctx context.Context, comment *models.Comment) error {
	const query = `INSERT INTO comments (message_id, guest_name, content) VALUES ($1, $2, $3)
RETURNING id, message_id, guest_name, content, created_at`
	if err := r.db.GetContext(ctx, comment, query, comment.MessageID, comment.GuestName, comment.Content); err != nil {
		return fmt.Errorf("create comment: %w", classify(err))
	}
	return nil
}

// ListByMessages returns comments for the given messages, oldest first.
func (r *CommentRepository) ListByMessages(ctx context.Context, messageIDs []int64) ([]models.Comment, error) {
	comments := make([]models.Comment, 0)
	if len(messageIDs) == 0 {
		return comments, nil
	}
	const query = `SELECT id, message_id, guest_name, content, created_at FROM comments
WHERE message_id = ANY($1) ORDER BY created_at ASC, id ASC`
	if err := r.db.SelectContext(ctx, &comments, query, pq.Array(messageIDs)); err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}
