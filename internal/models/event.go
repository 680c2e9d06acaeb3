package models

import "time"

// Event types published on the lifecycle exchange.
const (
	EventMessageSent    = "message.sent"
	EventMessageReplied = "message.replied"
	EventCommentAdded   = "comment.added"
)

// Event describes a state change in the message workflow.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	CourseID   int64     `json:"course_id"`
	MessageID  int64     `json:"message_id"`
	CommentID  int64     `json:"comment_id,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
