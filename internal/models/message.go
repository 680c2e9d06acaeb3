package models

import "time"

// Message is student feedback on a course with an optional lecturer reply.
type Message struct {
	ID          int64      `db:"id" json:"id"`
	CourseID    int64      `db:"course_id" json:"course_id"`
	StudentID   *int64     `db:"student_id" json:"student_id,omitempty"`
	Content     string     `db:"content" json:"content"`
	IsAnonymous bool       `db:"is_anonymous" json:"is_anonymous"`
	Reply       *string    `db:"reply" json:"reply"`
	RepliedAt   *time.Time `db:"replied_at" json:"replied_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// MessageView is a message joined with its author name and comment count.
type MessageView struct {
	Message
	AuthorName    *string `db:"author_name" json:"author_name,omitempty"`
	CommentsCount int     `db:"comments_count" json:"comments_count"`
}

// Author returns the display name of the message author.
func (m MessageView) Author() string {
	if m.IsAnonymous || m.AuthorName == nil || *m.AuthorName == "" {
		return AnonymousName
	}
	return *m.AuthorName
}

// SendMessageRequest is submitted by a student.
type SendMessageRequest struct {
	CourseID    int64  `json:"course_id" validate:"required,gt=0"`
	Content     string `json:"content"`
	IsAnonymous bool   `json:"is_anonymous"`
}

// ReplyRequest carries a lecturer reply.
type ReplyRequest struct {
	MessageID    int64  `json:"messageId" form:"messageId"`
	ReplyContent string `json:"replyContent" form:"replyContent"`
}

// AnonymousName is displayed where no author or guest name is known.
const AnonymousName = "Anonym"

// Comment is a guest remark attached to a message.
type Comment struct {
	ID        int64     `db:"id" json:"id"`
	MessageID int64     `db:"message_id" json:"message_id"`
	GuestName *string   `db:"guest_name" json:"guest_name"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DisplayName falls back to AnonymousName when the guest left no name.
func (c Comment) DisplayName() string {
	if c.GuestName == nil || *c.GuestName == "" {
		return AnonymousName
	}
	return *c.GuestName
}

// AddCommentRequest is submitted by an authorized guest.
type AddCommentRequest struct {
	GuestName *string `json:"guest_name" validate:"omitempty,max=100"`
	Content   string  `json:"content"`
}

// BoardComment is a comment as shown on the guest board.
type BoardComment struct {
	ID        int64     `json:"id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// BoardMessage is a message as shown on the guest board.
type BoardMessage struct {
	ID        int64          `json:"id"`
	Content   string         `json:"content"`
	Reply     *string        `json:"reply"`
	RepliedAt *time.Time     `json:"replied_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Comments  []BoardComment `json:"comments"`
}

// Board is the guest view of a course.
type Board struct {
	CourseID   int64          `json:"course_id"`
	CourseCode string         `json:"course_code"`
	CourseName string         `json:"course_name"`
	Messages   []BoardMessage `json:"messages"`
}

// PinAuthorization is returned after a successful PIN check.
type PinAuthorization struct {
	CourseID     int64     `json:"course_id"`
	GuestSession string    `json:"guest_session"`
	ExpiresAt    time.Time `json:"expires_at"`
}
