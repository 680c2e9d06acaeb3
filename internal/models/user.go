package models

import "time"

// User represents an application user stored in the users table.
type User struct {
	ID           int64      `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         Role       `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Principal derives the request identity for the user.
func (u *User) Principal() *Principal {
	return &Principal{UserID: u.ID, Role: u.Role, Email: u.Email, FullName: u.FullName}
}

// Student is the student extension of a user row.
type Student struct {
	UserID       int64  `db:"user_id" json:"user_id"`
	StudyProgram string `db:"study_program" json:"study_program"`
	CohortYear   int    `db:"cohort_year" json:"cohort_year"`
}

// Lecturer is the lecturer extension of a user row.
type Lecturer struct {
	UserID          int64   `db:"user_id" json:"user_id"`
	ProfileImageKey *string `db:"profile_image_key" json:"-"`
}

// Profile is a user with its role-specific extension.
type Profile struct {
	User            User     `json:"user"`
	Student         *Student `json:"student,omitempty"`
	ProfileImageURL string   `json:"profile_image_url,omitempty"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *Role
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
