package models

import "time"

// Course is a lecturer-owned feedback channel. PinCode never leaves the server
// except to its owner.
type Course struct {
	ID         int64     `db:"id" json:"id"`
	Code       string    `db:"code" json:"code"`
	Name       string    `db:"name" json:"name"`
	PinCode    string    `db:"pin_code" json:"-"`
	LecturerID int64     `db:"lecturer_id" json:"lecturer_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// OwnedCourse is the lecturer's own view of a course, including its PIN.
type OwnedCourse struct {
	Course
	PinCode string `json:"pin_code"`
}

// NewOwnedCourse exposes the pin for the owning lecturer.
func NewOwnedCourse(c Course) OwnedCourse {
	return OwnedCourse{Course: c, PinCode: c.PinCode}
}

// CreateCourseRequest is the payload for a new course.
type CreateCourseRequest struct {
	Code    string `json:"code" validate:"required,max=32"`
	Name    string `json:"name" validate:"required,max=255"`
	PinCode string `json:"pin_code" validate:"required,number,min=4,max=6"`
}

// RotatePinRequest replaces a course PIN.
type RotatePinRequest struct {
	PinCode string `json:"pin_code" validate:"required,number,min=4,max=6"`
}
