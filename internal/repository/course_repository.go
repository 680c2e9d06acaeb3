package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-feedback-api/internal/models"
)

// Unique constraint names on the courses table.
const (
	ConstraintCourseCode = "courses_code_key"
	ConstraintCoursePin  = "courses_pin_code_key"
)

const courseColumns = `id, code, name, pin_code, lecturer_id, created_at`

// CourseRepository manages course persistence.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// Create inserts a course and fills its id and creation time.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	const query = `INSERT INTO courses (code, name, pin_code, lecturer_id) VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	if err := r.db.QueryRowxContext(ctx, query, course.Code, course.Name, course.PinCode, course.LecturerID).Scan(&course.ID, &course.CreatedAt); err != nil {
		return fmt.Errorf("create course: %w", classify(err))
	}
	return nil
}

// FindByID fetches a course by id.
func (r *CourseRepository) FindByID(ctx context.Context, id int64) (*models.Course, error) {
	const query = `SELECT ` + courseColumns + ` FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return &course, nil
}

// FindByMessageID returns the course a message belongs to.
func (r *CourseRepository) FindByMessageID(ctx context.Context, messageID int64) (*models.Course, error) {
	const query = `SELECT c.id, c.code, c.name, c.pin_code, c.lecturer_id, c.created_at
FROM courses c JOIN messages m ON m.course_id = c.id WHERE m.id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, messageID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find course by message: %w", err)
	}
	return &course, nil
}

// List returns all courses ordered by code.
func (r *CourseRepository) List(ctx context.Context) ([]models.Course, error) {
	const query = `SELECT ` + courseColumns + ` FROM courses ORDER BY code`
	courses := make([]models.Course, 0)
	if err := r.db.SelectContext(ctx, &courses, query); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// ListByLecturer returns the courses owned by a lecturer.
func (r *CourseRepository) ListByLecturer(ctx context.Context, lecturerID int64) ([]models.Course, error) {
	const query = `SELECT ` + courseColumns + ` FROM courses WHERE lecturer_id = $1 ORDER BY code`
	courses := make([]models.Course, 0)
	if err := r.db.SelectContext(ctx, &courses, query, lecturerID); err != nil {
		return nil, fmt.Errorf("list lecturer courses: %w", err)
	}
	return courses, nil
}

// UpdatePin replaces the course PIN.
func (r *CourseRepository) UpdatePin(ctx context.Context, id int64, pin string) error {
	const query = `UPDATE courses SET pin_code = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, pin)
	if err != nil {
		return fmt.Errorf("update course pin: %w", classify(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
