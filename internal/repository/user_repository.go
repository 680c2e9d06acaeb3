package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-feedback-api/internal/models"
)

const userColumns = `id, email, password_hash, full_name, role, active, last_login, created_at, updated_at`

// UserRepository provides database access for users, their role extensions,
// refresh tokens and the audit trail.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, strings.ToLower(email)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// CreateWithProfile inserts the user and its role extension in one transaction.
// Exactly one of student or lecturer may be set; guests have neither.
func (r *UserRepository) CreateWithProfile(ctx context.Context, user *models.User, student *models.Student, lecturer *models.Lecturer) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin user transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	user.Email = strings.ToLower(user.Email)
	user.CreatedAt, user.UpdatedAt = now, now
	const insertUser = `INSERT INTO users (email, password_hash, full_name, role, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	if err = tx.QueryRowxContext(ctx, insertUser, user.Email, user.PasswordHash, user.FullName, user.Role, user.Active, now, now).Scan(&user.ID); err != nil {
		return fmt.Errorf("insert user: %w", classify(err))
	}

	switch {
	case student != nil:
		student.UserID = user.ID
		const insertStudent = `INSERT INTO students (user_id, study_program, cohort_year) VALUES ($1, $2, $3)`
		if _, err = tx.ExecContext(ctx, insertStudent, student.UserID, student.StudyProgram, student.CohortYear); err != nil {
			return fmt.Errorf("insert student: %w", classify(err))
		}
	case lecturer != nil:
		lecturer.UserID = user.ID
		const insertLecturer = `INSERT INTO lecturers (user_id, profile_image_key) VALUES ($1, $2)`
		if _, err = tx.ExecContext(ctx, insertLecturer, lecturer.UserID, lecturer.ProfileImageKey); err != nil {
			return fmt.Errorf("insert lecturer: %w", classify(err))
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit user: %w", err)
	}
	return nil
}

// EnsureAdmin inserts an admin account unless the email is already taken.
// It reports whether a row was created.
func (r *UserRepository) EnsureAdmin(ctx context.Context, email, passwordHash, fullName string) (bool, error) {
	const query = `INSERT INTO users (email, password_hash, full_name, role, active) VALUES ($1, $2, $3, 'admin', TRUE)
ON CONFLICT (email) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, strings.ToLower(email), passwordHash, fullName)
	if err != nil {
		return false, fmt.Errorf("ensure admin: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ensure admin rows: %w", err)
	}
	return n > 0, nil
}

// FindStudent returns the student extension for a user.
func (r *UserRepository) FindStudent(ctx context.Context, userID int64) (*models.Student, error) {
	const query = `SELECT user_id, study_program, cohort_year FROM students WHERE user_id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	return &student, nil
}

// FindLecturer returns the lecturer extension for a user.
func (r *UserRepository) FindLecturer(ctx context.Context, userID int64) (*models.Lecturer, error) {
	const query = `SELECT user_id, profile_image_key FROM lecturers WHERE user_id = $1`
	var lecturer models.Lecturer
	if err := r.db.GetContext(ctx, &lecturer, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find lecturer: %w", err)
	}
	return &lecturer, nil
}

// UpdateLecturerImage stores a new profile image key and returns the previous one.
func (r *UserRepository) UpdateLecturerImage(ctx context.Context, userID int64, key string) (*string, error) {
	const query = `UPDATE lecturers l SET profile_image_key = $2
FROM (SELECT user_id, profile_image_key FROM lecturers WHERE user_id = $1 FOR UPDATE) prev
WHERE l.user_id = prev.user_id
RETURNING prev.profile_image_key`
	var previous *string
	if err := r.db.GetContext(ctx, &previous, query, userID, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("update lecturer image: %w", err)
	}
	return previous, nil
}

// UpdateLastLogin updates the last_login timestamp for a user.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id int64, ts time.Time) error {
	const query = `UPDATE users SET last_login = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// List returns users based on filters with total count.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	baseQuery := `FROM users WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, *filter.Role)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(email) LIKE $%d OR LOWER(full_name) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]bool{"email": true, "created_at": true, "full_name": true, "role": true}
	sortBy := filter.SortBy
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}
	page, pageSize := normalizePage(filter.Page, filter.PageSize)

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", userColumns, baseQuery, sortBy, sortOrder, pageSize, (page-1)*pageSize)
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	return users, total, nil
}

// CreateRefreshToken persists a refresh token entry.
func (r *UserRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent) VALUES (:id, :user_id, :token, :expires_at, :created_at, :revoked, :revoked_at, :ip_address, :user_agent)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken returns a refresh token by token string.
func (r *UserRepository) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const query = `SELECT id, user_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent FROM refresh_tokens WHERE token = $1 LIMIT 1`
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &rt, nil
}

// RevokeRefreshToken marks a token as revoked. It reports false when the token
// was already revoked, which lets rotation detect concurrent reuse.
func (r *UserRepository) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) (bool, error) {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1 AND revoked = FALSE`
	res, err := r.db.ExecContext(ctx, query, id, revokedAt)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke refresh token rows: %w", err)
	}
	return n > 0, nil
}

// CreateAuditLog stores an audit log entry.
func (r *UserRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at) VALUES (:id, :user_id, :action, :resource, :resource_id, :old_values, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

// ListAuditLogs returns the newest audit entries first.
func (r *UserRepository) ListAuditLogs(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error) {
	where := ""
	var args []interface{}
	if filter.Action != "" {
		where = " WHERE action = $1"
		args = append(args, strings.ToUpper(filter.Action))
	}
	page, pageSize := normalizePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at FROM audit_logs%s ORDER BY created_at DESC LIMIT %d OFFSET %d`, where, pageSize, (page-1)*pageSize)
	var logs []models.AuditLog
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM audit_logs"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}
	return logs, total, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
