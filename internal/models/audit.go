package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionRegister  = "REGISTER"
	AuditActionLogin     = "LOGIN"
	AuditActionLogout    = "LOGOUT"
	AuditActionRefresh   = "TOKEN_REFRESH"
	AuditActionReply     = "MESSAGE_REPLY"
	AuditActionPinRotate = "COURSE_PIN_ROTATE"
	AuditActionExport    = "COURSE_EXPORT"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *int64    `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"-"`
	NewValues  []byte    `db:"new_values" json:"-"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// AuditFilter pages through the audit trail.
type AuditFilter struct {
	Action   string
	Page     int
	PageSize int
}
