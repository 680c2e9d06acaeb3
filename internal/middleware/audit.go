package middleware

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-feedback-api/internal/models"
	"github.com/noah-isme/course-feedback-api/pkg/router"
)

// AuditWriter persists audit records.
type AuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// auditResourceKey lets handlers name the record the request touched.
const auditResourceKey = "audit_resource_id"

// SetAuditResource records the id of the resource affected by the request.
func SetAuditResource(c *gin.Context, id int64) {
	c.Set(auditResourceKey, strconv.FormatInt(id, 10))
}

// Audit returns a trailing route handler that records an audit log once the
// preceding handlers produced a successful response. Place it after the handler.
func Audit(repo AuditWriter, action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.Writer.Written() || c.Writer.Status() >= 400 {
			return
		}

		var userID *int64
		if principal, ok := PrincipalFrom(c); ok {
			id := principal.UserID
			userID = &id
		}
		var resourceID *string
		if id := c.GetString(auditResourceKey); id != "" {
			resourceID = &id
		}

		body, _ := json.Marshal(map[string]interface{}{
			"route":  router.Pattern(c),
			"method": c.Request.Method,
			"status": c.Writer.Status(),
		})

		_ = repo.CreateAuditLog(c.Request.Context(), &models.AuditLog{
			UserID:     userID,
			Action:     action,
			Resource:   resource,
			ResourceID: resourceID,
			NewValues:  body,
			IPAddress:  c.ClientIP(),
			UserAgent:  c.GetHeader("User-Agent"),
		})
	}
}
