package app

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-feedback-api/internal/middleware"
	"github.com/noah-isme/course-feedback-api/internal/models"
	"github.com/noah-isme/course-feedback-api/pkg/router"
)

// Routes builds the route table. Order matters: the first matching pattern wins.
func Routes(prefix string, d *Dependencies) (*router.Table, error) {
	bearer := func(roles ...models.Role) gin.HandlerFunc { return middleware.Authenticate(d.Bearer, roles...) }
	session := func(roles ...models.Role) gin.HandlerFunc { return middleware.Authenticate(d.Session, roles...) }
	route := func(method, pattern, name string, handlers ...gin.HandlerFunc) router.Route {
		return router.Route{Method: method, Pattern: pattern, Name: name, Handlers: handlers}
	}
	api := func(path string) string { return prefix + path }

	return router.NewTable(
		route(http.MethodGet, "/health", "health", d.System.Health),
		route(http.MethodGet, "/ready", "ready", d.System.Ready),
		route(http.MethodGet, "/metrics", "metrics", d.System.Prometheus),

		route(http.MethodPost, api("/auth/register"), "auth.register", d.Auth.Register),
		route(http.MethodPost, api("/auth/login"), "auth.login", d.Auth.Login),
		route(http.MethodPost, api("/auth/refresh"), "auth.refresh", d.Auth.Refresh),
		route(http.MethodPost, api("/auth/logout"), "auth.logout", bearer(), d.Auth.Logout),
		route(http.MethodGet, api("/auth/me"), "auth.me", bearer(), d.Auth.Me),

		route(http.MethodGet, api("/profile"), "profile.show", bearer(), d.Profile.Get),
		route(http.MethodPut, api("/lecturer/profile/image"), "profile.image", bearer(models.RoleLecturer), d.Profile.UploadImage),

		route(http.MethodGet, api("/courses"), "courses.index", bearer(), d.Course.List),
		route(http.MethodGet, api("/courses/{id}"), "courses.show", bearer(), d.Course.Get),

		route(http.MethodPost, api("/student/message/send"), "student.message.send", bearer(models.RoleStudent), d.Message.Send),
		route(http.MethodGet, api("/student/messages"), "student.messages", bearer(models.RoleStudent), d.Message.ListOwn),

		route(http.MethodGet, api("/lecturer/courses"), "lecturer.courses.index", bearer(models.RoleLecturer), d.Course.ListOwn),
		route(http.MethodPost, api("/lecturer/courses"), "lecturer.courses.store", bearer(models.RoleLecturer), d.Course.Create),
		route(http.MethodPut, api("/lecturer/courses/{id}/pin"), "lecturer.courses.pin", bearer(models.RoleLecturer), d.Course.RotatePin),
		route(http.MethodGet, api("/lecturer/courses/{id}/export"), "lecturer.courses.export", bearer(models.RoleLecturer), d.Course.Export),
		route(http.MethodGet, api("/lecturer/messages"), "lecturer.messages", bearer(models.RoleLecturer), d.Message.ListForCourse),
		route(http.MethodPost, api("/lecturer/message/reply"), "lecturer.message.reply",
			bearer(models.RoleLecturer), d.Message.Reply, middleware.Audit(d.Audit, models.AuditActionReply, "message")),

		route(http.MethodGet, api("/guest/authorize"), "guest.authorize", d.Guest.Authorize),
		route(http.MethodGet, api("/guest/courses/{id}/messages"), "guest.board", d.Guest.Board),
		route(http.MethodPost, api("/guest/messages/{id}/comments"), "guest.comment", d.Guest.AddComment),

		route(http.MethodGet, api("/exports/{token}"), "exports.download", d.Course.Download),
		route(http.MethodGet, api("/media/{token}"), "media.show", d.Profile.Media),

		route(http.MethodGet, api("/admin/users"), "admin.users", bearer(models.RoleAdmin), d.Admin.Users),
		route(http.MethodGet, api("/admin/courses"), "admin.courses", bearer(models.RoleAdmin), d.Admin.Courses),
		route(http.MethodGet, api("/admin/audit-logs"), "admin.audit", bearer(models.RoleAdmin), d.Admin.AuditLogs),
		route(http.MethodGet, api("/admin/metrics"), "admin.metrics", bearer(models.RoleAdmin), d.Admin.Metrics),

		route(http.MethodGet, middleware.LoginPath, "web.login.form", d.Web.LoginPage),
		route(http.MethodPost, middleware.LoginPath, "web.login", d.Web.Login),
		route(http.MethodPost, "/web/logout", "web.logout", session(), d.Web.Logout),
		route(http.MethodGet, "/web/dashboard", "web.dashboard", session(), d.Web.Dashboard),
		route(http.MethodGet, "/web/lecturer/courses/{id}/messages", "web.lecturer.messages", session(models.RoleLecturer), d.Web.CourseMessages),
		route(http.MethodPost, "/web/lecturer/messages/{id}/reply", "web.lecturer.reply",
			session(models.RoleLecturer), d.Web.Reply, middleware.Audit(d.Audit, models.AuditActionReply, "message")),
	)
}
