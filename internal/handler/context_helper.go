package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-feedback-api/internal/middleware"
	"github.com/noah-isme/course-feedback-api/internal/models"
	"github.com/noah-isme/course-feedback-api/internal/service"
	appErrors "github.com/noah-isme/course-feedback-api/pkg/errors"
	"github.com/noah-isme/course-feedback-api/pkg/router"
)

func principalFromContext(c *gin.Context) (*models.Principal, error) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "")
	}
	return principal, nil
}

// pathID parses a numeric route placeholder.
func pathID(c *gin.Context, name string) (int64, error) {
	return parseID(router.Param(c, name), name)
}

func parseID(raw, name string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, name+" must be a positive integer")
	}
	return id, nil
}

func requestMeta(c *gin.Context) service.RequestMeta {
	return service.RequestMeta{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
}

func routerToken(c *gin.Context) string {
	return router.Param(c, "token")
}
