package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-feedback-api/internal/models"
	appErrors "github.com/noah-isme/course-feedback-api/pkg/errors"
	"github.com/noah-isme/course-feedback-api/pkg/response"
)

// ContextUserKey is the gin context key storing the authenticated principal.
const ContextUserKey = "currentUser"

// LoginPath is where the session surface sends unauthenticated browsers.
const LoginPath = "/web/login"

// CredentialVerifier turns request credentials into a principal. Each deployment
// surface picks one implementation; Reject renders failures the way that surface expects.
type CredentialVerifier interface {
	Verify(c *gin.Context) (*models.Principal, error)
	Reject(c *gin.Context, err error)
}

// Authenticate resolves the principal with verifier and checks it holds one of roles.
// With no roles any authenticated principal passes.
func Authenticate(verifier CredentialVerifier, roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := verifier.Verify(c)
		if err != nil {
			verifier.Reject(c, err)
			c.Abort()
			return
		}
		c.Set(ContextUserKey, principal)
		if len(roles) > 0 && !principal.HasRole(roles...) {
			verifier.Reject(c, appErrors.Clone(appErrors.ErrForbidden, "role "+string(principal.Role)+" cannot access this resource"))
			c.Abort()
		}
	}
}

// PrincipalFrom returns the principal stored by Authenticate.
func PrincipalFrom(c *gin.Context) (*models.Principal, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	principal, ok := value.(*models.Principal)
	return principal, ok && principal != nil
}

type tokenValidator interface {
	ValidateToken(tokenString string) (*models.JWTClaims, error)
}

// BearerVerifier validates stateless JWT access tokens from the Authorization header.
type BearerVerifier struct {
	tokens tokenValidator
}

// NewBearerVerifier constructs a bearer verifier.
func NewBearerVerifier(tokens tokenValidator) *BearerVerifier {
	return &BearerVerifier{tokens: tokens}
}

// Verify implements CredentialVerifier.
func (v *BearerVerifier) Verify(c *gin.Context) (*models.Principal, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing bearer token")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")
	}
	claims, err := v.tokens.ValidateToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, err
	}
	return claims.Principal(), nil
}

// Reject writes the error envelope.
func (v *BearerVerifier) Reject(c *gin.Context, err error) {
	response.Error(c, err)
}

type sessionResolver interface {
	ResolveSession(ctx context.Context, sessionID string) (*models.Principal, error)
}

// SessionVerifier authenticates browsers by the session id carried in a signed cookie.
// Failures redirect instead of returning an error body.
type SessionVerifier struct {
	cookies  *SessionCookies
	sessions sessionResolver
}

// NewSessionVerifier constructs a session verifier.
func NewSessionVerifier(cookies *SessionCookies, sessions sessionResolver) *SessionVerifier {
	return &SessionVerifier{cookies: cookies, sessions: sessions}
}

// Verify implements CredentialVerifier.
func (v *SessionVerifier) Verify(c *gin.Context) (*models.Principal, error) {
	sessionID := v.cookies.SessionID(c)
	if sessionID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing session")
	}
	principal, err := v.sessions.ResolveSession(c.Request.Context(), sessionID)
	if err != nil {
		return nil, err
	}
	return principal, nil
}

// Reject redirects to the login page, or to the principal's home page when the
// principal is known but lacks the role. Server faults still return the envelope.
func (v *SessionVerifier) Reject(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	switch {
	case errors.Is(appErr, appErrors.ErrForbidden):
		target := LoginPath
		if principal, ok := PrincipalFrom(c); ok {
			target = principal.Role.HomePath()
		}
		_ = c.Error(err)
		c.Redirect(http.StatusSeeOther, target)
	case appErr.Status == http.StatusUnauthorized:
		v.cookies.Clear(c)
		_ = c.Error(err)
		c.Redirect(http.StatusSeeOther, LoginPath)
	default:
		response.Error(c, err)
	}
}
