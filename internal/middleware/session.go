package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

const sessionIDValue = "sid"

// SessionCookies reads and writes the signed cookie that carries a web session id.
// The principal itself lives server-side.
type SessionCookies struct {
	store sessions.Store
	name  string
}

// NewSessionCookies builds a cookie codec signed with secret.
func NewSessionCookies(name, secret string, ttl time.Duration, secure bool) *SessionCookies {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	store.MaxAge(int(ttl.Seconds()))
	return &SessionCookies{store: store, name: name}
}

// SessionID returns the session id from the request cookie, or "" when absent or tampered.
func (s *SessionCookies) SessionID(c *gin.Context) string {
	session, err := s.store.Get(c.Request, s.name)
	if err != nil {
		return ""
	}
	id, _ := session.Values[sessionIDValue].(string)
	return id
}

// Save writes the session id cookie.
func (s *SessionCookies) Save(c *gin.Context, sessionID string) error {
	session, _ := s.store.Get(c.Request, s.name)
	session.Values[sessionIDValue] = sessionID
	return session.Save(c.Request, c.Writer)
}

// Clear expires the cookie.
func (s *SessionCookies) Clear(c *gin.Context) {
	session, _ := s.store.Get(c.Request, s.name)
	session.Options.MaxAge = -1
	delete(session.Values, sessionIDValue)
	_ = session.Save(c.Request, c.Writer)
}
