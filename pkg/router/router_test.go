package router

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tagHandler(tag string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, tag)
	}
}

func TestMatchFirstDeclaredRouteWins(t *testing.T) {
	table, err := NewTable(
		Route{Method: http.MethodGet, Pattern: "/courses/{id}", Name: "general", Handlers: []gin.HandlerFunc{tagHandler("general")}},
		Route{Method: http.MethodGet, Pattern: "/courses/archived", Name: "specific", Handlers: []gin.HandlerFunc{tagHandler("specific")}},
	)
	require.NoError(t, err)

	match, err := table.Match(http.MethodGet, "/courses/archived")
	require.NoError(t, err)
	assert.Equal(t, "general", match.Route.Name)
	assert.Equal(t, []string{"archived"}, match.Params)

	reordered, err := NewTable(
		Route{Method: http.MethodGet, Pattern: "/courses/archived", Name: "specific", Handlers: []gin.HandlerFunc{tagHandler("specific")}},
		Route{Method: http.MethodGet, Pattern: "/courses/{id}", Name: "general", Handlers: []gin.HandlerFunc{tagHandler("general")}},
	)
	require.NoError(t, err)

	match, err = reordered.Match(http.MethodGet, "/courses/archived")
	require.NoError(t, err)
	assert.Equal(t, "specific", match.Route.Name)
	assert.Empty(t, match.Params)
}

func TestMatchCapturesParamsInPatternOrder(t *testing.T) {
	table := MustTable(Route{
		Method:   http.MethodGet,
		Pattern:  "/courses/{course}/messages/{message}",
		Handlers: []gin.HandlerFunc{tagHandler("ok")},
	})

	match, err := table.Match(http.MethodGet, "/courses/CS101/messages/42?expand=comments")
	require.NoError(t, err)
	assert.Equal(t, []string{"CS101", "42"}, match.Params)
	assert.Equal(t, "42", match.Param("message"))
	assert.Equal(t, "", match.Param("missing"))
}

func TestMatchPlaceholderIsSingleSegment(t *testing.T) {
	table := MustTable(Route{Method: http.MethodGet, Pattern: "/courses/{id}", Handlers: []gin.HandlerFunc{tagHandler("ok")}})

	_, err := table.Match(http.MethodGet, "/courses/1/messages")
	assert.ErrorIs(t, err, ErrRouteNotFound)

	_, err = table.Match(http.MethodGet, "/courses/")
	assert.ErrorIs(t, err, ErrRouteNotFound)
}

func TestMatchLiteralCharactersAreEscaped(t *testing.T) {
	table := MustTable(Route{Method: http.MethodGet, Pattern: "/files/{name}.csv", Handlers: []gin.HandlerFunc{tagHandler("ok")}})

	match, err := table.Match(http.MethodGet, "/files/report.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"report"}, match.Params)

	_, err = table.Match(http.MethodGet, "/files/reportxcsv")
	assert.ErrorIs(t, err, ErrRouteNotFound)
}

func TestMatchMethodIsExact(t *testing.T) {
	table := MustTable(
		Route{Method: http.MethodGet, Pattern: "/courses", Handlers: []gin.HandlerFunc{tagHandler("list")}},
		Route{Method: http.MethodPost, Pattern: "/courses", Handlers: []gin.HandlerFunc{tagHandler("create")}},
	)

	_, err := table.Match(http.MethodHead, "/courses")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMethodNotAllowed)

	var notAllowed *MethodNotAllowedError
	require.True(t, errors.As(err, &notAllowed))
	assert.Equal(t, []string{http.MethodGet, http.MethodPost}, notAllowed.Allowed)

	_, err = table.Match(http.MethodGet, "/unknown")
	assert.ErrorIs(t, err, ErrRouteNotFound)
}

func TestNewTableRejectsMalformedPatterns(t *testing.T) {
	cases := []string{
		"/courses/{id",
		"/courses/id}",
		"/courses/{}",
		"/courses/{a{b}}",
		"/courses/{1id}",
		"/courses/{id}/{id}",
		"courses",
	}
	for _, pattern := range cases {
		t.Run(pattern, func(t *testing.T) {
			_, err := NewTable(Route{Method: http.MethodGet, Pattern: pattern, Handlers: []gin.HandlerFunc{tagHandler("x")}})
			assert.ErrorIs(t, err, ErrInvalidPattern)
		})
	}

	_, err := NewTable(Route{Method: "get", Pattern: "/x", Handlers: []gin.HandlerFunc{tagHandler("x")}})
	assert.ErrorIs(t, err, ErrInvalidPattern)

	_, err = NewTable(Route{Method: http.MethodGet, Pattern: "/x"})
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func TestDispatchRunsChainUntilAbort(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var reached bool
	table := MustTable(
		Route{Method: http.MethodGet, Pattern: "/open/{id}", Handlers: []gin.HandlerFunc{func(c *gin.Context) {
			c.String(http.StatusOK, Param(c, "id")+"|"+Pattern(c))
		}}},
		Route{Method: http.MethodGet, Pattern: "/closed", Handlers: []gin.HandlerFunc{
			func(c *gin.Context) { c.AbortWithStatus(http.StatusUnauthorized) },
			func(c *gin.Context) { reached = true },
		}},
	)

	engine := gin.New()
	engine.NoRoute(table.Dispatch())

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/open/7", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "7|/open/{id}", w.Body.String())

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/closed", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, reached)
}

func TestDispatchWritesEnvelopeForMisses(t *testing.T) {
	gin.SetMode(gin.TestMode)
	table := MustTable(Route{Method: http.MethodPost, Pattern: "/items", Handlers: []gin.HandlerFunc{tagHandler("ok")}})
	engine := gin.New()
	engine.NoRoute(table.Dispatch())

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, http.MethodPost, w.Header().Get("Allow"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "METHOD_NOT_ALLOWED", body["code"])

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nothing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
