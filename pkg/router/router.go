// Package router implements an ordered route table with first-match resolution.
//
// Patterns are literal paths that may embed {name} placeholders, each matching exactly
// one path segment. Routes are tried in the order they were declared and the first
// pattern that matches the whole path with the same method wins, regardless of how
// specific later routes are. Declare specific routes before general ones.
package router

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/course-feedback-api/pkg/errors"
	"github.com/noah-isme/course-feedback-api/pkg/response"
)

const (
	paramsKey  = "router.params"
	namesKey   = "router.param_names"
	patternKey = "router.pattern"
	nameKey    = "router.name"

	segmentExpr = `([^/]+)`
)

var (
	// ErrInvalidPattern is returned by NewTable for malformed route declarations.
	ErrInvalidPattern = errors.New("router: invalid route")
	// ErrRouteNotFound signals that no pattern matched the path.
	ErrRouteNotFound = errors.New("router: route not found")
	// ErrMethodNotAllowed signals that a pattern matched but none with the request method.
	ErrMethodNotAllowed = errors.New("router: method not allowed")

	identifierExpr = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Route is a single entry of the route table.
type Route struct {
	Method   string
	Pattern  string
	Name     string
	Handlers []gin.HandlerFunc
}

// MethodNotAllowedError carries the methods registered for a matched path.
type MethodNotAllowedError struct {
	Path    string
	Allowed []string
}

func (e *MethodNotAllowedError) Error() string {
	return fmt.Sprintf("router: method not allowed for %s (allowed: %s)", e.Path, strings.Join(e.Allowed, ", "))
}

// Is reports ErrMethodNotAllowed equivalence.
func (e *MethodNotAllowedError) Is(target error) bool {
	return target == ErrMethodNotAllowed
}

// Match is the result of a successful lookup.
type Match struct {
	Route  Route
	Params []string
	names  []string
}

// Param returns the captured value for the named placeholder.
func (m *Match) Param(name string) string {
	for i, n := range m.names {
		if n == name && i < len(m.Params) {
			return m.Params[i]
		}
	}
	return ""
}

type compiledRoute struct {
	route Route
	expr  *regexp.Regexp
	names []string
}

// Table is an immutable, ordered set of routes. It is safe for concurrent use.
type Table struct {
	routes []compiledRoute
}

// NewTable compiles routes in declaration order. Any malformed route fails the whole table.
func NewTable(routes ...Route) (*Table, error) {
	compiled := make([]compiledRoute, 0, len(routes))
	for i, r := range routes {
		if r.Method == "" || strings.ToUpper(r.Method) != r.Method {
			return nil, fmt.Errorf("%w: route %d (%s): method must be a non-empty upper-case verb", ErrInvalidPattern, i, r.Pattern)
		}
		if len(r.Handlers) == 0 {
			return nil, fmt.Errorf("%w: route %d (%s %s): no handlers", ErrInvalidPattern, i, r.Method, r.Pattern)
		}
		expr, names, err := compilePattern(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: route %d (%s %s): %v", ErrInvalidPattern, i, r.Method, r.Pattern, err)
		}
		handlers := make([]gin.HandlerFunc, len(r.Handlers))
		copy(handlers, r.Handlers)
		r.Handlers = handlers
		compiled = append(compiled, compiledRoute{route: r, expr: expr, names: names})
	}
	return &Table{routes: compiled}, nil
}

// MustTable is NewTable that panics on error. Intended for process start-up.
func MustTable(routes ...Route) *Table {
	t, err := NewTable(routes...)
	if err != nil {
		panic(err)
	}
	return t
}

// Routes returns a copy of the declared routes in order.
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	for i, r := range t.routes {
		out[i] = r.route
	}
	return out
}

// Match resolves a method and path. Any query string on path is ignored.
func (t *Table) Match(method, path string) (*Match, error) {
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}

	var allowed []string
	for i := range t.routes {
		r := &t.routes[i]
		groups := r.expr.FindStringSubmatch(path)
		if groups == nil {
			continue
		}
		if r.route.Method != method {
			allowed = appendUnique(allowed, r.route.Method)
			continue
		}
		params := make([]string, len(groups)-1)
		copy(params, groups[1:])
		return &Match{Route: r.route, Params: params, names: r.names}, nil
	}

	if len(allowed) > 0 {
		sort.Strings(allowed)
		return nil, &MethodNotAllowedError{Path: path, Allowed: allowed}
	}
	return nil, ErrRouteNotFound
}

// Dispatch returns a gin handler that resolves the request against the table and runs
// the matched route's handlers in order, stopping once one of them aborts.
// Route handlers must not call c.Next.
func (t *Table) Dispatch() gin.HandlerFunc {
	return func(c *gin.Context) {
		match, err := t.Match(c.Request.Method, c.Request.URL.Path)
		if err != nil {
			var notAllowed *MethodNotAllowedError
			if errors.As(err, &notAllowed) {
				c.Header("Allow", strings.Join(notAllowed.Allowed, ", "))
				response.Error(c, appErrors.Wrap(err, appErrors.ErrMethodNotAllowed.Code, http.StatusMethodNotAllowed, appErrors.ErrMethodNotAllowed.Message))
			} else {
				response.Error(c, appErrors.Wrap(err, appErrors.ErrRouteNotFound.Code, http.StatusNotFound, appErrors.ErrRouteNotFound.Message))
			}
			c.Abort()
			return
		}

		c.Set(paramsKey, match.Params)
		c.Set(namesKey, match.names)
		c.Set(patternKey, match.Route.Pattern)
		c.Set(nameKey, match.Route.Name)

		for _, h := range match.Route.Handlers {
			h(c)
			if c.IsAborted() {
				return
			}
		}
	}
}

// Params returns the placeholder values captured for the current request, in pattern order.
func Params(c *gin.Context) []string {
	if v, ok := c.Get(paramsKey); ok {
		if params, ok := v.([]string); ok {
			return params
		}
	}
	return nil
}

// Param returns a captured placeholder value by name.
func Param(c *gin.Context, name string) string {
	params := Params(c)
	v, ok := c.Get(namesKey)
	if !ok {
		return ""
	}
	names, _ := v.([]string)
	for i, n := range names {
		if n == name && i < len(params) {
			return params[i]
		}
	}
	return ""
}

// Pattern returns the matched route pattern, or "" when the table did not handle the request.
func Pattern(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(patternKey)
}

// Name returns the matched route name.
func Name(c *gin.Context) string {
	return c.GetString(nameKey)
}

func compilePattern(pattern string) (*regexp.Regexp, []string, error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, nil, errors.New("pattern must start with /")
	}

	var (
		b       strings.Builder
		names   []string
		literal strings.Builder
	)
	b.WriteString("^")

	flush := func() {
		if literal.Len() > 0 {
			b.WriteString(regexp.QuoteMeta(literal.String()))
			literal.Reset()
		}
	}

	for i := 0; i < len(pattern); i++ {
		switch ch := pattern[i]; ch {
		case '{':
			end := strings.IndexByte(pattern[i+1:], '}')
			if end < 0 {
				return nil, nil, fmt.Errorf("unclosed '{' at offset %d", i)
			}
			name := pattern[i+1 : i+1+end]
			if strings.ContainsRune(name, '{') {
				return nil, nil, fmt.Errorf("nested '{' at offset %d", i)
			}
			if !identifierExpr.MatchString(name) {
				return nil, nil, fmt.Errorf("invalid placeholder name %q", name)
			}
			for _, existing := range names {
				if existing == name {
					return nil, nil, fmt.Errorf("duplicate placeholder %q", name)
				}
			}
			flush()
			b.WriteString(segmentExpr)
			names = append(names, name)
			i += end + 1
		case '}':
			return nil, nil, fmt.Errorf("unbalanced '}' at offset %d", i)
		default:
			literal.WriteByte(ch)
		}
	}
	flush()
	b.WriteString("$")

	expr, err := regexp.Compile(b.String())
	if err != nil {
		return nil, nil, err
	}
	return expr, names, nil
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
