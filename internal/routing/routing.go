// Package routing holds the route table mounted by the application: ordered
// (method, path, handler) entries joined under a common path prefix.
package routing

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNoRoutes is returned when a table is built without routes.
	ErrNoRoutes = errors.New("at least one route is required")
	// ErrUnresolvedHandler is returned when a route has a nil handler.
	ErrUnresolvedHandler = errors.New("route handler is not resolved")
	// ErrDuplicateRoute is returned when two routes claim the same method and path
	// or their patterns overlap with neither more specific.
	ErrDuplicateRoute = errors.New("duplicate route")
	// ErrInvalidRoute is returned for malformed methods, paths or prefixes.
	ErrInvalidRoute = errors.New("invalid route")
)

// Route binds an HTTP method and path to a handler.
type Route struct {
	Name    string
	Method  string
	Path    string
	Handler http.Handler
}

// Pattern returns the net/http ServeMux pattern for the route.
func (r Route) Pattern() string {
	return r.Method + " " + r.Path
}

func (r Route) label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Pattern()
}

// Table is a validated, prefix-resolved set of routes.
type Table struct {
	prefix string
	routes []Route
}

// NewTable validates routes and joins their paths with prefix.
func NewTable(prefix string, routes ...Route) (*Table, error) {
	prefix, err := NormalizePrefix(prefix)
	if err != nil {
		return nil, err
	}
	if len(routes) == 0 {
		return nil, ErrNoRoutes
	}

	seen := make(map[string]string, len(routes))
	claimed := http.NewServeMux()
	resolved := make([]Route, 0, len(routes))
	for _, r := range routes {
		if r.Handler == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnresolvedHandler, r.label())
		}
		method := strings.ToUpper(strings.TrimSpace(r.Method))
		if !isToken(method) {
			return nil, fmt.Errorf("%w: method %q of %s", ErrInvalidRoute, r.Method, r.label())
		}
		if !strings.HasPrefix(r.Path, "/") || strings.ContainsAny(r.Path, " \t\n") {
			return nil, fmt.Errorf("%w: path %q of %s must start with /", ErrInvalidRoute, r.Path, r.label())
		}

		full := Route{Name: r.Name, Method: method, Path: JoinPath(prefix, r.Path), Handler: r.Handler}
		if err := register(http.NewServeMux(), full); err != nil {
			return nil, fmt.Errorf("%w: path %q of %s: %v", ErrInvalidRoute, r.Path, r.label(), err)
		}
		if prev, dup := seen[full.Pattern()]; dup {
			return nil, fmt.Errorf("%w: %s registered by %s and %s", ErrDuplicateRoute, full.Pattern(), prev, r.label())
		}
		if err := register(claimed, full); err != nil {
			return nil, fmt.Errorf("%w: %s of %s: %v", ErrDuplicateRoute, full.Pattern(), r.label(), err)
		}
		seen[full.Pattern()] = r.label()
		resolved = append(resolved, full)
	}

	return &Table{prefix: prefix, routes: resolved}, nil
}

// Prefix returns the normalised prefix.
func (t *Table) Prefix() string {
	return t.prefix
}

// Routes returns a copy of the resolved routes in registration order.
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// register adds r to mux, turning the ServeMux panic on a malformed or
// conflicting pattern into an error.
func register(mux *http.ServeMux, r Route) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%v", rec)
		}
	}()
	mux.Handle(r.Pattern(), r.Handler)
	return nil
}

// Mount registers every route on mux. Patterns were checked by NewTable.
func (t *Table) Mount(mux *http.ServeMux) {
	for _, r := range t.routes {
		mux.Handle(r.Pattern(), r.Handler)
	}
}

// NormalizePrefix validates a path prefix and trims any trailing slash.
// An empty prefix (or "/") mounts routes at the root.
func NormalizePrefix(prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || prefix == "/" {
		return "", nil
	}
	if !strings.HasPrefix(prefix, "/") || strings.ContainsAny(prefix, " \t\n{}") {
		return "", fmt.Errorf("%w: prefix %q must start with / and contain no spaces or wildcards", ErrInvalidRoute, prefix)
	}
	return strings.TrimRight(prefix, "/"), nil
}

// JoinPath joins a normalised prefix and a route path.
func JoinPath(prefix, path string) string {
	if path == "/" && prefix != "" {
		return prefix
	}
	return prefix + path
}

// isToken reports whether s is a non-empty RFC 7230 token.
func isToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r > 127 || r <= ' ' || strings.ContainsRune("()<>@,;:\\\"/[]?={}", r) {
			return false
		}
	}
	return true
}
