package application

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/doc-assistant/internal/cors"
	"github.com/eugenenazirov/doc-assistant/internal/routing"
)

// DefaultPrefix is the path prefix used when WithPrefix is not called.
const DefaultPrefix = "/api/v1"

var errNilHook = errors.New("startup hook has no function")

// ServerOptions configures the HTTP server owned by the App.
type ServerOptions struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

// Builder collects routes, hooks and policies, and assembles them into an App.
// Nothing is validated until Build.
type Builder struct {
	logger     *zap.Logger
	prefix     string
	routes     []routing.Route
	hooks      []StartupHook
	policy     cors.Policy
	middleware []func(http.Handler) http.Handler
	fallback   http.Handler
	server     ServerOptions
}

// NewBuilder returns a Builder with the default prefix and CORS policy.
func NewBuilder(logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		logger: logger,
		prefix: DefaultPrefix,
		policy: cors.DefaultPolicy(),
		server: ServerOptions{Addr: ":8080"},
	}
}

// WithPrefix sets the path prefix shared by every route. "" or "/" mounts at the root.
func (b *Builder) WithPrefix(prefix string) *Builder {
	b.prefix = prefix
	return b
}

// WithRoutes appends routes, relative to the prefix.
func (b *Builder) WithRoutes(routes ...routing.Route) *Builder {
	b.routes = append(b.routes, routes...)
	return b
}

// OnStartup appends hooks, run in registration order by App.Start.
func (b *Builder) OnStartup(hooks ...StartupHook) *Builder {
	b.hooks = append(b.hooks, hooks...)
	return b
}

// WithCORS replaces the CORS policy.
func (b *Builder) WithCORS(policy cors.Policy) *Builder {
	b.policy = policy
	return b
}

// WithMiddleware appends middleware; the first one is outermost. CORS always
// wraps every middleware, so preflights are answered before any of them runs
// and their responses (429, 500) still carry CORS headers.
func (b *Builder) WithMiddleware(mw ...func(http.Handler) http.Handler) *Builder {
	b.middleware = append(b.middleware, mw...)
	return b
}

// WithFallback serves h for requests no route matches (e.g. a static UI at "/").
func (b *Builder) WithFallback(h http.Handler) *Builder {
	b.fallback = h
	return b
}

// WithServer configures the HTTP server.
func (b *Builder) WithServer(opts ServerOptions) *Builder {
	b.server = opts
	return b
}

// Build validates the collected configuration and assembles the App.
// It neither binds a listener nor runs hooks.
func (b *Builder) Build() (*App, error) {
	prefix, err := routing.NormalizePrefix(b.prefix)
	if err != nil {
		return nil, &ConfigurationError{Field: "prefix", Err: err}
	}

	table, err := routing.NewTable(prefix, b.routes...)
	if err != nil {
		return nil, &ConfigurationError{Field: "routes", Err: err}
	}

	if err := b.policy.Validate(); err != nil {
		return nil, &ConfigurationError{Field: "cors", Err: err}
	}

	hooks := make([]StartupHook, len(b.hooks))
	for i, hook := range b.hooks {
		if hook.Run == nil {
			return nil, &ConfigurationError{Field: "startup", Err: fmt.Errorf("%w: %q at position %d", errNilHook, hook.Name, i)}
		}
		if strings.TrimSpace(hook.Name) == "" {
			hook.Name = fmt.Sprintf("hook-%d", i+1)
		}
		hooks[i] = hook
	}

	for i, mw := range b.middleware {
		if mw == nil {
			return nil, &ConfigurationError{Field: "middleware", Err: fmt.Errorf("middleware at position %d is nil", i)}
		}
	}

	mux := http.NewServeMux()
	table.Mount(mux)
	if b.fallback != nil {
		mux.Handle("/", b.fallback)
	}

	var handler http.Handler = mux
	for i := len(b.middleware) - 1; i >= 0; i-- {
		handler = b.middleware[i](handler)
	}
	handler = b.policy.Handler(handler, b.logger)

	addr := b.server.Addr
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: b.server.ReadHeaderTimeout,
		WriteTimeout:      b.server.WriteTimeout,
		IdleTimeout:       b.server.IdleTimeout,
		ErrorLog:          zap.NewStdLog(b.logger.Named("http")),
	}

	return &App{
		logger:  b.logger,
		table:   table,
		hooks:   hooks,
		handler: handler,
		server:  server,
		state:   StateAssembled,
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
	}, nil
}
