package application

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/eugenenazirov/doc-assistant/internal/routing"
)

// App is an assembled HTTP application with a start/shutdown lifecycle.
type App struct {
	logger  *zap.Logger
	table   *routing.Table
	hooks   []StartupHook
	handler http.Handler
	server  *http.Server

	mu       sync.Mutex
	state    State
	listener net.Listener
	errs     chan error
	done     chan struct{}
}

// State reports the current lifecycle state.
func (a *App) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Routes returns the registered routes with their full paths.
func (a *App) Routes() []routing.Route {
	return a.table.Routes()
}

// Prefix returns the normalised path prefix.
func (a *App) Prefix() string {
	return a.table.Prefix()
}

// Handler returns the composed handler: CORS, middleware, then routes.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Addr returns the bound listener address, or "" before the app is serving.
func (a *App) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Errors delivers a serve failure that happens after Start returned.
func (a *App) Errors() <-chan error {
	return a.errs
}

// Start runs every startup hook in order, then binds the listener and serves
// in the background. A failing hook stops the app before any socket is opened.
func (a *App) Start(ctx context.Context) error {
	if err := a.transition(StateAssembled, StateStarting); err != nil {
		return err
	}

	for _, hook := range a.hooks {
		if err := ctx.Err(); err != nil {
			a.setState(StateStopped)
			return &StartupError{Hook: hook.Name, Err: err}
		}
		a.logger.Debug("running startup hook", zap.String("hook", hook.Name))
		if err := hook.Run(ctx); err != nil {
			a.setState(StateStopped)
			return &StartupError{Hook: hook.Name, Err: err}
		}
	}

	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		a.setState(StateStopped)
		return fmt.Errorf("listen on %s: %w", a.server.Addr, err)
	}

	a.mu.Lock()
	a.listener = ln
	a.state = StateServing
	a.mu.Unlock()

	a.logger.Info("server listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("prefix", a.table.Prefix()),
		zap.Int("routes", len(a.table.Routes())),
	)

	go a.serve(ln)
	return nil
}

func (a *App) serve(ln net.Listener) {
	defer close(a.done)
	if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Error("server error", zap.Error(err))
		a.errs <- err
	}
}

// Shutdown stops accepting connections and waits for in-flight requests until
// ctx expires, then closes remaining connections. It is a no-op once stopped.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	switch a.state {
	case StateStopped:
		a.mu.Unlock()
		return nil
	case StateServing:
		a.state = StateShuttingDown
		a.mu.Unlock()
	default:
		state := a.state
		a.mu.Unlock()
		return fmt.Errorf("%w: cannot shut down from %s", ErrInvalidState, state)
	}

	a.logger.Info("shutting down server")
	err := a.server.Shutdown(ctx)
	if err != nil {
		a.logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := a.server.Close(); closeErr != nil {
			a.logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
	<-a.done

	a.setState(StateStopped)
	return err
}

func (a *App) transition(from, to State) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != from {
		return fmt.Errorf("%w: cannot move from %s to %s", ErrInvalidState, a.state, to)
	}
	a.state = to
	return nil
}

func (a *App) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}
