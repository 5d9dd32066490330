package application

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration matches every assembly error returned by Builder.Build.
	ErrConfiguration = errors.New("invalid application configuration")
	// ErrInvalidState is returned when a lifecycle method is called from the wrong state.
	ErrInvalidState = errors.New("invalid application state")
)

// ConfigurationError describes why Build refused to assemble the application.
// It matches both ErrConfiguration and the underlying cause with errors.Is.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("application configuration: %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() []error {
	return []error{ErrConfiguration, e.Err}
}

// StartupError reports the startup hook that aborted App.Start.
type StartupError struct {
	Hook string
	Err  error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("startup hook %q failed: %v", e.Hook, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}
