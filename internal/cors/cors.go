// Package cors defines the cross-origin policy applied to every request and
// validates it before the application is built.
package cors

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	rscors "github.com/rs/cors"
	"go.uber.org/zap"
)

// Wildcard matches any origin or, for headers, reflects the requested headers.
const Wildcard = "*"

// ErrInvalidPolicy is returned by Validate for unusable policies.
var ErrInvalidPolicy = errors.New("invalid CORS policy")

// Policy is the static cross-origin policy of the application.
type Policy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
	Debug            bool
}

// DefaultPolicy allows the local development front-ends to call the API with credentials.
func DefaultPolicy() Policy {
	return Policy{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:4200"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{Wildcard},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
	}
}

// Validate reports whether the policy can be enforced.
func (p Policy) Validate() error {
	if len(p.AllowedOrigins) == 0 {
		return fmt.Errorf("%w: at least one allowed origin is required", ErrInvalidPolicy)
	}
	for _, origin := range p.AllowedOrigins {
		if origin == Wildcard {
			if p.AllowCredentials {
				return fmt.Errorf("%w: wildcard origin cannot be combined with credentials", ErrInvalidPolicy)
			}
			continue
		}
		if err := validateOrigin(origin); err != nil {
			return err
		}
	}

	if len(p.AllowedMethods) == 0 && p.AllowCredentials {
		return fmt.Errorf("%w: allowed methods must not be empty when credentials are allowed", ErrInvalidPolicy)
	}
	for _, method := range p.AllowedMethods {
		if !isToken(method) {
			return fmt.Errorf("%w: invalid method %q", ErrInvalidPolicy, method)
		}
	}

	if p.MaxAge < 0 {
		return fmt.Errorf("%w: max age must be >= 0", ErrInvalidPolicy)
	}
	return nil
}

// Handler wraps next with the policy. The policy slices are copied, so later
// changes to p do not affect the returned handler. A nil logger disables debug output.
func (p Policy) Handler(next http.Handler, logger *zap.Logger) http.Handler {
	methods := make([]string, 0, len(p.AllowedMethods))
	for _, m := range p.AllowedMethods {
		methods = append(methods, strings.ToUpper(m))
	}

	opts := rscors.Options{
		AllowedOrigins:   slices.Clone(p.AllowedOrigins),
		AllowedMethods:   methods,
		AllowedHeaders:   slices.Clone(p.AllowedHeaders),
		ExposedHeaders:   slices.Clone(p.ExposedHeaders),
		AllowCredentials: p.AllowCredentials,
		MaxAge:           int(p.MaxAge / time.Second),
	}
	if p.Debug && logger != nil {
		opts.Debug = true
		opts.Logger = zap.NewStdLog(logger.Named("cors"))
	}

	return rscors.New(opts).Handler(next)
}

func validateOrigin(origin string) error {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: origin %q must be scheme://host[:port]", ErrInvalidPolicy, origin)
	}
	if u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("%w: origin %q must not contain a path, query or fragment", ErrInvalidPolicy, origin)
	}
	return nil
}

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
