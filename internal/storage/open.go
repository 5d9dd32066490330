package storage

import (
	"context"
	"fmt"
	"strings"
)

// Supported backend names.
const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
	BackendRedis  = "redis"
)

// Options selects and configures a collection backend.
type Options struct {
	Backend    string
	Collection string
	Path       string
	Redis      RedisOptions
}

// Open returns the collection for the configured backend.
func Open(ctx context.Context, opts Options) (Collection, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendMemory:
		return NewMemoryCollection(opts.Collection), nil
	case BackendBolt:
		return OpenBolt(opts.Path, opts.Collection)
	case BackendRedis:
		return OpenRedis(ctx, opts.Redis, opts.Collection)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
