package tracker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sicko7947/flowstate"
	"github.com/sicko7947/flowstate/store"
)

// Dialer creates the remote backend for a URL. It must not block on the
// network; Connect pings the returned backend.
type Dialer func(ctx context.Context, url string, scanBatchSize int64) (flowstate.Backend, error)

// defaultDialer resolves the URL scheme through store.Open
func defaultDialer(ctx context.Context, url string, scanBatchSize int64) (flowstate.Backend, error) {
	return store.Open(ctx, url, scanBatchSize)
}

// Option configures the manager
type Option func(*Manager)

// WithLogger sets a custom logger for the manager
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithConfig replaces the whole configuration
func WithConfig(config flowstate.Config) Option {
	return func(m *Manager) {
		m.config = config
	}
}

// WithRemoteURL sets the remote backend URL
func WithRemoteURL(url string) Option {
	return func(m *Manager) {
		m.config.RemoteURL = url
	}
}

// WithFallback enables or disables the in-memory fallback
func WithFallback(enabled bool) Option {
	return func(m *Manager) {
		m.config.EnableFallback = enabled
	}
}

// WithTTL sets the retention window applied on every record write
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.config.DefaultTTL = ttl
	}
}

// WithStrictTransitions toggles state machine validation
func WithStrictTransitions(strict bool) Option {
	return func(m *Manager) {
		m.config.StrictTransitions = strict
	}
}

// WithDialer replaces how the remote backend is created
func WithDialer(dial Dialer) Option {
	return func(m *Manager) {
		m.dial = dial
	}
}

// WithClock replaces the time source used for timestamps and fallback expiry
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}
