package flowstate

import (
	"context"
	"iter"
	"time"
)

// Backend defines the key-value operations the tracker needs from a store.
// Implementations live in the store package; the interface is declared here
// to avoid import cycles between flowstate and store.
type Backend interface {
	// Scalar values
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Lists (most recently pushed first)
	ListPush(ctx context.Context, key, value string) (int64, error)
	ListRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// Expire refreshes the TTL of an existing scalar or list key
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// ScanKeys lazily yields the scalar keys starting with prefix.
	// The sequence is finite and can only be consumed once.
	ScanKeys(ctx context.Context, prefix string) iter.Seq2[string, error]

	// Lifecycle
	Ping(ctx context.Context) error
	Name() string
	Close() error
}
