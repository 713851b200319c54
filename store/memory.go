package store

import (
	"context"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sicko7947/flowstate"
)

type memoryValue struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

type memoryList struct {
	items     []string // index 0 is the most recent push
	expiresAt time.Time
}

// MemoryBackend implements flowstate.Backend using process-local maps.
// Expiry is enforced lazily: expired keys are invisible to reads and are
// dropped on access or by PurgeExpired.
type MemoryBackend struct {
	values map[string]*memoryValue
	lists  map[string]*memoryList
	now    func() time.Time
	mu     sync.RWMutex
}

// MemoryOption configures a MemoryBackend
type MemoryOption func(*MemoryBackend)

// WithMemoryClock replaces the clock used for expiry checks
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(b *MemoryBackend) {
		b.now = now
	}
}

// NewMemoryBackend creates a new in-memory backend
func NewMemoryBackend(opts ...MemoryOption) *MemoryBackend {
	b := &MemoryBackend{
		values: make(map[string]*memoryValue),
		lists:  make(map[string]*memoryList),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var _ flowstate.Backend = (*MemoryBackend)(nil)

func expired(expiresAt, now time.Time) bool {
	return !expiresAt.IsZero() && !now.Before(expiresAt)
}

func (b *MemoryBackend) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return b.now().Add(ttl)
}

// Name returns the backend name
func (b *MemoryBackend) Name() string {
	return "memory"
}

// Scalar operations

func (b *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	v, exists := b.values[key]
	if !exists {
		return nil, flowstate.ErrKeyNotFound
	}
	if expired(v.expiresAt, b.now()) {
		delete(b.values, key)
		return nil, flowstate.ErrKeyNotFound
	}

	// Copy bytes
	out := make([]byte, len(v.data))
	copy(out, v.data)
	return out, nil
}

func (b *MemoryBackend) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Copy bytes
	data := make([]byte, len(value))
	copy(data, value)

	b.values[key] = &memoryValue{data: data, expiresAt: b.expiry(ttl)}
	return nil
}

// List operations

func (b *MemoryBackend) ListPush(ctx context.Context, key, value string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, exists := b.lists[key]
	if !exists || expired(l.expiresAt, b.now()) {
		l = &memoryList{}
		b.lists[key] = l
	}

	l.items = append([]string{value}, l.items...)
	return int64(len(l.items)), nil
}

func (b *MemoryBackend) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, exists := b.lists[key]
	if !exists {
		return []string{}, nil
	}
	if expired(l.expiresAt, b.now()) {
		delete(b.lists, key)
		return []string{}, nil
	}

	lo, hi, ok := normalizeRange(int64(len(l.items)), start, stop)
	if !ok {
		return []string{}, nil
	}

	out := make([]string, hi-lo+1)
	copy(out, l.items[lo:hi+1])
	return out, nil
}

func (b *MemoryBackend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if v, exists := b.values[key]; exists && !expired(v.expiresAt, now) {
		v.expiresAt = b.expiry(ttl)
	}
	if l, exists := b.lists[key]; exists && !expired(l.expiresAt, now) {
		l.expiresAt = b.expiry(ttl)
	}
	return nil
}

// ScanKeys yields a sorted snapshot of the live scalar keys matching prefix
func (b *MemoryBackend) ScanKeys(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		b.mu.RLock()
		now := b.now()
		keys := make([]string, 0, len(b.values))
		for key, v := range b.values {
			if strings.HasPrefix(key, prefix) && !expired(v.expiresAt, now) {
				keys = append(keys, key)
			}
		}
		b.mu.RUnlock()

		sort.Strings(keys)
		for _, key := range keys {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(key, nil) {
				return
			}
		}
	}
}

// PurgeExpired drops every expired key and returns how many were removed
func (b *MemoryBackend) PurgeExpired() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	removed := 0
	for key, v := range b.values {
		if expired(v.expiresAt, now) {
			delete(b.values, key)
			removed++
		}
	}
	for key, l := range b.lists {
		if expired(l.expiresAt, now) {
			delete(b.lists, key)
			removed++
		}
	}
	return removed
}

// Lifecycle

func (b *MemoryBackend) Ping(ctx context.Context) error {
	return nil
}

func (b *MemoryBackend) Close() error {
	return nil
}

// normalizeRange applies Redis LRANGE semantics: negative indexes count from
// the end and stop is inclusive. It returns false for an empty range.
func normalizeRange(length, start, stop int64) (int64, int64, bool) {
	if start < 0 {
		start += length
	}
	if stop < 0 {
		stop += length
	}
	if start < 0 {
		start = 0
	}
	if stop >= length {
		stop = length - 1
	}
	if length == 0 || start > stop || start >= length {
		return 0, 0, false
	}
	return start, stop, true
}
