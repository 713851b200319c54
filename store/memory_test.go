package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sicko7947/flowstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func collectKeys(t *testing.T, b flowstate.Backend, prefix string) []string {
	t.Helper()
	var keys []string
	for key, err := range b.ScanKeys(context.Background(), prefix) {
		require.NoError(t, err)
		keys = append(keys, key)
	}
	return keys
}

func TestNewMemoryBackend(t *testing.T) {
	b := NewMemoryBackend()
	if b == nil {
		t.Fatal("NewMemoryBackend() returned nil")
	}

	assert.Equal(t, "memory", b.Name())
	assert.NoError(t, b.Ping(context.Background()))
	assert.NoError(t, b.Close())
}

func TestMemoryBackend_SetAndGet(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()

	value := []byte(`{"a":1}`)
	require.NoError(t, b.SetWithTTL(ctx, "k", value, time.Hour))

	got, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, value, got)

	// Mutating returned or original slices must not affect the stored copy
	got[0] = 'X'
	value[1] = 'Y'
	again, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), again)
}

func TestMemoryBackend_Get_NotFound(t *testing.T) {
	b := NewMemoryBackend()

	_, err := b.Get(context.Background(), "missing")
	if !errors.Is(err, flowstate.ErrKeyNotFound) {
		t.Errorf("Get() error = %v, want ErrKeyNotFound", err)
	}
}

func TestMemoryBackend_ValueExpiry(t *testing.T) {
	clock := newFakeClock()
	b := NewMemoryBackend(WithMemoryClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, b.SetWithTTL(ctx, "k", []byte("v"), time.Minute))

	clock.Advance(59 * time.Second)
	_, err := b.Get(ctx, "k")
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = b.Get(ctx, "k")
	assert.ErrorIs(t, err, flowstate.ErrKeyNotFound)
}

func TestMemoryBackend_ZeroTTLNeverExpires(t *testing.T) {
	clock := newFakeClock()
	b := NewMemoryBackend(WithMemoryClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, b.SetWithTTL(ctx, "k", []byte("v"), 0))
	clock.Advance(365 * 24 * time.Hour)

	got, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestMemoryBackend_ListPushPrepends(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()

	for i, id := range []string{"e1", "e2", "e3"} {
		n, err := b.ListPush(ctx, "list", id)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), n)
	}

	items, err := b.ListRange(ctx, "list", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"e3", "e2", "e1"}, items)
}

func TestMemoryBackend_ListRange(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := b.ListPush(ctx, "list", id)
		require.NoError(t, err)
	}
	// list is d, c, b, a

	tests := []struct {
		name        string
		start, stop int64
		want        []string
	}{
		{"all", 0, -1, []string{"d", "c", "b", "a"}},
		{"first two", 0, 1, []string{"d", "c"}},
		{"middle", 1, 2, []string{"c", "b"}},
		{"stop past end", 2, 100, []string{"b", "a"}},
		{"negative start", -2, -1, []string{"b", "a"}},
		{"start past end", 10, 20, []string{}},
		{"start after stop", 3, 1, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := b.ListRange(ctx, "list", tt.start, tt.stop)
			require.NoError(t, err)
			assert.Equal(t, tt.want, items)
		})
	}
}

func TestMemoryBackend_ListRange_Missing(t *testing.T) {
	b := NewMemoryBackend()

	items, err := b.ListRange(context.Background(), "missing", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMemoryBackend_ListExpiry(t *testing.T) {
	clock := newFakeClock()
	b := NewMemoryBackend(WithMemoryClock(clock.Now))
	ctx := context.Background()

	_, err := b.ListPush(ctx, "list", "old")
	require.NoError(t, err)
	require.NoError(t, b.Expire(ctx, "list", time.Minute))

	clock.Advance(2 * time.Minute)

	items, err := b.ListRange(ctx, "list", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, items)

	// Pushing onto an expired list starts a new one
	n, err := b.ListPush(ctx, "list", "new")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryBackend_ExpireRefreshes(t *testing.T) {
	clock := newFakeClock()
	b := NewMemoryBackend(WithMemoryClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, b.SetWithTTL(ctx, "k", []byte("v"), time.Minute))
	clock.Advance(50 * time.Second)
	require.NoError(t, b.Expire(ctx, "k", time.Minute))
	clock.Advance(50 * time.Second)

	_, err := b.Get(ctx, "k")
	assert.NoError(t, err)

	// Expire on a missing key is a no-op
	assert.NoError(t, b.Expire(ctx, "missing", time.Minute))
}

func TestMemoryBackend_ScanKeys(t *testing.T) {
	clock := newFakeClock()
	b := NewMemoryBackend(WithMemoryClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, b.SetWithTTL(ctx, "workflow:execution:b", []byte("1"), time.Hour))
	require.NoError(t, b.SetWithTTL(ctx, "workflow:execution:a", []byte("1"), time.Hour))
	require.NoError(t, b.SetWithTTL(ctx, "workflow:execution:expiring", []byte("1"), time.Minute))
	require.NoError(t, b.SetWithTTL(ctx, "other:key", []byte("1"), time.Hour))
	_, err := b.ListPush(ctx, "workflow:execution:list", "x")
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)

	keys := collectKeys(t, b, "workflow:execution:")
	assert.Equal(t, []string{"workflow:execution:a", "workflow:execution:b"}, keys)
}

func TestMemoryBackend_ScanKeys_EarlyStop(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()

	for _, k := range []string{"p:1", "p:2", "p:3"} {
		require.NoError(t, b.SetWithTTL(ctx, k, []byte("1"), 0))
	}

	count := 0
	for _, err := range b.ScanKeys(ctx, "p:") {
		require.NoError(t, err)
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestMemoryBackend_ScanKeys_CancelledContext(t *testing.T) {
	b := NewMemoryBackend()
	require.NoError(t, b.SetWithTTL(context.Background(), "p:1", []byte("1"), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var scanErr error
	for _, err := range b.ScanKeys(ctx, "p:") {
		scanErr = err
	}
	assert.ErrorIs(t, scanErr, context.Canceled)
}

func TestMemoryBackend_PurgeExpired(t *testing.T) {
	clock := newFakeClock()
	b := NewMemoryBackend(WithMemoryClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, b.SetWithTTL(ctx, "short", []byte("1"), time.Minute))
	require.NoError(t, b.SetWithTTL(ctx, "long", []byte("1"), time.Hour))
	_, err := b.ListPush(ctx, "list", "x")
	require.NoError(t, err)
	require.NoError(t, b.Expire(ctx, "list", time.Minute))

	assert.Equal(t, 0, b.PurgeExpired())

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 2, b.PurgeExpired())

	_, err = b.Get(ctx, "long")
	assert.NoError(t, err)
}

func TestNormalizeRange(t *testing.T) {
	tests := []struct {
		name                string
		length, start, stop int64
		wantLo, wantHi      int64
		wantOK              bool
	}{
		{"empty list", 0, 0, -1, 0, 0, false},
		{"whole list", 5, 0, -1, 0, 4, true},
		{"clamped stop", 5, 0, 10, 0, 4, true},
		{"negative start clamped", 5, -10, 1, 0, 1, true},
		{"inverted", 5, 3, 2, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi, ok := normalizeRange(tt.length, tt.start, tt.stop)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantLo, lo)
				assert.Equal(t, tt.wantHi, hi)
			}
		})
	}
}
