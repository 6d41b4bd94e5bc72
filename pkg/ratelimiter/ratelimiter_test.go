package ratelimiter_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartlink/billing/pkg/ratelimiter"
)

func newBucket(t *testing.T, cfg ratelimiter.Config) *ratelimiter.Bucket {
	t.Helper()

	store := ratelimiter.NewMemoryStore(0)
	t.Cleanup(store.Close)

	b, err := ratelimiter.NewBucket(store, cfg)
	require.NoError(t, err)
	return b
}

func TestBucketExhaustion(t *testing.T) {
	t.Parallel()

	b := newBucket(t, ratelimiter.Config{Capacity: 3, RefillRate: 1, RefillInterval: time.Hour})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := b.Allow(ctx, "ref-1")
		require.NoError(t, err)
		assert.True(t, result.Allowed(), "request %d should pass", i)
	}

	result, err := b.Allow(ctx, "ref-1")
	require.NoError(t, err)
	assert.False(t, result.Allowed())
	assert.Positive(t, result.RetryAfter())
}

func TestBucketKeysAreIndependent(t *testing.T) {
	t.Parallel()

	b := newBucket(t, ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Hour})
	ctx := context.Background()

	first, err := b.Allow(ctx, "ref-a")
	require.NoError(t, err)
	assert.True(t, first.Allowed())

	second, err := b.Allow(ctx, "ref-b")
	require.NoError(t, err)
	assert.True(t, second.Allowed())

	again, err := b.Allow(ctx, "ref-a")
	require.NoError(t, err)
	assert.False(t, again.Allowed())
}

func TestBucketRefill(t *testing.T) {
	t.Parallel()

	b := newBucket(t, ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: 20 * time.Millisecond})
	ctx := context.Background()

	result, err := b.Allow(ctx, "ref-1")
	require.NoError(t, err)
	require.True(t, result.Allowed())

	result, err = b.Allow(ctx, "ref-1")
	require.NoError(t, err)
	require.False(t, result.Allowed())

	time.Sleep(30 * time.Millisecond)

	result, err = b.Allow(ctx, "ref-1")
	require.NoError(t, err)
	assert.True(t, result.Allowed())
}

func TestDeniedRequestsConsumeNothing(t *testing.T) {
	t.Parallel()

	b := newBucket(t, ratelimiter.Config{Capacity: 2, RefillRate: 1, RefillInterval: 25 * time.Millisecond})
	ctx := context.Background()

	for n := 0; n < 2; n++ {
		result, err := b.Allow(ctx, "ref-1")
		require.NoError(t, err)
		require.True(t, result.Allowed())
	}

	// A client hammering an empty bucket must not dig itself into debt:
	// however many denials it collects, one refill interval readmits it.
	for i := 0; i < 10; i++ {
		result, err := b.Allow(ctx, "ref-1")
		require.NoError(t, err)
		require.False(t, result.Allowed(), "request %d should be denied", i)
	}

	time.Sleep(35 * time.Millisecond)

	result, err := b.Allow(ctx, "ref-1")
	require.NoError(t, err)
	assert.True(t, result.Allowed())
}

func TestBucketReset(t *testing.T) {
	t.Parallel()

	b := newBucket(t, ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Hour})
	ctx := context.Background()

	_, err := b.Allow(ctx, "ref-1")
	require.NoError(t, err)
	require.NoError(t, b.Reset(ctx, "ref-1"))

	result, err := b.Allow(ctx, "ref-1")
	require.NoError(t, err)
	assert.True(t, result.Allowed())
}

func TestNewBucketValidation(t *testing.T) {
	t.Parallel()

	store := ratelimiter.NewMemoryStore(0)
	t.Cleanup(store.Close)

	for name, cfg := range map[string]ratelimiter.Config{
		"zero capacity":   {Capacity: 0, RefillRate: 1, RefillInterval: time.Second},
		"zero refill":     {Capacity: 1, RefillRate: 0, RefillInterval: time.Second},
		"zero interval":   {Capacity: 1, RefillRate: 1},
		"negative values": {Capacity: -1, RefillRate: -1, RefillInterval: -time.Second},
	} {
		cfg := cfg
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := ratelimiter.NewBucket(store, cfg)
			assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
		})
	}
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	b := newBucket(t, ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Hour})

	handler := ratelimiter.Middleware(b, func(r *http.Request) string {
		return r.URL.Query().Get("reference")
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	get := func(target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		return rec
	}

	assert.Equal(t, http.StatusOK, get("/verify?reference=r1").Code)

	rec := get("/verify?reference=r1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// No key means no limiting.
	assert.Equal(t, http.StatusOK, get("/verify").Code)
}
