package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// fakeClock freezes time so refill is controlled by the test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter(cfg *Config) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cfg.CleanupInterval = 0
	l := NewLimiter(cfg)
	l.now = clock.now
	return l, clock
}

func TestLimiter_BurstThenDeny(t *testing.T) {
	l, _ := newTestLimiter(&Config{Enabled: true, Rate: 1, Burst: 3})
	defer l.Stop()

	for i := 0; i < 3; i++ {
		allowed, info := l.Allow("10.0.0.1", "/jobs/1", "GET")
		require.True(t, allowed, "request %d", i+1)
		assert.Equal(t, 3, info.Limit)
		assert.Equal(t, 2-i, info.Remaining)
	}

	allowed, info := l.Allow("10.0.0.1", "/jobs/1", "GET")
	assert.False(t, allowed)
	assert.Equal(t, 0, info.Remaining)
	assert.Equal(t, time.Second, info.RetryAfter)
}

func TestLimiter_Refill(t *testing.T) {
	l, clock := newTestLimiter(&Config{Enabled: true, Rate: 1, Burst: 1})
	defer l.Stop()

	allowed, _ := l.Allow("c", "/jobs", "GET")
	require.True(t, allowed)
	allowed, _ = l.Allow("c", "/jobs", "GET")
	require.False(t, allowed)

	clock.advance(time.Second)
	allowed, _ = l.Allow("c", "/jobs", "GET")
	assert.True(t, allowed)
}

func TestLimiter_DeniedRequestDoesNotConsume(t *testing.T) {
	l, clock := newTestLimiter(&Config{Enabled: true, Rate: 1, Burst: 1})
	defer l.Stop()

	l.Allow("c", "/x", "GET")
	for i := 0; i < 5; i++ {
		allowed, _ := l.Allow("c", "/x", "GET")
		require.False(t, allowed)
	}
	clock.advance(time.Second)
	allowed, _ := l.Allow("c", "/x", "GET")
	assert.True(t, allowed, "denied requests must not push the next token further out")
}

func TestLimiter_ClientsAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(&Config{Enabled: true, Rate: 1, Burst: 1})
	defer l.Stop()

	allowed, _ := l.Allow("a", "/jobs", "GET")
	assert.True(t, allowed)
	allowed, _ = l.Allow("b", "/jobs", "GET")
	assert.True(t, allowed)
	allowed, _ = l.Allow("a", "/jobs", "GET")
	assert.False(t, allowed)
}

func TestLimiter_EndpointOverride(t *testing.T) {
	l, _ := newTestLimiter(&Config{
		Enabled:         true,
		Rate:            100,
		Burst:           100,
		EndpointConfigs: []EndpointConfig{{Path: "/jobs/batch", Method: "POST", Rate: rate.Every(time.Minute), Burst: 1}},
	})
	defer l.Stop()

	allowed, _ := l.Allow("c", "/jobs/batch", "POST")
	assert.True(t, allowed)
	allowed, info := l.Allow("c", "/jobs/batch", "POST")
	assert.False(t, allowed)
	assert.InDelta(t, float64(time.Minute), float64(info.RetryAfter), float64(time.Millisecond))

	// The default bucket is separate.
	allowed, _ = l.Allow("c", "/jobs", "GET")
	assert.True(t, allowed)
}

func TestLimiter_DisabledAndWhitelist(t *testing.T) {
	disabled := NewLimiter(NewConfig(0, 0))
	defer disabled.Stop()
	for i := 0; i < 100; i++ {
		allowed, _ := disabled.Allow("c", "/jobs", "POST")
		require.True(t, allowed)
	}

	cfg := NewConfig(1, 1, "127.0.0.1")
	l, _ := newTestLimiter(cfg)
	defer l.Stop()
	for i := 0; i < 20; i++ {
		allowed, _ := l.Allow("127.0.0.1", "/jobs", "POST")
		require.True(t, allowed)
	}
}

func TestLimiter_HealthAndEventsUnlimited(t *testing.T) {
	l, _ := newTestLimiter(&Config{Enabled: true, Rate: 1, Burst: 1})
	defer l.Stop()
	for i := 0; i < 10; i++ {
		allowed, _ := l.Allow("c", "/health", "GET")
		require.True(t, allowed)
		allowed, _ = l.Allow("c", "/jobs/4/events", "GET")
		require.True(t, allowed)
	}
}

func TestLimiter_CleanupRemovesIdleBuckets(t *testing.T) {
	l, clock := newTestLimiter(&Config{Enabled: true, Rate: 1, Burst: 1, IdleTTL: time.Minute})
	defer l.Stop()

	l.Allow("old", "/jobs", "GET")
	clock.advance(2 * time.Minute)
	l.Allow("new", "/jobs", "GET")
	l.cleanupBuckets()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Len(t, l.buckets, 1)
	_, ok := l.buckets["new"]
	assert.True(t, ok)
}

func TestLimiter_Concurrent(t *testing.T) {
	l, _ := newTestLimiter(&Config{Enabled: true, Rate: 1, Burst: 50})
	defer l.Stop()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowedCount := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow("c", "/jobs", "GET"); ok {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowedCount)
}

func TestStop_Idempotent(t *testing.T) {
	l := NewLimiter(NewConfig(5, 5))
	assert.NotPanics(t, func() {
		l.Stop()
		l.Stop()
	})
}

func TestMatchEndpoint(t *testing.T) {
	configs := DefaultEndpointConfigs()
	tests := []struct {
		path, method string
		wantPath     string
		unlimited    bool
	}{
		{"/health", "GET", "", true},
		{"/jobs/12/events", "GET", "", true},
		{"/jobs", "POST", "/jobs", false},
		{"/jobs/batch", "POST", "/jobs/batch", false},
		{"/jobs/12/cancel", "POST", "/jobs/", false},
		{"/documents", "POST", "/documents", false},
		{"/jobs", "GET", "", false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s %s", tt.method, tt.path), func(t *testing.T) {
			got := MatchEndpoint(tt.path, tt.method, configs)
			switch {
			case tt.unlimited:
				require.NotNil(t, got)
				assert.Zero(t, got.Rate)
			case tt.wantPath == "":
				assert.Nil(t, got)
			default:
				require.NotNil(t, got)
				assert.Equal(t, tt.wantPath, got.Path)
			}
		})
	}
}
