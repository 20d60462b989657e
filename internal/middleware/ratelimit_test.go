package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestLimiter(now *time.Time) *rateLimiter {
	return &rateLimiter{
		rps:           rate.Limit(1),
		burst:         2,
		idle:          time.Minute,
		entries:       make(map[string]*limiterEntry),
		sweepInterval: 10 * time.Second,
		now:           func() time.Time { return *now },
	}
}

func queryContext(key string) *gin.Context {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("POST", "/api/v1/query", nil)
	if key != "" {
		c.Request.Header.Set(TenantKeyHeader, key)
	}
	return c
}

func TestRateLimiterHandle_BlocksAfterBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Now()
	limiter := newTestLimiter(&now)

	for i := 0; i < 2; i++ {
		c := queryContext("rk_tenant_a")
		limiter.handle(c)
		require.False(t, c.IsAborted(), "request %d", i)
	}
	c := queryContext("rk_tenant_a")
	limiter.handle(c)
	require.True(t, c.IsAborted())

	other := queryContext("rk_tenant_b")
	limiter.handle(other)
	require.False(t, other.IsAborted())

	now = now.Add(time.Second)
	c = queryContext("rk_tenant_a")
	limiter.handle(c)
	require.False(t, c.IsAborted())
}

func TestRateLimiterHandle_Disabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Now()
	limiter := newTestLimiter(&now)
	limiter.rps = 0
	for i := 0; i < 5; i++ {
		c := queryContext("rk_tenant_a")
		limiter.handle(c)
		require.False(t, c.IsAborted())
	}
	require.Empty(t, limiter.entries)
}

func TestRateLimiterCleanupExpiredLocked_RemovesIdleEntries(t *testing.T) {
	base := time.Now()
	limiter := newTestLimiter(&base)
	limiter.entries["expired"] = &limiterEntry{limiter: rate.NewLimiter(1, 1), seen: base.Add(-2 * time.Minute)}
	limiter.entries["active"] = &limiterEntry{limiter: rate.NewLimiter(1, 1), seen: base.Add(-2 * time.Second)}

	limiter.mu.Lock()
	limiter.cleanupExpiredLocked(base)
	limiter.mu.Unlock()

	require.NotContains(t, limiter.entries, "expired")
	require.Contains(t, limiter.entries, "active")
	require.False(t, limiter.lastSweep.IsZero())
}

func TestCallerKeyDoesNotKeepSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := queryContext("rk_secret_value")
	key := callerKey(c)
	require.NotContains(t, key, "secret")
	require.Equal(t, key, callerKey(queryContext("rk_secret_value")))
	require.NotEqual(t, key, callerKey(queryContext("rk_other")))
}
