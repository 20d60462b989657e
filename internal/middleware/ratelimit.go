package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xxxsen/ragdesk/internal/pkg/errcode"
	"github.com/xxxsen/ragdesk/internal/pkg/response"
)

const TenantKeyHeader = "X-Tenant-Key"

type limiterEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

// rateLimiter keeps one token bucket per caller. Callers are identified by a
// digest of their tenant key, falling back to the client address.
type rateLimiter struct {
	mu            sync.Mutex
	rps           rate.Limit
	burst         int
	idle          time.Duration
	entries       map[string]*limiterEntry
	sweepInterval time.Duration
	lastSweep     time.Time
	now           func() time.Time
}

// TenantRateLimit allows rps requests per second with the given burst for each
// caller. A non-positive rps disables limiting.
func TenantRateLimit(rps float64, burst int) gin.HandlerFunc {
	if burst <= 0 {
		burst = 1
	}
	limiter := &rateLimiter{
		rps:           rate.Limit(rps),
		burst:         burst,
		idle:          10 * time.Minute,
		entries:       make(map[string]*limiterEntry),
		sweepInterval: time.Minute,
		now:           time.Now,
	}
	return limiter.handle
}

func callerKey(c *gin.Context) string {
	if key := c.GetHeader(TenantKeyHeader); key != "" {
		sum := sha256.Sum256([]byte(key))
		return "key:" + hex.EncodeToString(sum[:8])
	}
	return "ip:" + c.ClientIP()
}

func (l *rateLimiter) handle(c *gin.Context) {
	if l.rps <= 0 {
		c.Next()
		return
	}
	key := callerKey(c)
	now := l.now()

	l.mu.Lock()
	l.cleanupExpiredLocked(now)
	entry, ok := l.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.entries[key] = entry
	}
	entry.seen = now
	allowed := entry.limiter.AllowN(now, 1)
	l.mu.Unlock()

	if !allowed {
		logutil.GetLogger(c.Request.Context()).Warn("rate limit hit",
			zap.String("caller", key),
			zap.String("path", c.Request.URL.Path),
		)
		response.Abort(c, errcode.ErrTooMany, http.StatusText(http.StatusTooManyRequests))
		return
	}
	c.Next()
}

func (l *rateLimiter) cleanupExpiredLocked(now time.Time) {
	if !l.lastSweep.IsZero() && now.Sub(l.lastSweep) < l.sweepInterval {
		return
	}
	for key, entry := range l.entries {
		if now.Sub(entry.seen) > l.idle {
			delete(l.entries, key)
		}
	}
	l.lastSweep = now
}
