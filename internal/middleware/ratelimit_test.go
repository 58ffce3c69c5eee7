package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newChatRequestContext() (*gin.Context, *httptest.ResponseRecorder) {
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest("POST", "/api/v1/chat", nil)
	return c, recorder
}

func TestRateLimiterBlocksWithinWindow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Now()
	limiter := &rateLimiter{
		window:        10 * time.Second,
		last:          make(map[string]time.Time),
		sweepInterval: 10 * time.Second,
		now: func() time.Time {
			return now
		},
	}

	c1, _ := newChatRequestContext()
	limiter.handle(c1)
	require.False(t, c1.IsAborted())

	c2, _ := newChatRequestContext()
	limiter.handle(c2)
	require.True(t, c2.IsAborted())

	// past the window the same caller goes through again
	now = now.Add(11 * time.Second)
	c3, _ := newChatRequestContext()
	limiter.handle(c3)
	require.False(t, c3.IsAborted())
}

func TestRateLimiterKeysByUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Now()
	limiter := &rateLimiter{
		window:        10 * time.Second,
		last:          make(map[string]time.Time),
		sweepInterval: 10 * time.Second,
		now: func() time.Time {
			return now
		},
	}

	c1, _ := newChatRequestContext()
	c1.Set(ContextUserIDKey, "u1")
	limiter.handle(c1)
	require.False(t, c1.IsAborted())

	c2, _ := newChatRequestContext()
	c2.Set(ContextUserIDKey, "u2")
	limiter.handle(c2)
	require.False(t, c2.IsAborted(), "different users never share a bucket")
}

func TestRateLimiterSweepRemovesExpiredEntries(t *testing.T) {
	base := time.Now()
	limiter := &rateLimiter{
		window:        10 * time.Second,
		last:          make(map[string]time.Time),
		sweepInterval: 10 * time.Second,
		now:           time.Now,
	}
	limiter.last["expired"] = base.Add(-20 * time.Second)
	limiter.last["active"] = base.Add(-2 * time.Second)

	limiter.mu.Lock()
	limiter.cleanupExpiredLocked(base)
	limiter.mu.Unlock()

	require.NotContains(t, limiter.last, "expired")
	require.Contains(t, limiter.last, "active")
	require.False(t, limiter.lastSweep.IsZero())
}
