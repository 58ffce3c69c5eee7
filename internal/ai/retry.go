package ai

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// Do runs op up to MaxAttempts times with exponential backoff between
// attempts. Only transient failures are retried, anything else returns
// immediately. Backoff waits respect ctx cancellation.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := p.InitialInterval
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		logutil.GetLogger(ctx).Warn("transient ai failure, will retry",
			zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jitter(delay)):
		}
		delay *= 2
		if p.MaxInterval > 0 && delay > p.MaxInterval {
			delay = p.MaxInterval
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}

// jitter spreads the wait by up to 20% either way.
func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delta := float64(base) * 0.2
	return time.Duration(float64(base) - delta + rand.Float64()*2*delta)
}

func retryableStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

// retryable reports whether err is transient. A canceled context is never
// retried. A deadline hit is, because each attempt runs under its own
// timeout and the next one gets a fresh window.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var coder interface{ HTTPStatusCode() int }
	if errors.As(err, &coder) {
		return retryableStatus(coder.HTTPStatusCode())
	}
	// provider sdk errors rarely carry types, fall back to matching the text
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"rate limit", "quota", "unavailable", "overloaded", "connection reset", "temporary", "timeout"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
