package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Bucket names used by the gateway.
const (
	BucketConfigWrite = "config_write"
)

// SlidingWindowLimiter counts request timestamps per (bucket, identity) over a
// sliding window. Denied requests are not recorded.
type SlidingWindowLimiter struct {
	mu      sync.Mutex
	buckets map[string][]time.Time
	now     func() time.Time
}

// NewSlidingWindowLimiter creates an empty limiter
func NewSlidingWindowLimiter() *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		buckets: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// StartCleanup drops idle buckets every interval until stop is closed.
func (rl *SlidingWindowLimiter) StartCleanup(interval, maxWindow time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.cleanup(maxWindow)
			case <-stop:
				return
			}
		}
	}()
}

// cleanup removes buckets whose newest entry is older than maxWindow
func (rl *SlidingWindowLimiter) cleanup(maxWindow time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, stamps := range rl.buckets {
		if len(stamps) == 0 || now.Sub(stamps[len(stamps)-1]) >= maxWindow {
			delete(rl.buckets, key)
		}
	}
}

// Hit records a request and reports whether it exceeds limit within window.
// It returns true when the request must be rejected.
func (rl *SlidingWindowLimiter) Hit(bucket, identity string, limit int, window time.Duration) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	key := bucket + ":" + identity

	kept := rl.buckets[key][:0]
	for _, t := range rl.buckets[key] {
		if now.Sub(t) < window {
			kept = append(kept, t)
		}
	}

	if len(kept) >= limit {
		rl.buckets[key] = kept
		return true
	}

	rl.buckets[key] = append(kept, now)
	return false
}

// Remaining returns how many more requests identity may make in bucket right now.
func (rl *SlidingWindowLimiter) Remaining(bucket, identity string, limit int, window time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	used := 0
	for _, t := range rl.buckets[bucket+":"+identity] {
		if now.Sub(t) < window {
			used++
		}
	}
	if used >= limit {
		return 0
	}
	return limit - used
}

// RateLimit rejects requests from a client IP once it exceeds limit per window.
func RateLimit(rl *SlidingWindowLimiter, bucket string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if rl.Hit(bucket, ip, limit, window) {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit",
				"note":  "too many writes",
				"ip":    ip,
			})
			return
		}

		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", rl.Remaining(bucket, ip, limit, window)))
		c.Next()
	}
}
