package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig holds the token-bucket parameters applied per caller.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig returns the stock per-caller limit.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 50,
		BurstSize:         100,
	}
}

// Buckets idle past bucketIdleAfter are dropped once the store holds
// bucketSweepAt entries, keeping memory bounded under IP churn.
const (
	bucketIdleAfter = 15 * time.Minute
	bucketSweepAt   = 1024
)

// tokenBucket accrues rate tokens per second up to burst. last doubles
// as the caller's last-seen stamp for eviction.
type tokenBucket struct {
	mu     sync.Mutex
	tokens float64
	burst  float64
	rate   float64
	last   time.Time
}

// take spends one token. When the bucket is empty it reports how long
// until the next token accrues.
func (b *tokenBucket) take(now time.Time) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens += now.Sub(b.last).Seconds() * b.rate
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if b.rate <= 0 {
		return false, time.Second
	}
	return false, time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
}

type bucketStore struct {
	mu      sync.RWMutex
	buckets map[string]*tokenBucket
	cfg     RateLimitConfig
}

func newBucketStore(cfg RateLimitConfig) *bucketStore {
	return &bucketStore{
		buckets: make(map[string]*tokenBucket),
		cfg:     cfg,
	}
}

func (s *bucketStore) bucket(key string, now time.Time) *tokenBucket {
	s.mu.RLock()
	b, ok := s.buckets[key]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.buckets[key]; ok {
		return b
	}
	if len(s.buckets) >= bucketSweepAt {
		s.sweep(now)
	}
	b = &tokenBucket{
		tokens: float64(s.cfg.BurstSize),
		burst:  float64(s.cfg.BurstSize),
		rate:   s.cfg.RequestsPerSecond,
		last:   now,
	}
	s.buckets[key] = b
	return b
}

// sweep drops idle buckets. Callers hold the write lock.
func (s *bucketStore) sweep(now time.Time) {
	for key, b := range s.buckets {
		b.mu.Lock()
		idle := now.Sub(b.last) > bucketIdleAfter
		b.mu.Unlock()
		if idle {
			delete(s.buckets, key)
		}
	}
}

// RateLimit throttles per caller: the authenticated subject when the
// request carries one, the client IP otherwise.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := newBucketStore(cfg)
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()
			if userID, ok := c.Get("auth_user_id").(string); ok && userID != "" {
				key = userID
			}

			now := time.Now()
			ok, wait := store.bucket(key, now).take(now)
			c.Response().Header().Set("X-RateLimit-Limit", limitHeader)
			if !ok {
				retryAfter := int(wait/time.Second) + 1
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
				c.Response().Header().Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
