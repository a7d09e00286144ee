package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/trialcal/trialcal/internal/platform/auth"
)

// RateLimitConfig bounds per-caller request throughput.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig is generous enough for a calendar front end
// refreshing every study at once.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
	}
}

// visitorExpiry is how long an idle caller's bucket is remembered.
const visitorExpiry = 3 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterRegistry hands out one token bucket per caller key. Idle
// entries are swept inline, at most once per expiry interval, so the
// registry needs no background goroutine.
type limiterRegistry struct {
	rps   rate.Limit
	burst int

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

func newLimiterRegistry(cfg RateLimitConfig) *limiterRegistry {
	return &limiterRegistry{
		rps:       rate.Limit(cfg.RequestsPerSecond),
		burst:     cfg.BurstSize,
		visitors:  make(map[string]*visitor),
		lastSweep: time.Now(),
	}
}

func (r *limiterRegistry) get(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Sub(r.lastSweep) > visitorExpiry {
		for k, v := range r.visitors {
			if now.Sub(v.lastSeen) > visitorExpiry {
				delete(r.visitors, k)
			}
		}
		r.lastSweep = now
	}

	v, ok := r.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(r.rps, r.burst)}
		r.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

// RateLimit throttles callers individually. Buckets key on the
// authenticated user plus source IP, so practices sharing a NAT do not
// starve each other.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	registry := newLimiterRegistry(cfg)
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()
			if id, ok := auth.IdentityFrom(c.Request().Context()); ok && id.Subject != "" {
				key = id.Subject + "@" + key
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limitHeader)

			if !registry.get(key).Allow() {
				h.Set("Retry-After", "1")
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
