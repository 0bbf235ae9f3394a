package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	dErrors "flock/pkg/domain-errors"
	"flock/pkg/platform/httputil"
)

// RateLimiter applies a per-station token bucket on the mark submission
// path. A misbehaving station draining its offline queue too aggressively
// is throttled without affecting other stations.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*stationLimiter
}

type stationLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewRateLimiter builds a limiter allowing perMinute requests per station.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    perMinute,
		limiters: make(map[string]*stationLimiter),
	}
}

// Middleware keys the bucket by station header, falling back to the remote
// address for unidentified callers.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Station-ID")
		if key == "" {
			key = r.RemoteAddr
		}
		if !rl.allow(key) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	entry, ok := rl.limiters[key]
	if !ok {
		entry = &stationLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastAccess = time.Now()
	rl.evictStaleLocked()
	rl.mu.Unlock()
	return entry.limiter.Allow()
}

// evictStaleLocked drops buckets idle for over an hour to bound memory.
func (rl *RateLimiter) evictStaleLocked() {
	if len(rl.limiters) < 1024 {
		return
	}
	cutoff := time.Now().Add(-time.Hour)
	for key, entry := range rl.limiters {
		if entry.lastAccess.Before(cutoff) {
			delete(rl.limiters, key)
		}
	}
}
