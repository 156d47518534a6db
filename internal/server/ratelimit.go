// ratelimit.go - Sliding-window rate limiter middleware by client IP.
//
// Guards the credential endpoints against brute force; designed
// to complement proxy-side limits.
package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/bluele/gcache"
	hr "github.com/julienschmidt/httprouter"
)

const maxTrackedVisitors = 10000

// rateLimiter allows rate requests per window for each client IP. Visitors
// live in an expiring LRU so idle or excess entries fall out on their own.
type rateLimiter struct {
	visitors gcache.Cache
	clock    gcache.Clock
	rate     int           // requests allowed per window
	window   time.Duration // time window for rate limiting
}

// visitor tracks request timestamps for a single IP address
type visitor struct {
	requests []time.Time
	mu       sync.Mutex
}

// newRateLimiter creates a rate limiter that allows 'rate' requests per 'window'.
// Example: newRateLimiter(100, time.Minute) allows 100 requests per minute per IP.
func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	return newRateLimiterWith(rate, window, maxTrackedVisitors, gcache.NewRealClock())
}

// newRateLimiterWith tracks at most size visitors and reads time from clock,
// which also drives the cache expiry.
func newRateLimiterWith(rate int, window time.Duration, size int, clock gcache.Clock) *rateLimiter {
	return &rateLimiter{
		visitors: gcache.New(size).
			LRU().
			Clock(clock).
			Expiration(2 * window).
			LoaderFunc(func(interface{}) (interface{}, error) {
				return &visitor{requests: make([]time.Time, 0, rate)}, nil
			}).
			Build(),
		clock:  clock,
		rate:   rate,
		window: window,
	}
}

// middleware rejects requests over the limit with 429.
func (rl *rateLimiter) middleware(next hr.Handle) hr.Handle {
	return func(w http.ResponseWriter, r *http.Request, p hr.Params) {
		if !rl.allow(getClientIP(r)) {
			writeStatus(w, http.StatusTooManyRequests, statusError, "Rate limit exceeded. Please try again later.")
			return
		}
		next(w, r, p)
	}
}

// allow checks if a request from the given IP should be allowed
func (rl *rateLimiter) allow(ip string) bool {
	raw, err := rl.visitors.Get(ip)
	if err != nil {
		// The loader never fails; treat a cache error as allowed.
		return true
	}
	v := raw.(*visitor)
	// Keep active visitors from expiring mid-window.
	_ = rl.visitors.SetWithExpire(ip, v, 2*rl.window)

	v.mu.Lock()
	defer v.mu.Unlock()

	now := rl.clock.Now()
	cutoff := now.Add(-rl.window)

	valid := v.requests[:0]
	for _, t := range v.requests {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	v.requests = valid

	if len(v.requests) >= rl.rate {
		return false
	}
	v.requests = append(v.requests, now)
	return true
}
