package httpapi

import (
	"sync"

	"golang.org/x/time/rate"
)

// Per-owner request budget. One token bucket per owner, created lazily on
// first request; the default of 100 requests per minute matches normal
// interactive use with plenty of headroom for bursts.
const (
	defaultRatePerMinute = 100
	defaultRateBurst     = 25
)

type rateLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	byOwner map[string]*rate.Limiter
}

func newRateLimiter(perMinute, burst int) *rateLimiter {
	return &rateLimiter{
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   burst,
		byOwner: make(map[string]*rate.Limiter),
	}
}

// allow reports whether owner may make another request right now. One
// owner exhausting their budget never affects another.
func (l *rateLimiter) allow(owner string) bool {
	l.mu.Lock()
	lim, ok := l.byOwner[owner]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.byOwner[owner] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
