package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/viridial/authcore"
)

const (
	limiterGCThreshold = 1000
	limiterIdleTTL     = 10 * time.Minute
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-IP token bucket sitting in front of the auth routes.
// It throttles request volume; the per-identifier attempt counter in the
// engine is independent of it.
type RateLimiter struct {
	rpm      int
	now      func() time.Time
	resolver *IPResolver
	mu       sync.Mutex
	clients  map[string]*clientLimiter
}

// NewRateLimiter allows rpm requests per minute per client, bursting to rpm.
// Non-positive rpm defaults to 60. Clients are keyed by resolver, which may
// be nil to key on the connection's peer address alone.
func NewRateLimiter(rpm int, resolver *IPResolver) *RateLimiter {
	if rpm <= 0 {
		rpm = 60
	}
	return &RateLimiter{
		rpm:      rpm,
		now:      time.Now,
		resolver: resolver,
		clients:  map[string]*clientLimiter{},
	}
}

// Handler rejects requests over the limit with 429 and a Retry-After of one
// refill interval.
func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.limiter(l.resolver.ClientIP(r)).Allow() {
			WriteError(w, r, &authcore.RetryError{Err: authcore.ErrTooManyAttempts, After: l.interval()})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) interval() time.Duration {
	return time.Minute / time.Duration(l.rpm)
}

func (l *RateLimiter) limiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if c, ok := l.clients[ip]; ok {
		c.lastSeen = now
		return c.limiter
	}

	c := &clientLimiter{
		limiter:  rate.NewLimiter(rate.Every(l.interval()), l.rpm),
		lastSeen: now,
	}
	l.clients[ip] = c
	l.gcLocked(now)
	return c.limiter
}

func (l *RateLimiter) gcLocked(now time.Time) {
	if len(l.clients) < limiterGCThreshold {
		return
	}
	cutoff := now.Add(-limiterIdleTTL)
	for ip, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
		}
	}
}
