// Package ratelimit throttles requests per client address. The JSON API
// and the web pages share one Limiter so credential endpoints have a
// single budget per address.
package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const visitorTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per client address.
type Limiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	lastPrune time.Time
	now       func() time.Time
}

// New allows rps requests per second per address with the given burst.
// A non-positive rps disables limiting.
func New(rps float64, burst int) *Limiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}

	return &Limiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		burst:    burst,
		now:      time.Now,
	}
}

// Allow takes a token from key's bucket.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastPrune) > visitorTTL {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > visitorTTL {
				delete(l.visitors, k)
			}
		}
		l.lastPrune = now
	}

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now

	return v.limiter.AllowN(now, 1)
}

// AllowRequest takes a token for the request's client address.
func (l *Limiter) AllowRequest(r *http.Request) bool {
	return l.Allow(ClientIP(r))
}

func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
