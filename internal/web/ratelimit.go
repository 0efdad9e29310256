package web

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// errRateLimited is mapped to the RATE001 user message.
var errRateLimited = errors.New("rate limit exceeded")

// ipLimiter enforces a fixed-window request budget per client IP.
type ipLimiter struct {
	max int           // requests allowed per window
	per time.Duration // window length

	mu      sync.Mutex
	clients map[string]*ipWindow
}

// ipWindow tracks one client's consumption of its current window.
type ipWindow struct {
	start time.Time
	used  int
}

func newIPLimiter(max int, per time.Duration) *ipLimiter {
	l := &ipLimiter{
		max:     max,
		per:     per,
		clients: make(map[string]*ipWindow),
	}
	go l.evict()
	return l
}

// take consumes one request from ip's budget and reports whether the
// request may proceed. Windows reset lazily on first use after expiry.
func (l *ipLimiter) take(ip string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.clients[ip]
	if w == nil || now.Sub(w.start) >= l.per {
		l.clients[ip] = &ipWindow{start: now, used: 1}
		return true
	}
	if w.used >= l.max {
		return false
	}
	w.used++
	return true
}

// evict drops clients whose window went stale so the map does not grow
// without bound.
func (l *ipLimiter) evict() {
	tick := time.NewTicker(time.Minute)
	defer tick.Stop()
	for range tick.C {
		l.mu.Lock()
		for ip, w := range l.clients {
			if time.Since(w.start) > 2*l.per {
				delete(l.clients, ip)
			}
		}
		l.mu.Unlock()
	}
}

// limit rejects requests over budget with 429. RemoteAddr has already been
// rewritten by TrustedRealIP when a trusted proxy fronts the server.
func (l *ipLimiter) limit(next http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(l.per / time.Second))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.take(r.RemoteAddr) {
			w.Header().Set("Retry-After", retryAfter)
			respondError(w, r, errRateLimited, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
