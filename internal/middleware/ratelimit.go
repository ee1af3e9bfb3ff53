package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// windowLimiter counts hits per key in a sliding window. Stale keys are
// swept lazily on access, at most once per window.
type windowLimiter struct {
	mu        sync.Mutex
	hits      map[string][]time.Time
	limit     int
	window    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newWindowLimiter(limit int, window time.Duration) *windowLimiter {
	return &windowLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// allow records a hit for key and reports whether it is within the limit.
// Rejected hits are not recorded.
func (l *windowLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	if now.Sub(l.lastSweep) >= l.window {
		for k, ts := range l.hits {
			if live := after(ts, cutoff); len(live) == 0 {
				delete(l.hits, k)
			} else {
				l.hits[k] = live
			}
		}
		l.lastSweep = now
	}

	live := after(l.hits[key], cutoff)
	if len(live) >= l.limit {
		l.hits[key] = live
		return false
	}
	l.hits[key] = append(live, now)
	return true
}

func (l *windowLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}

// after drops the prefix of ts at or before cutoff; ts is in ascending order.
func after(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}

// RateLimit caps requests per client IP. The server puts it on the login and
// setup routes.
func RateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return rateLimit(newWindowLimiter(limit, window))
}

func rateLimit(l *windowLimiter) func(http.Handler) http.Handler {
	retry := strconv.Itoa(int(l.window.Seconds()))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.allow(clientIP(r)) {
				w.Header().Set("Retry-After", retry)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"too many requests"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	ip := r.RemoteAddr
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip, _, _ = strings.Cut(fwd, ",")
	}
	ip = strings.TrimSpace(ip)
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return ip
}
