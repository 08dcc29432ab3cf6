package gateway

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// userLimiter applies a token bucket per user to message posts.
type userLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// newUserLimiter allows perMinute posts per user with the given burst. A
// non-positive perMinute disables limiting.
func newUserLimiter(perMinute, burst int) *userLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &userLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(float64(perMinute) / 60),
		burst:    burst,
	}
}

func (l *userLimiter) Allow(userID string) bool {
	if l == nil {
		return true
	}
	return l.limiter(userID).Allow()
}

func (l *userLimiter) limiter(userID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[userID] = lim
	}
	return lim
}

// authRateLimiter tracks failed websocket handshakes per IP.
type authRateLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
}

const (
	authRateWindow   = 5 * time.Minute
	authRateMaxFails = 10
	authRateMaxIPs   = 10000
)

func newAuthRateLimiter() *authRateLimiter {
	return &authRateLimiter{failures: make(map[string][]time.Time)}
}

func (l *authRateLimiter) allow(remoteAddr string) bool {
	host := hostOf(remoteAddr)

	l.mu.Lock()
	defer l.mu.Unlock()
	recent := prune(l.failures[host], time.Now().Add(-authRateWindow))
	if len(recent) == 0 {
		delete(l.failures, host)
		return true
	}
	l.failures[host] = recent
	return len(recent) < authRateMaxFails
}

func (l *authRateLimiter) recordFailure(remoteAddr string) {
	host := hostOf(remoteAddr)

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.failures[host]; !exists && len(l.failures) >= authRateMaxIPs {
		l.evictOldest()
	}
	l.failures[host] = append(l.failures[host], time.Now())
}

// sweep drops hosts with no failures inside the window.
func (l *authRateLimiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := now.Add(-authRateWindow)
	for host, times := range l.failures {
		if kept := prune(times, cutoff); len(kept) == 0 {
			delete(l.failures, host)
		} else {
			l.failures[host] = kept
		}
	}
}

func (l *authRateLimiter) evictOldest() {
	var oldestHost string
	var oldest time.Time
	for host, times := range l.failures {
		if len(times) > 0 && (oldestHost == "" || times[0].Before(oldest)) {
			oldestHost, oldest = host, times[0]
		}
	}
	if oldestHost != "" {
		delete(l.failures, oldestHost)
	}
}

func prune(times []time.Time, cutoff time.Time) []time.Time {
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

func hostOf(remoteAddr string) string {
	host, _, _ := net.SplitHostPort(remoteAddr)
	if host == "" {
		return remoteAddr
	}
	return host
}
