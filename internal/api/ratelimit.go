package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/graaaaa/raidlog-companion/internal/clock"
)

// RateLimiter is a per-address token bucket. Idle buckets are pruned on a
// background ticker until Stop is called.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
	idle     time.Duration
	clock    clock.Clock
	stopOnce sync.Once
	done     chan struct{}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// Rate is events per second per address.
	Rate float64
	// Burst is the maximum burst size.
	Burst int
	// CleanupInterval is how often idle buckets are pruned. Zero disables
	// the background pruner.
	CleanupInterval time.Duration
	// Clock defaults to the wall clock.
	Clock clock.Clock
}

// DefaultRateLimiterConfig allows a host to post a start and an end for
// several accounts at once while stopping runaway loops.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Rate:            5,
		Burst:           20,
		CleanupInterval: 5 * time.Minute,
	}
}

// NewRateLimiter creates a per-address rate limiter.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate.Limit(cfg.Rate),
		burst:    cfg.Burst,
		idle:     2 * cfg.CleanupInterval,
		clock:    cfg.Clock,
		done:     make(chan struct{}),
	}
	if rl.clock == nil {
		rl.clock = clock.Real
	}
	if cfg.CleanupInterval > 0 {
		go rl.pruneLoop(cfg.CleanupInterval)
	}
	return rl
}

// Allow reports whether one more request from addr may proceed.
func (rl *RateLimiter) Allow(addr string) bool {
	now := rl.clock.Now()
	rl.mu.Lock()
	v, ok := rl.visitors[addr]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[addr] = v
	}
	v.lastSeen = now
	rl.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) pruneLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.prune()
		case <-rl.done:
			return
		}
	}
}

// prune drops buckets idle for more than two cleanup intervals.
func (rl *RateLimiter) prune() {
	threshold := rl.clock.Now().Add(-rl.idle)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for addr, v := range rl.visitors {
		if v.lastSeen.Before(threshold) {
			delete(rl.visitors, addr)
		}
	}
}

// Stop stops the pruner.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(extractIP(r)) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractIP returns the client address. The server is meant for a LAN
// without a reverse proxy, so RemoteAddr is trusted.
func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// AuthFailureLimiter locks an address out after repeated bad credentials.
type AuthFailureLimiter struct {
	mu       sync.Mutex
	failures map[string]*authFailure
	maxFails int
	window   time.Duration
	lockout  time.Duration
	clock    clock.Clock
}

type authFailure struct {
	count    int
	firstAt  time.Time
	lockedAt time.Time
}

// AuthFailureLimiterConfig configures auth failure limiting.
type AuthFailureLimiterConfig struct {
	MaxFailures   int           // failures before lockout
	Window        time.Duration // counting window
	LockoutPeriod time.Duration
	Clock         clock.Clock
}

// DefaultAuthFailureLimiterConfig returns the LAN-mode defaults.
func DefaultAuthFailureLimiterConfig() AuthFailureLimiterConfig {
	return AuthFailureLimiterConfig{
		MaxFailures:   5,
		Window:        5 * time.Minute,
		LockoutPeriod: 15 * time.Minute,
	}
}

// NewAuthFailureLimiter creates an auth failure limiter.
func NewAuthFailureLimiter(cfg AuthFailureLimiterConfig) *AuthFailureLimiter {
	c := cfg.Clock
	if c == nil {
		c = clock.Real
	}
	return &AuthFailureLimiter{
		failures: make(map[string]*authFailure),
		maxFails: cfg.MaxFailures,
		window:   cfg.Window,
		lockout:  cfg.LockoutPeriod,
		clock:    c,
	}
}

// IsLocked reports whether addr is currently locked out.
func (l *AuthFailureLimiter) IsLocked(addr string) bool {
	return l.LockoutSecondsRemaining(addr) > 0
}

// RecordFailure counts a failure and returns the attempts left, or -1 once
// the address is locked.
func (l *AuthFailureLimiter) RecordFailure(addr string) int {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	f, ok := l.failures[addr]
	if !ok || now.Sub(f.firstAt) > l.window {
		l.failures[addr] = &authFailure{count: 1, firstAt: now}
		return l.maxFails - 1
	}
	f.count++
	if f.count >= l.maxFails {
		f.lockedAt = now
		return -1
	}
	return l.maxFails - f.count
}

// RecordSuccess clears the failure record for addr.
func (l *AuthFailureLimiter) RecordSuccess(addr string) {
	l.mu.Lock()
	delete(l.failures, addr)
	l.mu.Unlock()
}

// LockoutSecondsRemaining returns the whole seconds until addr may retry.
func (l *AuthFailureLimiter) LockoutSecondsRemaining(addr string) int {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	f, ok := l.failures[addr]
	if !ok || f.lockedAt.IsZero() {
		return 0
	}
	remaining := l.lockout - now.Sub(f.lockedAt)
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Seconds()) + 1
}
