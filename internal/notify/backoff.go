package notify

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// BackoffConfig configures exponential backoff.
type BackoffConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0 to 1.0
}

// DefaultBackoffConfig suits the Discord webhook API.
var DefaultBackoffConfig = BackoffConfig{
	InitialDelay: 1 * time.Second,
	MaxDelay:     5 * time.Minute,
	Multiplier:   2.0,
	JitterFactor: 0.2,
}

// Backoff computes exponential delays with jitter. Each instance owns its
// random source so a fixed seed gives a reproducible sequence.
type Backoff struct {
	cfg BackoffConfig
	mu  sync.Mutex
	rng *rand.Rand
}

// NewBackoff creates a Backoff with a random seed.
func NewBackoff(cfg BackoffConfig) *Backoff {
	return NewBackoffWithSeed(cfg, rand.Uint64())
}

// NewBackoffWithSeed creates a Backoff with a fixed seed.
func NewBackoffWithSeed(cfg BackoffConfig, seed uint64) *Backoff {
	return &Backoff{cfg: cfg, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Delay returns the wait before retry number attempt (1-based; values
// below 1 are treated as 1).
func (b *Backoff) Delay(attempt int) time.Duration {
	attempt = max(attempt, 1)
	delay := float64(b.cfg.InitialDelay) * math.Pow(b.cfg.Multiplier, float64(attempt-1))
	delay = min(delay, float64(b.cfg.MaxDelay))

	if b.cfg.JitterFactor > 0 {
		b.mu.Lock()
		delay += delay * b.cfg.JitterFactor * (b.rng.Float64()*2 - 1)
		b.mu.Unlock()
	}
	return time.Duration(max(delay, 0))
}
