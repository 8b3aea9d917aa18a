package session

import (
	"math"
	"time"

	"golang.org/x/exp/rand"
)

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}

// Backoff tracks the attempt counter for one retry loop.
type Backoff struct {
	cfg     BackoffConfig
	rng     *rand.Rand
	attempt int
}

func NewBackoff(cfg BackoffConfig, seed uint64) *Backoff {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Backoff{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// Next advances the attempt counter and returns the delay before the next try.
func (b *Backoff) Next() time.Duration {
	b.attempt++
	return NextBackoffDelay(b.cfg, b.attempt, b.rng)
}

func (b *Backoff) Attempts() int {
	return b.attempt
}

func (b *Backoff) Reset() {
	b.attempt = 0
}
