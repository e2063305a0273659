package llm

import (
	"context"
	"sync"
	"time"
)

// RateLimiter implements a token bucket limiter for grading calls.
// Grading requests are large multimodal payloads, so the defaults are
// conservative to stay clear of provider 429s.
type RateLimiter struct {
	mu sync.Mutex

	tokens         float64
	maxTokens      float64
	refillRate     float64 // tokens per second
	lastRefillTime time.Time
	minInterval    time.Duration
}

// RateLimiterConfig holds configuration for the rate limiter
type RateLimiterConfig struct {
	MaxTokens   float64       // max burst capacity
	RefillRate  float64       // tokens per second
	MinInterval time.Duration // minimum time between requests
}

// DefaultRateLimiterConfig returns defaults tuned for multimodal grading calls
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		MaxTokens:   3,
		RefillRate:  0.2, // 1 token per 5 seconds
		MinInterval: 2 * time.Second,
	}
}

// NewRateLimiter creates a new rate limiter with the given config
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.MaxTokens <= 0 {
		config = DefaultRateLimiterConfig()
	}
	return &RateLimiter{
		tokens:         config.MaxTokens,
		maxTokens:      config.MaxTokens,
		refillRate:     config.RefillRate,
		lastRefillTime: time.Now(),
		minInterval:    config.MinInterval,
	}
}

// Wait blocks until a token is available or the context is cancelled
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()

		if r.tokens >= 1 {
			r.tokens--
			minInterval := r.minInterval
			r.mu.Unlock()

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(minInterval):
				return nil
			}
		}

		waitTime := time.Duration(float64(time.Second) / r.refillRate)
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

// Backoff temporarily slows the limiter after a 429
func (r *RateLimiter) Backoff(multiplier float64) {
	if multiplier <= 1 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refillRate = r.refillRate / multiplier
	r.minInterval = time.Duration(float64(r.minInterval) * multiplier)
}

// refill adds tokens based on elapsed time; caller must hold the lock
func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastRefillTime).Seconds()
	r.tokens += elapsed * r.refillRate
	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}
	r.lastRefillTime = now
}
