// Package ratelimit throttles outbound Google Slides API calls with token
// buckets, one per request class.
package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"
)

// Request classes with separate quotas. Thumbnails count as expensive reads.
const (
	ClassRead      = "read"
	ClassThumbnail = "thumbnail"
)

// Rate is a per-minute quota with a burst allowance.
type Rate struct {
	PerMinute int
	Burst     int
}

func (r Rate) perSecond() float64 {
	return float64(r.PerMinute) / 60
}

// Config holds rate limiter configuration.
type Config struct {
	// Default applies to classes without an entry in Classes.
	Default Rate
	Classes map[string]Rate
	Logger  *slog.Logger
}

// DefaultConfig returns limits below the per-user Slides API quotas.
func DefaultConfig() Config {
	return Config{
		Default: Rate{PerMinute: 500, Burst: 20},
		Classes: map[string]Rate{
			ClassThumbnail: {PerMinute: 55, Burst: 5},
		},
		Logger: slog.Default(),
	}
}

// TokenBucket implements a token bucket rate limiter.
type TokenBucket struct {
	tokens         float64
	maxTokens      float64
	refillRate     float64 // tokens per second
	lastRefillTime time.Time
	now            func() time.Time
	mu             sync.Mutex
}

// NewTokenBucket creates a new token bucket with the specified rate and burst size.
func NewTokenBucket(refillRate float64, burstSize int) *TokenBucket {
	return newTokenBucket(refillRate, burstSize, time.Now)
}

func newTokenBucket(refillRate float64, burstSize int, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		tokens:         float64(burstSize),
		maxTokens:      float64(burstSize),
		refillRate:     refillRate,
		lastRefillTime: now(),
		now:            now,
	}
}

func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefillTime)
	tb.tokens = math.Min(tb.maxTokens, tb.tokens+tb.refillRate*elapsed.Seconds())
	tb.lastRefillTime = now
}

// Allow consumes a token if one is available. It returns the remaining
// tokens, or how long until the next token when none is left.
func (tb *TokenBucket) Allow() (allowed bool, remaining int, retryAfter time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		return true, int(tb.tokens), 0
	}

	tokensNeeded := 1 - tb.tokens
	retryAfter = time.Duration(tokensNeeded/tb.refillRate*float64(time.Second)) + time.Millisecond
	return false, 0, retryAfter
}

// Remaining returns the current number of available tokens.
func (tb *TokenBucket) Remaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return int(tb.tokens)
}

// Limit returns the maximum burst size.
func (tb *TokenBucket) Limit() int {
	return int(tb.maxTokens)
}

// Limiter blocks callers until their request class has quota left.
type Limiter struct {
	config  Config
	logger  *slog.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	mu      sync.Mutex
	buckets map[string]*TokenBucket
}

// New creates a new rate limiter with the given configuration.
func New(config Config) *Limiter {
	if config.Default.PerMinute <= 0 {
		config.Default = DefaultConfig().Default
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Limiter{
		config:  config,
		logger:  config.Logger,
		now:     time.Now,
		sleep:   sleepContext,
		buckets: make(map[string]*TokenBucket),
	}
}

func (l *Limiter) bucket(class string) *TokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[class]; ok {
		return b
	}
	rate, ok := l.config.Classes[class]
	if !ok || rate.PerMinute <= 0 {
		rate = l.config.Default
	}
	if rate.Burst <= 0 {
		rate.Burst = 1
	}
	b := newTokenBucket(rate.perSecond(), rate.Burst, l.now)
	l.buckets[class] = b
	return b
}

// Wait blocks until a request of class may proceed or ctx is done. A nil
// Limiter never blocks.
func (l *Limiter) Wait(ctx context.Context, class string) error {
	if l == nil {
		return ctx.Err()
	}
	b := l.bucket(class)
	for {
		allowed, _, retryAfter := b.Allow()
		if allowed {
			return nil
		}
		l.logger.Debug("rate limited",
			slog.String("class", class),
			slog.Duration("retry_after", retryAfter),
		)
		if err := l.sleep(ctx, retryAfter); err != nil {
			return err
		}
	}
}

// Remaining returns the tokens left for class.
func (l *Limiter) Remaining(class string) int {
	return l.bucket(class).Remaining()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
