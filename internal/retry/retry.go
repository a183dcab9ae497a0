// Package retry retries Google API calls and thumbnail downloads with
// exponential backoff and jitter.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"google.golang.org/api/googleapi"
)

// ErrMaxRetriesExceeded is returned when all attempts failed with retryable errors.
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Config holds retry configuration.
type Config struct {
	// MaxRetries is the number of retries after the first attempt (default: 3).
	MaxRetries int
	// InitialDelay is the delay before the first retry (default: 500ms).
	InitialDelay time.Duration
	// MaxDelay caps the delay between retries (default: 8s).
	MaxDelay time.Duration
	// Multiplier is the backoff multiplier (default: 2.0).
	Multiplier float64
	// JitterFactor randomizes each delay by +/- this fraction (default: 0.2).
	JitterFactor float64
	// RetryableStatusCodes are the HTTP statuses worth another attempt.
	RetryableStatusCodes []int
	Logger               *slog.Logger
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.2,
		RetryableStatusCodes: []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
		Logger: slog.Default(),
	}
}

// Retryer runs operations with exponential backoff.
type Retryer struct {
	config          Config
	retryableStatus map[int]bool
	sleep           func(ctx context.Context, d time.Duration) error
}

// New creates a Retryer. Zero fields take their DefaultConfig value.
func New(config Config) *Retryer {
	defaults := DefaultConfig()
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = defaults.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = defaults.MaxDelay
	}
	if config.Multiplier <= 0 {
		config.Multiplier = defaults.Multiplier
	}
	if config.JitterFactor <= 0 || config.JitterFactor > 1 {
		config.JitterFactor = defaults.JitterFactor
	}
	if len(config.RetryableStatusCodes) == 0 {
		config.RetryableStatusCodes = defaults.RetryableStatusCodes
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	statusMap := make(map[int]bool, len(config.RetryableStatusCodes))
	for _, code := range config.RetryableStatusCodes {
		statusMap[code] = true
	}

	return &Retryer{
		config:          config,
		retryableStatus: statusMap,
		sleep:           sleepContext,
	}
}

// HTTPError is a non-2xx answer to a plain HTTP request.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// StatusCode extracts the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// IsRetryable reports whether err is a transient failure: a retryable HTTP
// status or a network timeout. Context errors are never retryable.
func (r *Retryer) IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if code := StatusCode(err); code != 0 {
		return r.retryableStatus[code]
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// CalculateDelay returns the backoff for a 1-based retry attempt.
func (r *Retryer) CalculateDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(r.config.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= r.config.Multiplier
	}
	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}

	jitterRange := delay * r.config.JitterFactor
	delay += rand.Float64()*2*jitterRange - jitterRange
	if delay < float64(time.Millisecond) {
		delay = float64(time.Millisecond)
	}
	return time.Duration(delay)
}

// Run calls op until it succeeds, fails with a non-retryable error or the
// retries are exhausted.
func (r *Retryer) Run(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Do(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Do is Run for operations that produce a value.
func Do[T any](ctx context.Context, r *Retryer, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		res, err := op(ctx)
		if err == nil {
			if attempt > 0 {
				r.config.Logger.Debug("operation succeeded after retry",
					slog.Int("attempts", attempt+1),
				)
			}
			return res, nil
		}
		if !r.IsRetryable(err) {
			return zero, err
		}
		lastErr = err

		if attempt == r.config.MaxRetries {
			break
		}

		delay := r.CalculateDelay(attempt + 1)
		r.config.Logger.Warn("retrying operation",
			slog.Int("attempt", attempt+1),
			slog.Int("max_retries", r.config.MaxRetries),
			slog.Int("status_code", StatusCode(err)),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)
		if err := r.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrMaxRetriesExceeded, r.config.MaxRetries+1, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// MaxRetries returns the maximum number of retries.
func (r *Retryer) MaxRetries() int {
	return r.config.MaxRetries
}

// InitialDelay returns the initial delay.
func (r *Retryer) InitialDelay() time.Duration {
	return r.config.InitialDelay
}
