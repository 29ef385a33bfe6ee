package resilience

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/good-listener/wakelistener/internal/errors"
)

// Readiness wait settings: the inference server may still be loading its
// models when the listener starts.
const (
	ReadinessMaxRetries = 8
	ReadinessBaseDelay  = 250 * time.Millisecond
	ReadinessMaxDelay   = 5 * time.Second
	JitterFactor        = 0.2
)

// RetryConfig holds retry settings. Zero fields take the readiness values.
type RetryConfig struct {
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterFactor float64
	IsRetryable  func(error) bool
}

// ReadinessRetryConfig returns settings for waiting on the inference server.
func ReadinessRetryConfig() RetryConfig {
	return RetryConfig{}.withDefaults()
}

// IsTransient reports whether err may clear up on its own: unavailable or
// timed out application errors, transient gRPC codes, and errors of
// unknown origin.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return apperrors.IsRetryable(err)
	}
	s, ok := status.FromError(err)
	if !ok {
		return true
	}
	switch s.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	default:
		return false
	}
}

// Retry calls fn until it succeeds, returns a permanent error, or the
// retries run out, sleeping with exponential backoff in between.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	cfg = cfg.withDefaults()
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		if err == nil {
			return nil
		}
		if attempt == cfg.MaxRetries || !cfg.IsRetryable(err) {
			return err
		}

		delay := backoffDelay(cfg, attempt)
		slog.Debug("retrying after error", "attempt", attempt+1, "max", cfg.MaxRetries, "delay", delay, "error", err)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// backoffDelay doubles BaseDelay per attempt up to MaxDelay, then spreads it
// by JitterFactor.
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := min(cfg.BaseDelay<<min(attempt, 6), cfg.MaxDelay)
	jitter := float64(delay) * cfg.JitterFactor * (rand.Float64() - 0.5)
	return time.Duration(float64(delay) + jitter)
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = ReadinessMaxRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = ReadinessBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = ReadinessMaxDelay
	}
	if c.JitterFactor <= 0 {
		c.JitterFactor = JitterFactor
	}
	if c.IsRetryable == nil {
		c.IsRetryable = IsTransient
	}
	return c
}
