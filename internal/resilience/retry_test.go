package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/good-listener/wakelistener/internal/errors"
)

func fastRetry(n int) RetryConfig {
	return RetryConfig{MaxRetries: n, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
}

func TestRetry(t *testing.T) {
	unavailable := status.Error(codes.Unavailable, "model loading")
	invalid := status.Error(codes.InvalidArgument, "bad frame")

	tests := []struct {
		name      string
		retries   int
		failFirst int
		err       error
		wantCalls int
		wantErr   error
	}{
		{"succeeds first", 3, 0, nil, 1, nil},
		{"succeeds after transient failures", 3, 2, unavailable, 3, nil},
		{"exhausts retries", 2, 10, unavailable, 3, unavailable},
		{"permanent error", 5, 10, invalid, 1, invalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), fastRetry(tt.retries), func() error {
				calls++
				if calls <= tt.failFirst {
					return tt.err
				}
				return nil
			})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Retry() = %v, want %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestRetryContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxRetries: 10, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := Retry(ctx, cfg, func() error {
		return status.Error(codes.Unavailable, "fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry() = %v, want context.Canceled", err)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"grpc unavailable", status.Error(codes.Unavailable, "x"), true},
		{"grpc deadline", status.Error(codes.DeadlineExceeded, "x"), true},
		{"grpc exhausted", status.Error(codes.ResourceExhausted, "x"), true},
		{"grpc aborted", status.Error(codes.Aborted, "x"), true},
		{"grpc internal", status.Error(codes.Internal, "x"), false},
		{"grpc invalid", status.Error(codes.InvalidArgument, "x"), false},
		{"app unavailable", apperrors.New(apperrors.CodeUnavailable, "x"), true},
		{"app timeout", apperrors.New(apperrors.CodeTimeout, "x"), true},
		{"app bad output", apperrors.New(apperrors.CodeScorerInvalidOutput, "x"), false},
		{"plain", errors.New("connection reset"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestReadinessRetryConfig(t *testing.T) {
	cfg := ReadinessRetryConfig()
	if cfg.MaxRetries != ReadinessMaxRetries || cfg.BaseDelay != ReadinessBaseDelay || cfg.MaxDelay != ReadinessMaxDelay {
		t.Errorf("ReadinessRetryConfig() = %+v", cfg)
	}
	if cfg.IsRetryable == nil {
		t.Error("IsRetryable should default to IsTransient")
	}
}

func TestBackoffDelay(t *testing.T) {
	cfg := RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}

	for attempt, want := range []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond} {
		if got := backoffDelay(cfg, attempt); got != want {
			t.Errorf("backoffDelay(%d) = %v, want %v", attempt, got, want)
		}
	}
}
