// Package resilience keeps the capture loop responsive when the inference
// server misbehaves: a circuit breaker around per-frame scoring calls and a
// backoff loop for the startup readiness wait.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is a circuit breaker state.
type State int

const (
	Closed   State = iota // calls pass through
	Open                  // calls fail fast with ErrOpen
	HalfOpen              // calls pass through on trial
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned while the breaker is failing fast.
var ErrOpen = errors.New("circuit breaker open")

// Breaker stops calling a failing scorer backend for ResetTimeout, then lets
// calls through on trial until HalfOpenSuccesses of them succeed.
type Breaker struct {
	name     string
	cfg      Config
	onChange func(name string, from, to State)

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
}

// New creates a closed breaker. name is passed to the change hook.
func New(name string, cfg Config) *Breaker {
	return &Breaker{name: name, cfg: cfg.withDefaults()}
}

// WithHook sets a callback run after every state change.
func (b *Breaker) WithHook(fn func(name string, from, to State)) *Breaker {
	b.onChange = fn
	return b
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs fn unless the breaker is open.
func (b *Breaker) Execute(fn func() error) error {
	_, err := ExecuteWithResult(b, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// ExecuteWithResult runs fn unless the breaker is open and records its outcome.
func ExecuteWithResult[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := b.allow(); err != nil {
		return zero, err
	}
	v, err := fn()
	b.record(err)
	if err != nil {
		return zero, err
	}
	return v, nil
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	if b.state != Open {
		b.mu.Unlock()
		return nil
	}
	if b.cfg.Now().Sub(b.openedAt) < b.cfg.ResetTimeout {
		b.mu.Unlock()
		return ErrOpen
	}
	b.moveLocked(HalfOpen)
	b.mu.Unlock()
	b.notify(Open, HalfOpen)
	return nil
}

// record counts one call outcome. A cancelled call says nothing about the
// backend and is ignored.
func (b *Breaker) record(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	b.mu.Lock()
	from, to := b.state, b.state
	switch {
	case err == nil && b.state == HalfOpen:
		b.successes++
		if b.successes >= b.cfg.HalfOpenSuccesses {
			to = Closed
		}
	case err == nil:
		b.failures = 0
	case b.state == HalfOpen:
		to = Open
	default:
		b.failures++
		if b.failures >= b.cfg.Threshold {
			to = Open
		}
	}
	if to != from {
		b.moveLocked(to)
	}
	b.mu.Unlock()

	if to != from {
		b.notify(from, to)
	}
}

func (b *Breaker) moveLocked(to State) {
	b.state = to
	b.successes = 0
	switch to {
	case Closed:
		b.failures = 0
	case Open:
		b.openedAt = b.cfg.Now()
	}
}

func (b *Breaker) notify(from, to State) {
	if b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}
