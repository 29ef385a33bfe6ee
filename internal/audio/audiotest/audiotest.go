// Package audiotest provides a scripted frame source and a manual clock for
// driving the capture loop deterministically in tests.
package audiotest

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/good-listener/wakelistener/internal/audio"
)

// ErrExhausted is returned once every scripted step has been consumed.
var ErrExhausted = errors.New("audiotest: script exhausted")

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Step is one scripted stretch of reads. Each read yields a frame filled
// with Value; Err, when set, is returned once instead of a frame.
type Step struct {
	Value int16
	Reads int
	Err   error
}

// Frames scripts n reads of frames filled with v.
func Frames(v int16, n int) Step { return Step{Value: v, Reads: n} }

// Fail scripts a single read error.
func Fail(err error) Step { return Step{Err: err} }

// Source plays back a script. Each successful read advances the clock by
// the duration of the frame it returns.
type Source struct {
	format audio.Format
	clock  *Clock
	steps  []Step

	mu      sync.Mutex
	lengths []int
	closed  bool
}

// NewSource creates a scripted source at 16 kHz mono.
func NewSource(clock *Clock, steps ...Step) *Source {
	return &Source{
		format: audio.Format{SampleRate: 16000, Channels: 1},
		clock:  clock,
		steps:  slices.Clone(steps),
	}
}

// Read implements audio.Source.
func (s *Source) Read(ctx context.Context, n int) (audio.Frame, error) {
	if err := ctx.Err(); err != nil {
		return audio.Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.steps) > 0 {
		st := &s.steps[0]
		if st.Err != nil {
			err := st.Err
			s.steps = s.steps[1:]
			return audio.Frame{}, err
		}
		if st.Reads <= 0 {
			s.steps = s.steps[1:]
			continue
		}
		st.Reads--
		s.lengths = append(s.lengths, n)
		samples := make([]int16, n)
		for i := range samples {
			samples[i] = st.Value
		}
		if s.clock != nil {
			s.clock.Advance(s.format.FrameDuration(n))
		}
		return audio.Frame{Samples: samples}, nil
	}
	return audio.Frame{}, ErrExhausted
}

// Format implements audio.Source.
func (s *Source) Format() audio.Format { return s.format }

// Close implements audio.Source.
func (s *Source) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (s *Source) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Lengths returns the sample counts requested by successful reads.
func (s *Source) Lengths() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.lengths...)
}

// Activity is a speech scorer that calls any frame whose first sample is
// non-zero speech.
type Activity struct {
	Samples int
	Err     error
	Resets  int
	Calls   int
}

// IsSpeech implements scorer.Activity.
func (a *Activity) IsSpeech(_ context.Context, f audio.Frame) (bool, error) {
	a.Calls++
	if a.Err != nil {
		return false, a.Err
	}
	return len(f.Samples) > 0 && f.Samples[0] != 0, nil
}

// Reset implements scorer.Activity.
func (a *Activity) Reset(context.Context) error {
	a.Resets++
	return nil
}

// FrameSamples implements scorer.Activity.
func (a *Activity) FrameSamples() int {
	if a.Samples <= 0 {
		return 512
	}
	return a.Samples
}
