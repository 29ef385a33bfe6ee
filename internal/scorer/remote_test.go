package scorer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/good-listener/wakelistener/internal/audio"
	apperrors "github.com/good-listener/wakelistener/internal/errors"
	"github.com/good-listener/wakelistener/internal/resilience"
)

type fakeClient struct {
	scores    map[string]float64
	prob      float32
	err       error
	calls     int
	resets    int
	lastBytes int
}

func (f *fakeClient) ScoreWakeWord(_ context.Context, pcm []byte) (map[string]float64, error) {
	f.calls++
	f.lastBytes = len(pcm)
	return f.scores, f.err
}

func (f *fakeClient) ResetWakeWord(context.Context) error {
	f.resets++
	return f.err
}

func (f *fakeClient) DetectSpeech(_ context.Context, pcm []byte) (float32, error) {
	f.calls++
	f.lastBytes = len(pcm)
	return f.prob, f.err
}

func (f *fakeClient) ResetVAD(context.Context) error {
	f.resets++
	return f.err
}

func breaker(threshold int) *resilience.Breaker {
	return resilience.New("test", resilience.Config{Threshold: threshold, ResetTimeout: time.Hour, HalfOpenSuccesses: 1})
}

func TestRemoteWakeScore(t *testing.T) {
	c := &fakeClient{scores: map[string]float64{"hey_jarvis": 0.8}}
	w := NewRemoteWake(c, breaker(3))

	s, err := w.Score(context.Background(), audio.Frame{Samples: make([]int16, 1280)})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if s["hey_jarvis"] != 0.8 {
		t.Errorf("scores = %v", s)
	}
	if c.lastBytes != 2560 {
		t.Errorf("sent %d bytes, want 2560", c.lastBytes)
	}
}

func TestRemoteWakeInvalidOutput(t *testing.T) {
	w := NewRemoteWake(&fakeClient{scores: map[string]float64{"hey_jarvis": 1.7}}, breaker(3))
	_, err := w.Score(context.Background(), audio.Frame{})
	if !apperrors.IsCode(err, apperrors.CodeScorerInvalidOutput) {
		t.Errorf("err = %v, want SCORER_INVALID_OUTPUT", err)
	}
}

func TestRemoteWakeBreakerOpens(t *testing.T) {
	c := &fakeClient{err: errors.New("connection refused")}
	w := NewRemoteWake(c, breaker(2))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := w.Score(ctx, audio.Frame{}); !apperrors.IsCode(err, apperrors.CodeScorerFailed) {
			t.Fatalf("call %d: err = %v, want SCORER_FAILED", i, err)
		}
	}
	_, err := w.Score(ctx, audio.Frame{})
	if !errors.Is(err, resilience.ErrOpen) {
		t.Errorf("err = %v, want breaker open", err)
	}
	if c.calls != 2 {
		t.Errorf("client called %d times, want 2", c.calls)
	}
}

func TestRemoteActivityThreshold(t *testing.T) {
	c := &fakeClient{}
	a := NewRemoteActivity(c, breaker(3), 0.4, 512)
	ctx := context.Background()

	for _, tt := range []struct {
		prob float32
		want bool
	}{{0.2, false}, {0.4, false}, {0.41, true}, {0.99, true}} {
		c.prob = tt.prob
		got, err := a.IsSpeech(ctx, audio.Frame{Samples: make([]int16, 512)})
		if err != nil {
			t.Fatalf("IsSpeech: %v", err)
		}
		if got != tt.want {
			t.Errorf("IsSpeech(p=%v) = %v, want %v", tt.prob, got, tt.want)
		}
	}
	if a.FrameSamples() != 512 {
		t.Errorf("FrameSamples() = %d, want 512", a.FrameSamples())
	}
}

func TestRemoteActivityReset(t *testing.T) {
	c := &fakeClient{}
	a := NewRemoteActivity(c, breaker(3), 0.4, 512)
	if err := a.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if c.resets != 1 {
		t.Errorf("resets = %d, want 1", c.resets)
	}

	c.err = errors.New("down")
	if err := a.Reset(context.Background()); !apperrors.IsCode(err, apperrors.CodeScorerFailed) {
		t.Errorf("Reset() = %v, want SCORER_FAILED", err)
	}
}
