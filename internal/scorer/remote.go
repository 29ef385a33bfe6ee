package scorer

import (
	"context"

	"github.com/good-listener/wakelistener/internal/audio"
	apperrors "github.com/good-listener/wakelistener/internal/errors"
	"github.com/good-listener/wakelistener/internal/resilience"
)

// WakeClient is the inference surface used by RemoteWake.
type WakeClient interface {
	ScoreWakeWord(ctx context.Context, pcm []byte) (map[string]float64, error)
	ResetWakeWord(ctx context.Context) error
}

// VADClient is the inference surface used by RemoteActivity.
type VADClient interface {
	DetectSpeech(ctx context.Context, pcm []byte) (float32, error)
	ResetVAD(ctx context.Context) error
}

// RemoteWake scores frames on the inference server behind a circuit breaker.
type RemoteWake struct {
	client  WakeClient
	breaker *resilience.Breaker
}

// NewRemoteWake creates a wake scorer.
func NewRemoteWake(client WakeClient, breaker *resilience.Breaker) *RemoteWake {
	return &RemoteWake{client: client, breaker: breaker}
}

// Score implements WakeWord.
func (r *RemoteWake) Score(ctx context.Context, f audio.Frame) (Scores, error) {
	raw, err := resilience.ExecuteWithResult(r.breaker, func() (map[string]float64, error) {
		return r.client.ScoreWakeWord(ctx, f.Bytes())
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeScorerFailed, "wake word scoring")
	}
	s := Scores(raw)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reset implements WakeWord.
func (r *RemoteWake) Reset(ctx context.Context) error {
	if err := r.breaker.Execute(func() error { return r.client.ResetWakeWord(ctx) }); err != nil {
		return apperrors.Wrap(err, apperrors.CodeScorerFailed, "wake word reset")
	}
	return nil
}

// RemoteActivity asks the inference server for a speech probability and
// compares it against a threshold.
type RemoteActivity struct {
	client       VADClient
	breaker      *resilience.Breaker
	threshold    float32
	frameSamples int
}

// NewRemoteActivity creates an activity scorer.
func NewRemoteActivity(client VADClient, breaker *resilience.Breaker, threshold float64, frameSamples int) *RemoteActivity {
	return &RemoteActivity{client: client, breaker: breaker, threshold: float32(threshold), frameSamples: frameSamples}
}

// IsSpeech implements Activity.
func (r *RemoteActivity) IsSpeech(ctx context.Context, f audio.Frame) (bool, error) {
	p, err := resilience.ExecuteWithResult(r.breaker, func() (float32, error) {
		return r.client.DetectSpeech(ctx, f.Bytes())
	})
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.CodeScorerFailed, "speech detection")
	}
	if err := (Scores{"speech": float64(p)}).Validate(); err != nil {
		return false, err
	}
	return p > r.threshold, nil
}

// Reset implements Activity.
func (r *RemoteActivity) Reset(ctx context.Context) error {
	if err := r.breaker.Execute(func() error { return r.client.ResetVAD(ctx) }); err != nil {
		return apperrors.Wrap(err, apperrors.CodeScorerFailed, "speech detector reset")
	}
	return nil
}

// FrameSamples implements Activity.
func (r *RemoteActivity) FrameSamples() int { return r.frameSamples }
