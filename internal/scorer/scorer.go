// Package scorer defines the two model capabilities the capture engine
// depends on: a wake phrase scorer and a speech activity scorer. Both carry
// recurrent state between calls and expose Reset so independent recordings
// never inherit each other's acoustic history.
package scorer

import (
	"context"
	"math"

	"github.com/good-listener/wakelistener/internal/audio"
	apperrors "github.com/good-listener/wakelistener/internal/errors"
)

// Scores maps a wake phrase identifier to its confidence in [0,1].
type Scores map[string]float64

// Validate rejects NaN or out-of-range confidences.
func (s Scores) Validate() error {
	for phrase, v := range s {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return apperrors.Newf(apperrors.CodeScorerInvalidOutput, "score %v for %q outside [0,1]", v, phrase)
		}
	}
	return nil
}

// WakeWord scores one frame against every registered wake phrase.
type WakeWord interface {
	Score(ctx context.Context, f audio.Frame) (Scores, error)
	Reset(ctx context.Context) error
}

// Activity decides whether one frame of FrameSamples samples is speech.
type Activity interface {
	IsSpeech(ctx context.Context, f audio.Frame) (bool, error)
	Reset(ctx context.Context) error
	FrameSamples() int
}
