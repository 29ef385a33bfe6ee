package scorer

import (
	"context"
	"math"

	"github.com/good-listener/wakelistener/internal/audio"
)

// EnergyConfig tunes the RMS detector. Levels are normalized to full scale.
type EnergyConfig struct {
	SpeechLevel   float64 // RMS level to start speech
	SilenceLevel  float64 // RMS level to end speech
	SpeechFrames  int     // consecutive loud frames to enter speech
	SilenceFrames int     // consecutive quiet frames to leave speech
	FrameSamples  int
}

// DefaultEnergyConfig suits 16 kHz audio in 512-sample windows.
func DefaultEnergyConfig() EnergyConfig {
	return EnergyConfig{
		SpeechLevel:   0.015,
		SilenceLevel:  0.008,
		SpeechFrames:  2,
		SilenceFrames: 8,
		FrameSamples:  512,
	}
}

// Energy is a pure-Go activity scorer based on RMS energy with hysteresis.
// Its run counters are the recurrent state cleared by Reset.
type Energy struct {
	cfg          EnergyConfig
	inSpeech     bool
	speechCount  int
	silenceCount int
}

// NewEnergy creates an RMS activity scorer.
func NewEnergy(cfg EnergyConfig) *Energy {
	def := DefaultEnergyConfig()
	if cfg.SpeechFrames <= 0 {
		cfg.SpeechFrames = def.SpeechFrames
	}
	if cfg.SilenceFrames <= 0 {
		cfg.SilenceFrames = def.SilenceFrames
	}
	if cfg.FrameSamples <= 0 {
		cfg.FrameSamples = def.FrameSamples
	}
	return &Energy{cfg: cfg}
}

// IsSpeech implements Activity.
func (e *Energy) IsSpeech(_ context.Context, f audio.Frame) (bool, error) {
	level := RMS(f.Samples)

	if e.inSpeech {
		if level < e.cfg.SilenceLevel {
			e.silenceCount++
			if e.silenceCount >= e.cfg.SilenceFrames {
				e.inSpeech = false
				e.silenceCount = 0
			}
		} else {
			e.silenceCount = 0
		}
		return e.inSpeech, nil
	}

	if level >= e.cfg.SpeechLevel {
		e.speechCount++
		if e.speechCount >= e.cfg.SpeechFrames {
			e.inSpeech = true
			e.speechCount = 0
		}
	} else {
		e.speechCount = 0
	}
	return e.inSpeech, nil
}

// Reset implements Activity.
func (e *Energy) Reset(context.Context) error {
	e.inSpeech = false
	e.speechCount = 0
	e.silenceCount = 0
	return nil
}

// FrameSamples implements Activity.
func (e *Energy) FrameSamples() int { return e.cfg.FrameSamples }

// RMS returns the root mean square of samples normalized to [0,1].
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
