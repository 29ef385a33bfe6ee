// Package recorder runs one recording session: it pulls frames from the
// source, asks the activity scorer about each one and applies the
// silence, no-speech and duration policy.
package recorder

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/good-listener/wakelistener/internal/audio"
	"github.com/good-listener/wakelistener/internal/scorer"
	"github.com/good-listener/wakelistener/internal/trace"
)

// Clock supplies the time read once per loop iteration.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the monotonic wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// Outcome is how a session ended.
type Outcome int

const (
	Completed Outcome = iota // speech followed by the silence timeout
	TimedOut                 // hit the maximum duration
	NoSpeech                 // no speech before the abort deadline
	TooShort                 // finalized below the minimum duration
	Aborted                  // the activity scorer failed
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case TimedOut:
		return "timed_out"
	case NoSpeech:
		return "no_speech"
	case TooShort:
		return "too_short"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Result is the product of one session. PCM is set only when OK reports true.
type Result struct {
	Outcome   Outcome
	PCM       []byte
	Duration  time.Duration
	Frames    int
	Overflows int
	Err       error // scorer failure behind an Aborted outcome
}

// OK reports whether the session produced an utterance.
func (r Result) OK() bool {
	return (r.Outcome == Completed || r.Outcome == TimedOut) && len(r.PCM) > 0
}

// Config holds the recording policy.
type Config struct {
	Format         audio.Format
	SilenceTimeout time.Duration
	MaxDuration    time.Duration
	NoSpeechAbort  time.Duration
	MinDuration    time.Duration
}

func (c Config) withDefaults() Config {
	if c.SilenceTimeout <= 0 {
		c.SilenceTimeout = DefaultSilenceTimeout
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = DefaultMaxDuration
	}
	if c.NoSpeechAbort <= 0 {
		c.NoSpeechAbort = DefaultNoSpeechAbort
	}
	if c.MinDuration <= 0 {
		c.MinDuration = DefaultMinDuration
	}
	return c
}

// Recorder drives recording sessions. It is used only from the capture
// goroutine.
type Recorder struct {
	src      audio.Source
	activity scorer.Activity
	clock    Clock
	cfg      Config
}

// New creates a recorder. Frames are read at the activity scorer's length.
func New(src audio.Source, activity scorer.Activity, clock Clock, cfg Config) *Recorder {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Recorder{src: src, activity: activity, clock: clock, cfg: cfg.withDefaults()}
}

// Record runs a session seeded with pre-roll frames. The caller resets the
// activity scorer before and after. A non-nil error means the source failed
// fatally or ctx was cancelled; nothing is flushed in either case.
func (r *Recorder) Record(ctx context.Context, seed []audio.Frame) (Result, error) {
	log := trace.Logger(ctx)
	log.Info("recording started", "pre_roll_frames", len(seed))

	frames := make([]audio.Frame, len(seed), len(seed)+64)
	copy(frames, seed)

	var (
		res          Result
		speechSeen   bool
		silenceStart time.Time
		n            = r.activity.FrameSamples()
		start        = r.clock.Now()
	)

	res.Outcome = Completed
loop:
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		f, err := r.src.Read(ctx, n)
		if errors.Is(err, audio.ErrOverflow) {
			res.Overflows++
			continue
		}
		if err != nil {
			return Result{}, err
		}
		frames = append(frames, f)

		now := r.clock.Now()
		elapsed := now.Sub(start)
		if elapsed > r.cfg.MaxDuration {
			log.Warn("max recording duration reached", "max", r.cfg.MaxDuration)
			res.Outcome = TimedOut
			break
		}

		speech, err := r.activity.IsSpeech(ctx, f)
		if err != nil {
			log.Warn("speech detection failed, aborting session", "error", err)
			return Result{Outcome: Aborted, Frames: len(frames), Overflows: res.Overflows, Err: err}, nil
		}

		switch {
		case speech:
			speechSeen = true
			silenceStart = time.Time{}
		case !speechSeen:
			if elapsed > r.cfg.NoSpeechAbort {
				log.Info("no speech detected, aborting", "after", r.cfg.NoSpeechAbort)
				return Result{Outcome: NoSpeech, Frames: len(frames), Overflows: res.Overflows}, nil
			}
		case silenceStart.IsZero():
			silenceStart = now
		case now.Sub(silenceStart) > r.cfg.SilenceTimeout:
			log.Info("silence detected, stopping", "silence", r.cfg.SilenceTimeout)
			break loop
		}
	}

	res.Frames = len(frames)
	pcm := audio.Concat(frames)
	res.Duration = r.cfg.Format.Duration(len(pcm))
	log.Info("recorded audio", "duration", res.Duration, "frames", res.Frames)

	if res.Duration < r.cfg.MinDuration {
		log.Warn("recording too short, discarding", "duration", res.Duration, "min", r.cfg.MinDuration)
		res.Outcome = TooShort
		return res, nil
	}
	res.PCM = pcm
	return res, nil
}

// LogValue implements slog.LogValuer.
func (r Result) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("outcome", r.Outcome.String()),
		slog.Duration("duration", r.Duration),
		slog.Int("frames", r.Frames),
	}
	if r.Err != nil {
		attrs = append(attrs, slog.String("error", r.Err.Error()))
	}
	return slog.GroupValue(attrs...)
}
