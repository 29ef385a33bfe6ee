package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/good-listener/wakelistener/internal/audio"
	apperrors "github.com/good-listener/wakelistener/internal/errors"
	"github.com/good-listener/wakelistener/internal/feedback"
	"github.com/good-listener/wakelistener/internal/observe"
	"github.com/good-listener/wakelistener/internal/orchestrator/history"
	"github.com/good-listener/wakelistener/internal/orchestrator/preroll"
	"github.com/good-listener/wakelistener/internal/orchestrator/recorder"
	"github.com/good-listener/wakelistener/internal/scorer"
	"github.com/good-listener/wakelistener/internal/sink"
	"github.com/good-listener/wakelistener/internal/syncx"
	"github.com/good-listener/wakelistener/internal/trace"
)

// Config holds engine settings.
type Config struct {
	FrameSamples       int
	Thresholds         scorer.Thresholds
	PreRoll            time.Duration
	ConversationWindow time.Duration
	FeedbackDelay      time.Duration
	Recording          recorder.Config
}

// Deps are the engine's collaborators. Source, Wake, Activity and Sink are
// required; the rest default to no-ops.
type Deps struct {
	Source   audio.Source
	Wake     scorer.WakeWord
	Activity scorer.Activity
	Sink     sink.Sink
	Feedback feedback.Signal
	Clock    recorder.Clock
	History  *history.MemoryStore
	Metrics  *observe.Metrics
}

// Engine is the capture state machine. Run owns every mutable field except
// status, which observers read through the guard.
type Engine struct {
	src      audio.Source
	wake     scorer.WakeWord
	activity scorer.Activity
	sink     sink.Sink
	feedback feedback.Signal
	clock    recorder.Clock
	history  *history.MemoryStore
	metrics  *observe.Metrics
	cfg      Config
	format   audio.Format

	preroll *preroll.Buffer
	rec     *recorder.Recorder
	state   State
	expiry  time.Time

	wakeFailing bool
	status      *syncx.RWGuard[Status]
	sleep       func(ctx context.Context, d time.Duration) error
}

// New creates an engine.
func New(d Deps, cfg Config) *Engine {
	if cfg.FrameSamples <= 0 {
		cfg.FrameSamples = DefaultFrameSamples
	}
	if cfg.ConversationWindow <= 0 {
		cfg.ConversationWindow = DefaultConversationWindow
	}
	if cfg.PreRoll < 0 {
		cfg.PreRoll = DefaultPreRoll
	}
	if cfg.FeedbackDelay < 0 {
		cfg.FeedbackDelay = 0
	}
	if d.Feedback == nil {
		d.Feedback = feedback.Nop{}
	}
	if d.Clock == nil {
		d.Clock = recorder.SystemClock{}
	}
	if d.History == nil {
		d.History = history.NewStore(HistoryMaxEntries, HistoryEventBuffer)
	}
	if d.Metrics == nil {
		d.Metrics = observe.Noop()
	}

	format := d.Source.Format()
	cfg.Recording.Format = format

	return &Engine{
		src:      d.Source,
		wake:     d.Wake,
		activity: d.Activity,
		sink:     d.Sink,
		feedback: d.Feedback,
		clock:    d.Clock,
		history:  d.History,
		metrics:  d.Metrics,
		cfg:      cfg,
		format:   format,
		preroll:  preroll.FromDuration(cfg.PreRoll, format, cfg.FrameSamples),
		rec:      recorder.New(d.Source, d.Activity, d.Clock, cfg.Recording),
		status:   syncx.NewGuard(Status{State: Idle.String()}),
		sleep:    sleepCtx,
	}
}

// History returns the session history the engine writes to.
func (e *Engine) History() *history.MemoryStore { return e.history }

// Status returns a snapshot of the engine state. Safe from any goroutine.
func (e *Engine) Status() Status { return e.status.Get() }

// State returns the current mode. Safe from any goroutine.
func (e *Engine) State() State {
	name := syncx.View(e.status, func(s Status) string { return s.State })
	switch name {
	case Recording.String():
		return Recording
	case ConversationWindow.String():
		return ConversationWindow
	default:
		return Idle
	}
}

// Run reads frames until ctx is cancelled (returns nil) or the source fails
// fatally (returns a device error). The source is closed on return; an
// in-progress recording is dropped.
func (e *Engine) Run(ctx context.Context) error {
	defer func() {
		if err := e.src.Close(); err != nil {
			trace.Logger(ctx).Warn("closing audio source", "error", err)
		}
	}()

	e.status.Write(func(s *Status) { s.StartedAt = e.clock.Now() })
	e.logStartup(ctx)

	for {
		if ctx.Err() != nil {
			trace.Logger(ctx).Info("capture engine stopping")
			return nil
		}

		f, err := e.src.Read(ctx, e.cfg.FrameSamples)
		if errors.Is(err, audio.ErrOverflow) {
			e.countOverflows(ctx, 1)
			continue
		}
		if err == nil {
			err = e.step(ctx, f)
		}
		if err != nil {
			if ctx.Err() != nil {
				trace.Logger(ctx).Info("capture engine stopping")
				return nil
			}
			trace.Logger(ctx).Error("audio source failed", "error", err)
			return apperrors.Wrap(err, apperrors.CodeDeviceFailed, "read audio frame")
		}
	}
}

func (e *Engine) logStartup(ctx context.Context) {
	names := make([]string, 0, len(e.cfg.Thresholds.Phrases))
	for _, p := range e.cfg.Thresholds.Phrases {
		names = append(names, p.Name)
	}
	trace.Logger(ctx).Info("listening for wake phrases",
		"phrases", names,
		"default_threshold", e.cfg.Thresholds.Default,
		"conversation_window", e.cfg.ConversationWindow,
		"pre_roll_frames", e.preroll.Cap(),
		"frame_samples", e.cfg.FrameSamples,
		"activity_samples", e.activity.FrameSamples(),
	)
}

// step handles one main-loop frame. A returned error is fatal.
func (e *Engine) step(ctx context.Context, f audio.Frame) error {
	e.preroll.Push(f)
	now := e.clock.Now()

	if e.state == ConversationWindow {
		if now.Before(e.expiry) {
			speech, err := e.detectSpeech(ctx, f)
			if err != nil {
				e.metrics.RecordScorerError(ctx, "activity")
				trace.Logger(ctx).Warn("speech detection failed in conversation window", "error", err)
				return nil
			}
			if !speech {
				return nil
			}
			trace.Logger(ctx).Info("conversation mode, speech detected")
			return e.session(ctx, TriggerConversation)
		}
		trace.Logger(ctx).Info("conversation window closed")
		e.setState(ctx, Idle)
	}

	scores, err := e.wake.Score(ctx, f)
	if err != nil {
		e.metrics.RecordScorerError(ctx, "wake")
		if !e.wakeFailing {
			trace.Logger(ctx).Warn("wake word scoring failed", "error", err)
		}
		e.wakeFailing = true
		return nil
	}
	if e.wakeFailing {
		trace.Logger(ctx).Info("wake word scoring recovered")
		e.wakeFailing = false
	}

	phrase, score, ok := e.cfg.Thresholds.Match(scores)
	if !ok {
		return nil
	}
	trace.Logger(ctx).Info("wake word detected", "phrase", phrase.Name, "score", score)
	e.metrics.RecordWake(ctx, phrase.Name)
	e.status.Write(func(s *Status) {
		s.LastWakePhrase = phrase.Name
		s.LastWakeScore = score
	})
	e.history.Emit(history.Event{Kind: history.EventWake, Time: now, Phrase: phrase.Name, Score: score})
	return e.session(ctx, phrase.Name)
}

// detectSpeech scores consecutive activity windows of f and stops at the
// first speech verdict.
func (e *Engine) detectSpeech(ctx context.Context, f audio.Frame) (bool, error) {
	for _, w := range audio.Rechunk(f, e.activity.FrameSamples()) {
		speech, err := e.activity.IsSpeech(ctx, w)
		if err != nil || speech {
			return speech, err
		}
	}
	return false, nil
}

// session runs one recording and applies its result. A returned error comes
// from the source or ctx and ends the engine.
func (e *Engine) session(ctx context.Context, trigger string) error {
	ctx, span := trace.StartSpan(ctx, "capture_session")
	defer span.End()
	span.SetAttr("trigger", trigger)
	log := trace.Logger(ctx)

	prev := e.state
	e.setState(ctx, Recording)
	e.feedback.Emit(feedback.Listening)
	if err := e.sleep(ctx, e.cfg.FeedbackDelay); err != nil {
		return err
	}

	seed := e.preroll.Snapshot()
	e.preroll.Clear()
	e.resetActivity(ctx)

	res, err := e.rec.Record(ctx, seed)
	if err != nil {
		span.SetAttr("error", err.Error())
		return err
	}
	e.countOverflows(ctx, res.Overflows)
	span.SetAttr("outcome", res.Outcome.String())

	entry := history.Entry{
		Timestamp: e.clock.Now(),
		Trigger:   trigger,
		Outcome:   res.Outcome.String(),
		Duration:  res.Duration,
	}

	if res.OK() {
		e.feedback.Emit(feedback.Done)
		name, perr := e.sink.Store(ctx, res.PCM, e.format)
		if perr != nil {
			// The utterance is lost; the interaction itself succeeded, so the
			// window still opens.
			e.metrics.PersistErrors.Add(ctx, 1)
			log.Error("failed to persist utterance", "error", perr)
			entry.Error = perr.Error()
		}
		entry.File = name
		e.expiry = e.clock.Now().Add(e.cfg.ConversationWindow)
		e.setState(ctx, ConversationWindow)
		log.Info("conversation mode on", "until", e.expiry, "window", e.cfg.ConversationWindow)
		e.status.Write(func(s *Status) {
			s.Utterances++
			if name != "" {
				s.LastFile = name
			}
		})
	} else {
		e.feedback.Emit(feedback.Error)
		if res.Outcome == recorder.Aborted {
			e.metrics.RecordScorerError(ctx, "activity")
			entry.Error = res.Err.Error()
		}
		if prev == ConversationWindow {
			e.setState(ctx, ConversationWindow)
		} else {
			e.setState(ctx, Idle)
		}
		log.Info("no utterance, back to listening", "result", res)
	}

	e.resetActivity(ctx)
	if err := e.wake.Reset(ctx); err != nil {
		log.Warn("wake word reset failed", "error", err)
	}
	e.preroll.Clear()

	label := "wake"
	if trigger == TriggerConversation {
		label = TriggerConversation
	}
	e.metrics.RecordSession(ctx, label, entry.Outcome, res.Duration.Seconds(), res.OK())
	e.status.Write(func(s *Status) { s.Sessions++ })
	e.history.Add(entry)

	tc, _ := trace.FromContext(ctx)
	e.history.Emit(history.Event{
		Kind:     history.EventSession,
		Time:     entry.Timestamp,
		Phrase:   trigger,
		Outcome:  entry.Outcome,
		File:     entry.File,
		Duration: entry.Duration,
		Error:    entry.Error,
		TraceID:  tc.TraceID,
	})
	return nil
}

func (e *Engine) resetActivity(ctx context.Context) {
	if err := e.activity.Reset(ctx); err != nil {
		trace.Logger(ctx).Warn("speech detector reset failed", "error", err)
	}
}

func (e *Engine) setState(ctx context.Context, s State) {
	if e.state == s {
		return
	}
	e.state = s
	e.metrics.EngineState.Record(ctx, int64(s))
	e.status.Write(func(st *Status) {
		st.State = s.String()
		if s == ConversationWindow {
			st.ConversationUntil = e.expiry
		} else {
			st.ConversationUntil = time.Time{}
		}
	})
	e.history.Emit(history.Event{Kind: history.EventState, Time: e.clock.Now(), State: s.String()})
}

func (e *Engine) countOverflows(ctx context.Context, n int) {
	if n <= 0 {
		return
	}
	e.metrics.FrameOverflows.Add(ctx, int64(n))
	e.status.Write(func(s *Status) { s.Overflows += n })
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
