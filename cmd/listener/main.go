// Wake listener - waits for a wake phrase, records the utterance that follows
// and writes it to disk for downstream processing.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/good-listener/wakelistener/internal/audio"
	"github.com/good-listener/wakelistener/internal/config"
	apperrors "github.com/good-listener/wakelistener/internal/errors"
	"github.com/good-listener/wakelistener/internal/feedback"
	"github.com/good-listener/wakelistener/internal/grpcclient"
	"github.com/good-listener/wakelistener/internal/logging"
	"github.com/good-listener/wakelistener/internal/observe"
	"github.com/good-listener/wakelistener/internal/orchestrator"
	"github.com/good-listener/wakelistener/internal/orchestrator/recorder"
	"github.com/good-listener/wakelistener/internal/resilience"
	"github.com/good-listener/wakelistener/internal/scorer"
	"github.com/good-listener/wakelistener/internal/server"
	"github.com/good-listener/wakelistener/internal/sink"
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("wake listener stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, logCloser, err := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	if err != nil {
		return err
	}
	defer func() { _ = logCloser.Close() }()
	slog.SetDefault(logger)

	slog.Info("wake listener starting",
		"inference", cfg.InferenceAddr,
		"output_dir", cfg.OutputDir,
		"vad", cfg.VADBackend,
		"wake_threshold", cfg.WakeThreshold,
		"conversation_window", cfg.ConversationWindow,
		"status_addr", cfg.StatusAddr,
	)

	shutdownMetrics, err := observe.InitProvider()
	if err != nil {
		return err
	}
	defer func() { _ = shutdownMetrics(context.WithoutCancel(ctx)) }()
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}

	// Connect to inference gRPC server
	gcfg := grpcclient.DefaultConfig()
	gcfg.SampleRate = cfg.SampleRate
	inference, err := grpcclient.New(cfg.InferenceAddr, gcfg)
	if err != nil {
		return err
	}
	defer func() { _ = inference.Close() }()

	if err := inference.WaitReady(ctx, resilience.ReadinessRetryConfig()); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	wake := scorer.NewRemoteWake(inference, newBreaker("wake"))
	activity := newActivity(cfg, inference)

	utterances, stopSink, err := newSink(cfg, metrics)
	if err != nil {
		return err
	}
	defer stopSink()

	src, err := audio.NewCapturer(cfg.SampleRate, cfg.FrameSamples, cfg.VADFrameSamples)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDeviceFailed, "open microphone")
	}

	engine := orchestrator.New(orchestrator.Deps{
		Source:   src,
		Wake:     wake,
		Activity: activity,
		Sink:     utterances,
		Feedback: newFeedback(cfg),
		Metrics:  metrics,
	}, orchestrator.Config{
		FrameSamples:       cfg.FrameSamples,
		Thresholds:         cfg.Thresholds(),
		PreRoll:            cfg.PreRoll,
		ConversationWindow: cfg.ConversationWindow,
		FeedbackDelay:      cfg.FeedbackDelay,
		Recording: recorder.Config{
			SilenceTimeout: cfg.SilenceTimeout,
			MaxDuration:    cfg.MaxRecording,
			NoSpeechAbort:  cfg.NoSpeechAbort,
			MinDuration:    cfg.MinUtterance,
		},
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(gctx) })

	onHealth := func(serving bool) {}
	if cfg.StatusAddr != "" {
		srv := server.New(engine, engine.History(), metrics, promhttp.Handler())
		srv.SetInferenceReady(true)
		onHealth = srv.SetInferenceReady
		g.Go(func() error {
			srv.Broadcast(gctx)
			return nil
		})
		g.Go(func() error { return srv.ListenAndServe(gctx, cfg.StatusAddr) })
	}
	g.Go(func() error {
		inference.Monitor(gctx, onHealth)
		return nil
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("shutdown complete")
	return nil
}

func newBreaker(name string) *resilience.Breaker {
	return resilience.New(name, resilience.ScorerConfig()).WithHook(func(name string, from, to resilience.State) {
		slog.Warn("scorer circuit changed", "scorer", name, "from", from, "to", to)
	})
}

func newActivity(cfg *config.Config, inference *grpcclient.Client) scorer.Activity {
	if cfg.VADBackend == config.VADEnergy {
		ecfg := scorer.DefaultEnergyConfig()
		ecfg.FrameSamples = cfg.VADFrameSamples
		return scorer.NewEnergy(ecfg)
	}
	return scorer.NewRemoteActivity(inference, newBreaker("vad"), cfg.VADThreshold, cfg.VADFrameSamples)
}

// newSink returns the WAV sink, optionally behind a write queue, and a stop
// function that drains the queue.
func newSink(cfg *config.Config, metrics *observe.Metrics) (sink.Sink, func(), error) {
	wav, err := sink.NewWAV(cfg.OutputDir, cfg.UtterancePrefix)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.SinkAsync {
		return wav, func() {}, nil
	}
	async := sink.NewAsync(wav, sink.DefaultQueueSize, func(name string, err error) {
		metrics.PersistErrors.Add(context.Background(), 1)
		slog.Error("failed to persist utterance", "file", name, "error", err)
	})
	return async, async.Stop, nil
}

func newFeedback(cfg *config.Config) feedback.Signal {
	if !cfg.FeedbackEnabled {
		return feedback.Nop{}
	}
	p, err := feedback.NewPlayer(cfg.SoundsDir)
	if err != nil {
		slog.Warn("audio feedback disabled", "error", err)
		return feedback.Nop{}
	}
	return p
}
