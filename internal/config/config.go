// Package config loads listener configuration from the environment, an
// optional .env file and an optional YAML overlay.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	apperrors "github.com/good-listener/wakelistener/internal/errors"
	"github.com/good-listener/wakelistener/internal/scorer"
)

// VAD backends
const (
	VADRemote = "remote"
	VADEnergy = "energy"
)

type Config struct {
	SampleRate      int
	FrameSamples    int
	VADFrameSamples int

	WakePhrases   []scorer.Phrase
	WakeThreshold float64
	phraseEntries []string // raw WAKE_PHRASES, re-parsed when the default threshold changes

	VADBackend   string
	VADThreshold float64

	SilenceTimeout     time.Duration
	MaxRecording       time.Duration
	NoSpeechAbort      time.Duration
	MinUtterance       time.Duration
	PreRoll            time.Duration
	ConversationWindow time.Duration
	FeedbackDelay      time.Duration

	InferenceAddr string

	OutputDir       string
	UtterancePrefix string
	SinkAsync       bool

	SoundsDir       string
	FeedbackEnabled bool

	StatusAddr string // empty disables the status server

	LogLevel      string
	LogFile       string // empty disables file logging
	LogMaxSizeMB  int
	LogMaxBackups int
}

// Load reads the env files (default .env; missing files are skipped), the
// environment and CONFIG_FILE (if set), then validates the result. Variables
// already set in the environment win over env files.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "read env file").WithMetadata("path", f)
		}
	}

	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a Config from environment variables and defaults.
func FromEnv() (*Config, error) {
	cfg := &Config{
		SampleRate:         getEnvInt("SAMPLE_RATE", 16000),
		FrameSamples:       getEnvInt("FRAME_SAMPLES", 1280),
		VADFrameSamples:    getEnvInt("VAD_FRAME_SAMPLES", 512),
		WakeThreshold:      getEnvFloat("WAKE_THRESHOLD", 0.5),
		VADBackend:         strings.ToLower(getEnv("VAD_BACKEND", VADRemote)),
		VADThreshold:       getEnvFloat("VAD_THRESHOLD", 0.4),
		SilenceTimeout:     getEnvSeconds("SILENCE_TIMEOUT_SEC", 2),
		MaxRecording:       getEnvSeconds("MAX_RECORDING_SEC", 120),
		NoSpeechAbort:      getEnvSeconds("NO_SPEECH_ABORT_SEC", 5),
		MinUtterance:       getEnvSeconds("MIN_UTTERANCE_SEC", 0.5),
		PreRoll:            getEnvSeconds("PRE_ROLL_SEC", 0.5),
		ConversationWindow: getEnvSeconds("CONVERSATION_WINDOW_SEC", 10),
		FeedbackDelay:      time.Duration(getEnvInt("FEEDBACK_DELAY_MS", 50)) * time.Millisecond,
		InferenceAddr:      getEnv("INFERENCE_ADDR", "localhost:50051"),
		OutputDir:          getEnv("AUDIO_OUTPUT_DIR", defaultOutputDir()),
		UtterancePrefix:    getEnv("UTTERANCE_PREFIX", "ikigai"),
		SinkAsync:          getEnvBool("SINK_ASYNC", false),
		SoundsDir:          getEnv("SOUNDS_DIR", "sounds"),
		FeedbackEnabled:    getEnvBool("FEEDBACK_ENABLED", true),
		StatusAddr:         getEnv("STATUS_ADDR", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFile:            getEnv("LOG_FILE", filepath.Join("logs", "wakelistener.log")),
		LogMaxSizeMB:       getEnvInt("LOG_MAX_SIZE_MB", 5),
		LogMaxBackups:      getEnvInt("LOG_MAX_BACKUPS", 3),
	}

	cfg.phraseEntries = getEnvList("WAKE_PHRASES", []string{"hey_jarvis_v0.1"})
	phrases, err := scorer.ParsePhrases(cfg.phraseEntries, cfg.WakeThreshold)
	if err != nil {
		return nil, err
	}
	cfg.WakePhrases = phrases
	return cfg, nil
}

// Thresholds returns the wake phrase thresholds.
func (c *Config) Thresholds() scorer.Thresholds {
	return scorer.Thresholds{Phrases: c.WakePhrases, Default: c.WakeThreshold}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, apperrors.Newf(apperrors.CodeConfigInvalid, format, args...))
	}

	if c.SampleRate <= 0 {
		add("SAMPLE_RATE must be positive, got %d", c.SampleRate)
	}
	if c.FrameSamples <= 0 {
		add("FRAME_SAMPLES must be positive, got %d", c.FrameSamples)
	}
	if c.VADFrameSamples <= 0 {
		add("VAD_FRAME_SAMPLES must be positive, got %d", c.VADFrameSamples)
	}
	if c.FrameSamples > 0 && c.FrameSamples < c.VADFrameSamples {
		add("FRAME_SAMPLES (%d) must be at least VAD_FRAME_SAMPLES (%d)", c.FrameSamples, c.VADFrameSamples)
	}
	if len(c.WakePhrases) == 0 {
		add("at least one wake phrase is required")
	}
	if c.WakeThreshold < 0 || c.WakeThreshold >= 1 {
		add("WAKE_THRESHOLD must be in [0,1), got %v", c.WakeThreshold)
	}
	for _, p := range c.WakePhrases {
		if p.Name == "" || p.Threshold < 0 || p.Threshold >= 1 {
			add("invalid wake phrase %q with threshold %v", p.Name, p.Threshold)
		}
	}
	if c.VADBackend != VADRemote && c.VADBackend != VADEnergy {
		add("VAD_BACKEND must be %q or %q, got %q", VADRemote, VADEnergy, c.VADBackend)
	}
	if c.VADThreshold < 0 || c.VADThreshold >= 1 {
		add("VAD_THRESHOLD must be in [0,1), got %v", c.VADThreshold)
	}
	for name, d := range map[string]time.Duration{
		"SILENCE_TIMEOUT_SEC":     c.SilenceTimeout,
		"MAX_RECORDING_SEC":       c.MaxRecording,
		"NO_SPEECH_ABORT_SEC":     c.NoSpeechAbort,
		"MIN_UTTERANCE_SEC":       c.MinUtterance,
		"CONVERSATION_WINDOW_SEC": c.ConversationWindow,
	} {
		if d <= 0 {
			add("%s must be positive, got %v", name, d)
		}
	}
	if c.PreRoll < 0 {
		add("PRE_ROLL_SEC must not be negative, got %v", c.PreRoll)
	}
	if c.FeedbackDelay < 0 {
		add("FEEDBACK_DELAY_MS must not be negative, got %v", c.FeedbackDelay)
	}
	if c.MinUtterance > c.MaxRecording {
		add("MIN_UTTERANCE_SEC (%v) exceeds MAX_RECORDING_SEC (%v)", c.MinUtterance, c.MaxRecording)
	}
	if c.InferenceAddr == "" {
		errs = append(errs, apperrors.New(apperrors.CodeConfigMissing, "INFERENCE_ADDR is required"))
	}
	if c.OutputDir == "" {
		errs = append(errs, apperrors.New(apperrors.CodeConfigMissing, "AUDIO_OUTPUT_DIR is required"))
	}
	return errors.Join(errs...)
}

func defaultOutputDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "oye-ikigai-audio"
	}
	return filepath.Join(home, "oye-ikigai-audio")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

// getEnvSeconds reads fractional seconds.
func getEnvSeconds(key string, def float64) time.Duration {
	return seconds(getEnvFloat(key, def))
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		return result
	}
	return def
}

// String renders the settings worth logging at startup.
func (c *Config) String() string {
	return fmt.Sprintf("inference=%s vad=%s output=%s window=%v phrases=%d",
		c.InferenceAddr, c.VADBackend, c.OutputDir, c.ConversationWindow, len(c.WakePhrases))
}
