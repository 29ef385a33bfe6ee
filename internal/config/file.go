package config

import (
	"errors"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/good-listener/wakelistener/internal/errors"
	"github.com/good-listener/wakelistener/internal/scorer"
)

// fileConfig is the YAML overlay. Unset fields keep their env value.
type fileConfig struct {
	Wake *struct {
		Threshold *float64        `yaml:"threshold"`
		Phrases   []scorer.Phrase `yaml:"phrases"`
	} `yaml:"wake"`
	VAD *struct {
		Backend   *string  `yaml:"backend"`
		Threshold *float64 `yaml:"threshold"`
	} `yaml:"vad"`
	Recording *struct {
		SilenceTimeout *time.Duration `yaml:"silence_timeout"`
		MaxDuration    *time.Duration `yaml:"max_duration"`
		NoSpeechAbort  *time.Duration `yaml:"no_speech_abort"`
		MinDuration    *time.Duration `yaml:"min_duration"`
		PreRoll        *time.Duration `yaml:"pre_roll"`
	} `yaml:"recording"`
	ConversationWindow *time.Duration `yaml:"conversation_window"`
	OutputDir          *string        `yaml:"output_dir"`
	StatusAddr         *string        `yaml:"status_addr"`
}

// ApplyFile overlays the YAML file at path. Unknown keys are rejected.
func (c *Config) ApplyFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeConfigMissing, "open config file").WithMetadata("path", path)
	}
	defer f.Close()

	var fc fileConfig
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.Wrap(err, apperrors.CodeConfigInvalid, "parse config file").WithMetadata("path", path)
	}
	if err := fc.apply(c); err != nil {
		return apperrors.Wrap(err, apperrors.CodeConfigInvalid, "apply config file").WithMetadata("path", path)
	}
	return nil
}

func (fc *fileConfig) apply(c *Config) error {
	if w := fc.Wake; w != nil {
		set(&c.WakeThreshold, w.Threshold)
		switch {
		case len(w.Phrases) > 0:
			c.WakePhrases = make([]scorer.Phrase, len(w.Phrases))
			c.phraseEntries = nil
			for i, p := range w.Phrases {
				if p.Threshold == 0 {
					p.Threshold = c.WakeThreshold
				}
				c.WakePhrases[i] = p
			}
		case w.Threshold != nil && c.phraseEntries != nil:
			// Env phrases without their own threshold follow the new default.
			phrases, err := scorer.ParsePhrases(c.phraseEntries, c.WakeThreshold)
			if err != nil {
				return err
			}
			c.WakePhrases = phrases
		}
	}
	if v := fc.VAD; v != nil {
		set(&c.VADBackend, v.Backend)
		set(&c.VADThreshold, v.Threshold)
	}
	if r := fc.Recording; r != nil {
		set(&c.SilenceTimeout, r.SilenceTimeout)
		set(&c.MaxRecording, r.MaxDuration)
		set(&c.NoSpeechAbort, r.NoSpeechAbort)
		set(&c.MinUtterance, r.MinDuration)
		set(&c.PreRoll, r.PreRoll)
	}
	set(&c.ConversationWindow, fc.ConversationWindow)
	set(&c.OutputDir, fc.OutputDir)
	set(&c.StatusAddr, fc.StatusAddr)
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
