// Package feedback plays short audible cues for the listening, done and
// error states. Playback is fire-and-forget and failures are silent.
package feedback

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

// Kind selects a cue.
type Kind int

const (
	Listening Kind = iota
	Done
	Error
)

func (k Kind) String() string {
	switch k {
	case Listening:
		return "listening"
	case Done:
		return "done"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Signal emits cues without blocking the caller.
type Signal interface {
	Emit(k Kind)
}

// Nop discards every cue.
type Nop struct{}

// Emit implements Signal.
func (Nop) Emit(Kind) {}

// Sound files looked up in the sounds directory.
var soundFiles = map[Kind]string{
	Listening: "ding.wav",
	Done:      "done.wav",
	Error:     "error.wav",
}

// SpeakerRate is the output rate every cue is resampled to.
const SpeakerRate = beep.SampleRate(44100)

const resampleQuality = 4

// Player holds decoded cues in memory and mixes them into the speaker.
type Player struct {
	buffers map[Kind]*beep.Buffer
	play    func(beep.Streamer)
}

// NewPlayer decodes the cues in dir and opens the default output device.
func NewPlayer(dir string) (*Player, error) {
	p := Load(dir)
	if err := speaker.Init(SpeakerRate, SpeakerRate.N(time.Second/10)); err != nil {
		return nil, err
	}
	p.play = func(s beep.Streamer) { speaker.Play(s) }
	return p, nil
}

// Load decodes the cues in dir. Missing or unreadable files leave that cue
// silent. The returned player has no output until one is attached.
func Load(dir string) *Player {
	p := &Player{buffers: make(map[Kind]*beep.Buffer, len(soundFiles))}
	for kind, name := range soundFiles {
		path := filepath.Join(dir, name)
		buf, err := decode(path)
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("feedback sound missing", "file", path)
			continue
		}
		if err != nil {
			slog.Warn("feedback sound unreadable", "file", path, "error", err)
			continue
		}
		p.buffers[kind] = buf
	}
	return p
}

func decode(path string) (*beep.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	streamer, format, err := wav.Decode(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	defer streamer.Close()

	var s beep.Streamer = streamer
	if format.SampleRate != SpeakerRate {
		s = beep.Resample(resampleQuality, format.SampleRate, SpeakerRate, streamer)
	}
	out := beep.NewBuffer(beep.Format{SampleRate: SpeakerRate, NumChannels: 2, Precision: 2})
	out.Append(s)
	return out, nil
}

// Has reports whether a cue was loaded.
func (p *Player) Has(k Kind) bool {
	_, ok := p.buffers[k]
	return ok
}

// Emit implements Signal.
func (p *Player) Emit(k Kind) {
	buf, ok := p.buffers[k]
	if !ok || p.play == nil {
		return
	}
	p.play(buf.Streamer(0, buf.Len()))
}
