package sink

import (
	"context"
	"os"
	"path/filepath"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/good-listener/wakelistener/internal/audio"
	apperrors "github.com/good-listener/wakelistener/internal/errors"
	"github.com/good-listener/wakelistener/internal/trace"
)

// WAVSink writes 16-bit PCM WAV files into a directory. Files appear under
// their final name only once complete.
type WAVSink struct {
	dir    string
	prefix string
	now    func() time.Time
}

// NewWAV creates a sink writing into dir, creating it if needed.
func NewWAV(dir, prefix string) (*WAVSink, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeSinkFailed, "create output dir %s", dir)
	}
	return &WAVSink{dir: dir, prefix: prefix, now: time.Now}, nil
}

// Dir returns the output directory.
func (s *WAVSink) Dir() string { return s.dir }

// NewName implements NamedSink.
func (s *WAVSink) NewName() string {
	return FileName(s.prefix, s.now())
}

// Store implements Sink.
func (s *WAVSink) Store(ctx context.Context, pcm []byte, format audio.Format) (string, error) {
	name := s.NewName()
	if err := s.StoreAs(ctx, name, pcm, format); err != nil {
		return "", err
	}
	return name, nil
}

// StoreAs implements NamedSink.
func (s *WAVSink) StoreAs(ctx context.Context, name string, pcm []byte, format audio.Format) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return apperrors.Wrapf(err, apperrors.CodeSinkFailed, "create output dir %s", s.dir)
	}
	final := filepath.Join(s.dir, name)
	tmp := final + partialFileSuffix

	if err := writeWAV(tmp, pcm, format); err != nil {
		_ = os.Remove(tmp)
		return apperrors.Wrap(err, apperrors.CodeSinkFailed, "write utterance").WithMetadata("file", name)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return apperrors.Wrap(err, apperrors.CodeSinkFailed, "publish utterance").WithMetadata("file", name)
	}

	trace.Logger(ctx).Info("saved utterance", "file", name, "duration", format.Duration(len(pcm)))
	return nil
}

func writeWAV(path string, pcm []byte, format audio.Format) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	samples := audio.FrameFromBytes(pcm).Samples
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: format.Channels,
			SampleRate:  format.SampleRate,
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: BitDepth,
	}
	for i, v := range samples {
		buf.Data[i] = int(v)
	}

	enc := wav.NewEncoder(f, format.SampleRate, BitDepth, format.Channels, wavPCMFormat)
	if err := enc.Write(buf); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}
