package audio

import (
	"context"
	"errors"
)

// ErrOverflow reports a transient input overflow. The frame is lost; callers
// discard it and keep reading.
var ErrOverflow = errors.New("audio: input overflowed")

// Source yields fixed-size frames from the microphone. Read blocks until the
// requested number of samples is available. Any error other than ErrOverflow
// means the device cannot continue.
type Source interface {
	Read(ctx context.Context, samples int) (Frame, error)
	Format() Format
	Close() error
}
