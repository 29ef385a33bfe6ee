// Package sink persists finished utterances where the downstream
// transcription pipeline picks them up.
package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/good-listener/wakelistener/internal/audio"
)

// Sink persists one utterance and returns its identifier.
type Sink interface {
	Store(ctx context.Context, pcm []byte, format audio.Format) (string, error)
}

// NamedSink can persist under a name chosen ahead of the write, which lets
// Async hand the identifier back before the write happens.
type NamedSink interface {
	Sink
	NewName() string
	StoreAs(ctx context.Context, name string, pcm []byte, format audio.Format) error
}

// FileName builds "<prefix>_YYYYMMDD_HHMMSS_<8 hex>.wav". The random suffix
// keeps names unique across restarts within the same second.
func FileName(prefix string, t time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_%s.wav", prefix, t.Format("20060102_150405"), suffix)
}
