// Package preroll keeps the most recent raw frames so a trigger never loses
// the audio spoken just before it was confirmed.
package preroll

import (
	"math"
	"time"

	"github.com/good-listener/wakelistener/internal/audio"
)

// Buffer is a fixed-capacity ring of frames. Push evicts the oldest frame
// when full. Not safe for concurrent use; the capture goroutine owns it.
type Buffer struct {
	frames []audio.Frame
	head   int // index of the oldest frame
	size   int
}

// New creates a buffer holding up to capacity frames (at least one).
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{frames: make([]audio.Frame, capacity)}
}

// FromDuration sizes the buffer to cover d of audio in frames of
// frameSamples samples, rounding up.
func FromDuration(d time.Duration, format audio.Format, frameSamples int) *Buffer {
	return New(Capacity(d, format.SampleRate, frameSamples))
}

// Capacity returns ceil(d * sampleRate / frameSamples), clamped to 1.
func Capacity(d time.Duration, sampleRate, frameSamples int) int {
	if frameSamples <= 0 || sampleRate <= 0 || d <= 0 {
		return 1
	}
	n := int(math.Ceil(d.Seconds() * float64(sampleRate) / float64(frameSamples)))
	return max(n, 1)
}

// Push appends a frame, evicting the oldest one if the buffer is full.
func (b *Buffer) Push(f audio.Frame) {
	c := len(b.frames)
	if b.size < c {
		b.frames[(b.head+b.size)%c] = f
		b.size++
		return
	}
	b.frames[b.head] = f
	b.head = (b.head + 1) % c
}

// Snapshot returns the buffered frames oldest first. The returned slice is a
// copy and stays valid after Clear.
func (b *Buffer) Snapshot() []audio.Frame {
	out := make([]audio.Frame, b.size)
	c := len(b.frames)
	for i := 0; i < b.size; i++ {
		out[i] = b.frames[(b.head+i)%c]
	}
	return out
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	for i := range b.frames {
		b.frames[i] = audio.Frame{}
	}
	b.head = 0
	b.size = 0
}

// Len returns the number of buffered frames.
func (b *Buffer) Len() int { return b.size }

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int { return len(b.frames) }
