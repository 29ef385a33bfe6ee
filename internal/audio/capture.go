package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Capturer reads 16-bit mono PCM from the default input device.
//
// PortAudio binds a single buffer length to a blocking stream, while the
// capture loop reads two different frame lengths (wake-word frames and
// activity-scorer frames). The stream is therefore opened with a quantum that
// divides both, and Read assembles frames from a queue of pending samples.
type Capturer struct {
	format   Format
	quantum  int
	stream   *portaudio.Stream
	buf      []int16
	pending  []int16
	stopOnce sync.Once
	closeErr error
}

// NewCapturer opens and starts the default input stream. frameLengths are the
// sample counts the caller will request from Read.
func NewCapturer(sampleRate int, frameLengths ...int) (*Capturer, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}

	quantum := Quantum(frameLengths...)
	if quantum <= 0 {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("audio: invalid frame lengths %v", frameLengths)
	}

	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("audio: default input device: %w", err)
	}

	c := &Capturer{
		format:  Format{SampleRate: sampleRate, Channels: 1},
		quantum: quantum,
		buf:     make([]int16, quantum),
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: quantum,
	}

	stream, err := portaudio.OpenStream(params, c.buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		_ = portaudio.Terminate()
		return nil, err
	}
	c.stream = stream

	slog.Info("started audio capture", "device", dev.Name, "sample_rate", sampleRate, "quantum", quantum)
	return c, nil
}

// Format returns the stream geometry.
func (c *Capturer) Format() Format { return c.format }

// Read blocks until n samples are available. An input overflow discards the
// partially assembled frame and returns ErrOverflow.
func (c *Capturer) Read(ctx context.Context, n int) (Frame, error) {
	for len(c.pending) < n {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		if err := c.stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				c.pending = c.pending[:0]
				return Frame{}, ErrOverflow
			}
			return Frame{}, fmt.Errorf("audio: read: %w", err)
		}
		c.pending = append(c.pending, c.buf...)
	}

	samples := make([]int16, n)
	copy(samples, c.pending[:n])
	c.pending = append(c.pending[:0], c.pending[n:]...)
	return Frame{Samples: samples}, nil
}

// Close stops the stream and releases the device.
func (c *Capturer) Close() error {
	c.stopOnce.Do(func() {
		if c.stream != nil {
			_ = c.stream.Stop()
			c.closeErr = c.stream.Close()
		}
		_ = portaudio.Terminate()
	})
	return c.closeErr
}

// Quantum returns the greatest common divisor of the given frame lengths.
func Quantum(lengths ...int) int {
	g := 0
	for _, n := range lengths {
		if n <= 0 {
			return 0
		}
		g = gcd(g, n)
	}
	return g
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
