// Package audio handles microphone frames and the blocking frame source
package audio

import (
	"encoding/binary"
	"time"
)

// BytesPerSample is fixed: all frames are signed 16-bit little-endian PCM.
const BytesPerSample = 2

// Format describes the PCM geometry shared by every frame of a stream.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond returns the byte rate of the stream.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * BytesPerSample
}

// Duration returns the playback duration of n PCM bytes.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// FrameDuration returns how long a frame of the given sample count lasts.
func (f Format) FrameDuration(samples int) time.Duration {
	return f.Duration(samples * f.Channels * BytesPerSample)
}

// SamplesIn returns the number of samples per channel covering d.
func (f Format) SamplesIn(d time.Duration) int {
	return int(int64(f.SampleRate) * int64(d) / int64(time.Second))
}

// Frame is a block of mono int16 samples. Frames are never mutated after
// they leave the source.
type Frame struct {
	Samples []int16
}

// Len returns the number of samples.
func (f Frame) Len() int { return len(f.Samples) }

// Bytes encodes the frame as little-endian PCM.
func (f Frame) Bytes() []byte {
	buf := make([]byte, len(f.Samples)*BytesPerSample)
	putSamples(buf, f.Samples)
	return buf
}

// Concat joins frames into one PCM byte buffer.
func Concat(frames []Frame) []byte {
	total := 0
	for _, fr := range frames {
		total += len(fr.Samples)
	}
	buf := make([]byte, total*BytesPerSample)
	off := 0
	for _, fr := range frames {
		putSamples(buf[off:], fr.Samples)
		off += len(fr.Samples) * BytesPerSample
	}
	return buf
}

// FrameFromBytes decodes little-endian PCM; a trailing odd byte is dropped.
func FrameFromBytes(b []byte) Frame {
	samples := make([]int16, len(b)/BytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*BytesPerSample:]))
	}
	return Frame{Samples: samples}
}

// Rechunk splits a frame into consecutive windows of n samples. A trailing
// partial window is dropped; a frame shorter than n is returned whole.
func Rechunk(f Frame, n int) []Frame {
	if n <= 0 || len(f.Samples) <= n {
		return []Frame{f}
	}
	out := make([]Frame, 0, len(f.Samples)/n)
	for off := 0; off+n <= len(f.Samples); off += n {
		out = append(out, Frame{Samples: f.Samples[off : off+n]})
	}
	return out
}

func putSamples(dst []byte, samples []int16) {
	for i, s := range samples {
		binary.LittleEndian.PutUint16(dst[i*BytesPerSample:], uint16(s))
	}
}
