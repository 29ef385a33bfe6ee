package audio

import (
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	f := Format{SampleRate: 16000, Channels: 1}

	tests := []struct {
		name  string
		bytes int
		want  time.Duration
	}{
		{"empty", 0, 0},
		{"one second", 32000, time.Second},
		{"half second", 16000, 500 * time.Millisecond},
		{"one 80ms frame", 1280 * 2, 80 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Duration(tt.bytes); got != tt.want {
				t.Errorf("Duration(%d) = %v, want %v", tt.bytes, got, tt.want)
			}
		})
	}

	if got := f.FrameDuration(512); got != 32*time.Millisecond {
		t.Errorf("FrameDuration(512) = %v, want 32ms", got)
	}
	if got := f.SamplesIn(500 * time.Millisecond); got != 8000 {
		t.Errorf("SamplesIn(500ms) = %d, want 8000", got)
	}
}

func TestZeroFormatDuration(t *testing.T) {
	if got := (Format{}).Duration(100); got != 0 {
		t.Errorf("Duration on zero format = %v, want 0", got)
	}
}

func TestConcatPreservesOrder(t *testing.T) {
	frames := []Frame{
		{Samples: []int16{1, 2}},
		{Samples: []int16{-1}},
		{Samples: []int16{300}},
	}
	pcm := Concat(frames)
	if len(pcm) != 8 {
		t.Fatalf("len = %d, want 8", len(pcm))
	}

	back := FrameFromBytes(pcm)
	want := []int16{1, 2, -1, 300}
	for i, s := range want {
		if back.Samples[i] != s {
			t.Errorf("sample %d = %d, want %d", i, back.Samples[i], s)
		}
	}
}

func TestFrameBytesLittleEndian(t *testing.T) {
	b := Frame{Samples: []int16{0x0102}}.Bytes()
	if b[0] != 0x02 || b[1] != 0x01 {
		t.Errorf("bytes = %v, want [2 1]", b)
	}
}

func TestRechunk(t *testing.T) {
	tests := []struct {
		name      string
		samples   int
		window    int
		wantCount int
	}{
		{"main loop frame into vad windows", 1280, 512, 2},
		{"exact multiple", 1024, 512, 2},
		{"shorter than window", 100, 512, 1},
		{"equal to window", 512, 512, 1},
		{"non-positive window", 100, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Rechunk(Frame{Samples: make([]int16, tt.samples)}, tt.window)
			if len(chunks) != tt.wantCount {
				t.Errorf("got %d chunks, want %d", len(chunks), tt.wantCount)
			}
		})
	}
}

func TestRechunkWindowsAreConsecutive(t *testing.T) {
	samples := make([]int16, 10)
	for i := range samples {
		samples[i] = int16(i)
	}
	chunks := Rechunk(Frame{Samples: samples}, 4)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[1].Samples[0] != 4 || chunks[1].Len() != 4 {
		t.Errorf("second chunk = %v, want to start at 4 with length 4", chunks[1].Samples)
	}
}

func TestQuantum(t *testing.T) {
	tests := []struct {
		lengths []int
		want    int
	}{
		{[]int{1280, 512}, 256},
		{[]int{512}, 512},
		{[]int{480, 320}, 160},
		{[]int{1280, 0}, 0},
		{nil, 0},
	}
	for _, tt := range tests {
		if got := Quantum(tt.lengths...); got != tt.want {
			t.Errorf("Quantum(%v) = %d, want %d", tt.lengths, got, tt.want)
		}
	}
}
