package sink

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/good-listener/wakelistener/internal/audio"
	apperrors "github.com/good-listener/wakelistener/internal/errors"
)

type mockSink struct {
	mu      sync.Mutex
	gate    chan struct{}
	written []string
	err     error
	seq     int
}

func (m *mockSink) NewName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return string(rune('a'+m.seq-1)) + ".wav"
}

func (m *mockSink) Store(ctx context.Context, pcm []byte, f audio.Format) (string, error) {
	name := m.NewName()
	return name, m.StoreAs(ctx, name, pcm, f)
}

func (m *mockSink) StoreAs(_ context.Context, name string, _ []byte, _ audio.Format) error {
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.written = append(m.written, name)
	return nil
}

func (m *mockSink) getWritten() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.written...)
}

func TestAsyncStopDrainsQueue(t *testing.T) {
	inner := &mockSink{}
	a := NewAsync(inner, 4, nil)

	var names []string
	for i := 0; i < 3; i++ {
		name, err := a.Store(context.Background(), []byte{0, 0}, format)
		if err != nil {
			t.Fatalf("Store: %v", err)
		}
		names = append(names, name)
	}
	a.Stop()

	got := inner.getWritten()
	if len(got) != 3 {
		t.Fatalf("written = %v, want 3 files", got)
	}
	for i := range names {
		if got[i] != names[i] {
			t.Errorf("written[%d] = %q, want returned name %q", i, got[i], names[i])
		}
	}
}

func TestAsyncQueueFull(t *testing.T) {
	inner := &mockSink{gate: make(chan struct{})}
	a := NewAsync(inner, 1, nil)

	// The worker takes the first job and blocks on the gate; the second
	// fills the queue; the third must be rejected without blocking.
	var lastErr error
	for i := 0; i < 3; i++ {
		_, lastErr = a.Store(context.Background(), nil, format)
	}
	if !apperrors.IsCode(lastErr, apperrors.CodeSinkFailed) {
		// The worker may not have picked up the first job yet.
		if _, err := a.Store(context.Background(), nil, format); !apperrors.IsCode(err, apperrors.CodeSinkFailed) {
			t.Errorf("Store on full queue = %v, want SINK_FAILED", err)
		}
	}
	close(inner.gate)
	a.Stop()
}

func TestAsyncReportsWriteErrors(t *testing.T) {
	boom := errors.New("disk full")
	inner := &mockSink{err: boom}

	var mu sync.Mutex
	var failed []string
	a := NewAsync(inner, 2, func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if errors.Is(err, boom) {
			failed = append(failed, name)
		}
	})

	name, err := a.Store(context.Background(), nil, format)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	a.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(failed) != 1 || failed[0] != name {
		t.Errorf("failed = %v, want [%s]", failed, name)
	}
}

func TestAsyncRejectsAfterStop(t *testing.T) {
	a := NewAsync(&mockSink{}, 1, nil)
	a.Stop()
	a.Stop()
	if _, err := a.Store(context.Background(), nil, format); !apperrors.IsCode(err, apperrors.CodeSinkFailed) {
		t.Errorf("Store after Stop = %v, want SINK_FAILED", err)
	}
}
