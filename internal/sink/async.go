package sink

import (
	"context"
	"sync"

	"github.com/good-listener/wakelistener/internal/audio"
	apperrors "github.com/good-listener/wakelistener/internal/errors"
	"github.com/good-listener/wakelistener/internal/trace"
)

type job struct {
	ctx    context.Context
	name   string
	pcm    []byte
	format audio.Format
}

// Async hands writes to a background worker so slow storage never stalls
// the capture loop. Store returns the name the utterance will be written
// under; write failures surface through the error callback.
type Async struct {
	inner   NamedSink
	queue   chan job
	onError func(name string, err error)

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewAsync starts a worker draining a queue of size queueSize.
func NewAsync(inner NamedSink, queueSize int, onError func(name string, err error)) *Async {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if onError == nil {
		onError = func(string, error) {}
	}
	a := &Async{
		inner:   inner,
		queue:   make(chan job, queueSize),
		onError: onError,
	}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Async) run() {
	defer a.wg.Done()
	for j := range a.queue {
		ctx, span := trace.StartSpan(j.ctx, "sink_write")
		span.SetAttr("file", j.name)
		if err := a.inner.StoreAs(ctx, j.name, j.pcm, j.format); err != nil {
			span.SetAttr("error", err.Error())
			trace.Logger(ctx).Warn("async utterance write failed", "file", j.name, "error", err)
			a.onError(j.name, err)
		}
		span.End()
	}
}

// Store implements Sink. It never blocks; a full queue is an error.
func (a *Async) Store(ctx context.Context, pcm []byte, format audio.Format) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return "", apperrors.New(apperrors.CodeSinkFailed, "sink stopped")
	}

	name := a.inner.NewName()
	// Detach from the session's cancellation but keep its trace IDs.
	j := job{ctx: context.WithoutCancel(ctx), name: name, pcm: pcm, format: format}
	select {
	case a.queue <- j:
		return name, nil
	default:
		return "", apperrors.New(apperrors.CodeSinkFailed, "write queue full").WithMetadata("file", name)
	}
}

// Stop rejects new writes and waits for queued ones to finish.
func (a *Async) Stop() {
	a.mu.Lock()
	if !a.stopped {
		a.stopped = true
		close(a.queue)
	}
	a.mu.Unlock()
	a.wg.Wait()
}
