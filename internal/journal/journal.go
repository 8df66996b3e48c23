// Package journal fans broker lifecycle events out to optional sinks. The
// journal is write-only from the broker's point of view.
package journal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vekjja/espwifi-broker/internal/logger"
	"github.com/vekjja/espwifi-broker/internal/model"
)

// DefaultQueueDepth is the Async queue depth used by the server.
const DefaultQueueDepth = 256

// Sink records lifecycle events.
type Sink interface {
	Record(ctx context.Context, ev model.Event) error
}

// Nop discards events.
type Nop struct{}

// Record implements Sink.
func (Nop) Record(context.Context, model.Event) error { return nil }

// Multi records each event in every sink and joins their errors.
type Multi []Sink

// Record implements Sink.
func (m Multi) Record(ctx context.Context, ev model.Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Async decouples callers from a slow sink. Events are queued and written
// by one goroutine; when the queue is full the event is dropped.
type Async struct {
	sink  Sink
	queue chan model.Event
	now   func() time.Time

	mu      sync.Mutex
	closed  bool
	dropped int
	done    chan struct{}
}

// NewAsync starts the writer goroutine for sink.
func NewAsync(sink Sink, depth int) *Async {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	a := &Async{
		sink:  sink,
		queue: make(chan model.Event, depth),
		now:   time.Now,
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

// Record enqueues ev without blocking.
func (a *Async) Record(_ context.Context, ev model.Event) error {
	if ev.At.IsZero() {
		ev.At = a.now()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	select {
	case a.queue <- ev:
	default:
		a.dropped++
	}
	return nil
}

// Dropped returns how many events were dropped because the queue was full.
func (a *Async) Dropped() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

func (a *Async) run() {
	defer close(a.done)
	log := logger.Default().WithField("component", "journal")
	for ev := range a.queue {
		if err := a.sink.Record(context.Background(), ev); err != nil {
			log.WithError(err).WithField("event", ev.Type).Warn("failed to record event")
		}
	}
}

// Close stops accepting events and waits for queued ones to be written.
func (a *Async) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()
	<-a.done
}
