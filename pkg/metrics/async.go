package metrics

import (
	"sync"
	"sync/atomic"
)

// AsyncObserver hands events to a single background goroutine so slow
// observers never stall a session. A full buffer drops the event.
type AsyncObserver struct {
	inner   Observer
	queue   chan MetricsEvent
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewAsyncObserver(inner Observer, buffer int) *AsyncObserver {
	if buffer <= 0 {
		buffer = 1024
	}
	a := &AsyncObserver{
		inner: inner,
		queue: make(chan MetricsEvent, buffer),
		done:  make(chan struct{}),
	}
	go func() {
		defer close(a.done)
		for ev := range a.queue {
			a.inner.RecordEvent(ev)
		}
	}()
	return a
}

func (a *AsyncObserver) RecordEvent(ev MetricsEvent) {
	if a == nil {
		return
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- ev:
	default:
		a.dropped.Add(1)
	}
}

// Dropped counts events lost to a full buffer.
func (a *AsyncObserver) Dropped() int64 { return a.dropped.Load() }

// Close stops intake, waits for the buffered events to be delivered and
// flushes the inner observer when it is a Flusher. Safe to call twice.
func (a *AsyncObserver) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
	if f, ok := a.inner.(Flusher); ok {
		return f.Flush()
	}
	return nil
}
