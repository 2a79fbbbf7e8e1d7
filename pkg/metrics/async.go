package metrics

import (
	"sync"
	"sync/atomic"
)

// AsyncStats counts what happened to events handed to an AsyncObserver.
type AsyncStats struct {
	Delivered int64
	Dropped   int64
	Failed    int64
}

// AsyncObserver decouples turn workers from slow sinks such as the timeline
// file. A full buffer drops the event. A panicking sink is counted in Failed
// and does not stop delivery.
type AsyncObserver struct {
	inner Observer
	queue chan MetricsEvent
	done  chan struct{}

	mu     sync.RWMutex
	closed bool

	delivered atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

func NewAsyncObserver(inner Observer, buffer int) *AsyncObserver {
	if buffer <= 0 {
		buffer = 256
	}
	a := &AsyncObserver{
		inner: OrNoop(inner),
		queue: make(chan MetricsEvent, buffer),
		done:  make(chan struct{}),
	}
	go a.drain()
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

func (a *AsyncObserver) Stats() AsyncStats {
	return AsyncStats{
		Delivered: a.delivered.Load(),
		Dropped:   a.dropped.Load(),
		Failed:    a.failed.Load(),
	}
}

// Close refuses further events and blocks until the queue is flushed.
func (a *AsyncObserver) Close() {
	if a == nil {
		return
	}
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
}

func (a *AsyncObserver) drain() {
	defer close(a.done)
	for ev := range a.queue {
		a.deliver(ev)
	}
}

func (a *AsyncObserver) deliver(ev MetricsEvent) {
	defer func() {
		if recover() != nil {
			a.failed.Add(1)
		}
	}()
	a.inner.RecordEvent(ev)
	a.delivered.Add(1)
}
