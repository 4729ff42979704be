package notify

import (
	"context"
	"sync"
	"time"
)

// DefaultTimeout bounds the delivery of one batch of events.
const DefaultTimeout = 30 * time.Second

// Dispatcher delivers events in the background so callers never wait on a
// sink. Batches are delivered one at a time in the order they were sent.
// A nil *Dispatcher drops everything.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration

	mu      sync.Mutex
	queue   []batch
	running bool
	pending sync.WaitGroup
}

type batch struct {
	ctx    context.Context
	events []Event
}

// NewDispatcher returns a Dispatcher for n. A non-positive timeout uses
// DefaultTimeout.
func NewDispatcher(n Notifier, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{notifier: n, timeout: timeout}
}

// Send queues events for delivery and returns immediately. Delivery outlives
// ctx's cancellation but keeps its values.
func (d *Dispatcher) Send(ctx context.Context, events ...Event) {
	if d == nil || d.notifier == nil || len(events) == 0 {
		return
	}
	b := batch{ctx: context.WithoutCancel(ctx), events: append([]Event(nil), events...)}

	d.pending.Add(1)
	d.mu.Lock()
	d.queue = append(d.queue, b)
	start := !d.running
	d.running = true
	d.mu.Unlock()

	if start {
		go d.drain()
	}
}

func (d *Dispatcher) drain() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.running = false
			d.mu.Unlock()
			return
		}
		b := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		ctx, cancel := context.WithTimeout(b.ctx, d.timeout)
		Dispatch(ctx, d.notifier, b.events...)
		cancel()
		d.pending.Done()
	}
}

// Wait blocks until every batch sent so far has been delivered or given up.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.pending.Wait()
}
