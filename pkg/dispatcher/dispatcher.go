// Package dispatcher implements the typed event queue underlying every
// worker in the runtime: a FIFO of events consumed by exactly one goroutine,
// fed from any number of producers that never block beyond the enqueue.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

const logPrefix = "dispatcher:dispatcher"

// Kind tags the known event families. PostEvent accepts or rejects an event
// by matching its kind against the set the dispatcher was created with.
type Kind uint8

const (
	// KindExit is the internal exit marker; every dispatcher accepts it.
	KindExit Kind = iota
	// KindServiceManager tags registration commands for the service manager.
	KindServiceManager
	// KindStubConnect tags connect notifications addressed to stubs.
	KindStubConnect
	// KindProxyConnect tags connect notifications addressed to proxies.
	KindProxyConnect
)

// String returns the kind name for logs.
func (k Kind) String() string {
	switch k {
	case KindExit:
		return "exit"
	case KindServiceManager:
		return "service-manager"
	case KindStubConnect:
		return "stub-connect"
	case KindProxyConnect:
		return "proxy-connect"
	default:
		return "unknown"
	}
}

// Event is anything the queue can carry.
type Event interface {
	Kind() Kind
}

// Consumer handles events on the dispatcher's worker goroutine. Handlers run
// to completion; the dispatcher never dispatches a second event while one is
// being processed.
type Consumer interface {
	ProcessEvent(ev Event)
}

type exitEvent struct{}

func (exitEvent) Kind() Kind { return KindExit }

// Dispatcher owns a FIFO event queue and a single worker goroutine.
type Dispatcher struct {
	name     string
	accepts  map[Kind]struct{}
	consumer Consumer

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Event
	started bool
	done    chan struct{}
}

// New creates a dispatcher that accepts the given event kinds. The exit kind
// is always accepted.
func New(name string, consumer Consumer, accepts ...Kind) *Dispatcher {
	d := &Dispatcher{
		name:     name,
		accepts:  make(map[Kind]struct{}, len(accepts)+1),
		consumer: consumer,
		done:     make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	d.accepts[KindExit] = struct{}{}
	for _, k := range accepts {
		d.accepts[k] = struct{}{}
	}
	return d
}

// Name returns the dispatcher name.
func (d *Dispatcher) Name() string { return d.name }

// IsReady reports whether the worker goroutine is pumping events.
func (d *Dispatcher) IsReady() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

// PostEvent enqueues an event if its kind is accepted by this dispatcher.
// The event is dropped and false returned otherwise. Producers only ever
// block on the queue lock.
func (d *Dispatcher) PostEvent(ev Event) bool {
	if _, ok := d.accepts[ev.Kind()]; !ok {
		slog.Warn(fmt.Sprintf("%s - dispatcher %q dropped event of kind %s", logPrefix, d.name, ev.Kind()))
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		slog.Warn(fmt.Sprintf("%s - dispatcher %q not running, dropped %s event", logPrefix, d.name, ev.Kind()))
		return false
	}
	d.queue = append(d.queue, ev)
	d.cond.Signal()
	return true
}

// Start spawns the worker goroutine. Starting twice is an error.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return fmt.Errorf("%s - dispatcher %q already started", logPrefix, d.name)
	}
	d.started = true
	d.mu.Unlock()

	go d.run()
	return nil
}

func (d *Dispatcher) run() {
	slog.Debug(fmt.Sprintf("%s - dispatcher %q running", logPrefix, d.name))
	for {
		ev := d.next()
		if ev.Kind() == KindExit {
			break
		}
		d.consumer.ProcessEvent(ev)
	}

	d.mu.Lock()
	d.started = false
	d.queue = nil
	d.mu.Unlock()
	close(d.done)
	slog.Debug(fmt.Sprintf("%s - dispatcher %q exited", logPrefix, d.name))
}

func (d *Dispatcher) next() Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.queue) == 0 {
		d.cond.Wait()
	}
	ev := d.queue[0]
	d.queue = d.queue[1:]
	return ev
}

// PulseExit posts the exit marker. Events already queued are still
// processed; the marker is the last event the worker handles.
func (d *Dispatcher) PulseExit() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return
	}
	d.queue = append(d.queue, exitEvent{})
	d.cond.Signal()
}

// RemoveEvents drains the queue without dispatching. With keepExit true,
// queued exit markers survive the drain.
func (d *Dispatcher) RemoveEvents(keepExit bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !keepExit {
		d.queue = nil
		return
	}
	kept := d.queue[:0]
	for _, ev := range d.queue {
		if ev.Kind() == KindExit {
			kept = append(kept, ev)
		}
	}
	d.queue = kept
}

// CompletionWait blocks until the worker goroutine has exited or the context
// is done. It is the join primitive for dispatcher shutdown.
func (d *Dispatcher) CompletionWait(ctx context.Context) error {
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s - waiting for dispatcher %q: %w", logPrefix, d.name, ctx.Err())
	}
}
