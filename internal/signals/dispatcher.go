// Package signals routes OS signals to handlers on a single goroutine.
package signals

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"

	"github.com/loykin/warden/internal/metrics"
)

// Handler reacts to a delivered signal. Handlers run one at a time on the
// dispatcher goroutine and must not block for long.
type Handler func(sig os.Signal)

// Dispatcher keeps one handler per signal. Trapping a signal again replaces
// the previous handler.
type Dispatcher struct {
	log *slog.Logger

	mu       sync.Mutex
	handlers map[os.Signal]Handler
	ch       chan os.Signal
	running  bool
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewDispatcher(log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		log:      log,
		handlers: make(map[os.Signal]Handler),
		ch:       make(chan os.Signal, 8),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Trap installs h for sig, replacing any handler already installed.
func (d *Dispatcher) Trap(sig os.Signal, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[sig] = h
	if d.running {
		signal.Notify(d.ch, sig)
	}
}

// Untrap removes the handler for sig and restores its default disposition.
func (d *Dispatcher) Untrap(sig os.Signal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, sig)
	if d.running {
		signal.Reset(sig)
	}
}

// Handled reports whether a handler is installed for sig.
func (d *Dispatcher) Handled(sig os.Signal) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.handlers[sig]
	return ok
}

// Start subscribes to every trapped signal and dispatches until ctx is
// cancelled or Stop is called. Calling Start twice is a no-op.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	for sig := range d.handlers {
		signal.Notify(d.ch, sig)
	}
	d.mu.Unlock()

	go func() {
		defer close(d.done)
		for {
			select {
			case <-ctx.Done():
				signal.Stop(d.ch)
				return
			case <-d.stopCh:
				signal.Stop(d.ch)
				return
			case sig := <-d.ch:
				d.dispatch(sig)
			}
		}
	}()
}

// Stop unsubscribes and waits for the dispatcher goroutine to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	running := d.running
	d.mu.Unlock()
	d.stopOnce.Do(func() { close(d.stopCh) })
	if running {
		<-d.done
	}
}

// Deliver injects sig as if it had been received from the OS. It drops sig
// once the dispatcher has stopped, whether by Stop or by its context.
func (d *Dispatcher) Deliver(sig os.Signal) {
	select {
	case d.ch <- sig:
	case <-d.stopCh:
	case <-d.done:
	}
}

func (d *Dispatcher) dispatch(sig os.Signal) {
	d.mu.Lock()
	h := d.handlers[sig]
	d.mu.Unlock()

	name := SignalName(sig)
	metrics.IncSignal(name)
	if h == nil {
		d.log.Debug("Signal without handler", "signal", name)
		return
	}
	d.log.Debug("Signal received", "signal", name)
	h(sig)
}
