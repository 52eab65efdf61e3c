package signals

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultGrace is how long an armed interrupt waits before opening the console.
const DefaultGrace = 1500 * time.Millisecond

// Console is an interactive session bound to the running process.
type Console interface {
	Run(ctx context.Context, in io.Reader, out io.Writer) error
}

// InterruptTrap implements the INT behaviour. Without a Console every INT
// shuts down. With one, the first INT arms the trap and, after the grace
// window, opens a console session; any INT while armed exits with status 0.
type InterruptTrap struct {
	Console  Console
	Grace    time.Duration
	In       io.Reader
	Out      io.Writer
	Shutdown func()
	Exit     func(code int)
	Log      *slog.Logger

	mu        sync.Mutex
	armed     bool
	ctx       context.Context
	reinstall func()
}

// Install traps INT on d. ctx bounds any console session.
func (t *InterruptTrap) Install(ctx context.Context, d *Dispatcher) {
	t.mu.Lock()
	t.ctx = ctx
	t.reinstall = func() { d.Trap(os.Interrupt, t.Handle) }
	t.mu.Unlock()
	d.Trap(os.Interrupt, t.Handle)
}

// Armed reports whether a second INT would exit.
func (t *InterruptTrap) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

func (t *InterruptTrap) Handle(os.Signal) {
	if t.Console == nil {
		t.Shutdown()
		return
	}
	t.mu.Lock()
	if t.armed {
		t.mu.Unlock()
		t.Exit(0)
		return
	}
	t.armed = true
	ctx := t.ctx
	t.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	_, _ = fmt.Fprintln(t.out(), "Interrupt a second time to quit")
	go t.session(ctx)
}

func (t *InterruptTrap) session(ctx context.Context) {
	grace := t.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}
	timer := time.NewTimer(grace)
	select {
	case <-ctx.Done():
		timer.Stop()
		return
	case <-timer.C:
	}

	if err := t.Console.Run(ctx, t.in(), t.out()); err != nil && t.Log != nil {
		t.Log.Error("Console session failed", "error", err)
	}

	t.mu.Lock()
	t.armed = false
	reinstall := t.reinstall
	t.mu.Unlock()
	if reinstall != nil {
		reinstall()
	}
}

func (t *InterruptTrap) in() io.Reader {
	if t.In != nil {
		return t.In
	}
	return os.Stdin
}

func (t *InterruptTrap) out() io.Writer {
	if t.Out != nil {
		return t.Out
	}
	return os.Stdout
}
