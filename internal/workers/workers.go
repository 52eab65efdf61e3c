// Package workers runs the processes of a foreground cluster. The master
// re-executes its own binary once per port and reaps the children on
// shutdown.
package workers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/loykin/warden/internal/metrics"
	"github.com/loykin/warden/internal/pidfile"
)

// EnvPort tells a re-executed process it is a cluster worker for that port.
const EnvPort = "WARDEN_WORKER_PORT"

// Port returns the port this process serves as a worker.
func Port() (int, bool) {
	v := os.Getenv(EnvPort)
	if v == "" {
		return 0, false
	}
	port, err := strconv.Atoi(v)
	if err != nil || port <= 0 {
		return 0, false
	}
	return port, true
}

// Options configures a Pool.
type Options struct {
	// Executable defaults to os.Executable(); Args default to os.Args[1:].
	Executable string
	Args       []string
	Env        []string
	Ports      []int
	// Store locates the PID files the workers write; ReapWorkers removes them.
	Store           *pidfile.Store
	ShutdownTimeout time.Duration
	// Output returns the stdout and stderr of the worker for port. Nil
	// writers inherit the master's.
	Output func(port int) (io.Writer, io.Writer)
	// Exit ends the master after ReapWorkers.
	Exit func(status int)
	Log  *slog.Logger
}

type worker struct {
	port    int
	cmd     *exec.Cmd
	started time.Time
	done    chan struct{}
	err     error
}

// Pool owns the worker processes of one master.
type Pool struct {
	opts Options

	mu       sync.Mutex
	workers  map[int]*worker
	stopping bool
	reapOnce sync.Once
}

func New(opts Options) *Pool {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	return &Pool{opts: opts, workers: make(map[int]*worker)}
}

// Spawn starts one worker per port. Workers that already started are left
// running when a later one fails.
func (p *Pool) Spawn() error {
	exe := p.opts.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}
	}
	args := p.opts.Args
	if args == nil {
		args = os.Args[1:]
	}
	for _, port := range p.opts.Ports {
		if err := p.spawn(exe, args, port); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pool) spawn(exe string, args []string, port int) error {
	// #nosec G204
	cmd := exec.Command(exe, args...)
	cmd.Env = append(append(os.Environ(), p.opts.Env...), EnvPort+"="+strconv.Itoa(port))
	configureSysProcAttr(cmd)
	cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
	if p.opts.Output != nil {
		if out, errw := p.opts.Output(port); out != nil || errw != nil {
			if out != nil {
				cmd.Stdout = out
			}
			if errw != nil {
				cmd.Stderr = errw
			}
		}
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start worker %d: %w", port, err)
	}
	w := &worker{port: port, cmd: cmd, started: time.Now(), done: make(chan struct{})}

	p.mu.Lock()
	p.workers[port] = w
	n := len(p.workers)
	p.mu.Unlock()
	metrics.SetWorkersRunning(n)
	p.opts.Log.Info("Worker started", "port", port, "pid", cmd.Process.Pid)

	go p.monitor(w)
	return nil
}

func (p *Pool) monitor(w *worker) {
	w.err = w.cmd.Wait()
	close(w.done)
	metrics.IncWorkerExit(strconv.Itoa(w.port))

	p.mu.Lock()
	stopping := p.stopping
	running := 0
	for _, other := range p.workers {
		select {
		case <-other.done:
		default:
			running++
		}
	}
	p.mu.Unlock()
	metrics.SetWorkersRunning(running)

	if !stopping {
		p.opts.Log.Error("Worker exited unexpectedly", "port", w.port, "pid", w.cmd.Process.Pid, "error", w.err, "uptime", time.Since(w.started).Round(time.Millisecond))
	}
}

// PIDs maps each worker's port to its pid.
func (p *Pool) PIDs() map[int]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[int]int, len(p.workers))
	for port, w := range p.workers {
		out[port] = w.cmd.Process.Pid
	}
	return out
}

// Running lists the ports whose worker has not exited.
func (p *Pool) Running() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var ports []int
	for port, w := range p.workers {
		select {
		case <-w.done:
		default:
			ports = append(ports, port)
		}
	}
	sort.Ints(ports)
	return ports
}

// Wait blocks until every worker has exited or ctx is done.
func (p *Pool) Wait(ctx context.Context) error {
	for _, w := range p.snapshot() {
		select {
		case <-w.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Signal sends sig to every live worker's process group.
func (p *Pool) Signal(sig syscall.Signal) {
	for _, w := range p.snapshot() {
		select {
		case <-w.done:
			continue
		default:
		}
		if err := signalGroup(w.cmd.Process.Pid, sig); err != nil {
			p.opts.Log.Debug("Signal worker failed", "port", w.port, "signal", sig, "error", err)
		}
	}
}

// Stop sends TERM, waits up to the shutdown timeout, sends KILL to
// survivors, waits for them and removes every worker PID file.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopping = true
	p.mu.Unlock()

	p.Signal(syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.ShutdownTimeout)
	err := p.Wait(ctx)
	cancel()
	if err != nil {
		survivors := p.Running()
		p.opts.Log.Warn("Workers did not stop in time, killing", "ports", survivors, "timeout", p.opts.ShutdownTimeout)
		p.Signal(syscall.SIGKILL)
		_ = p.Wait(context.Background())
	}
	if p.opts.Store != nil {
		for _, w := range p.snapshot() {
			if err := p.opts.Store.Remove(pidfile.PortID(w.port)); err != nil {
				p.opts.Log.Warn("Failed to remove worker pid file", "port", w.port, "error", err)
			}
		}
	}
	metrics.SetWorkersRunning(0)
}

// ReapWorkers stops every worker and then ends the master with status.
// Only the first call has any effect.
func (p *Pool) ReapWorkers(status int) {
	p.reapOnce.Do(func() {
		p.Stop()
		p.opts.Log.Info("Workers reaped", "status", status)
		p.opts.Exit(status)
	})
}

func (p *Pool) snapshot() []*worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*worker, 0, len(p.workers))
	for _, w := range p.workers {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].port < out[j].port })
	return out
}
