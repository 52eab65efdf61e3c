// Package supervisor decides how a server instance runs (foreground,
// daemonized or as a cluster master) and owns its PID files, signals,
// privilege drop and exit path.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/loykin/warden/internal/adapter"
	"github.com/loykin/warden/internal/config"
	"github.com/loykin/warden/internal/daemon"
	"github.com/loykin/warden/internal/errkind"
	"github.com/loykin/warden/internal/history"
	"github.com/loykin/warden/internal/metrics"
	"github.com/loykin/warden/internal/pidfile"
	"github.com/loykin/warden/internal/signals"
	"github.com/loykin/warden/internal/workers"
)

var (
	// ErrAlreadyRunning is returned by Start when a live process owns the
	// instance's PID file.
	ErrAlreadyRunning = errors.New("server is already running")
	// ErrAlreadyBooted is returned by a second Bootup in the same process.
	ErrAlreadyBooted = errors.New("server already booted")
)

// Prober reports whether the process recorded for an instance is alive.
type Prober interface {
	IsAlive(id pidfile.InstanceID) (bool, error)
}

// Dropper switches the process identity.
type Dropper interface {
	Drop(user, group string) error
}

// Bootstrapper initialises the application before the adapter starts.
type Bootstrapper interface {
	Load(ctx context.Context) error
}

// Reaper terminates forked workers and then ends the process with status.
type Reaper interface {
	ReapWorkers(status int)
}

// Cluster is the set of workers a foreground master runs.
type Cluster interface {
	Reaper
	Spawn() error
	Wait(ctx context.Context) error
}

// AdapterFactory builds the adapter serving cfg.
type AdapterFactory func(cfg *config.Server) (adapter.Adapter, error)

// Options wires a Supervisor to its collaborators. Config, Store and Probe
// are required; Bootup also needs Adapter.
type Options struct {
	Config     *config.Server
	Store      *pidfile.Store
	Probe      Prober
	Dropper    Dropper
	Daemonizer daemon.Daemonizer
	Dispatcher *signals.Dispatcher
	// Interrupt, when set and the configuration is interactive, handles INT
	// with the debug console instead of shutting down.
	Interrupt *signals.InterruptTrap
	Boot      Bootstrapper
	Adapter   AdapterFactory
	// Reaper is used by Shutdown when fork_for_class_load is set.
	Reaper Reaper
	// Workers builds the cluster for a foreground master.
	Workers  func(ports []int) Cluster
	Recorder *history.Recorder
	// Send delivers a signal to a pid; defaults to signals.Send.
	Send func(pid int, sig syscall.Signal) error
	// Exit ends the process; defaults to os.Exit.
	Exit func(code int)
	Log  *slog.Logger
}

// Supervisor runs one server instance.
type Supervisor struct {
	opts  Options
	cfg   *config.Server
	store *pidfile.Store
	log   *slog.Logger

	mu        sync.Mutex
	reaper    Reaper
	mode      string
	startedAt time.Time
	cancel    context.CancelFunc
	serving   chan struct{}
	hooks     []func()

	booted       atomic.Bool
	shutting     atomic.Bool
	shutdownOnce sync.Once
	shutdownDone chan struct{}
	exitOnce     sync.Once
}

func New(opts Options) (*Supervisor, error) {
	if opts.Config == nil || opts.Store == nil || opts.Probe == nil {
		return nil, fmt.Errorf("supervisor: config, store and probe are required")
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = signals.NewDispatcher(opts.Log)
	}
	if opts.Send == nil {
		opts.Send = signals.Send
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	if opts.Recorder == nil {
		opts.Recorder = history.NewRecorder(nil, opts.Log)
	}
	cfg := *opts.Config
	return &Supervisor{
		opts:         opts,
		cfg:          &cfg,
		store:        opts.Store,
		log:          opts.Log,
		reaper:       opts.Reaper,
		mode:         "foreground",
		shutdownDone: make(chan struct{}),
	}, nil
}

// Config returns the configuration currently in effect.
func (s *Supervisor) Config() *config.Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *s.cfg
	return &c
}

// Start runs the instance on port. With daemonize set the calling process
// forks one daemon per cluster port and returns once they are launched.
// Otherwise Start blocks for the life of the server.
func (s *Supervisor) Start(ctx context.Context, port, cluster int) error {
	s.mu.Lock()
	s.cfg = s.cfg.WithPort(port)
	s.cfg.Cluster = cluster
	cfg := s.cfg
	s.mu.Unlock()

	d := s.opts.Daemonizer
	switch {
	case d != nil && d.Detached():
		return s.startDetached(ctx)
	case cfg.Daemonize:
		return s.daemonize(ctx, cfg.Ports())
	case cluster > 1:
		return s.startMaster(ctx, cfg.Ports())
	}
	if _, ok := workers.Port(); ok {
		s.setMode("worker")
	}
	return s.Bootup(ctx)
}

func (s *Supervisor) daemonize(ctx context.Context, ports []int) error {
	if s.opts.Daemonizer == nil {
		return errkind.Fatal(errkind.Newf(errkind.UnsupportedPlatform, "daemonize", "", "daemonization is not available"))
	}
	for _, port := range ports {
		id := pidfile.PortID(port)
		alive, err := s.Alive(id)
		if err != nil {
			return err
		}
		if alive {
			pid, _ := s.store.Read(id)
			s.record(ctx, history.Event{Type: history.EventAlreadyRunning, Instance: id.String(), PID: pid})
			return errkind.Fatal(&errkind.Error{
				Kind: errkind.AlreadyRunning,
				Op:   fmt.Sprintf("start %s (pid %d)", id, pid),
				Path: s.store.Path(id),
				Err:  ErrAlreadyRunning,
			})
		}
	}
	for _, port := range ports {
		id := pidfile.PortID(port)
		if s.store.Exists(id) {
			s.log.Warn("Removing stale pid file", "instance", id, "path", s.store.Path(id))
			if err := s.store.Remove(id); err != nil {
				return errkind.Fatal(err)
			}
			metrics.IncStaleRemoved()
			s.record(ctx, history.Event{Type: history.EventStalePID, Instance: id.String()})
		}
		pid, err := s.opts.Daemonizer.Fork(id.String(), port)
		if err != nil {
			return err
		}
		metrics.IncStart("daemon")
		s.record(ctx, history.Event{Type: history.EventDaemonize, Instance: id.String(), PID: pid})

		wait := s.cfg.DaemonWait
		if wait <= 0 {
			s.log.Info("Daemon started", "instance", id, "pid", pid)
			continue
		}
		if recorded, err := daemon.WaitForPIDFile(s.store.Path(id), wait); err != nil {
			s.log.Warn("Daemon has not written its pid file yet", "instance", id, "pid", pid, "error", err)
		} else {
			s.log.Info("Daemon started", "instance", id, "pid", recorded, "pid_file", s.store.Path(id))
		}
	}
	return nil
}

func (s *Supervisor) startDetached(ctx context.Context) error {
	s.setMode("daemon")
	if err := s.opts.Daemonizer.Settle(s.cfg.Root); err != nil {
		s.log.Error("Cannot change to server root", "root", s.cfg.Root, "error", err)
		return err
	}
	return s.Bootup(ctx)
}

func (s *Supervisor) startMaster(ctx context.Context, ports []int) error {
	if s.opts.Workers == nil {
		return fmt.Errorf("cluster of %d requested but no worker pool is configured", len(ports))
	}
	s.setMode("cluster")
	if err := s.StorePID(pidfile.Main); err != nil {
		return errkind.Fatal(err)
	}
	s.AddExitHook(func() { s.removePIDOnExit(pidfile.Main) })
	defer s.cleanupUnlessShutting()

	pool := s.opts.Workers(ports)
	s.mu.Lock()
	s.reaper = pool
	s.cfg.ForkForClassLoad = true
	s.mu.Unlock()

	s.trapShutdown(ctx)
	metrics.IncStart("cluster")
	s.record(ctx, history.Event{Type: history.EventStart, Instance: pidfile.Main.String(), PID: os.Getpid()})
	s.log.Info("Cluster master started", "pid", os.Getpid(), "ports", ports)

	if err := pool.Spawn(); err != nil {
		s.log.Error("Failed to spawn workers", "error", err)
		s.Shutdown(1)
		return err
	}
	if err := pool.Wait(ctx); err == nil && !s.shutting.Load() {
		s.log.Error("All workers exited")
		s.Shutdown(1)
	}
	if s.shutting.Load() {
		<-s.shutdownDone
	}
	return nil
}

// Bootup installs signal handlers, records the PID file, runs the
// bootstrapper, drops privileges once the socket is bound and then starts
// the adapter, which blocks. It runs at most once per process.
func (s *Supervisor) Bootup(ctx context.Context) error {
	if !s.booted.CompareAndSwap(false, true) {
		return ErrAlreadyBooted
	}
	cfg := s.Config()
	id := pidfile.PortID(cfg.Port)

	s.trapShutdown(ctx)
	if err := s.StorePID(id); err != nil {
		return errkind.Fatal(err)
	}
	s.AddExitHook(func() { s.removePIDOnExit(id) })
	// Returning without a shutdown still ends the process: the caller
	// exits with the error, so the hooks run here.
	defer s.cleanupUnlessShutting()

	s.mu.Lock()
	s.startedAt = time.Now()
	mode := s.mode
	s.mu.Unlock()
	metrics.IncStart(mode)
	s.record(ctx, history.Event{Type: history.EventStart, Instance: id.String(), PID: os.Getpid(), Message: mode})
	s.log.Info("Server starting", "instance", id, "pid", os.Getpid(), "mode", mode)

	if s.opts.Boot != nil {
		if err := s.opts.Boot.Load(ctx); err != nil {
			return err
		}
	}
	if s.opts.Adapter == nil {
		return fmt.Errorf("no adapter configured")
	}
	a, err := s.opts.Adapter(cfg)
	if err != nil {
		return err
	}
	if b, ok := a.(adapter.Binder); ok {
		if err := b.Bind(ctx); err != nil {
			return err
		}
	}
	if err := s.ChangePrivilege(cfg.User, cfg.Group); err != nil {
		return err
	}

	serveCtx, cancel := context.WithCancel(ctx)
	serving := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.serving = serving
	s.mu.Unlock()

	err = a.Start(serveCtx)
	cancel()
	close(serving)
	if s.shutting.Load() {
		<-s.shutdownDone
		return nil
	}
	return err
}

// trapShutdown sends TERM, and INT unless the interactive console owns it,
// to Shutdown(0).
func (s *Supervisor) trapShutdown(ctx context.Context) {
	d := s.opts.Dispatcher
	d.Trap(syscall.SIGTERM, func(os.Signal) { s.Shutdown(0) })
	if t := s.opts.Interrupt; t != nil && s.cfg.Interactive && s.mode != "cluster" {
		if t.Shutdown == nil {
			t.Shutdown = func() { s.Shutdown(0) }
		}
		if t.Exit == nil {
			t.Exit = s.Exit
		}
		t.Install(ctx, d)
	} else {
		d.Trap(os.Interrupt, func(os.Signal) { s.Shutdown(0) })
	}
	d.Start(ctx)
}

// Shutdown stops serving and ends the process: through the Reaper when
// workers were forked, otherwise with status. Only the first call acts.
func (s *Supervisor) Shutdown(status int) {
	s.shutdownOnce.Do(func() {
		s.shutting.Store(true)
		defer close(s.shutdownDone)

		s.mu.Lock()
		cancel, serving := s.cancel, s.serving
		reaper, fork := s.reaper, s.cfg.ForkForClassLoad
		timeout := s.cfg.ShutdownTimeout
		s.mu.Unlock()

		s.log.Info("Shutting down", "status", status, "pid", os.Getpid())
		s.record(context.Background(), history.Event{Type: history.EventStop, Instance: s.instance().String(), PID: os.Getpid(), Outcome: strconv.Itoa(status)})

		if cancel != nil {
			cancel()
			s.waitServing(serving, timeout)
		}
		if fork && reaper != nil {
			reaper.ReapWorkers(status)
			return
		}
		if fork {
			s.log.Warn("fork_for_class_load is set but no workers were started")
		}
		s.Exit(status)
	})
}

func (s *Supervisor) waitServing(serving chan struct{}, timeout time.Duration) {
	if serving == nil {
		return
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	select {
	case <-serving:
	case <-time.After(timeout):
		s.log.Warn("Adapter did not stop in time", "timeout", timeout)
	}
}

// AddExitHook registers fn to run when the process exits through Exit.
// Hooks run once, most recent first.
func (s *Supervisor) AddExitHook(fn func()) {
	s.mu.Lock()
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

// Exit runs the exit hooks and terminates the process with code.
func (s *Supervisor) Exit(code int) {
	s.runExitHooks()
	s.opts.Exit(code)
}

func (s *Supervisor) runExitHooks() {
	s.exitOnce.Do(func() {
		s.mu.Lock()
		hooks := s.hooks
		s.hooks = nil
		s.mu.Unlock()
		for i := len(hooks) - 1; i >= 0; i-- {
			hooks[i]()
		}
		_ = s.opts.Recorder.Close()
	})
}

// cleanupUnlessShutting runs the exit hooks when Bootup or the master loop
// returns on its own. A shutdown already owns the exit.
func (s *Supervisor) cleanupUnlessShutting() {
	if !s.shutting.Load() {
		s.runExitHooks()
	}
}

func (s *Supervisor) removePIDOnExit(id pidfile.InstanceID) {
	if err := s.RemovePID(id); err != nil {
		s.log.Warn("Failed to remove pid file", "instance", id, "pid_file", s.store.Path(id), "error", err)
	}
}

// Alive reports whether id's recorded process is running. A process that
// cannot be probed for lack of permission is fatal: its state is unknown.
func (s *Supervisor) Alive(id pidfile.InstanceID) (bool, error) {
	alive, err := s.opts.Probe.IsAlive(id)
	if err != nil {
		return false, errkind.Fatal(fmt.Errorf("cannot determine whether %s is running, check %s: %w", id, s.store.Path(id), err))
	}
	return alive, nil
}

// StorePID records the current process as id.
func (s *Supervisor) StorePID(id pidfile.InstanceID) error {
	return s.store.StorePID(id)
}

// RemovePID deletes id's PID file; a missing file is not an error.
func (s *Supervisor) RemovePID(id pidfile.InstanceID) error {
	return s.store.Remove(id)
}

// HandOverPIDFile chowns this process's PID file and its directory to uid
// and gid ahead of a privilege drop.
func (s *Supervisor) HandOverPIDFile(uid, gid int) error {
	return s.store.Chown(s.instance(), uid, gid)
}

// ChangePrivilege drops to user and group. Failures are fatal.
func (s *Supervisor) ChangePrivilege(userName, group string) error {
	if s.opts.Dropper == nil || (userName == "" && group == "") {
		return nil
	}
	if err := s.opts.Dropper.Drop(userName, group); err != nil {
		s.record(context.Background(), history.Event{Type: history.EventPrivilegeDrop, Instance: s.instance().String(), Outcome: "failed", Message: err.Error()})
		return err
	}
	s.record(context.Background(), history.Event{Type: history.EventPrivilegeDrop, Instance: s.instance().String(), Outcome: "ok", Message: userName + ":" + group})
	return nil
}

// Status describes this process for the adapter and the debug console.
func (s *Supervisor) Status() adapter.Status {
	s.mu.Lock()
	started, mode := s.startedAt, s.mode
	port := s.cfg.Port
	s.mu.Unlock()
	st := adapter.Status{
		PID:       os.Getpid(),
		Port:      port,
		Instance:  s.instance().String(),
		Mode:      mode,
		StartedAt: started,
		UID:       os.Getuid(),
		GID:       os.Getgid(),
	}
	if !started.IsZero() {
		st.Uptime = time.Since(started).Round(time.Second).String()
	}
	if u, err := user.Current(); err == nil {
		st.User = u.Username
	}
	return st
}

func (s *Supervisor) instance() pidfile.InstanceID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == "cluster" {
		return pidfile.Main
	}
	return pidfile.PortID(s.cfg.Port)
}

func (s *Supervisor) setMode(mode string) {
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
}

func (s *Supervisor) record(ctx context.Context, e history.Event) {
	s.opts.Recorder.Record(ctx, e)
}
