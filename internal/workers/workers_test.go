//go:build !windows

package workers

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"testing"
	"time"

	"github.com/loykin/warden/internal/pidfile"
)

const envHelperMode = "WARDEN_TEST_WORKER_MODE"
const envHelperDir = "WARDEN_TEST_WORKER_DIR"

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

// TestHelperWorker is the body of a spawned worker. In "term" mode it exits
// on TERM; in "ignore" mode it only dies to KILL; in "crash" mode it exits
// at once with status 3.
func TestHelperWorker(t *testing.T) {
	mode := os.Getenv(envHelperMode)
	if mode == "" {
		t.Skip("helper process only")
	}
	port, ok := Port()
	if !ok {
		os.Exit(2)
	}
	if mode == "crash" {
		os.Exit(3)
	}
	store := pidfile.New("", os.Getenv(envHelperDir), 0)
	ch := make(chan os.Signal, 1)
	if mode == "ignore" {
		signal.Ignore(syscall.SIGTERM)
	} else {
		signal.Notify(ch, syscall.SIGTERM)
	}
	_ = store.StorePID(pidfile.PortID(port))
	select {
	case <-ch:
		os.Exit(0)
	case <-time.After(time.Minute):
		os.Exit(4)
	}
}

func newPool(t *testing.T, mode string, ports []int, timeout time.Duration) (*Pool, *pidfile.Store, chan int) {
	t.Helper()
	dir := t.TempDir()
	exits := make(chan int, 1)
	store := pidfile.New("", dir, len(ports))
	p := New(Options{
		Executable:      os.Args[0],
		Args:            []string{"-test.run=^TestHelperWorker$"},
		Env:             []string{envHelperMode + "=" + mode, envHelperDir + "=" + dir},
		Ports:           ports,
		Store:           store,
		ShutdownTimeout: timeout,
		Exit:            func(code int) { exits <- code },
	})
	return p, store, exits
}

func waitPIDFiles(t *testing.T, store *pidfile.Store, ports []int) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for _, port := range ports {
		for !store.Exists(pidfile.PortID(port)) {
			if time.Now().After(deadline) {
				t.Fatalf("worker %d never wrote its pid file", port)
			}
			time.Sleep(20 * time.Millisecond)
		}
	}
}

func TestPort(t *testing.T) {
	t.Setenv(EnvPort, "4002")
	if p, ok := Port(); !ok || p != 4002 {
		t.Fatalf("Port = %d, %v", p, ok)
	}
	t.Setenv(EnvPort, "x")
	if _, ok := Port(); ok {
		t.Fatalf("expected invalid port")
	}
}

func TestPool_ReapWorkersTerm(t *testing.T) {
	requireUnix(t)
	if testing.Short() {
		t.Skip("spawns processes")
	}
	ports := []int{4000, 4001}
	p, store, exits := newPool(t, "term", ports, 5*time.Second)
	if err := p.Spawn(); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	waitPIDFiles(t, store, ports)
	if got := p.Running(); len(got) != 2 {
		t.Fatalf("Running = %v", got)
	}
	if pids := p.PIDs(); pids[4000] <= 0 || pids[4001] <= 0 || pids[4000] == pids[4001] {
		t.Fatalf("PIDs = %v", pids)
	}

	p.ReapWorkers(7)
	select {
	case code := <-exits:
		if code != 7 {
			t.Fatalf("exit status = %d, want 7", code)
		}
	default:
		t.Fatalf("ReapWorkers must call exit")
	}
	if len(p.Running()) != 0 {
		t.Fatalf("workers still running: %v", p.Running())
	}
	for _, port := range ports {
		if store.Exists(pidfile.PortID(port)) {
			t.Fatalf("pid file for %d not removed", port)
		}
	}

	// second call is a no-op
	p.ReapWorkers(1)
	select {
	case <-exits:
		t.Fatalf("ReapWorkers ran twice")
	default:
	}
}

func TestPool_KillsWorkersIgnoringTerm(t *testing.T) {
	requireUnix(t)
	if testing.Short() {
		t.Skip("spawns processes")
	}
	ports := []int{4100}
	p, store, _ := newPool(t, "ignore", ports, 200*time.Millisecond)
	if err := p.Spawn(); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	waitPIDFiles(t, store, ports)

	done := make(chan struct{})
	go func() { p.Stop(); close(done) }()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("Stop did not escalate to KILL")
	}
	if len(p.Running()) != 0 {
		t.Fatalf("worker survived KILL")
	}
}

func TestPool_WaitReturnsWhenWorkersExit(t *testing.T) {
	requireUnix(t)
	if testing.Short() {
		t.Skip("spawns processes")
	}
	p, _, _ := newPool(t, "crash", []int{4200, 4201}, time.Second)
	if err := p.Spawn(); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestPool_SpawnBadExecutable(t *testing.T) {
	p := New(Options{Executable: "/nonexistent/warden", Args: []string{}, Ports: []int{1}, Exit: func(int) {}})
	if err := p.Spawn(); err == nil {
		t.Fatalf("expected spawn error")
	}
}
