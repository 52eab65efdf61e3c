//go:build !windows

package daemon

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/loykin/warden/internal/errkind"
)

// relayFD is the descriptor on which the intermediate process reports the
// daemon's pid back to the parent.
const relayFD = 3

type forker struct {
	opts Options
}

// New returns the re-exec Daemonizer.
func New(opts Options) Daemonizer {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &forker{opts: opts}
}

func (f *forker) Detached() bool { return os.Getenv(EnvStage) == stageDaemon }

func (f *forker) Fork(id string, port int) (int, error) {
	exe := f.opts.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return 0, fmt.Errorf("failed to get executable path: %w", err)
		}
	}
	args := f.opts.Args
	if args == nil {
		args = os.Args[1:]
	}

	r, w, err := os.Pipe()
	if err != nil {
		return 0, fmt.Errorf("relay pipe: %w", err)
	}
	defer func() { _ = r.Close() }()

	// #nosec G204
	cmd := exec.Command(exe, args...)
	cmd.Env = append(append(os.Environ(), f.opts.Env...), stageEnv(stageRelay, port)...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdin = nil
	if f.opts.Output != nil {
		cmd.Stdout = f.opts.Output
		cmd.Stderr = f.opts.Output
	}
	cmd.ExtraFiles = []*os.File{w}

	if err := cmd.Start(); err != nil {
		_ = w.Close()
		return 0, errkind.Fatal(fmt.Errorf("failed to start daemon process for %s: %w", id, err))
	}
	_ = w.Close()
	out, readErr := io.ReadAll(r)
	if err := cmd.Wait(); err != nil {
		return 0, fmt.Errorf("daemon relay for %s: %w", id, err)
	}
	if readErr != nil {
		return 0, fmt.Errorf("daemon relay for %s: %w", id, readErr)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("daemon relay for %s reported %q", id, out)
	}
	f.opts.Log.Debug("Daemon forked", "instance", id, "port", port, "pid", pid)
	return pid, nil
}

func (f *forker) Settle(root string) error {
	unix.Umask(0)
	if root == "" {
		return nil
	}
	if err := os.Chdir(root); err != nil {
		return errkind.Fatal(errkind.New("chdir", root, err))
	}
	return nil
}

// Relay must be the first call in main. In the intermediate process it
// launches the daemon, reports its pid and exits; elsewhere it returns.
func Relay() {
	if os.Getenv(EnvStage) != stageRelay {
		return
	}
	report := os.NewFile(relayFD, "relay")
	pid, err := relay()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "daemon: %v\n", err)
		os.Exit(1)
	}
	if report != nil {
		_, _ = fmt.Fprint(report, pid)
		_ = report.Close()
	}
	os.Exit(0)
}

func relay() (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, err
	}
	// #nosec G204
	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), EnvStage+"="+stageDaemon)
	cmd.Stdin = nil
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start daemon: %w", err)
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()
	return pid, nil
}
