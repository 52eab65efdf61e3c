// Package daemon detaches a server from its terminal by re-executing the
// running binary twice: the first child starts a new session and launches the
// real daemon, then exits so the daemon can never reacquire a terminal.
package daemon

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/loykin/warden/internal/pidfile"
)

const (
	// EnvStage marks a re-executed process: "1" for the intermediate
	// session leader, "2" for the daemon itself.
	EnvStage = "WARDEN_DAEMON_STAGE"
	// EnvPort carries the port the daemon serves.
	EnvPort = "WARDEN_DAEMON_PORT"

	stageRelay  = "1"
	stageDaemon = "2"
)

// ErrTimeout is returned by WaitForPIDFile when the daemon did not record
// its pid in time.
var ErrTimeout = errors.New("timed out waiting for pid file")

// Daemonizer turns the current program into background instances.
type Daemonizer interface {
	// Fork launches a detached copy of the program serving port and returns
	// the daemon's pid. The calling process keeps running.
	Fork(id string, port int) (int, error)
	// Detached reports whether this process is a daemon started by Fork.
	Detached() bool
	// Settle finishes detaching inside the daemon: clear the umask and
	// move to root.
	Settle(root string) error
}

// Options configures the re-executed daemon.
type Options struct {
	// Executable defaults to os.Executable().
	Executable string
	// Args are passed to the daemon; defaults to os.Args[1:].
	Args []string
	// Env is appended to the inherited environment.
	Env []string
	// Output receives the daemon's stdout and stderr. Nil means /dev/null.
	Output *os.File
	Log    *slog.Logger
}

// DetachedPort returns the port a daemon was forked for.
func DetachedPort() (int, bool) {
	if os.Getenv(EnvStage) != stageDaemon {
		return 0, false
	}
	port, err := strconv.Atoi(os.Getenv(EnvPort))
	if err != nil || port <= 0 {
		return 0, false
	}
	return port, true
}

// WaitForPIDFile polls path until it holds a pid or timeout elapses.
func WaitForPIDFile(path string, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	for {
		if pid, err := pidfile.ReadFile(path); err == nil {
			return pid, nil
		}
		if time.Now().After(deadline) {
			return 0, fmt.Errorf("%w: %s", ErrTimeout, path)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func stageEnv(stage string, port int) []string {
	return []string{EnvStage + "=" + stage, EnvPort + "=" + strconv.Itoa(port)}
}
