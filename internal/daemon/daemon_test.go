//go:build !windows

package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/loykin/warden/internal/pidfile"
)

const (
	envHelperOut  = "WARDEN_TEST_DAEMON_OUT"
	envHelperRoot = "WARDEN_TEST_DAEMON_ROOT"
)

func TestMain(m *testing.M) {
	Relay()
	os.Exit(m.Run())
}

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

// TestHelperDaemon is the body of the forked daemon in TestFork_Detaches.
func TestHelperDaemon(t *testing.T) {
	out := os.Getenv(envHelperOut)
	if out == "" {
		t.Skip("helper process only")
	}
	d := New(Options{})
	if !d.Detached() {
		os.Exit(3)
	}
	if err := d.Settle(os.Getenv(envHelperRoot)); err != nil {
		os.Exit(4)
	}
	port, _ := DetachedPort()
	sid, _ := unix.Getsid(0)
	mask := unix.Umask(0)
	cwd, _ := os.Getwd()
	report := fmt.Sprintf("%d %d %d %o %s", os.Getpid(), sid, port, mask, cwd)
	_ = os.WriteFile(out+".tmp", []byte(report), 0o644)
	_ = os.Rename(out+".tmp", out)
	os.Exit(0)
}

func TestFork_Detaches(t *testing.T) {
	requireUnix(t)
	if testing.Short() {
		t.Skip("spawns processes")
	}
	dir := t.TempDir()
	root := t.TempDir()
	out := filepath.Join(dir, "report")

	d := New(Options{
		Executable: os.Args[0],
		Args:       []string{"-test.run=^TestHelperDaemon$"},
		Env:        []string{envHelperOut + "=" + out, envHelperRoot + "=" + root},
	})
	if d.Detached() {
		t.Fatalf("test process must not be detached")
	}
	pid, err := d.Fork("4000", 4000)
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}

	var data []byte
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if data, err = os.ReadFile(out); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("daemon never reported: %v", err)
	}
	fields := strings.Fields(string(data))
	if len(fields) != 5 {
		t.Fatalf("report = %q", data)
	}
	gotPID, _ := strconv.Atoi(fields[0])
	sid, _ := strconv.Atoi(fields[1])
	if gotPID != pid {
		t.Fatalf("Fork pid = %d, daemon pid = %d", pid, gotPID)
	}
	mySid, _ := unix.Getsid(0)
	if sid == mySid {
		t.Fatalf("daemon shares the caller's session")
	}
	if sid == gotPID {
		t.Fatalf("daemon must not be a session leader")
	}
	if fields[2] != "4000" {
		t.Fatalf("port = %s", fields[2])
	}
	if fields[3] != "0" {
		t.Fatalf("umask = %s, want 0", fields[3])
	}
	wantRoot, _ := filepath.EvalSymlinks(root)
	gotRoot, _ := filepath.EvalSymlinks(fields[4])
	if gotRoot != wantRoot {
		t.Fatalf("cwd = %s, want %s", gotRoot, wantRoot)
	}
}

func TestSettle_BadRootIsFatal(t *testing.T) {
	requireUnix(t)
	old := unix.Umask(0o022)
	defer unix.Umask(old)
	wd, _ := os.Getwd()
	defer func() { _ = os.Chdir(wd) }()

	err := New(Options{}).Settle(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatalf("expected error for missing root")
	}
}

func TestDetachedPort(t *testing.T) {
	t.Setenv(EnvStage, "2")
	t.Setenv(EnvPort, "4001")
	port, ok := DetachedPort()
	if !ok || port != 4001 {
		t.Fatalf("DetachedPort = %d, %v", port, ok)
	}
	t.Setenv(EnvStage, "")
	if _, ok := DetachedPort(); ok {
		t.Fatalf("expected no port outside a daemon")
	}
}

func TestWaitForPIDFile(t *testing.T) {
	store := pidfile.New("", t.TempDir(), 0)
	path := store.Path("4000")
	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = store.Write("4000", 4242)
	}()
	pid, err := WaitForPIDFile(path, 5*time.Second)
	if err != nil || pid != 4242 {
		t.Fatalf("WaitForPIDFile = %d, %v", pid, err)
	}

	if _, err := WaitForPIDFile(store.Path("4001"), 100*time.Millisecond); err == nil {
		t.Fatalf("expected timeout")
	}
}
