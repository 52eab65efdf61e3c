package warden

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	c := DefaultConfig()
	c.LogDir = t.TempDir()
	return c
}

func TestController_KillMissingAndStatus(t *testing.T) {
	c := testConfig(t)
	ctl, err := NewController(c, nil)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	defer func() { _ = ctl.Close() }()

	if got := ctl.PIDFile("4000"); got != filepath.Join(c.LogDir, "server.4000.pid") {
		t.Fatalf("PIDFile = %s", got)
	}
	report, err := ctl.Kill(context.Background(), "4000", "TERM")
	if err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if len(report.Results) != 1 || report.Results[0].Outcome != "missing" {
		t.Fatalf("report = %+v", report)
	}
	states, err := ctl.Status(context.Background(), string(All))
	if err != nil || len(states) != 0 {
		t.Fatalf("Status = %v, %v", states, err)
	}
}

func TestController_AliveSelf(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
	c := testConfig(t)
	ctl, err := NewController(c, nil)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	if err := os.WriteFile(ctl.PIDFile(Main), []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	alive, err := ctl.Alive(Main)
	if err != nil || !alive {
		t.Fatalf("Alive = %v, %v", alive, err)
	}
}

func TestController_HistoryToSQLite(t *testing.T) {
	c := testConfig(t)
	c.History.DSN = "sqlite://" + filepath.Join(t.TempDir(), "history.db")
	ctl, err := NewController(c, nil)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	if _, err := ctl.Kill(context.Background(), "4000", "INT"); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if err := ctl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestRegisterMetrics(t *testing.T) {
	if err := RegisterMetrics(prometheus.NewRegistry()); err != nil {
		t.Fatalf("RegisterMetrics: %v", err)
	}
}
