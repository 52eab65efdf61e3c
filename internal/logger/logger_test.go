package logger

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// helper to close non-nil closers and ignore errors
func closeIf(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

func TestNew_ConsoleText(t *testing.T) {
	var buf bytes.Buffer
	log, closer, err := New(Config{}, &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closeIf(closer)
	log.Info("hello", "port", 4000)
	log.Debug("hidden")
	out := buf.String()
	if !strings.Contains(out, "msg=hello") || !strings.Contains(out, "port=4000") {
		t.Fatalf("unexpected output: %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug must be filtered at info level")
	}
	if strings.Contains(out, "\033[") {
		t.Fatalf("no colour expected on a non-terminal writer")
	}
}

func TestNew_JSONVerbose(t *testing.T) {
	var buf bytes.Buffer
	log, _, err := New(Config{Format: "json", Level: "error", Verbose: true}, &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Debug("dbg")
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("not json: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "dbg" {
		t.Fatalf("record = %v", rec)
	}
}

func TestNew_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.log")
	var console bytes.Buffer
	log, closer, err := New(Config{File: path}, &console)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Warn("to file")
	closeIf(closer)
	if console.Len() != 0 {
		t.Fatalf("console must stay empty when logging to a file")
	}
	b, err := os.ReadFile(path)
	if err != nil || !strings.Contains(string(b), "to file") {
		t.Fatalf("log file = %q, %v", b, err)
	}
}

func TestNew_BadLevel(t *testing.T) {
	if _, _, err := New(Config{Level: "loud"}, io.Discard); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{"": slog.LevelInfo, "DEBUG": slog.LevelDebug, "warning": slog.LevelWarn, "error": slog.LevelError}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
}

func TestDaemonOutput(t *testing.T) {
	f, err := Config{}.DaemonOutput()
	if err != nil || f != nil {
		t.Fatalf("expected nil file without File, got %v, %v", f, err)
	}
	path := filepath.Join(t.TempDir(), "nested", "daemon.log")
	f, err = Config{File: path}.DaemonOutput()
	if err != nil {
		t.Fatalf("DaemonOutput: %v", err)
	}
	_, _ = f.WriteString("line\n")
	_ = f.Close()
	f, _ = Config{File: path}.DaemonOutput()
	_, _ = f.WriteString("again\n")
	_ = f.Close()
	b, _ := os.ReadFile(path)
	if string(b) != "line\nagain\n" {
		t.Fatalf("expected append mode, got %q", b)
	}
}

func TestWriters_WithDir(t *testing.T) {
	dir := t.TempDir()
	outW, errW := Config{Dir: dir}.Writers("server.4001")
	if outW == nil || errW == nil {
		t.Fatalf("expected both writers non-nil when Dir is set")
	}
	_, _ = outW.Write([]byte("hello-out\n"))
	_, _ = errW.Write([]byte("hello-err\n"))
	closeIf(outW)
	closeIf(errW)
	for _, p := range []string{"server.4001.stdout.log", "server.4001.stderr.log"} {
		if _, err := os.Stat(filepath.Join(dir, p)); err != nil {
			t.Fatalf("%s not created: %v", p, err)
		}
	}
}

func TestWriters_Defaults(t *testing.T) {
	outW, errW := Config{}.Writers("n")
	if outW != nil || errW != nil {
		t.Fatalf("expected nil writers without Dir")
	}
	outW, errW = Config{Dir: t.TempDir()}.Writers("n")
	ol, ok1 := outW.(*lj.Logger)
	el, ok2 := errW.(*lj.Logger)
	if !ok1 || !ok2 {
		t.Fatalf("writers are not lumberjack.Logger")
	}
	if ol.MaxSize != 10 || ol.MaxBackups != 3 || ol.MaxAge != 7 {
		t.Fatalf("unexpected defaults: size=%d backups=%d age=%d", ol.MaxSize, ol.MaxBackups, ol.MaxAge)
	}
	if el.MaxSize != 10 || el.MaxBackups != 3 || el.MaxAge != 7 {
		t.Fatalf("unexpected defaults (stderr): size=%d backups=%d age=%d", el.MaxSize, el.MaxBackups, el.MaxAge)
	}
}

func TestWriters_Overrides(t *testing.T) {
	cfg := Config{Dir: t.TempDir(), MaxSizeMB: 1, MaxBackups: 9, MaxAgeDays: 11, Compress: true}
	outW, _ := cfg.Writers("n")
	ol := outW.(*lj.Logger)
	if ol.MaxSize != 1 || ol.MaxBackups != 9 || ol.MaxAge != 11 || !ol.Compress {
		t.Fatalf("unexpected overrides: size=%d backups=%d age=%d compress=%t", ol.MaxSize, ol.MaxBackups, ol.MaxAge, ol.Compress)
	}
}

func TestColorTextHandler(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewColorTextHandler(&buf, nil, true))
	log.Error("boom")
	if !strings.Contains(buf.String(), "\033[31mERROR\033[0m") {
		t.Fatalf("missing colour prefix: %q", buf.String())
	}
}
