package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/warden/internal/history"
)

func TestSQLiteSink_Integration(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	sink, err := New("sqlite://" + dbPath)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	ctx := context.Background()
	events := []history.Event{
		{Type: history.EventStart, OccurredAt: time.Now().UTC(), Instance: "4000", PID: 12345},
		{Type: history.EventKill, OccurredAt: time.Now().UTC(), Instance: "4000", PID: 12345, Signal: "TERM", Outcome: "signaled"},
		{Type: history.EventStart, OccurredAt: time.Now().UTC(), Instance: "4001", PID: 12346},
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("Failed to send %s event: %v", e.Type, err)
		}
	}

	n, err := sink.Count(ctx, "4000")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 events for 4000, got %d", n)
	}

	var signal, outcome string
	err = sink.db.QueryRowContext(ctx, `SELECT signal, outcome FROM lifecycle_history WHERE type = 'kill'`).Scan(&signal, &outcome)
	if err != nil {
		t.Fatalf("query kill row: %v", err)
	}
	if signal != "TERM" || outcome != "signaled" {
		t.Fatalf("kill row = %s/%s", signal, outcome)
	}
}

func TestSQLiteSink_Memory(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = sink.Close() }()
	if err := sink.Send(context.Background(), history.Event{Type: history.EventStop, Instance: "main"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n, _ := sink.Count(context.Background(), "main"); n != 1 {
		t.Fatalf("count = %d", n)
	}
}

func TestSQLiteSink_EmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
