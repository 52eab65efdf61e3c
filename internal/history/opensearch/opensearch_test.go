package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/loykin/warden/internal/history"
)

func TestSink_Send(t *testing.T) {
	var gotPath, gotMethod, gotUser string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		gotUser, _, _ = r.BasicAuth()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	defer server.Close()

	sink := New(server.URL+"/", "lifecycle").WithBasicAuth("admin", "pw")
	ev := history.Event{Type: history.EventKill, OccurredAt: time.Now().UTC(), Instance: "4001", PID: 321, Signal: "TERM", Outcome: "signaled"}
	if err := sink.Send(context.Background(), ev); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/lifecycle/_doc" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
	if gotUser != "admin" {
		t.Fatalf("basic auth user = %q", gotUser)
	}
	var doc map[string]any
	if err := json.Unmarshal(gotBody, &doc); err != nil {
		t.Fatalf("body: %v", err)
	}
	if doc["type"] != "kill" || doc["instance"] != "4001" || doc["pid"] != float64(321) {
		t.Fatalf("unexpected document %v", doc)
	}
}

func TestSink_DefaultIndex(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if err := New(server.URL, "").Send(context.Background(), history.Event{Type: history.EventStart}); err != nil {
		t.Fatal(err)
	}
	if gotPath != "/"+DefaultIndex+"/_doc" {
		t.Fatalf("path = %s", gotPath)
	}
}

func TestSink_SendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	if err := New(server.URL, "x").Send(context.Background(), history.Event{Type: history.EventStop}); err == nil {
		t.Fatal("expected error for 400 response")
	}

	server.Close()
	if err := New(server.URL, "x").Send(context.Background(), history.Event{Type: history.EventStop}); err == nil {
		t.Fatal("expected error for closed server")
	}
}
