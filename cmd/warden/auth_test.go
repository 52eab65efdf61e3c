package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestAuthHash_ReadsStdin(t *testing.T) {
	root := buildRoot()
	var out bytes.Buffer
	root.SetIn(strings.NewReader("hunter2\n"))
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"auth", "hash", "--cost", "4"})
	if err := root.Execute(); err != nil {
		t.Fatalf("auth hash: %v", err)
	}
	hash := strings.TrimSpace(out.String())
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter2")); err != nil {
		t.Fatalf("hash %q does not match: %v", hash, err)
	}
}

func TestAuthHash_EmptyPassword(t *testing.T) {
	root := buildRoot()
	root.SetIn(strings.NewReader("\n"))
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"auth", "hash"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestAuthToken(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "warden.toml")
	body := "[auth]\nenabled = true\nusername = \"ops\"\njwt_secret = \"k\"\n"
	if err := os.WriteFile(cfg, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "auth", "token", "--config", cfg)
	if err != nil {
		t.Fatalf("auth token: %v", err)
	}
	var got struct {
		Type  string `json:"type"`
		Token string `json:"token"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got.Type != "Bearer" || strings.Count(got.Token, ".") != 2 {
		t.Fatalf("unexpected token %+v", got)
	}

	if _, err := execute(t, "auth", "token"); err == nil {
		t.Fatal("expected error when auth is disabled")
	}
}
