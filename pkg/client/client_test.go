package client

import (
	"context"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/loykin/warden/internal/adapter"
	"github.com/loykin/warden/internal/auth"
)

func newHandler(t *testing.T, guard *auth.Authenticator) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	a, err := adapter.New("gin", adapter.Deps{
		Auth:    guard,
		Metrics: true,
		Status: func() adapter.Status {
			return adapter.Status{PID: 99, Port: 4000, Instance: "4000", Mode: "daemon"}
		},
	})
	if err != nil {
		t.Fatalf("adapter: %v", err)
	}
	return a.(interface{ Handler() http.Handler }).Handler()
}

func TestClient_Status(t *testing.T) {
	srv := httptest.NewServer(newHandler(t, nil))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if !c.IsReachable(ctx) {
		t.Fatal("expected reachable")
	}
	st, err := c.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.PID != 99 || st.Mode != "daemon" {
		t.Fatalf("unexpected status %+v", st)
	}
	m, err := c.Metrics(ctx)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if !strings.Contains(m, "# HELP") {
		t.Fatalf("unexpected metrics body %q", m)
	}
}

func TestClient_Auth(t *testing.T) {
	hash, err := auth.HashPassword("pw", bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	guard, err := auth.New(auth.Config{Enabled: true, Username: "ops", PasswordHash: hash})
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(newHandler(t, guard))
	defer srv.Close()
	ctx := context.Background()

	anon, _ := New(Config{BaseURL: srv.URL})
	_, err = anon.Status(ctx)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
	if !strings.Contains(se.Error(), "authentication_failed") {
		t.Fatalf("error message not decoded: %v", se)
	}
	if err := anon.Healthz(ctx); err != nil {
		t.Fatalf("healthz must stay open: %v", err)
	}

	authed, _ := New(Config{BaseURL: srv.URL, Username: "ops", Password: "pw"})
	if _, err := authed.Status(ctx); err != nil {
		t.Fatalf("authenticated status: %v", err)
	}
}

func TestClient_TLS(t *testing.T) {
	srv := httptest.NewTLSServer(newHandler(t, nil))
	defer srv.Close()
	ctx := context.Background()

	plain, _ := New(Config{BaseURL: srv.URL})
	if plain.IsReachable(ctx) {
		t.Fatal("untrusted certificate accepted")
	}

	ca := filepath.Join(t.TempDir(), "ca.pem")
	block := &pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw}
	if err := os.WriteFile(ca, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatal(err)
	}
	trusted, err := New(Config{BaseURL: srv.URL, TLS: &TLSClientConfig{CACert: ca}})
	if err != nil {
		t.Fatal(err)
	}
	if err := trusted.Healthz(ctx); err != nil {
		t.Fatalf("healthz over tls: %v", err)
	}

	insecure, _ := New(Config{BaseURL: srv.URL, Insecure: true})
	if !insecure.IsReachable(ctx) {
		t.Fatal("insecure client should skip verification")
	}

	if _, err := New(Config{TLS: &TLSClientConfig{CACert: filepath.Join(t.TempDir(), "none.pem")}}); err == nil {
		t.Fatal("expected error for missing CA file")
	}
}
