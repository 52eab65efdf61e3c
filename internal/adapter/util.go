package adapter

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimRight(bp, "/")
}

func currentStatus(d Deps) Status {
	if d.Status == nil {
		return Status{Port: d.Port}
	}
	return d.Status()
}

// listener owns the socket and http.Server shared by the built-in adapters.
type listener struct {
	deps Deps

	mu sync.Mutex
	ln net.Listener
}

func (l *listener) Bind(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln != nil {
		return nil
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", l.deps.addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", l.deps.addr(), err)
	}
	if l.deps.TLS != nil {
		ln = tls.NewListener(ln, l.deps.TLS)
	}
	l.ln = ln
	return nil
}

// Addr is the bound address, or nil before Bind.
func (l *listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

func (l *listener) serve(ctx context.Context, h http.Handler) error {
	if err := l.Bind(ctx); err != nil {
		return err
	}
	l.mu.Lock()
	ln := l.ln
	l.mu.Unlock()

	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	l.deps.Log.Info("Listening", "addr", ln.Addr().String(), "tls", l.deps.TLS != nil)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
		}
		return nil
	}
}
