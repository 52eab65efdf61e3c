// Package adapter serves a supervised instance over HTTP. Adapters are
// looked up by name so the server framework is a configuration choice.
package adapter

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/loykin/warden/internal/auth"
)

// Adapter runs the application server. Start blocks until ctx is done or
// the server fails.
type Adapter interface {
	Start(ctx context.Context) error
}

// Binder is implemented by adapters that can claim their listening socket
// before Start, so the socket can be bound while still privileged.
type Binder interface {
	Bind(ctx context.Context) error
}

// Status is what the /status endpoint reports.
type Status struct {
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	Instance  string    `json:"instance"`
	Mode      string    `json:"mode"`
	StartedAt time.Time `json:"started_at"`
	Uptime    string    `json:"uptime"`
	User      string    `json:"user,omitempty"`
	UID       int       `json:"uid"`
	GID       int       `json:"gid"`
}

// Deps carries everything an adapter needs from the supervisor.
type Deps struct {
	Host string
	// TLS, when set, makes the adapter serve HTTPS.
	TLS      *tls.Config
	Port     int
	BasePath string
	Status   func() Status
	Metrics  bool
	// Auth guards /status and /metrics; nil leaves them open.
	Auth *auth.Authenticator
	Log  *slog.Logger
}

func (d Deps) addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// Factory builds an adapter.
type Factory func(Deps) (Adapter, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a factory available under name, replacing any previous one.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// New builds the adapter registered under name.
func New(name string, deps Deps) (Adapter, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown adapter %q (available: %v)", name, Names())
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	deps.BasePath = sanitizeBase(deps.BasePath)
	return f(deps)
}

// Names lists registered adapters in order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register("gin", NewGin)
	Register("echo", NewEcho)
}
