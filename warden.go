// Package warden exposes the lifecycle controls of a warden-managed server
// for programs that embed them instead of shelling out to the CLI.
package warden

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/warden/internal/config"
	"github.com/loykin/warden/internal/detector"
	"github.com/loykin/warden/internal/history"
	"github.com/loykin/warden/internal/history/factory"
	"github.com/loykin/warden/internal/metrics"
	"github.com/loykin/warden/internal/pidfile"
	"github.com/loykin/warden/internal/supervisor"
)

// Re-export core types for external consumers.

type Config = config.Server

type InstanceID = pidfile.InstanceID

type KillReport = supervisor.KillReport

type KillResult = supervisor.KillResult

type InstanceState = supervisor.InstanceState

// Reserved cluster-wide instance ids.
const (
	Main   = pidfile.Main
	Master = pidfile.Master
	All    = pidfile.All
)

func LoadConfig(path string) (*Config, error) { return config.Load(path, nil) }
func DefaultConfig() *Config                  { return config.Default() }

// Controller inspects and signals the instances recorded for a config.
type Controller struct {
	store    *pidfile.Store
	sup      *supervisor.Supervisor
	recorder *history.Recorder
}

// NewController opens the history sink named by c and returns a
// Controller. A nil logger uses slog.Default().
func NewController(c *Config, log *slog.Logger) (*Controller, error) {
	sink, err := factory.NewSinkFromDSN(c.History.DSN)
	if err != nil {
		return nil, err
	}
	recorder := history.NewRecorder(sink, log)
	store := pidfile.New(c.PIDFile, c.LogDir, c.Cluster)
	sup, err := supervisor.New(supervisor.Options{
		Config:   c,
		Store:    store,
		Probe:    detector.NewProbe(store),
		Recorder: recorder,
		Log:      log,
	})
	if err != nil {
		_ = recorder.Close()
		return nil, err
	}
	return &Controller{store: store, sup: sup, recorder: recorder}, nil
}

func (c *Controller) Kill(ctx context.Context, target, signal string) (KillReport, error) {
	return c.sup.Kill(ctx, target, signal)
}

func (c *Controller) Status(ctx context.Context, target string) ([]InstanceState, error) {
	return c.sup.Instances(ctx, target)
}

func (c *Controller) Alive(id InstanceID) (bool, error) { return c.sup.Alive(id) }
func (c *Controller) PIDFile(id InstanceID) string      { return c.store.Path(id) }
func (c *Controller) Close() error                      { return c.recorder.Close() }

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
