package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/loykin/warden/internal/adapter"
	"github.com/loykin/warden/internal/auth"
	"github.com/loykin/warden/internal/bootloader"
	"github.com/loykin/warden/internal/config"
	"github.com/loykin/warden/internal/daemon"
	"github.com/loykin/warden/internal/detector"
	"github.com/loykin/warden/internal/errkind"
	"github.com/loykin/warden/internal/history"
	"github.com/loykin/warden/internal/history/factory"
	"github.com/loykin/warden/internal/logger"
	"github.com/loykin/warden/internal/metrics"
	"github.com/loykin/warden/internal/pidfile"
	"github.com/loykin/warden/internal/privilege"
	"github.com/loykin/warden/internal/signals"
	"github.com/loykin/warden/internal/supervisor"
	tlsconf "github.com/loykin/warden/internal/tls"
	"github.com/loykin/warden/internal/workers"
	"github.com/loykin/warden/pkg/client"
)

// loadConfig reads the configuration and applies the port a re-executed
// worker or daemon was started for.
func loadConfig(cmd *cobra.Command, path string, args []string) (*config.Server, error) {
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if len(args) > 0 {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("invalid port %q", args[0])
		}
		cfg.Port = port
	}
	if port, ok := workers.Port(); ok {
		cfg = cfg.WithPort(port)
		cfg.Cluster, cfg.Daemonize = 0, false
	}
	if port, ok := daemon.DetachedPort(); ok {
		cfg = cfg.WithPort(port)
		cfg.Cluster = 0
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newStore(cfg *config.Server) *pidfile.Store {
	return pidfile.New(cfg.PIDFile, cfg.LogDir, cfg.Cluster)
}

func runStart(cmd *cobra.Command, configPath string, args []string) error {
	cfg, err := loadConfig(cmd, configPath, args)
	if err != nil {
		return err
	}
	lcfg := cfg.Logger()
	log, closer, err := logger.New(lcfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()
	slog.SetDefault(log)

	extraEnv, err := cfg.ExtraEnv()
	if err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	sink, err := factory.NewSinkFromDSN(cfg.History.DSN)
	if err != nil {
		return fmt.Errorf("open history sink: %w", err)
	}
	recorder := history.NewRecorder(sink, log)

	var daemonOut *os.File
	if cfg.Daemonize {
		if daemonOut, err = lcfg.DaemonOutput(); err != nil {
			return err
		}
		if daemonOut != nil {
			defer func() { _ = daemonOut.Close() }()
		}
	}

	store := newStore(cfg)
	var sup *supervisor.Supervisor
	opts := supervisor.Options{
		Config: cfg,
		Store:  store,
		Probe:  detector.NewProbe(store),
		Dropper: privilege.New(log, privilege.WithHandover(func(uid, gid int) error {
			return sup.HandOverPIDFile(uid, gid)
		})),
		Daemonizer: daemon.New(daemon.Options{Env: extraEnv, Output: daemonOut, Log: log}),
		Dispatcher: signals.NewDispatcher(log),
		Boot:       bootSteps(cfg, extraEnv, func() *supervisor.Supervisor { return sup }, log),
		Adapter: func(c *config.Server) (adapter.Adapter, error) {
			tlsCfg, err := tlsconf.Setup(c.TLS)
			if err != nil {
				return nil, err
			}
			guard, err := auth.New(c.Auth)
			if err != nil {
				return nil, err
			}
			return adapter.New(c.Adapter, adapter.Deps{
				Host:    c.Host,
				TLS:     tlsCfg,
				Auth:    guard,
				Port:    c.Port,
				Status:  sup.Status,
				Metrics: c.Metrics.Enabled,
				Log:     log,
			})
		},
		Workers: func(ports []int) supervisor.Cluster {
			return workers.New(workers.Options{
				Env:             extraEnv,
				Ports:           ports,
				Store:           store,
				ShutdownTimeout: cfg.ShutdownTimeout,
				Output: func(port int) (io.Writer, io.Writer) {
					return lcfg.Writers("worker." + strconv.Itoa(port))
				},
				Exit: sup.Exit,
				Log:  log,
			})
		},
		Recorder: recorder,
		Log:      log,
	}
	if cfg.Interactive && signals.Interactive(os.Stdin) {
		opts.Interrupt = &signals.InterruptTrap{
			Console: &signals.DebugConsole{Status: func() string { return sup.Describe() }},
			Log:     log,
		}
	}
	if sup, err = supervisor.New(opts); err != nil {
		return err
	}
	defer func() { _ = recorder.Close() }()

	if err := sup.Start(cmd.Context(), cfg.Port, cfg.Cluster); err != nil {
		if errkind.IsFatal(err) {
			log.Error("Fatal", "error", err)
		}
		return err
	}
	return nil
}

// bootSteps is the bootstrap run inside every serving process.
func bootSteps(cfg *config.Server, extraEnv []string, sup func() *supervisor.Supervisor, log *slog.Logger) *bootloader.Loader {
	return bootloader.New(log).
		Add("env", func(context.Context) error {
			for _, kv := range extraEnv {
				if k, v, ok := strings.Cut(kv, "="); ok {
					if err := os.Setenv(k, v); err != nil {
						return err
					}
				}
			}
			return nil
		}).
		Add("metrics", func(ctx context.Context) error {
			if !cfg.Metrics.Enabled {
				return nil
			}
			if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
				return err
			}
			collector := metrics.NewInstanceCollector(cfg.Metrics.Interval)
			if err := collector.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
				return err
			}
			collector.Start(ctx, func() map[string]int32 {
				st := sup().Status()
				return map[string]int32{st.Instance: int32(st.PID)}
			})
			sup().AddExitHook(collector.Stop)
			return nil
		})
}

func runKill(cmd *cobra.Command, configPath string, flags *KillFlags, args []string) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}
	log, closer, err := logger.New(cfg.Logger(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	sink, err := factory.NewSinkFromDSN(cfg.History.DSN)
	if err != nil {
		log.Warn("History disabled", "error", err)
		sink = history.Nop{}
	}
	recorder := history.NewRecorder(sink, log)
	defer func() { _ = recorder.Close() }()

	store := newStore(cfg)
	sup, err := supervisor.New(supervisor.Options{
		Config:   cfg,
		Store:    store,
		Probe:    detector.NewProbe(store),
		Recorder: recorder,
		Log:      log,
	})
	if err != nil {
		return err
	}
	sig := "INT"
	if len(args) > 1 {
		sig = args[1]
	}
	report, err := sup.Kill(cmd.Context(), args[0], sig)
	if err != nil {
		return err
	}
	if flags.JSON {
		printJSON(cmd.OutOrStdout(), report)
	} else {
		for _, r := range report.Results {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", r.Instance, r.Outcome, r.Path)
		}
	}
	if code := report.ExitStatus(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

func runStatus(cmd *cobra.Command, configPath string, flags *StatusFlags) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}
	log, closer, err := logger.New(cfg.Logger(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	store := newStore(cfg)
	sup, err := supervisor.New(supervisor.Options{Config: cfg, Store: store, Probe: detector.NewProbe(store), Log: log})
	if err != nil {
		return err
	}
	states, err := sup.Instances(cmd.Context(), flags.Target)
	if err != nil {
		return err
	}
	printJSON(cmd.OutOrStdout(), states)
	return nil
}

func runRemoteStatus(cmd *cobra.Command, flags *StatusFlags) error {
	cfg := client.Config{
		BaseURL:  flags.URL,
		Token:    flags.Token,
		Username: flags.Username,
		Password: os.Getenv(config.EnvPrefix + "_PASSWORD"),
		Insecure: flags.Insecure,
	}
	if flags.CACert != "" {
		cfg.TLS = &client.TLSClientConfig{CACert: flags.CACert}
	}
	c, err := client.New(cfg)
	if err != nil {
		return err
	}
	st, err := c.Status(cmd.Context())
	if err != nil {
		return err
	}
	printJSON(cmd.OutOrStdout(), st)
	return nil
}
