// Package config loads server settings from defaults, a TOML file, WARDEN_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/loykin/warden/internal/auth"
	"github.com/loykin/warden/internal/env"
	"github.com/loykin/warden/internal/logger"
	tlsconf "github.com/loykin/warden/internal/tls"
)

// EnvPrefix is prepended to every key looked up in the environment.
const EnvPrefix = "WARDEN"

// Server is the complete configuration of one server instance.
type Server struct {
	Port             int            `toml:"port" mapstructure:"port"`
	Host             string         `toml:"host" mapstructure:"host"`
	Daemonize        bool           `toml:"daemonize" mapstructure:"daemonize"`
	Cluster          int            `toml:"cluster" mapstructure:"cluster"`
	PIDFile          string         `toml:"pid_file" mapstructure:"pid_file"`
	User             string         `toml:"user" mapstructure:"user"`
	Group            string         `toml:"group" mapstructure:"group"`
	Root             string         `toml:"root" mapstructure:"root"`
	Verbose          bool           `toml:"verbose" mapstructure:"verbose"`
	ForkForClassLoad bool           `toml:"fork_for_class_load" mapstructure:"fork_for_class_load"`
	Interactive      bool           `toml:"interactive" mapstructure:"interactive"`
	Adapter          string         `toml:"adapter" mapstructure:"adapter"`
	Env              []string       `toml:"env" mapstructure:"env"`
	EnvFiles         []string       `toml:"env_files" mapstructure:"env_files"`
	LogDir           string         `toml:"log_dir" mapstructure:"log_dir"`
	LogFile          string         `toml:"log_file" mapstructure:"log_file"`
	LogLevel         string         `toml:"log_level" mapstructure:"log_level"`
	LogFormat        string         `toml:"log_format" mapstructure:"log_format"`
	LogMaxSizeMB     int            `toml:"log_max_size_mb" mapstructure:"log_max_size_mb"`
	LogMaxBackups    int            `toml:"log_max_backups" mapstructure:"log_max_backups"`
	LogMaxAgeDays    int            `toml:"log_max_age_days" mapstructure:"log_max_age_days"`
	LogCompress      bool           `toml:"log_compress" mapstructure:"log_compress"`
	DaemonWait       time.Duration  `toml:"daemon_wait" mapstructure:"daemon_wait"`
	ShutdownTimeout  time.Duration  `toml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	Metrics          Metrics        `toml:"metrics" mapstructure:"metrics"`
	History          History        `toml:"history" mapstructure:"history"`
	TLS              tlsconf.Config `toml:"tls" mapstructure:"tls"`
	Auth             auth.Config    `toml:"auth" mapstructure:"auth"`
}

type Metrics struct {
	Enabled  bool          `toml:"enabled" mapstructure:"enabled"`
	Interval time.Duration `toml:"interval" mapstructure:"interval"`
}

type History struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

// flagKeys maps command-line flag names onto configuration keys.
var flagKeys = map[string]string{
	"port":        "port",
	"host":        "host",
	"daemonize":   "daemonize",
	"cluster":     "cluster",
	"pid-file":    "pid_file",
	"user":        "user",
	"group":       "group",
	"root":        "root",
	"verbose":     "verbose",
	"interactive": "interactive",
	"adapter":     "adapter",
	"log-dir":     "log_dir",
	"log-file":    "log_file",
	"log-level":   "log_level",
	"log-format":  "log_format",
}

func setDefaults(v *viper.Viper) {
	cwd, _ := os.Getwd()
	v.SetDefault("port", 4000)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("daemonize", false)
	v.SetDefault("cluster", 0)
	v.SetDefault("pid_file", "")
	v.SetDefault("user", "")
	v.SetDefault("group", "")
	v.SetDefault("root", cwd)
	v.SetDefault("verbose", false)
	v.SetDefault("fork_for_class_load", false)
	v.SetDefault("interactive", false)
	v.SetDefault("adapter", "gin")
	v.SetDefault("env", []string{})
	v.SetDefault("env_files", []string{})
	v.SetDefault("log_dir", "log")
	v.SetDefault("log_file", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("log_max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log_max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log_max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log_compress", false)
	v.SetDefault("daemon_wait", 5*time.Second)
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.interval", 15*time.Second)
	v.SetDefault("history.dsn", "")
	v.SetDefault("tls.enabled", false)
	v.SetDefault("tls.auto_generate", false)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.username", "")
	v.SetDefault("auth.password_hash", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", time.Hour)
}

// Default returns the configuration with no file, environment or flags.
func Default() *Server {
	s, _ := Load("", nil)
	return s
}

// Load reads path (optional) and overlays the environment and any changed
// flags from fs (optional).
func Load(path string, fs *pflag.FlagSet) (*Server, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var s Server
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &s, nil
}

// Validate rejects settings no server can run with.
func (s *Server) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port %d out of range", s.Port)
	}
	if s.Cluster < 0 {
		return fmt.Errorf("cluster must not be negative, got %d", s.Cluster)
	}
	if s.Cluster > 1 && s.Port+s.Cluster-1 > 65535 {
		return fmt.Errorf("cluster of %d from port %d exceeds 65535", s.Cluster, s.Port)
	}
	if _, err := logger.ParseLevel(s.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(s.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", s.LogFormat)
	}
	if s.TLS.Enabled {
		if _, _, err := s.TLS.Versions(); err != nil {
			return err
		}
	}
	if err := s.Auth.Validate(); err != nil {
		return err
	}
	if s.DaemonWait < 0 || s.ShutdownTimeout < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}

// WithPort returns a copy serving port.
func (s *Server) WithPort(port int) *Server {
	c := *s
	c.Port = port
	return &c
}

// Ports lists the ports of every instance: one per cluster member, or just
// Port without a cluster.
func (s *Server) Ports() []int {
	if s.Cluster <= 1 {
		return []int{s.Port}
	}
	ports := make([]int, s.Cluster)
	for i := range ports {
		ports[i] = s.Port + i
	}
	return ports
}

// Logger returns the logging configuration.
func (s *Server) Logger() logger.Config {
	return logger.Config{
		Level:      s.LogLevel,
		Format:     s.LogFormat,
		Verbose:    s.Verbose,
		Dir:        s.LogDir,
		File:       s.LogFile,
		MaxSizeMB:  s.LogMaxSizeMB,
		MaxBackups: s.LogMaxBackups,
		MaxAgeDays: s.LogMaxAgeDays,
		Compress:   s.LogCompress,
	}
}

// ExtraEnv merges env_files in order and then the env list, later entries
// overriding earlier ones, with ${VAR} expanded. The result is handed to
// re-executed children.
func (s *Server) ExtraEnv() ([]string, error) {
	e := env.New()
	for _, p := range s.EnvFiles {
		if err := e.LoadFile(p); err != nil {
			return nil, err
		}
	}
	e.SetPairs(s.Env)
	return e.List(), nil
}
