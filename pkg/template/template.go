// Package template renders starter warden.toml files for common setups.
package template

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// TemplateType names a preset.
type TemplateType string

const (
	TypeBasic   TemplateType = "basic"
	TypeSimple  TemplateType = "simple"
	TypeDaemon  TemplateType = "daemon"
	TypeCluster TemplateType = "cluster"
	TypeSecure  TemplateType = "secure"
)

// ServerTemplate is the subset of the server configuration a preset sets.
// Durations are strings so the file reads the way people write it.
type ServerTemplate struct {
	Port            int              `toml:"port"`
	Host            string           `toml:"host"`
	Daemonize       bool             `toml:"daemonize"`
	Cluster         int              `toml:"cluster,omitempty"`
	Adapter         string           `toml:"adapter"`
	User            string           `toml:"user,omitempty"`
	Group           string           `toml:"group,omitempty"`
	LogDir          string           `toml:"log_dir"`
	LogFile         string           `toml:"log_file,omitempty"`
	LogLevel        string           `toml:"log_level"`
	LogFormat       string           `toml:"log_format"`
	DaemonWait      string           `toml:"daemon_wait,omitempty"`
	ShutdownTimeout string           `toml:"shutdown_timeout"`
	Env             []string         `toml:"env,omitempty"`
	Metrics         MetricsTemplate  `toml:"metrics"`
	History         *HistoryTemplate `toml:"history,omitempty"`
	TLS             *TLSTemplate     `toml:"tls,omitempty"`
	Auth            *AuthTemplate    `toml:"auth,omitempty"`
}

type MetricsTemplate struct {
	Enabled  bool   `toml:"enabled"`
	Interval string `toml:"interval"`
}

type HistoryTemplate struct {
	DSN string `toml:"dsn"`
}

type TLSTemplate struct {
	Enabled      bool   `toml:"enabled"`
	AutoGenerate bool   `toml:"auto_generate"`
	Dir          string `toml:"dir"`
	MinVersion   string `toml:"min_version"`
}

type AuthTemplate struct {
	Enabled      bool   `toml:"enabled"`
	Username     string `toml:"username"`
	PasswordHash string `toml:"password_hash,omitempty"`
	JWTSecret    string `toml:"jwt_secret"`
	TokenTTL     string `toml:"token_ttl"`
}

// Generator provides template generation functionality
type Generator struct{}

// NewGenerator creates a new template generator
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate builds the preset for templateType serving port.
func (g *Generator) Generate(templateType TemplateType, port int) (*ServerTemplate, error) {
	if port == 0 {
		port = 4000
	}
	t := g.base(port)
	switch templateType {
	case TypeBasic, TypeSimple:
	case TypeDaemon:
		t.Daemonize = true
		t.LogFile = "log/server.log"
		t.LogFormat = "json"
		t.DaemonWait = "5s"
	case TypeCluster:
		t.Daemonize = true
		t.Cluster = 3
		t.LogFile = "log/server.log"
		t.LogFormat = "json"
		t.DaemonWait = "5s"
		t.History = &HistoryTemplate{DSN: "sqlite://log/history.db"}
	case TypeSecure:
		t.Daemonize = true
		t.User = "nobody"
		t.Group = "nogroup"
		t.LogFile = "log/server.log"
		t.LogFormat = "json"
		t.TLS = &TLSTemplate{Enabled: true, AutoGenerate: true, Dir: "tls", MinVersion: "1.3"}
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		t.Auth = &AuthTemplate{Enabled: true, Username: "ops", JWTSecret: secret, TokenTTL: "1h"}
	default:
		return nil, fmt.Errorf("unknown template type: %s (supported: %v)", templateType, g.GetSupportedTypes())
	}
	return t, nil
}

// GenerateTOML renders the preset as a config file.
func (g *Generator) GenerateTOML(templateType TemplateType, port int) ([]byte, error) {
	t, err := g.Generate(templateType, port)
	if err != nil {
		return nil, err
	}
	b, err := toml.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal template: %w", err)
	}
	return b, nil
}

// GetSupportedTypes returns a list of all supported template types
func (g *Generator) GetSupportedTypes() []string {
	return []string{
		string(TypeBasic),
		string(TypeDaemon),
		string(TypeCluster),
		string(TypeSecure),
	}
}

func (g *Generator) base(port int) *ServerTemplate {
	return &ServerTemplate{
		Port:            port,
		Host:            "0.0.0.0",
		Adapter:         "gin",
		LogDir:          "log",
		LogLevel:        "info",
		LogFormat:       "text",
		ShutdownTimeout: "10s",
		Metrics:         MetricsTemplate{Enabled: true, Interval: "15s"},
	}
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate jwt secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
