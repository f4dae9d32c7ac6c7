package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all service configuration.
type Config struct {
	Server  ServerConfig
	Session SessionConfig
	Exec    ExecConfig
	Render  RenderConfig
	Term    TermConfig
	Logging LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	MaxConns        int           `envconfig:"SERVER_MAX_CONNS" default:"256"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
}

// SessionConfig holds session store configuration.
type SessionConfig struct {
	Backend            string        `envconfig:"SESSION_BACKEND" default:"fs"`
	Dir                string        `envconfig:"SESSION_DIR" default:"/tmp/terminal-sessions"`
	SQLitePath         string        `envconfig:"SESSION_SQLITE_PATH" default:"/tmp/terminal-sessions.db"`
	TTL                time.Duration `envconfig:"SESSION_TTL" default:"0"`
	MaxTranscriptBytes int64         `envconfig:"SESSION_MAX_TRANSCRIPT_BYTES" default:"0"`
	ArchiveDir         string        `envconfig:"SESSION_ARCHIVE_DIR" default:""`
	SweepInterval      time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"5m"`
}

// ExecConfig holds command execution configuration.
type ExecConfig struct {
	Shell   string        `envconfig:"EXEC_SHELL" default:"/bin/sh"`
	Timeout time.Duration `envconfig:"EXEC_TIMEOUT" default:"60s"`
	BinDir  string        `envconfig:"EXEC_BIN_DIR" default:""`
}

// RenderConfig holds page rendering configuration.
type RenderConfig struct {
	Title    string `envconfig:"RENDER_TITLE" default:"Terminal"`
	Sanitize bool   `envconfig:"RENDER_SANITIZE" default:"false"`
}

// TermConfig holds interactive terminal configuration.
type TermConfig struct {
	Shell       string        `envconfig:"TERM_SHELL" default:""`
	IdleTimeout time.Duration `envconfig:"TERM_IDLE_TIMEOUT" default:"30m"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			Host:            "0.0.0.0",
			MaxConns:        256,
			ShutdownTimeout: 10 * time.Second,
		},
		Session: SessionConfig{
			Backend:       "fs",
			Dir:           "/tmp/terminal-sessions",
			SQLitePath:    "/tmp/terminal-sessions.db",
			SweepInterval: 5 * time.Minute,
		},
		Exec: ExecConfig{
			Shell:   "/bin/sh",
			Timeout: 60 * time.Second,
		},
		Render: RenderConfig{
			Title: "Terminal",
		},
		Term: TermConfig{
			IdleTimeout: 30 * time.Minute,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Session.Backend {
	case "fs", "memory", "sqlite":
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	if c.Exec.Shell == "" {
		return fmt.Errorf("exec shell must not be empty")
	}
	if c.Server.MaxConns < 0 {
		return fmt.Errorf("server max conns must not be negative")
	}
	return nil
}

// TermShell returns the shell for interactive sessions, falling back to the
// one-shot execution shell.
func (c *Config) TermShell() string {
	if c.Term.Shell != "" {
		return c.Term.Shell
	}
	return c.Exec.Shell
}
