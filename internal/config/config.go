// Package config provides the configuration schema, loader, environment
// overrides and file watcher for the tradeledger daemon and CLI.
package config

import (
	"os"
	"path/filepath"

	"github.com/MrWong99/tradeledger/internal/trade"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by [Default].
const (
	DefaultListenAddr = "127.0.0.1:7878"
	DefaultMaxBackups = 3
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [Resolve].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Ledger  LedgerConfig  `yaml:"ledger"`
}

// ServerConfig holds network and logging settings for the daemon.
type ServerConfig struct {
	// ListenAddr is the TCP address of the HTTP server serving the bridge,
	// health and metrics endpoints.
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level" env:"LOG_LEVEL"`

	// AllowedOrigins lists host patterns of browser origins allowed to open
	// the bridge websocket. Same-origin and non-browser clients are always
	// allowed.
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`

	// OTLPEndpoint is the URL of an OTLP/HTTP trace collector. Empty keeps
	// spans in process.
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty" env:"OTLP_ENDPOINT"`
}

// StorageConfig controls where and how ledgers are persisted.
type StorageConfig struct {
	// DataDir holds one JSON file per namespace and the backups/ directory.
	DataDir string `yaml:"data_dir" env:"DATA_DIR"`

	// MaxBackups is the number of backups kept per namespace. Hot-reloadable.
	MaxBackups int `yaml:"max_backups" env:"MAX_BACKUPS"`
}

// LedgerConfig controls how records are displayed.
type LedgerConfig struct {
	// DisplayMode is "first" or "best". Hot-reloadable.
	DisplayMode trade.DisplayMode `yaml:"display_mode" env:"DISPLAY_MODE"`

	// DisplayEnabled is the label display setting at startup. Nil means true.
	DisplayEnabled *bool `yaml:"display_enabled,omitempty"`
}

// LabelsEnabled returns the effective display setting.
func (l LedgerConfig) LabelsEnabled() bool {
	return l.DisplayEnabled == nil || *l.DisplayEnabled
}

// Default returns a config with every field set to its default.
func Default() *Config {
	enabled := true
	return &Config{
		Server: ServerConfig{
			ListenAddr: DefaultListenAddr,
			LogLevel:   LogInfo,
		},
		Storage: StorageConfig{
			DataDir:    DefaultDataDir(),
			MaxBackups: DefaultMaxBackups,
		},
		Ledger: LedgerConfig{
			DisplayMode:    trade.DisplayFirst,
			DisplayEnabled: &enabled,
		},
	}
}

// DefaultDataDir returns <user config dir>/tradeledger/data, or a relative
// "tradeledger-data" when the user config dir cannot be determined.
func DefaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "tradeledger-data"
	}
	return filepath.Join(dir, "tradeledger", "data")
}

// DefaultConfigPath returns <user config dir>/tradeledger/config.yaml, or ""
// when the user config dir cannot be determined.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "tradeledger", "config.yaml")
}
