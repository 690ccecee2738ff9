package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "TRADELEDGER_"

// maxBackupsWarn is the retention above which Validate logs a warning.
const maxBackupsWarn = 50

// Load reads the YAML configuration file at path and returns a validated
// [Config]. Fields absent from the file keep their [Default] values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over the defaults and
// validates the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with TRADELEDGER_* variables. environ replaces the
// process environment when non-nil.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("config: parse env: %w", err)
	}
	return nil
}

// Resolve builds the effective configuration: defaults, then the file at
// path, then environment overrides. A missing file is not an error; the
// defaults are used. An empty path skips the file.
func Resolve(path string, environ map[string]string) (*Config, error) {
	cfg := Default()
	if path != "" {
		loaded, err := Load(path)
		switch {
		case err == nil:
			cfg = loaded
		case errors.Is(err, fs.ErrNotExist):
			slog.Debug("config file not found; using defaults", "path", path)
		default:
			return nil, err
		}
	}
	if err := ApplyEnv(cfg, environ); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	} else if _, _, err := net.SplitHostPort(cfg.Server.ListenAddr); err != nil {
		errs = append(errs, fmt.Errorf("server.listen_addr %q is invalid: %w", cfg.Server.ListenAddr, err))
	}
	if ep := cfg.Server.OTLPEndpoint; ep != "" {
		u, err := url.Parse(ep)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("server.otlp_endpoint %q must be an http(s) URL", ep))
		}
	}

	// Storage
	if cfg.Storage.DataDir == "" {
		errs = append(errs, errors.New("storage.data_dir is required"))
	} else if !filepath.IsAbs(cfg.Storage.DataDir) {
		slog.Warn("storage.data_dir is relative; it is resolved against the working directory",
			"data_dir", cfg.Storage.DataDir)
	}
	if cfg.Storage.MaxBackups < 1 {
		errs = append(errs, fmt.Errorf("storage.max_backups %d must be at least 1", cfg.Storage.MaxBackups))
	} else if cfg.Storage.MaxBackups > maxBackupsWarn {
		slog.Warn("storage.max_backups is large; every backup is a full copy of the ledger",
			"max_backups", cfg.Storage.MaxBackups)
	}

	// Ledger
	if cfg.Ledger.DisplayMode != "" && !cfg.Ledger.DisplayMode.IsValid() {
		errs = append(errs, fmt.Errorf("ledger.display_mode %q is invalid; valid values: first, best", cfg.Ledger.DisplayMode))
	}

	return errors.Join(errs...)
}

// SaveToFile writes cfg as YAML to path, creating parent directories.
func SaveToFile(cfg *Config, path string) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("config: encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("config: encode yaml: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create dir for %q: %w", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("config: write %q: %w", path, err)
	}
	return nil
}
