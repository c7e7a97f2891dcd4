// Package daemon holds the process-level wiring of fundbridge: the TOML
// configuration, the logger and the long-running HTTP service.
package daemon

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/fundbridge/fundbridge/internal/app/report"
)

// ─── Configuration ──────────────────────────────────────────────────────────
// Loaded from $FUNDBRIDGE_HOME/config.toml (default ~/.fundbridge). A missing
// file means defaults. FUNDBRIDGE_ADMIN_TOKEN overrides [api].admin_token.

const (
	HomeEnv       = "FUNDBRIDGE_HOME"
	AdminTokenEnv = "FUNDBRIDGE_ADMIN_TOKEN"
	ConfigFile    = "config.toml"
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config is the full fundbridge configuration.
type Config struct {
	API     APIConfig     `toml:"api"`
	Storage StorageConfig `toml:"storage"`
	Log     LogConfig     `toml:"log"`
	Report  ReportConfig  `toml:"report"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	AdminToken   string `toml:"admin_token"`
	RateLimitRPM int    `toml:"rate_limit_rpm"`
	Metrics      bool   `toml:"metrics"`
	Traces       bool   `toml:"traces"`
	MaxSpans     int    `toml:"max_spans"`
}

// Addr returns host:port.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig selects the ledger store.
type StorageConfig struct {
	Driver  string `toml:"driver"`
	DataDir string `toml:"data_dir"` // empty means the fundbridge home
}

// LogConfig configures slog output.
type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text, json
}

// ReportConfig sets the close-speed report defaults.
type ReportConfig struct {
	DefaultFormat string `toml:"default_format"`
	DefaultLimit  int    `toml:"default_limit"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			RateLimitRPM: 600,
			Metrics:      true,
			Traces:       true,
			MaxSpans:     10_000,
		},
		Storage: StorageConfig{
			Driver: DriverSQLite,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Report: ReportConfig{
			DefaultFormat: string(report.FormatJSON),
			DefaultLimit:  0,
		},
	}
}

// Home returns the fundbridge home directory.
func Home() string {
	if env := os.Getenv(HomeEnv); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fundbridge"
	}
	return filepath.Join(home, ".fundbridge")
}

// DefaultConfigPath returns $FUNDBRIDGE_HOME/config.toml.
func DefaultConfigPath() string {
	return filepath.Join(Home(), ConfigFile)
}

// LoadConfig reads path over the defaults. An empty path uses
// DefaultConfigPath; a missing file is not an error. Unknown keys are.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = DefaultConfigPath()
	}

	md, err := toml.DecodeFile(path, &cfg)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// defaults
	case err != nil:
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	default:
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return Config{}, fmt.Errorf("load config %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
	}

	if tok := os.Getenv(AdminTokenEnv); tok != "" {
		cfg.API.AdminToken = tok
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = Home()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port %d out of range", c.API.Port))
	}
	if c.API.RateLimitRPM < 0 {
		errs = append(errs, fmt.Errorf("api.rate_limit_rpm must not be negative"))
	}
	switch c.Storage.Driver {
	case DriverSQLite, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q: want %s or %s", c.Storage.Driver, DriverSQLite, DriverMemory))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: want text or json", c.Log.Format))
	}
	if _, err := report.ParseFormat(c.Report.DefaultFormat); err != nil {
		errs = append(errs, fmt.Errorf("report.default_format: %w", err))
	}
	if c.Report.DefaultLimit < 0 {
		errs = append(errs, fmt.Errorf("report.default_limit must not be negative"))
	}
	return errors.Join(errs...)
}

// WriteTOML encodes c as TOML.
func (c Config) WriteTOML(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// ─── Logging ────────────────────────────────────────────────────────────────

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", s, err)
	}
	return lvl, nil
}

// NewLogger builds the process logger from c.
func NewLogger(c LogConfig, w io.Writer) *slog.Logger {
	lvl, err := parseLevel(c.Level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
