// Package config handles application configuration and paths.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the application configuration
type Config struct {
	// Paths
	DataDir string `json:"dataDir"`

	// Auth
	MSAClientID  string `json:"msaClientID"`
	RedirectAddr string `json:"redirectAddr"` // must match the redirect URI registered for MSAClientID

	// HTTPTimeout is the per-request timeout in seconds for token exchanges.
	HTTPTimeout int `json:"httpTimeout"`

	// Logging
	LogLevel  string `json:"logLevel"`
	LogFormat string `json:"logFormat"` // "text" or "json"
}

// overrides are read from MCAUTH_* environment variables and win over the
// config file.
type overrides struct {
	DataDir      string `env:"DATA_DIR"`
	MSAClientID  string `env:"CLIENT_ID"`
	RedirectAddr string `env:"REDIRECT_ADDR"`
	LogLevel     string `env:"LOG_LEVEL"`
	LogFormat    string `env:"LOG_FORMAT"`
}

const (
	DefaultMSAClientID  = "c36a9fb6-4f2a-41ff-90bd-ae7cc92031eb"
	DefaultRedirectAddr = "127.0.0.1:25585"
	DefaultHTTPTimeout  = 30
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"

	envPrefix = "MCAUTH_"
	fileName  = "config.json"
)

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		DataDir:      getDefaultDataDir(),
		MSAClientID:  DefaultMSAClientID,
		RedirectAddr: DefaultRedirectAddr,
		HTTPTimeout:  DefaultHTTPTimeout,
		LogLevel:     DefaultLogLevel,
		LogFormat:    DefaultLogFormat,
	}
}

// Load reads config.json from the data directory and applies environment
// overrides on top.
func Load() (*Config, error) {
	var env overrides
	if err := parseEnv(&env); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if env.DataDir != "" {
		cfg.DataDir = env.DataDir
	}

	data, err := os.ReadFile(cfg.Path())
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, err
	default:
		dataDir := cfg.DataDir
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", cfg.Path(), err)
		}
		// The file lives in the data dir, so it cannot move it.
		cfg.DataDir = dataDir
	}

	cfg.apply(env)
	cfg.fillDefaults()
	return cfg, nil
}

func parseEnv(o *overrides) error {
	if err := env.ParseWithOptions(o, env.Options{Prefix: envPrefix}); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	return nil
}

func (c *Config) apply(o overrides) {
	if o.MSAClientID != "" {
		c.MSAClientID = o.MSAClientID
	}
	if o.RedirectAddr != "" {
		c.RedirectAddr = o.RedirectAddr
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.LogFormat != "" {
		c.LogFormat = o.LogFormat
	}
}

// fillDefaults replaces empty or missing fields from an older config file.
func (c *Config) fillDefaults() {
	if c.MSAClientID == "" {
		c.MSAClientID = DefaultMSAClientID
	}
	if c.RedirectAddr == "" {
		c.RedirectAddr = DefaultRedirectAddr
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
}

// Path returns the location of config.json.
func (c *Config) Path() string {
	return filepath.Join(c.DataDir, fileName)
}

// Exists reports whether config.json is present.
func (c *Config) Exists() bool {
	_, err := os.Stat(c.Path())
	return err == nil
}

// LogPath is where the TUI writes its log, since it owns the terminal.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "mcauth.log")
}

// Timeout returns HTTPTimeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.HTTPTimeout) * time.Second
}

// Save writes config to disk
func (c *Config) Save() error {
	if err := c.EnsureDirs(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(c.Path(), data, 0644)
}

// EnsureDirs creates the data directory. Credentials are stored there, so
// it is private to the user.
func (c *Config) EnsureDirs() error {
	return os.MkdirAll(c.DataDir, 0700)
}

func getDefaultDataDir() string {
	// Check for portable mode first
	exe, _ := os.Executable()
	portablePath := filepath.Join(filepath.Dir(exe), "data")
	if _, err := os.Stat(portablePath); err == nil {
		return portablePath
	}

	// Use XDG/platform-specific directories
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "mcauth")
	}

	home, _ := os.UserHomeDir()
	switch {
	case os.Getenv("APPDATA") != "": // Windows
		return filepath.Join(os.Getenv("APPDATA"), "mcauth")
	default: // Linux/macOS
		return filepath.Join(home, ".local", "share", "mcauth")
	}
}
