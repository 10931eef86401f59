// Package config loads and validates the browsersteps configuration file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/browsersteps/pkg/browser"
	"github.com/entrhq/browsersteps/pkg/logging"
	"github.com/entrhq/browsersteps/pkg/security/allowlist"
)

// Backend names a browser driver.
type Backend string

const (
	// BackendPlaywright drives the browser through playwright-go
	BackendPlaywright Backend = "playwright"
	// BackendRod drives the browser through go-rod
	BackendRod Backend = "rod"
)

// Config represents the configuration for one browsersteps task
type Config struct {
	// Target download directory; created on demand
	DownloadsDir string `yaml:"downloads_dir" json:"downloads_dir"`

	// Files the upload action may attach
	UploadFilePaths []string `yaml:"upload_file_paths" json:"upload_file_paths"`

	Timeouts TimeoutConfig `yaml:"timeouts" json:"timeouts"`

	// File name globs the latest-download query skips
	IgnorePatterns []string `yaml:"ignore_patterns" json:"ignore_patterns"`

	Browser BrowserConfig `yaml:"browser" json:"browser"`

	Logging LoggingConfig `yaml:"logging" json:"logging"`

	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// TimeoutConfig bounds the browser operations of an action
type TimeoutConfig struct {
	Click       time.Duration `yaml:"click" json:"click"`
	Download    time.Duration `yaml:"download" json:"download"`
	TextContent time.Duration `yaml:"text_content" json:"text_content"`
}

// BrowserConfig selects and configures the browser backend
type BrowserConfig struct {
	Backend        Backend        `yaml:"backend" json:"backend"`
	Headless       bool           `yaml:"headless" json:"headless"`
	StartURL       string         `yaml:"start_url" json:"start_url"`
	AllowedDomains []string       `yaml:"allowed_domains" json:"allowed_domains"`
	Viewport       ViewportConfig `yaml:"viewport" json:"viewport"`
	UserDataDir    string         `yaml:"user_data_dir" json:"user_data_dir"`

	// rod only
	Stealth    bool   `yaml:"stealth" json:"stealth"`
	ControlURL string `yaml:"control_url" json:"control_url"`
}

// ViewportConfig is the page size in CSS pixels
type ViewportConfig struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Verbosity controls logging level: quiet, normal, verbose, debug
	Verbosity string `yaml:"verbosity" json:"verbosity"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	// Addr to serve /metrics on, e.g. ":9464". Empty disables the endpoint.
	Addr string `yaml:"addr" json:"addr"`
}

// DefaultConfig returns a default configuration suitable for most use cases
func DefaultConfig() *Config {
	return &Config{
		DownloadsDir: "./downloads",
		Timeouts: TimeoutConfig{
			Click:       10 * time.Second,
			Download:    30 * time.Second,
			TextContent: time.Second,
		},
		IgnorePatterns: []string{"*.crdownload", "*.part", "*.tmp"},
		Browser: BrowserConfig{
			Backend:  BackendPlaywright,
			Headless: true,
			Viewport: ViewportConfig{Width: 1280, Height: 720},
		},
		Logging: LoggingConfig{Verbosity: "normal"},
	}
}

// Load reads a YAML configuration file on top of DefaultConfig. An empty
// path returns the defaults.
func Load(path string) (*Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Timeouts.Click < 0 || c.Timeouts.Download < 0 || c.Timeouts.TextContent < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}

	switch c.Browser.Backend {
	case "":
		c.Browser.Backend = BackendPlaywright
	case BackendPlaywright, BackendRod:
	default:
		return fmt.Errorf("invalid browser backend: %s (must be 'playwright' or 'rod')", c.Browser.Backend)
	}

	if c.Browser.Viewport.Width < 0 || c.Browser.Viewport.Height < 0 {
		return fmt.Errorf("viewport dimensions cannot be negative")
	}
	if c.Browser.ControlURL != "" && c.Browser.Backend != BackendRod {
		return fmt.Errorf("control_url is only supported by the rod backend")
	}

	// Set default verbosity if not specified
	if c.Logging.Verbosity == "" {
		c.Logging.Verbosity = "normal"
	}
	if _, err := logging.ParseVerbosity(c.Logging.Verbosity); err != nil {
		return err
	}

	for _, p := range c.IgnorePatterns {
		if _, err := glob.Compile(p); err != nil {
			return fmt.Errorf("invalid ignore pattern %q: %w", p, err)
		}
	}
	if _, err := browser.NewDomainMatcher(c.Browser.AllowedDomains); err != nil {
		return err
	}

	list, err := allowlist.New(c.UploadFilePaths)
	if err != nil {
		return fmt.Errorf("invalid upload_file_paths: %w", err)
	}
	if strings.TrimSpace(c.DownloadsDir) != "" {
		inside, err := list.Within(c.DownloadsDir)
		if err != nil {
			return fmt.Errorf("invalid downloads_dir: %w", err)
		}
		if len(inside) > 0 {
			return fmt.Errorf("upload_file_paths must not lie inside downloads_dir: %s", strings.Join(inside, ", "))
		}
	}

	return nil
}

// ResolvedDownloadsDir returns DownloadsDir as an absolute path, or "" when unset.
func (c *Config) ResolvedDownloadsDir() (string, error) {
	if strings.TrimSpace(c.DownloadsDir) == "" {
		return "", nil
	}
	return allowlist.Canonicalize(c.DownloadsDir)
}

// AllowList builds the upload allow-list.
func (c *Config) AllowList() (*allowlist.List, error) {
	return allowlist.New(c.UploadFilePaths)
}

// Example renders the defaults as YAML for `browsersteps -print-config`.
func Example() string {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data)) + "\n"
}
