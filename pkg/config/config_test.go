package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	tmpDir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to resolve temp dir: %v", err)
	}
	downloads := filepath.Join(tmpDir, "downloads")

	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults",
			modify: func(c *Config) {},
		},
		{
			name: "negative timeout",
			modify: func(c *Config) {
				c.Timeouts.Download = -1 * time.Second
			},
			wantErr: "timeouts cannot be negative",
		},
		{
			name: "unknown backend",
			modify: func(c *Config) {
				c.Browser.Backend = "selenium"
			},
			wantErr: "invalid browser backend",
		},
		{
			name: "control url without rod",
			modify: func(c *Config) {
				c.Browser.ControlURL = "ws://127.0.0.1:9222/devtools/browser/x"
			},
			wantErr: "control_url",
		},
		{
			name: "control url with rod",
			modify: func(c *Config) {
				c.Browser.Backend = BackendRod
				c.Browser.ControlURL = "ws://127.0.0.1:9222/devtools/browser/x"
			},
		},
		{
			name: "unknown verbosity",
			modify: func(c *Config) {
				c.Logging.Verbosity = "chatty"
			},
			wantErr: "verbosity",
		},
		{
			name: "bad ignore pattern",
			modify: func(c *Config) {
				c.IgnorePatterns = []string{"[a-"}
			},
			wantErr: "invalid ignore pattern",
		},
		{
			name: "bad domain pattern",
			modify: func(c *Config) {
				c.Browser.AllowedDomains = []string{"[x"}
			},
			wantErr: "invalid domain pattern",
		},
		{
			name: "upload path inside downloads dir",
			modify: func(c *Config) {
				c.UploadFilePaths = []string{filepath.Join(downloads, "report.csv")}
			},
			wantErr: "must not lie inside downloads_dir",
		},
		{
			name: "upload path beside downloads dir",
			modify: func(c *Config) {
				c.UploadFilePaths = []string{filepath.Join(tmpDir, "downloads-src", "report.csv")}
			},
		},
		{
			name: "empty upload path",
			modify: func(c *Config) {
				c.UploadFilePaths = []string{""}
			},
			wantErr: "upload_file_paths",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.DownloadsDir = downloads
			tt.modify(config)

			err := config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateFillsDefaults(t *testing.T) {
	config := &Config{}
	if err := config.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if config.Browser.Backend != BackendPlaywright {
		t.Errorf("Backend = %q, want %q", config.Browser.Backend, BackendPlaywright)
	}
	if config.Logging.Verbosity != "normal" {
		t.Errorf("Verbosity = %q, want normal", config.Logging.Verbosity)
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Timeouts.Click != 10*time.Second {
		t.Errorf("DefaultConfig() click timeout = %v, want 10s", config.Timeouts.Click)
	}
	if config.Timeouts.Download != 30*time.Second {
		t.Errorf("DefaultConfig() download timeout = %v, want 30s", config.Timeouts.Download)
	}
	if config.Timeouts.TextContent != time.Second {
		t.Errorf("DefaultConfig() text content timeout = %v, want 1s", config.Timeouts.TextContent)
	}
	if !config.Browser.Headless {
		t.Error("DefaultConfig() should be headless")
	}
	if len(config.IgnorePatterns) == 0 {
		t.Error("DefaultConfig() should ignore partial downloads")
	}
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "browsersteps.yaml")
	content := `
downloads_dir: /srv/downloads
upload_file_paths:
  - /data/report.csv
timeouts:
  download: 45s
browser:
  backend: rod
  stealth: true
  allowed_domains: ["*.example.com"]
logging:
  verbosity: debug
metrics:
  addr: ":9464"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	config, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if config.DownloadsDir != "/srv/downloads" {
		t.Errorf("DownloadsDir = %q", config.DownloadsDir)
	}
	if len(config.UploadFilePaths) != 1 || config.UploadFilePaths[0] != "/data/report.csv" {
		t.Errorf("UploadFilePaths = %v", config.UploadFilePaths)
	}
	if config.Timeouts.Download != 45*time.Second {
		t.Errorf("Download timeout = %v, want 45s", config.Timeouts.Download)
	}
	if config.Timeouts.Click != 10*time.Second {
		t.Errorf("Click timeout should keep its default, got %v", config.Timeouts.Click)
	}
	if config.Browser.Backend != BackendRod || !config.Browser.Stealth {
		t.Errorf("Browser = %+v", config.Browser)
	}
	if !config.Browser.Headless {
		t.Error("Headless should keep its default")
	}
	if config.Logging.Verbosity != "debug" {
		t.Errorf("Verbosity = %q", config.Logging.Verbosity)
	}
	if config.Metrics.Addr != ":9464" {
		t.Errorf("Metrics.Addr = %q", config.Metrics.Addr)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() should fail for a missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("timeouts: [not, a, map]"), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() should fail for malformed YAML")
	}
}

func TestLoadEmptyPath(t *testing.T) {
	config, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if config.Browser.Backend != BackendPlaywright {
		t.Errorf("Load(\"\") should return defaults, got backend %q", config.Browser.Backend)
	}
}

func TestResolvedDownloadsDir(t *testing.T) {
	config := &Config{}
	dir, err := config.ResolvedDownloadsDir()
	if err != nil || dir != "" {
		t.Errorf("ResolvedDownloadsDir() = %q, %v; want empty", dir, err)
	}

	config.DownloadsDir = "relative/downloads"
	dir, err = config.ResolvedDownloadsDir()
	if err != nil {
		t.Fatalf("ResolvedDownloadsDir() error = %v", err)
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("ResolvedDownloadsDir() = %q, want absolute", dir)
	}
}

func TestExampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "example.yaml")
	if err := os.WriteFile(path, []byte(Example()), 0o644); err != nil {
		t.Fatalf("Failed to write example: %v", err)
	}
	config, err := Load(path)
	if err != nil {
		t.Fatalf("Load(example) error = %v", err)
	}
	if config.Timeouts.Download != 30*time.Second {
		t.Errorf("Example() should carry default timeouts, got %v", config.Timeouts.Download)
	}
}
