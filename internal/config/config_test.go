package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Shell != "bash" {
		t.Errorf("Shell = %q, want bash", cfg.Shell)
	}
	if !cfg.Firewall.IsEnabled() {
		t.Error("firewall should be enabled by default")
	}
	if cfg.Versions.Node != "22" {
		t.Errorf("Versions.Node = %q, want 22", cfg.Versions.Node)
	}
	if cfg.Versions.Claude != "latest" || cfg.Versions.Copilot != "latest" {
		t.Errorf("tool versions = %q/%q, want latest/latest", cfg.Versions.Claude, cfg.Versions.Copilot)
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadFrom missing file: %v", err)
	}
	if cfg.Shell != "bash" {
		t.Errorf("expected defaults for missing file, got shell %q", cfg.Shell)
	}
}

func TestLoadFrom(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
shell = "zsh"

[firewall]
enabled = false
extra_domains = ["internal.example.com"]

[versions]
claude = "1.0.24"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Shell != "zsh" {
		t.Errorf("Shell = %q, want zsh", cfg.Shell)
	}
	if cfg.Firewall.IsEnabled() {
		t.Error("firewall should be disabled")
	}
	if len(cfg.Firewall.ExtraDomains) != 1 || cfg.Firewall.ExtraDomains[0] != "internal.example.com" {
		t.Errorf("ExtraDomains = %v", cfg.Firewall.ExtraDomains)
	}
	if cfg.Versions.Claude != "1.0.24" {
		t.Errorf("Versions.Claude = %q, want 1.0.24", cfg.Versions.Claude)
	}
	// Unset sections keep defaults.
	if cfg.Versions.Node != "22" {
		t.Errorf("Versions.Node = %q, want 22", cfg.Versions.Node)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "defaults valid",
			mutate: func(c *Config) {},
		},
		{
			name:   "fish shell",
			mutate: func(c *Config) { c.Shell = "fish" },
		},
		{
			name:    "unknown shell",
			mutate:  func(c *Config) { c.Shell = "csh" },
			wantErr: true,
		},
		{
			name:   "valid extra domain",
			mutate: func(c *Config) { c.Firewall.ExtraDomains = []string{"api.example.com"} },
		},
		{
			name:    "invalid extra domain",
			mutate:  func(c *Config) { c.Firewall.ExtraDomains = []string{"not a domain"} },
			wantErr: true,
		},
		{
			name:    "bare hostname rejected",
			mutate:  func(c *Config) { c.Firewall.ExtraDomains = []string{"localhost"} },
			wantErr: true,
		},
		{
			name:    "unknown receiver type",
			mutate:  func(c *Config) { c.Logging.Receivers = []ReceiverConfig{{Type: "journald"}} },
			wantErr: true,
		},
		{
			name:   "otlp receiver",
			mutate: func(c *Config) { c.Logging.Receivers = []ReceiverConfig{{Type: "otlp", Endpoint: "localhost:4317"}} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGenerateDefaultParses(t *testing.T) {
	var cfg Config
	if err := toml.Unmarshal([]byte(GenerateDefault()), &cfg); err != nil {
		t.Fatalf("generated default config does not parse: %v", err)
	}
	if cfg.Shell != "bash" {
		t.Errorf("generated Shell = %q, want bash", cfg.Shell)
	}
	if !cfg.Firewall.IsEnabled() {
		t.Error("generated config should enable firewall")
	}
	if !strings.Contains(GenerateDefault(), "extra_domains") {
		t.Error("generated config should document extra_domains")
	}
}

func TestLoadFromRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`shell = "csh"`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Error("expected error for invalid shell")
	}
}
