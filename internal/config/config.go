// Package config provides configuration file support for aidev.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the aidev configuration file. Command-line flags
// override file values; file values override the built-in defaults.
type Config struct {
	// Shell is the shell attached inside the container: bash, zsh, or fish.
	Shell string `toml:"shell"`

	// Firewall contains egress firewall settings.
	Firewall FirewallConfig `toml:"firewall"`

	// Image contains image build settings.
	Image ImageConfig `toml:"image"`

	// Versions pins the tool versions baked into built images.
	Versions VersionsConfig `toml:"versions"`

	// Logging contains remote logging settings.
	Logging LoggingConfig `toml:"logging"`
}

// FirewallConfig contains egress firewall settings.
type FirewallConfig struct {
	// Enabled sets whether the egress firewall is applied by default.
	// The --no-firewall flag overrides this per invocation.
	Enabled *bool `toml:"enabled"`

	// ExtraDomains are additional hostnames resolved and allow-listed
	// on top of the built-in tool requirements.
	ExtraDomains []string `toml:"extra_domains"`
}

// IsEnabled returns whether the firewall is enabled (defaults to true).
func (f FirewallConfig) IsEnabled() bool {
	if f.Enabled == nil {
		return true
	}
	return *f.Enabled
}

// ImageConfig contains image build settings.
type ImageConfig struct {
	// Base overrides the base image reference. The Node version pin is
	// ignored when a base is set explicitly.
	Base string `toml:"base"`
}

// VersionsConfig pins tool and utility versions used during image builds.
type VersionsConfig struct {
	Claude  string `toml:"claude"`
	Copilot string `toml:"copilot"`
	Node    string `toml:"node"`
}

// LoggingConfig contains remote logging configuration.
type LoggingConfig struct {
	// Receivers is a list of remote log destinations.
	Receivers []ReceiverConfig `toml:"receivers"`

	// Attributes are custom key-value pairs added to all log entries.
	Attributes map[string]string `toml:"attributes"`
}

// ReceiverConfig defines a single log receiver.
type ReceiverConfig struct {
	// Type is the receiver type: "syslog", "syslog-remote", or "otlp".
	Type string `toml:"type"`

	// Address is the remote server address (for syslog-remote and otlp).
	Address string `toml:"address"`

	// Endpoint is the OTLP endpoint URL (alias for Address, for otlp type).
	Endpoint string `toml:"endpoint"`

	// Protocol is the transport protocol:
	// - For syslog-remote: "udp" or "tcp" (default: udp)
	// - For otlp: "http" or "grpc" (default: http)
	Protocol string `toml:"protocol"`

	// Facility is the syslog facility (e.g., "local0").
	Facility string `toml:"facility"`

	// Tag is the syslog program tag.
	Tag string `toml:"tag"`

	// Headers are custom HTTP headers for OTLP.
	Headers map[string]string `toml:"headers"`

	// BatchSize is the OTLP batch size before flush.
	BatchSize int `toml:"batch_size"`

	// FlushInterval is the OTLP flush interval (e.g., "5s").
	FlushInterval string `toml:"flush_interval"`

	// Insecure disables TLS verification for gRPC connections.
	Insecure bool `toml:"insecure"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Shell: "bash",
		Versions: VersionsConfig{
			Claude:  "latest",
			Copilot: "latest",
			Node:    "22",
		},
	}
}

// Path returns the path to the config file.
// Uses XDG_CONFIG_HOME/aidev/config.toml or ~/.config/aidev/config.toml.
func Path() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "aidev", "config.toml")
}

// Load reads the configuration from the default path.
// Returns default config if the file doesn't exist.
func Load() (*Config, error) {
	return LoadFrom(Path())
}

// LoadFrom reads the configuration from the specified path.
// Returns default config if the file doesn't exist.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

var domainRe = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?)+$`)

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	switch c.Shell {
	case "", "bash", "zsh", "fish":
	default:
		return fmt.Errorf("shell must be 'bash', 'zsh', or 'fish', got %q", c.Shell)
	}

	for i, d := range c.Firewall.ExtraDomains {
		if !domainRe.MatchString(d) {
			return fmt.Errorf("firewall.extra_domains[%d]: invalid domain %q", i, d)
		}
	}

	if c.Image.Base != "" && strings.ContainsAny(c.Image.Base, " \t") {
		return fmt.Errorf("image.base contains whitespace: %q", c.Image.Base)
	}

	validReceivers := map[string]bool{"syslog": true, "syslog-remote": true, "otlp": true}
	for i, r := range c.Logging.Receivers {
		if !validReceivers[r.Type] {
			return fmt.Errorf("logging.receivers[%d]: unknown type %q", i, r.Type)
		}
	}

	return nil
}

// WriteDefault writes the commented default configuration to the default
// path, refusing to overwrite an existing file.
func WriteDefault() (string, error) {
	path := Path()
	if path == "" {
		return "", fmt.Errorf("cannot determine config path")
	}
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(GenerateDefault()), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// GenerateDefault returns the default configuration as a TOML string
// with comments explaining each option.
func GenerateDefault() string {
	return `# aidev configuration file
# Location: ~/.config/aidev/config.toml

# Shell attached inside the container: "bash", "zsh", or "fish"
shell = "bash"

# Egress firewall settings
[firewall]
# Apply the default-deny egress firewall (--no-firewall overrides)
enabled = true

# Additional hostnames to resolve and allow-list
# extra_domains = ["internal.example.com"]

# Image build settings
[image]
# Override the base image (the node version pin is ignored when set)
# base = "node:22-bookworm"

# Tool version pins used as image build arguments
[versions]
claude = "latest"
copilot = "latest"
node = "22"

# Remote logging configuration
# Session diagnostics can be forwarded to remote destinations
[logging]

# Custom attributes added to all log entries
# [logging.attributes]
# environment = "development"

# Example: Local syslog
# [[logging.receivers]]
# type = "syslog"
# facility = "local0"
# tag = "aidev"

# Example: Remote syslog server
# [[logging.receivers]]
# type = "syslog-remote"
# address = "logs.example.com:514"
# protocol = "udp"  # or "tcp"
# facility = "local0"
# tag = "aidev"

# Example: OpenTelemetry collector (HTTP)
# [[logging.receivers]]
# type = "otlp"
# endpoint = "http://localhost:4318/v1/logs"
# protocol = "http"  # default
# batch_size = 100
# flush_interval = "5s"

# Example: OpenTelemetry collector (gRPC)
# [[logging.receivers]]
# type = "otlp"
# endpoint = "localhost:4317"
# protocol = "grpc"
# insecure = true  # disable TLS for local testing
`
}
