// Package config provides configuration types and defaults for kernelbridge.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kernelbridge/kernelbridge/internal/kind"
	"github.com/kernelbridge/kernelbridge/internal/log"
	"github.com/kernelbridge/kernelbridge/internal/tracing"
)

// Config holds all configuration options for kernelbridge.
type Config struct {
	// ClientMappings binds provisioner kinds to client kinds. Each entry
	// is a "provisionerKind:clientKind" pair; both sides use the dotted
	// name syntax since the colon separates the pair.
	ClientMappings []string `mapstructure:"client_mappings"`

	// FallbackClient is dispatched when no mapping covers a provisioner.
	// Empty means lookups without a mapping fail.
	FallbackClient string `mapstructure:"fallback_client"`

	Plugins    PluginsConfig    `mapstructure:"plugins"`
	Sessions   SessionsConfig   `mapstructure:"sessions"`
	Connection ConnectionConfig `mapstructure:"connection"`
	Tracing    tracing.Config   `mapstructure:"tracing"`

	// LogFile is where the debug log is written. Empty disables logging.
	LogFile string `mapstructure:"log_file"`

	// LogLevel is the minimum level written: debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`
}

// PluginsConfig locates plugin mapping manifests.
type PluginsConfig struct {
	// Dir is scanned for *.yaml manifests contributing extra mappings.
	Dir string `mapstructure:"dir"`
}

// SessionsConfig holds session store configuration.
type SessionsConfig struct {
	// DBPath is the SQLite database file for kernel sessions.
	DBPath string `mapstructure:"db_path"`
}

// ConnectionConfig holds connection file configuration.
type ConnectionConfig struct {
	// Dir is where provisioners write kernel connection files.
	Dir string `mapstructure:"dir"`
}

// DefaultConfigDir returns ~/.config/kernelbridge, or "" if the home
// directory is unavailable.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "kernelbridge")
}

// DefaultSessionsDBPath returns the default session database location.
func DefaultSessionsDBPath() string {
	if dir := DefaultConfigDir(); dir != "" {
		return filepath.Join(dir, "sessions.db")
	}
	return ""
}

// DefaultConnectionDir returns the default runtime directory for kernel
// connection files.
func DefaultConnectionDir() string {
	if dir := DefaultConfigDir(); dir != "" {
		return filepath.Join(dir, "runtime")
	}
	return ""
}

// DefaultTracesFilePath returns the default path for trace file export.
func DefaultTracesFilePath() string {
	if dir := DefaultConfigDir(); dir != "" {
		return filepath.Join(dir, "traces", "traces.jsonl")
	}
	return ""
}

// DefaultLogFilePath returns the default debug log location.
func DefaultLogFilePath() string {
	if dir := DefaultConfigDir(); dir != "" {
		return filepath.Join(dir, "debug.log")
	}
	return ""
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		ClientMappings: nil,
		FallbackClient: "",
		Plugins: PluginsConfig{
			Dir: "", // plugins disabled unless configured
		},
		Sessions: SessionsConfig{
			DBPath: DefaultSessionsDBPath(),
		},
		Connection: ConnectionConfig{
			Dir: DefaultConnectionDir(),
		},
		Tracing:  tracing.DefaultConfig(),
		LogFile:  "", // logging disabled unless configured
		LogLevel: "info",
	}
}

// ValidateMappings checks client mapping pair strings for errors.
// Returns nil if mappings are empty.
func ValidateMappings(mappings []string) error {
	for i, pair := range mappings {
		if strings.Count(pair, ":") != 1 {
			return fmt.Errorf("client_mappings[%d]: %q must be a single \"provisioner:client\" pair", i, pair)
		}
		provName, clientName, _ := strings.Cut(pair, ":")
		if _, err := kind.ParseName(provName); err != nil {
			return fmt.Errorf("client_mappings[%d]: provisioner side: %w", i, err)
		}
		if _, err := kind.ParseName(clientName); err != nil {
			return fmt.Errorf("client_mappings[%d]: client side: %w", i, err)
		}
	}
	return nil
}

// ValidateFallback checks the fallback client kind name. An empty name
// is valid and means no fallback.
func ValidateFallback(name string) error {
	if name == "" {
		return nil
	}
	if _, err := kind.ParseName(name); err != nil {
		return fmt.Errorf("fallback_client: %w", err)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(cfg tracing.Config) error {
	if cfg.SampleRate < 0.0 || cfg.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", cfg.SampleRate)
	}

	if cfg.Exporter != "" {
		switch cfg.Exporter {
		case "none", "file", "stdout", "otlp":
			// Valid
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", cfg.Exporter)
		}
	}

	// Only validate path requirements when tracing is enabled
	if cfg.Enabled {
		if cfg.Exporter == "file" && cfg.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if cfg.Exporter == "otlp" && cfg.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// ValidateLogLevel checks the log level string. Empty is valid and
// means the default level.
func ValidateLogLevel(level string) error {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("log_level must be \"debug\", \"info\", \"warn\", or \"error\", got %q", level)
	}
}

// Validate checks the whole configuration, returning the first error.
func (c Config) Validate() error {
	if err := ValidateMappings(c.ClientMappings); err != nil {
		return err
	}
	if err := ValidateFallback(c.FallbackClient); err != nil {
		return err
	}
	if err := ValidateTracing(c.Tracing); err != nil {
		return err
	}
	return ValidateLogLevel(c.LogLevel)
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# Kernelbridge Configuration

# Provisioner-to-client mappings
# Each entry binds a provisioner kind to the client kind dispatched for it.
# Both sides use dotted kind names; the colon separates the pair.
# Lookups walk the provisioner's ancestor chain, so mapping a base kind
# covers every kind derived from it.
client_mappings:
  - "kernelbridge.provisioners.Local:kernelbridge.clients.Direct"
  - "kernelbridge.provisioners.Gateway:kernelbridge.clients.Gateway"

# Client dispatched when no mapping covers a provisioner's chain.
# Comment out to make unmapped provisioners an error.
fallback_client: "kernelbridge.clients.Direct"

# Plugin mapping manifests
# Every *.yaml file in the directory contributes extra mappings.
# plugins:
#   dir: ~/.config/kernelbridge/plugins

# Kernel session store
sessions:
  db_path: ~/.config/kernelbridge/sessions.db

# Runtime directory for kernel connection files
connection:
  dir: ~/.config/kernelbridge/runtime

# Debug logging (disabled unless log_file is set)
# log_file: ~/.config/kernelbridge/debug.log
# log_level: info   # debug, info, warn, error

# Distributed tracing
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ~/.config/kernelbridge/traces/traces.jsonl
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)
#
# Example: Send traces to Jaeger via OTLP
# tracing:
#   enabled: true
#   exporter: otlp
#   otlp_endpoint: jaeger.internal:4317
#   sample_rate: 0.1  # Sample 10% of traces
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
