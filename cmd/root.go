// Package cmd wires the kernelbridge CLI: config loading, logging, and
// the mappings/resolve/sessions subcommands.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kernelbridge/kernelbridge/internal/config"
	"github.com/kernelbridge/kernelbridge/internal/log"

	// Shipped provisioner and client kinds register themselves with the
	// default catalog from init.
	_ "github.com/kernelbridge/kernelbridge/internal/client"
	_ "github.com/kernelbridge/kernelbridge/internal/provisioner"
)

var (
	version  = "dev"
	cfgFile  string
	logLevel string
	cfg      config.Config
)

var rootCmd = &cobra.Command{
	Use:     "kernelbridge",
	Short:   "Kernel provisioner-to-client dispatch",
	Long: `Kernelbridge maps kernel provisioner kinds to the client kinds able to
talk to the backends they launch. Mappings come from config pairs and
plugin manifests; lookups honor provisioner ancestor chains, so a mapping
for a base kind covers every kind derived from it.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/kernelbridge/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"minimum log level: debug, info, warn, error")

	rootCmd.PersistentPreRunE = setupLogging
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("sessions.db_path", defaults.Sessions.DBPath)
	viper.SetDefault("connection.dir", defaults.Connection.Dir)
	viper.SetDefault("log_level", defaults.LogLevel)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	viper.SetDefault("tracing.service_name", defaults.Tracing.ServiceName)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if env := os.Getenv("KERNELBRIDGE_CONFIG"); env != "" {
		viper.SetConfigFile(env)
	} else {
		// Config lookup order:
		// 1. ./kernelbridge.yaml (current directory)
		// 2. ~/.config/kernelbridge/config.yaml (user config)
		if _, err := os.Stat("kernelbridge.yaml"); err == nil {
			viper.SetConfigFile("kernelbridge.yaml")
		} else {
			viper.AddConfigPath(config.DefaultConfigDir())
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere - create a default user config.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			defaultPath := filepath.Join(config.DefaultConfigDir(), "config.yaml")
			if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
				viper.SetConfigFile(defaultPath)
				_ = viper.ReadInConfig()
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	_ = viper.Unmarshal(&cfg)
}

// setupLogging initializes the debug log when configured and applies the
// effective level. A broken log file is not fatal for CLI commands.
func setupLogging(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.LogFile == "" {
		return nil
	}

	cleanup, err := log.Init(cfg.LogFile)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: cannot open log file %s: %v\n", cfg.LogFile, err)
		return nil
	}
	cobra.OnFinalize(cleanup)

	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	log.SetMinLevel(log.ParseLevel(level))
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
