package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	Debug           bool
	SummaryInterval time.Duration
	StdinCommands   bool
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags(fs *flag.FlagSet, args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}

	// Define flags with environment variable fallback
	fs.StringVar(&cfg.ConfigPath, "config",
		getEnv("SIMMIRROR_CONFIG", ""),
		"Path to a JSON or YAML configuration file; empty uses defaults (env: SIMMIRROR_CONFIG)")

	fs.StringVar(&cfg.ConfigPath, "c",
		getEnv("SIMMIRROR_CONFIG", ""),
		"Path to a JSON or YAML configuration file (env: SIMMIRROR_CONFIG)")

	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("SIMMIRROR_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: SIMMIRROR_LOG_LEVEL)")

	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("SIMMIRROR_LOG_FORMAT", "text"),
		"Log format: json, text (env: SIMMIRROR_LOG_FORMAT)")

	fs.BoolVar(&cfg.Debug, "debug",
		getEnvBool("SIMMIRROR_DEBUG", false),
		"Enable debug mode (env: SIMMIRROR_DEBUG)")

	fs.DurationVar(&cfg.SummaryInterval, "summary-interval",
		getEnvDuration("SIMMIRROR_SUMMARY_INTERVAL", 10*time.Second),
		"Interval between mirror summaries, 0 to disable (env: SIMMIRROR_SUMMARY_INTERVAL)")

	fs.BoolVar(&cfg.StdinCommands, "stdin-commands",
		getEnvBool("SIMMIRROR_STDIN_COMMANDS", false),
		"Forward stdin lines to the command stream (env: SIMMIRROR_STDIN_COMMANDS)")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() {
		printDetailedHelp(fs)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Override log level if debug is set
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	// Skip validation for special flags
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.SummaryInterval < 0 {
		return fmt.Errorf("invalid summary interval: %s", cfg.SummaryInterval)
	}

	return nil
}

func printDetailedHelp(fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(os.Stderr, `%s - headless simulation state mirror

Usage: %s [options]

Options:
`, appName, os.Args[0])
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Mirror a local simulation with default ports
  %s

  # Use a config file and debug logging
  %s --config=client.yaml --log-level=debug

  # Point at another host through the environment
  export SIMMIRROR_SNAPSHOT_HOST=10.0.0.5
  export SIMMIRROR_LOG_HOST=10.0.0.5
  %s

  # Type commands into the simulation
  %s --stdin-commands

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
