package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/al-bashkir/securelog/internal/config"
	"github.com/al-bashkir/securelog/internal/daemon"
	"github.com/al-bashkir/securelog/internal/httpserver"
)

// Version information (set via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Global flags
var (
	configFile string
	logLevel   string
	logFormat  string
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitConfig  = 3
)

const defaultConfigFile = "/etc/securelog/securelog.yaml"

var rootCmd = &cobra.Command{
	Use:   "securelog",
	Short: "Secure structured log formatter",
	Long: `Formats log events as single-line JSON records with sensitive values
redacted and every string neutralized against log injection.

Modes:
  - serve:  Run the daemon; accepts events over HTTP and a Unix socket
  - format: Filter JSON events from stdin to secure records on stdout
  - send:   Submit an event to a running daemon`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingest daemon",
	Long: `Start the daemon that accepts log events and writes secure records.

The daemon:
  - Listens on a Unix socket for local producers
  - Runs an HTTP endpoint (POST /v1/events) for remote producers
  - Redacts sensitive keys and sanitizes every string
  - Writes one JSON record per line to stdout or a rotated file

This mode is typically run as a systemd service.`,
	RunE: runServe,
}

// overrideExitCode is set by subcommands so main() can call os.Exit()
// after cobra finishes. -1 means "use default".
var overrideExitCode = -1

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Long:  `Display version, commit hash, and build date.`,
	Run:   runVersion,
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate configuration file",
	Long: `Load and validate the configuration file without starting the daemon.

Exit codes:
  0 = Configuration is valid
  3 = Configuration error`,
	RunE: runCheckConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", defaultConfigFile,
		"Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (debug, info, warn, error) - overrides config file")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Log format (secure, json, text) - overrides config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(formatCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(hashKeyCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(checkConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}

	if overrideExitCode >= 0 {
		os.Exit(overrideExitCode)
	}
}

// loadConfig loads the configuration file and applies flag overrides.
// When optional is set and the default file does not exist, defaults with
// environment overrides are used instead.
func loadConfig(optional bool) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		if !optional || configFile != defaultConfigFile || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if cfg, err = config.FromEnv(); err != nil {
			return nil, err
		}
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

// runServe starts the daemon
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	config.SetupLogging(&cfg.Log, cfg.KeySet(), cfg.Limits())
	httpserver.Version = version

	slog.Info("starting securelog daemon",
		"version", version,
		"commit", commit,
		"build_date", buildDate,
		"config", configFile,
	)

	d, err := daemon.New(cfg)
	if err != nil {
		slog.Error("failed to create daemon", "error", err)
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	return d.Run(cmd.Context())
}

// runVersion displays version information
func runVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("securelog version %s\n", version)
	fmt.Printf("  Commit:     %s\n", commit)
	fmt.Printf("  Build date: %s\n", buildDate)
	fmt.Printf("  Go version: %s\n", runtime.Version())
}

// runCheckConfig validates the configuration
func runCheckConfig(cmd *cobra.Command, args []string) error {
	fmt.Printf("Checking configuration: %s\n\n", configFile)

	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed:\n")
		fmt.Fprintf(os.Stderr, "   %v\n", err)
		overrideExitCode = ExitConfig
		return nil // exit code handled via overrideExitCode
	}

	keys := cfg.KeySet()
	output := cfg.Output.Path
	if output == "" || output == "-" {
		output = "stdout"
	}

	fmt.Println("✅ Configuration is valid")
	fmt.Println()
	fmt.Println("Configuration summary:")
	fmt.Printf("  HTTP Listen:     %s\n", cfg.Listen.HTTP)
	fmt.Printf("  Unix Socket:     %s\n", cfg.Listen.Socket)
	fmt.Printf("  TLS Enabled:     %v\n", cfg.TLS.Enabled)
	fmt.Printf("  Auth Mode:       %s\n", cfg.Ingest.Auth.Mode)
	fmt.Printf("  Max Body:        %d bytes\n", cfg.Ingest.MaxBodyBytes)
	fmt.Printf("  Rate Limit:      %g/s (burst %d)\n", cfg.Ingest.RateLimit, cfg.Ingest.Burst)
	fmt.Printf("  Sensitive Keys:  %v\n", keys.Keys())
	fmt.Printf("  Max Depth:       %d\n", cfg.Redaction.MaxDepth)
	fmt.Printf("  Max Nodes:       %d\n", cfg.Redaction.MaxNodes)
	fmt.Printf("  Output:          %s\n", output)
	fmt.Printf("  Log Level:       %s\n", cfg.Log.Level)
	fmt.Printf("  Log Format:      %s\n", cfg.Log.Format)

	switch cfg.Ingest.Auth.Mode {
	case "api_key":
		fmt.Printf("\n  API Keys:        [%d SET]\n", len(cfg.Ingest.Auth.APIKeyHashes))
	case "oidc":
		fmt.Printf("\n  OIDC Issuer:     %s\n", cfg.Ingest.Auth.Issuer)
		fmt.Printf("  Audience:        %s\n", cfg.Ingest.Auth.Audience)
		fmt.Printf("  Required Roles:  %v\n", cfg.Ingest.Auth.RequiredRoles)
	default:
		fmt.Println("\n  ⚠️  HTTP ingest accepts unauthenticated requests")
	}

	fmt.Println("\n✅ Ready to start daemon")

	return nil
}
