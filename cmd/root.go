// Package cmd implements the pairlink command line.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/pairlink/internal/config"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var (
	cfgFile   string
	verbose   bool
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "pairlink",
	Short: "Link a WhatsApp account to your assistant backend and keep it linked",
	Long: `pairlink drives the device-pairing flow against the assistant backend:
it polls the pairing status, shows the QR or pairing code, saves the admin
phone once the account connects, and survives restarts without prompting twice.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(os.Stderr)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $PAIRLINK_CONFIG or "+config.DefaultConfigPath+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json (overrides config)")

	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(attachCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(pairCmd())
	rootCmd.AddCommand(flushCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(markerCmd())
	rootCmd.AddCommand(qrCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the pairlink version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pairlink %s\n", Version)
		},
	}
}

// resolveConfigPath returns --config, then $PAIRLINK_CONFIG, then the default.
func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if env := os.Getenv("PAIRLINK_CONFIG"); env != "" {
		return env
	}
	return config.ExpandHome(config.DefaultConfigPath)
}

// setupLogging installs the default slog logger from config and flags.
// Config errors are reported later by the command that loads it.
func setupLogging(w io.Writer) {
	level, format := "info", "text"
	if cfg, err := config.Load(resolveConfigPath()); err == nil {
		level, format = cfg.Log.Level, cfg.Log.Format
	}
	if verbose {
		level = "debug"
	}
	if logFormat != "" {
		format = logFormat
	}
	slog.SetDefault(newLogger(w, format, level))
}

func newLogger(w io.Writer, format, level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
