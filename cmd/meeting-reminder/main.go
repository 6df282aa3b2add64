package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/venkytv/meeting-reminder/pkg/config"
)

const defaultConfigPath = "config.yaml"

// Version information - can be set at build time
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

type options struct {
	configPath string
	envFiles   []string
	debug      bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	runCmd := newRunCommand(opts)

	rootCmd := &cobra.Command{
		Use:          "meeting-reminder",
		Short:        "Remind you of meetings a few minutes before they start",
		SilenceUsage: true,
		RunE:         runCmd.RunE,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "Path to configuration file")
	rootCmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "Environment files to load before reading the config")
	rootCmd.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "Enable debug logging")

	rootCmd.Flags().AddFlagSet(runCmd.Flags())
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(newCalendarsCommand(opts))
	rootCmd.AddCommand(newUpcomingCommand(opts))
	rootCmd.AddCommand(newGoogleAuthCommand(opts))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

// loadConfig reads the env files and the configuration and builds the logger.
func (o *options) loadConfig() (*config.Config, *slog.Logger, error) {
	if err := config.LoadDotEnv(o.envFiles...); err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, setupLogger(os.Stderr, cfg.Logging, o.debug), nil
}

// setupLogger configures the application logger
func setupLogger(w io.Writer, cfg config.LoggingConfig, debugMode bool) *slog.Logger {
	var level slog.Level

	// Override config level if debug mode is enabled
	if debugMode {
		level = slog.LevelDebug
	} else {
		switch strings.ToLower(cfg.Level) {
		case "debug":
			level = slog.LevelDebug
		case "warn", "warning":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}

// printVersion prints version information
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "Meeting Reminder %s\n", Version)
	fmt.Fprintf(w, "Git Commit: %s\n", GitCommit)
	fmt.Fprintf(w, "Build Time: %s\n", BuildTime)
}
