package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/smorand/slides-mirror/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv(os.Getenv)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCommand(&cfg).ExecuteContext(ctx)
}

// newRootCommand builds the CLI. Flags default to the values already loaded
// from the environment into cfg.
func newRootCommand(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "slides-mirror",
		Short:         "Mirror a running slide show over HTTP",
		Long:          "Caches the slides of a presentation as images and serves the running slide show to browsers on the local network.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			slog.SetDefault(newLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr()))
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfg.CacheDir, "cache-dir", cfg.CacheDir, "slide cache directory")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (text, json)")

	root.AddCommand(newServeCommand(cfg))
	root.AddCommand(newClearCacheCommand(cfg))
	root.AddCommand(newLoginCommand(cfg))
	return root
}

func newLogger(level, format string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
