package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jholhewres/wareply/pkg/wareply/config"
	"github.com/jholhewres/wareply/pkg/wareply/panel"
	"github.com/jholhewres/wareply/pkg/wareply/persona"
	"github.com/jholhewres/wareply/pkg/wareply/session"
	"github.com/jholhewres/wareply/pkg/wareply/transport"
)

// defaultConfigFile is tried when --config is not given.
const defaultConfigFile = "wareply.yaml"

// newServeCmd creates the `wareply serve` command that starts the daemon.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the session supervisor and status panel",
		Long: `Start wareply as a daemon: discover all session directories, connect
each account, and answer inbound messages while the owner is offline.

Examples:
  wareply serve
  wareply serve --config ./wareply.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	logger := buildLogger(cmd, cfg)

	store := persona.NewFileStore(cfg.DataDir, cfg.StatusFile, logger)

	factory := func(sessionDir string, l *slog.Logger) transport.Client {
		return transport.NewWameow(sessionDir, cfg.DeviceName, l)
	}
	sup := session.New(cfg, store, factory, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Panel.Enabled {
		srv := panel.New(cfg.Panel.Addr, sup, logger)
		go func() {
			if err := srv.Run(ctx); err != nil {
				logger.Error("panel stopped", "error", err)
			}
		}()
	}

	logger.Info("wareply starting",
		"sessions_dir", cfg.SessionsDir,
		"panel", cfg.Panel.Addr,
		"cooldown_window", cfg.CooldownWindow)

	return sup.Run(ctx)
}

// resolveConfig loads the config file from --config, falling back to
// ./wareply.yaml and then to built-in defaults when no file exists.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	if path != "" {
		return config.LoadFromFile(path)
	}

	if _, err := os.Stat(defaultConfigFile); err == nil {
		return config.LoadFromFile(defaultConfigFile)
	}
	return config.DefaultConfig(), nil
}

// buildLogger constructs the slog logger from config and the --verbose
// flag.
func buildLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")

	level := slog.LevelInfo
	switch {
	case verbose, cfg.Logging.Level == "debug":
		level = slog.LevelDebug
	case cfg.Logging.Level == "warn":
		level = slog.LevelWarn
	case cfg.Logging.Level == "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}
