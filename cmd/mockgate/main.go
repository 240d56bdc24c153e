// mockgate - programmable HTTP/SOAP mock gateway.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mockgate/mockgate/internal/storage"
	"github.com/mockgate/mockgate/pkg/config"
	"github.com/mockgate/mockgate/pkg/engine"
	"github.com/mockgate/mockgate/pkg/logging"
)

var version = "1.0.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "mockgate",
		Short:   "Programmable HTTP/SOAP mock gateway",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.AddCommand(newServeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	defaults := config.Default()
	var (
		port        int
		services    string
		logDir      string
		logBackups  int
		logRotation string
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the mock gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if err := config.LoadEnv(&cfg); err != nil {
				return err
			}
			// Flags override the environment.
			flags := cmd.Flags()
			if flags.Changed("port") {
				cfg.Port = port
			}
			if flags.Changed("services") {
				cfg.ServicesFile = services
			}
			if flags.Changed("log-dir") {
				cfg.LogDir = logDir
			}
			if flags.Changed("log-backups") {
				cfg.LogBackupCount = logBackups
			}
			if flags.Changed("log-rotation") {
				cfg.LogRotationTime = logRotation
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			return serve(cfg)
		},
	}

	cmd.Flags().IntVar(&port, "port", defaults.Port, "HTTP listen port")
	cmd.Flags().StringVar(&services, "services", "", "YAML file seeding the mock-service set")
	cmd.Flags().StringVar(&logDir, "log-dir", defaults.LogDir, "request log directory")
	cmd.Flags().IntVar(&logBackups, "log-backups", defaults.LogBackupCount, "archived request-log file count")
	cmd.Flags().StringVar(&logRotation, "log-rotation", "", "time rotation: Nd, Nh or Nw (default: size rotation)")
	cmd.Flags().StringVar(&logLevel, "log-level", defaults.LogLevel, "application log level (debug, info, warn, error)")
	return cmd
}

func serve(cfg config.Config) error {
	log := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Format: logging.FormatText,
	})

	store := storage.NewInMemoryStore()
	if cfg.ServicesFile != "" {
		if err := config.SeedStore(store, cfg.ServicesFile); err != nil {
			return err
		}
		log.Info("services seeded", "file", cfg.ServicesFile, "count", len(store.ListActive()))

		stop, err := config.WatchSeedFile(store, cfg.ServicesFile, log)
		if err != nil {
			log.Warn("seed file watching disabled", "error", err)
		} else {
			defer stop()
		}
	}

	server, err := engine.NewServer(cfg, engine.WithLogger(log), engine.WithStore(store))
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-signals:
		log.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Stop(ctx)
	}
}
