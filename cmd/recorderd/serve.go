package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/replaykit/recorderd/internal/infrastructure/config"
	"github.com/replaykit/recorderd/internal/infrastructure/logging"
	"github.com/replaykit/recorderd/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.LoadOrDefault(), nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the recorder daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			defer log.Sync()

			srv, err := server.New(cfg, log, server.Options{})
			if err != nil {
				return err
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Run() }()

			select {
			case sig := <-sigCh:
				log.Info("signal received, shutting down", zap.String("signal", sig.String()))
				if err := srv.Shutdown(context.Background()); err != nil {
					log.Error("shutdown error", zap.Error(err))
				}
				return nil
			case err := <-errCh:
				return err
			}
		},
	}
}
