package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	logpkg "gymsync/common/logger"
	"gymsync/internal/config"
	"gymsync/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootOptions struct {
	configPath string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "gymsync",
		Short: "Entity sync and derived views for the gym suite",
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("GYMSYNC_CONFIG"), "path to YAML config file")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	return cmd
}

func setup(opts *rootOptions) (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadFrom(opts.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, "gymsync")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "serve",
		Short:        "Sync every collection and dispatch notifications until interrupted",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(opts)
			if err != nil {
				return err
			}
			defer log.Sync()
			return serve(cfg, log)
		},
	}
}

func serve(cfg *config.Config, log *zap.Logger) error {
	svc, err := service.NewGymService(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create gym service: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := svc.Start(ctx); err != nil {
		log.Error("Service error", zap.Error(err))
		_ = svc.Stop(ctx)
		return err
	}

	sig := <-sigChan
	log.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := svc.Stop(stopCtx); err != nil {
		log.Error("Error stopping service", zap.Error(err))
	}

	log.Info("Service stopped")
	return nil
}

func newExportCommand(opts *rootOptions) *cobra.Command {
	var (
		out     string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:          "export",
		Short:        "Write the clients report as an xlsx workbook",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(opts)
			if err != nil {
				return err
			}
			defer log.Sync()

			// the export only reads; notifications and metrics stay off
			cfg.Notifications.Enabled = false
			cfg.Metrics.Addr = ""

			svc, err := service.NewGymService(cfg, log)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			defer svc.Stop(context.Background())

			if err := svc.Start(ctx); err != nil {
				return err
			}
			if err := svc.Gym().WaitReady(ctx); err != nil {
				return fmt.Errorf("collections did not load: %w", err)
			}

			data, err := svc.Gym().ExportClients()
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			log.Info("Clients exported", zap.String("file", out), zap.Int("clients", len(svc.Gym().Clients.List().Get())))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "clientes.xlsx", "output file")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "how long to wait for the initial sync")
	return cmd
}
