package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nftsync/internal/config"
)

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume the job queues",
		RunE:  runWorker,
	}
	cmd.Flags().StringSlice("queues", nil, "queues to consume (comma-separated, default all with a handler)")
	cmd.Flags().String("concurrency", "", "per-queue concurrency (comma-separated queue=n)")
	cmd.Flags().Duration("poll-interval", time.Second, "idle queue polling interval")
	return cmd
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadWorker(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The chain is only needed for native payment traces.
	a, err := newApp(ctx, cfg.Config, logger, appOptions{
		needChain:    cfg.RPCURL != "",
		pollInterval: cfg.PollInterval,
	})
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.declareQueues(cfg.Concurrency); err != nil {
		return err
	}

	logger.Info("worker start",
		zap.Strings("queues", cfg.Queues),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Bool("native_payments", a.chain != nil),
	)

	return a.serve(ctx, false, func(ctx context.Context) error {
		return a.queues.Run(ctx, cfg.Queues...)
	})
}
