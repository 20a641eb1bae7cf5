package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nftsync/internal/config"
	"nftsync/internal/indexer"
	"nftsync/internal/storage"
)

func newBackfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Replay a historical block range",
		RunE:  runBackfill,
	}
	cmd.Flags().Uint64("from", 0, "start block (inclusive)")
	cmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	cmd.Flags().Uint64("batch-size", 0, "blocks per range, 0 uses the network default")
	cmd.Flags().String("checkpoint", "./data/backfill.json", "checkpoint file, used when no database is configured")
	cmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	cmd.Flags().Int("batch-concurrency", 4, "batches processed concurrently")
	cmd.Flags().Bool("workers", false, "also consume the queues in this process")
	return cmd
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadBackfill(configFile(cmd), cmd.Flags())
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

	a, err := newApp(ctx, cfg.Config, logger, appOptions{needChain: true})
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.declareQueues(nil); err != nil {
		return err
	}
	extractor, err := a.extractor()
	if err != nil {
		return err
	}
	processor, err := a.processor()
	if err != nil {
		return err
	}

	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = a.network.BackfillBatchSize
	}

	var state storage.StateStore
	switch {
	case !cfg.CheckpointEnabled:
	case a.pg != nil:
		state = a.pg
	default:
		state = indexer.NewFileState(cfg.Checkpoint, true)
	}

	backfiller := indexer.NewBackfiller(indexer.BackfillConfig{
		FromBlock:    cfg.FromBlock,
		ToBlock:      cfg.ToBlock,
		BatchSize:    batchSize,
		Concurrency:  cfg.BatchConcurrency,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, a.chain, extractor, processor, state, logger.Named("backfill"))

	logger.Info("backfill start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Uint64("batch_size", batchSize),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.Bool("workers", cfg.RunWorkers),
	)

	return a.serve(ctx, cfg.RunWorkers, func(ctx context.Context) error {
		if err := backfiller.Run(ctx); err != nil {
			return err
		}
		logger.Info("backfill complete")
		if !cfg.RunWorkers {
			return nil
		}
		// keep draining the follow-up jobs until interrupted
		<-ctx.Done()
		return ctx.Err()
	})
}
