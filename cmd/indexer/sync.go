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
	"nftsync/internal/indexer"
	"nftsync/internal/reorg"
	"nftsync/internal/storage"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Follow the chain head and sync new blocks",
		RunE:  runSync,
	}
	cmd.Flags().Duration("poll-interval", 15*time.Second, "head polling interval")
	cmd.Flags().String("state-file", "", "file checkpoint, used instead of the database when set")
	cmd.Flags().Int("batch-concurrency", 8, "batches processed concurrently per block")
	cmd.Flags().Bool("workers", true, "also consume the queues in this process")
	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadSync(configFile(cmd), cmd.Flags())
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

	var state storage.StateStore = a.store
	if cfg.StateFile != "" {
		state = indexer.NewFileState(cfg.StateFile, true)
	}
	detector := reorg.NewDetector(a.store, a.chain, a.queues, a.network.ReorgDepth, logger.Named("reorg"))

	realtime := indexer.NewRealtime(indexer.RealtimeConfig{
		PollInterval:     cfg.PollInterval,
		MaxBlockLag:      a.network.RealtimeMaxBlockLag,
		LastBlockLatency: a.network.LastBlockLatency,
		Concurrency:      cfg.BatchConcurrency,
		MaxRetries:       cfg.MaxRetries,
		RetryBackoff:     cfg.RetryBackoff,
	}, a.chain, extractor, processor, a.store, detector, a.cache, state, logger.Named("realtime"))

	realtime.OnReorg(func(from uint64) {
		a.chain.ForgetTimestamps(from)
		a.txValues.Invalidate()
	})

	logger.Info("sync start",
		zap.String("rpc", cfg.RPCURL),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Uint64("max_block_lag", a.network.RealtimeMaxBlockLag),
		zap.Uint64("last_block_latency", a.network.LastBlockLatency),
		zap.Uint64("reorg_depth", a.network.ReorgDepth),
		zap.Bool("workers", cfg.RunWorkers),
	)

	return a.serve(ctx, cfg.RunWorkers, realtime.Run)
}
