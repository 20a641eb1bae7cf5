package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "indexer",
		Short:        "NFT marketplace event sync",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("rpc", "", "RPC URL")
	flags.Uint64("chain-id", 0, "chain id, 0 asks the RPC")
	flags.String("pg-dsn", "", "Postgres DSN (in-memory store, queue and cache when empty)")
	flags.String("clickhouse-dsn", "", "ClickHouse DSN for the activity index")
	flags.String("admin-addr", ":9090", "admin HTTP listen address, empty disables it")
	flags.String("decode-errors", "", "JSONL file receiving skipped events")
	flags.StringSlice("sync-events", nil, "event sub kinds to sync (comma-separated, default all)")
	flags.String("network-overrides", "", "network settings overrides (comma-separated key=value)")
	flags.Int("max-retries", 5, "maximum retry attempts")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newSyncCmd(),
		newBackfillCmd(),
		newWorkerCmd(),
		newQueueCmd(),
		newDecodeCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func configFile(cmd *cobra.Command) string {
	cfgFile, _ := cmd.Flags().GetString("config")
	return cfgFile
}
