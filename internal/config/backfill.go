package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// BackfillConfig holds configuration for the backfill command.
type BackfillConfig struct {
	Config
	FromBlock         uint64
	ToBlock           uint64
	BatchSize         uint64
	Checkpoint        string
	CheckpointEnabled bool
	BatchConcurrency  int
	RunWorkers        bool
}

// LoadBackfill merges config file, environment variables, and flags into BackfillConfig.
func LoadBackfill(cfgFile string, flags *pflag.FlagSet) (BackfillConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"batch-size":         uint64(0),
		"checkpoint":         "./data/backfill.json",
		"checkpoint-enabled": true,
		"batch-concurrency":  4,
		"workers":            false,
	})
	if err != nil {
		return BackfillConfig{}, err
	}

	cfg := BackfillConfig{
		Config:            loadCommon(v),
		FromBlock:         v.GetUint64("from"),
		ToBlock:           v.GetUint64("to"),
		BatchSize:         v.GetUint64("batch-size"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		BatchConcurrency:  v.GetInt("batch-concurrency"),
		RunWorkers:        v.GetBool("workers"),
	}
	if cfg.ToBlock != 0 && cfg.ToBlock < cfg.FromBlock {
		return BackfillConfig{}, fmt.Errorf("to block %d is before from block %d", cfg.ToBlock, cfg.FromBlock)
	}
	return cfg, nil
}
