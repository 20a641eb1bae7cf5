package config

import (
	"time"

	"github.com/spf13/pflag"
)

// SyncConfig holds configuration for the realtime sync command.
type SyncConfig struct {
	Config
	PollInterval     time.Duration
	StateFile        string
	BatchConcurrency int
	RunWorkers       bool
}

// LoadSync merges config file, environment variables, and flags into SyncConfig.
func LoadSync(cfgFile string, flags *pflag.FlagSet) (SyncConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"poll-interval":     15 * time.Second,
		"batch-concurrency": 8,
		"workers":           true,
	})
	if err != nil {
		return SyncConfig{}, err
	}

	return SyncConfig{
		Config:           loadCommon(v),
		PollInterval:     v.GetDuration("poll-interval"),
		StateFile:        v.GetString("state-file"),
		BatchConcurrency: v.GetInt("batch-concurrency"),
		RunWorkers:       v.GetBool("workers"),
	}, nil
}
