package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/pflag"
)

// WorkerConfig holds configuration for the queue worker command.
type WorkerConfig struct {
	Config
	Queues       []string
	Concurrency  map[string]int
	PollInterval time.Duration
}

// LoadWorker merges config file, environment variables, and flags into WorkerConfig.
func LoadWorker(cfgFile string, flags *pflag.FlagSet) (WorkerConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"poll-interval": time.Second,
	})
	if err != nil {
		return WorkerConfig{}, err
	}

	concurrency := make(map[string]int)
	for name, raw := range getStringMap(v, "concurrency") {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return WorkerConfig{}, fmt.Errorf("invalid concurrency for queue %s: %q", name, raw)
		}
		concurrency[name] = n
	}

	return WorkerConfig{
		Config:       loadCommon(v),
		Queues:       getStringSlice(v, "queues"),
		Concurrency:  concurrency,
		PollInterval: v.GetDuration("poll-interval"),
	}, nil
}
