package config

import (
	"github.com/spf13/pflag"
)

// QueueAdminConfig holds configuration for the queue subcommands.
type QueueAdminConfig struct {
	Config
	Limit int
}

// LoadQueueAdmin merges config file, environment variables, and flags into QueueAdminConfig.
func LoadQueueAdmin(cfgFile string, flags *pflag.FlagSet) (QueueAdminConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"limit": 100,
	})
	if err != nil {
		return QueueAdminConfig{}, err
	}
	return QueueAdminConfig{
		Config: loadCommon(v),
		Limit:  v.GetInt("limit"),
	}, nil
}
