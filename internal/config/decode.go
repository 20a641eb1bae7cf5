package config

import (
	"github.com/spf13/pflag"
)

// DecodeConfig holds configuration for the decode command.
type DecodeConfig struct {
	Config
	TxHash string
	Out    string
}

// LoadDecode merges config file, environment variables, and flags into DecodeConfig.
func LoadDecode(cfgFile string, flags *pflag.FlagSet) (DecodeConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"out":           "./data/events.jsonl",
		"decode-errors": "./data/decode_errors.jsonl",
	})
	if err != nil {
		return DecodeConfig{}, err
	}

	return DecodeConfig{
		Config: loadCommon(v),
		TxHash: v.GetString("tx"),
		Out:    v.GetString("out"),
	}, nil
}
