package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. TRADER_RPC.
const EnvPrefix = "TRADER"

// ServeConfig holds configuration for the serve command.
type ServeConfig struct {
	Listen           string
	RPCURL           string
	FeedAddress      string
	MockPrice        string
	Owner            string
	TraderAddress    string
	TokenAddress     string
	TokenName        string
	TokenSymbol      string
	Journal          string
	StateFile        string
	PGDSN            string
	StateName        string
	MetricsNamespace string
	MaxRetries       int
	RetryBackoff     time.Duration
	ShutdownTimeout  time.Duration
	LogLevel         string
}

// LoadServe merges config file, environment variables, and flags into ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"listen":            ":8080",
		"mock-price":        "3800",
		"trader-address":    "0x0000000000000000000000000000000000007ade",
		"token-address":     "0x000000000000000000000000000000000000703e",
		"token-name":        "Test Token",
		"token-symbol":      "TT",
		"journal":           "./data/events.jsonl",
		"state-name":        "trader",
		"metrics-namespace": "trader",
		"max-retries":       5,
		"retry-backoff":     500 * time.Millisecond,
		"shutdown-timeout":  10 * time.Second,
		"log-level":         "info",
	})
	if err != nil {
		return ServeConfig{}, err
	}

	cfg := ServeConfig{
		Listen:           v.GetString("listen"),
		RPCURL:           v.GetString("rpc"),
		FeedAddress:      v.GetString("feed"),
		MockPrice:        v.GetString("mock-price"),
		Owner:            v.GetString("owner"),
		TraderAddress:    v.GetString("trader-address"),
		TokenAddress:     v.GetString("token-address"),
		TokenName:        v.GetString("token-name"),
		TokenSymbol:      v.GetString("token-symbol"),
		Journal:          v.GetString("journal"),
		StateFile:        v.GetString("state-file"),
		PGDSN:            v.GetString("pg-dsn"),
		StateName:        v.GetString("state-name"),
		MetricsNamespace: v.GetString("metrics-namespace"),
		MaxRetries:       v.GetInt("max-retries"),
		RetryBackoff:     v.GetDuration("retry-backoff"),
		ShutdownTimeout:  v.GetDuration("shutdown-timeout"),
		LogLevel:         v.GetString("log-level"),
	}
	return cfg, nil
}

func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]any) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}
