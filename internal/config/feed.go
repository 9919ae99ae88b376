package config

import (
	"time"

	"github.com/spf13/pflag"
)

// FeedConfig holds configuration for the price and quote commands.
type FeedConfig struct {
	RPCURL       string
	FeedAddress  string
	TokenPrice   string
	Value        string
	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
}

// LoadFeed merges config file, environment variables, and flags into FeedConfig.
func LoadFeed(cfgFile string, flags *pflag.FlagSet) (FeedConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"token-price":   "2.00",
		"max-retries":   5,
		"retry-backoff": 500 * time.Millisecond,
		"log-level":     "info",
	})
	if err != nil {
		return FeedConfig{}, err
	}

	return FeedConfig{
		RPCURL:       v.GetString("rpc"),
		FeedAddress:  v.GetString("feed"),
		TokenPrice:   v.GetString("token-price"),
		Value:        v.GetString("value"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		LogLevel:     v.GetString("log-level"),
	}, nil
}

// EventsConfig holds configuration for the events command.
type EventsConfig struct {
	Journal  string
	LogLevel string
}

// LoadEvents merges config file, environment variables, and flags into EventsConfig.
func LoadEvents(cfgFile string, flags *pflag.FlagSet) (EventsConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"journal":   "./data/events.jsonl",
		"log-level": "info",
	})
	if err != nil {
		return EventsConfig{}, err
	}
	return EventsConfig{
		Journal:  v.GetString("journal"),
		LogLevel: v.GetString("log-level"),
	}, nil
}

// RoundsConfig holds configuration for the rounds command.
type RoundsConfig struct {
	RPCURL            string
	FeedAddress       string
	FromBlock         uint64
	ToBlock           uint64
	BatchSize         uint64
	Out               string
	PGDSN             string
	Checkpoint        string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	LogLevel          string
}

// LoadRounds merges config file, environment variables, and flags into RoundsConfig.
func LoadRounds(cfgFile string, flags *pflag.FlagSet) (RoundsConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"batch-size":         uint64(2000),
		"out":                "./data/rounds.jsonl",
		"checkpoint":         "./data/rounds.checkpoint.json",
		"checkpoint-enabled": true,
		"max-retries":        5,
		"retry-backoff":      500 * time.Millisecond,
		"log-level":          "info",
	})
	if err != nil {
		return RoundsConfig{}, err
	}

	return RoundsConfig{
		RPCURL:            v.GetString("rpc"),
		FeedAddress:       v.GetString("feed"),
		FromBlock:         v.GetUint64("from"),
		ToBlock:           v.GetUint64("to"),
		BatchSize:         v.GetUint64("batch-size"),
		Out:               v.GetString("out"),
		PGDSN:             v.GetString("pg-dsn"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		LogLevel:          v.GetString("log-level"),
	}, nil
}
