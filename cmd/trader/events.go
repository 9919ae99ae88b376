package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zakhard90/chainlink-price-feed/internal/config"
	"github.com/zakhard90/chainlink-price-feed/internal/storage"
	"github.com/zakhard90/chainlink-price-feed/internal/trader"
)

type decodedEvent struct {
	Sequence  uint64            `json:"sequence"`
	Event     string            `json:"event"`
	Emitter   string            `json:"emitter"`
	Timestamp string            `json:"timestamp"`
	Fields    map[string]string `json:"fields"`
}

func runEvents(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadEvents(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Journal == "" {
		return fmt.Errorf("journal path is required")
	}

	records, err := storage.ReadJsonl(cfg.Journal)
	if err != nil {
		return err
	}

	out := make([]decodedEvent, 0, len(records))
	for _, rec := range records {
		ev, err := trader.DecodeRecord(rec)
		if err != nil {
			return fmt.Errorf("decode record %d: %w", rec.Sequence, err)
		}
		out = append(out, decodedEvent{
			Sequence:  rec.Sequence,
			Event:     ev.EventName(),
			Emitter:   rec.Address,
			Timestamp: rec.Timestamp,
			Fields:    trader.Fields(ev),
		})
	}
	logger.Debug("journal decoded", zap.String("journal", cfg.Journal), zap.Int("events", len(out)))
	return printJSON(out)
}
