package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zakhard90/chainlink-price-feed/internal/chain"
	"github.com/zakhard90/chainlink-price-feed/internal/config"
	"github.com/zakhard90/chainlink-price-feed/internal/indexer"
	"github.com/zakhard90/chainlink-price-feed/internal/storage"
	"github.com/zakhard90/chainlink-price-feed/internal/storage/postgres"
)

func runRounds(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadRounds(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if !common.IsHexAddress(cfg.FeedAddress) {
		return fmt.Errorf("invalid feed address: %q", cfg.FeedAddress)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	feedAddress := common.HexToAddress(cfg.FeedAddress)
	hasCode, err := chainClient.HasCode(ctx, feedAddress)
	if err != nil {
		return err
	}
	if !hasCode {
		return fmt.Errorf("no contract at feed address %s", feedAddress.Hex())
	}

	var sink indexer.RoundStorage
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		sink = store
	} else {
		sink = storage.NewJsonlStorage(cfg.Out)
	}

	runner := indexer.NewRunner(indexer.RunConfig{
		Feed:              feedAddress,
		FromBlock:         cfg.FromBlock,
		ToBlock:           cfg.ToBlock,
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	}, chainClient, sink, logger)

	logger.Info("rounds indexer start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("feed", cfg.FeedAddress),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("out", cfg.Out),
		zap.Bool("postgres", cfg.PGDSN != ""),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	stored, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("rounds indexer done", zap.Int("rounds", stored))
	return nil
}
