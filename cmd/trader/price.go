package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zakhard90/chainlink-price-feed/internal/chain"
	"github.com/zakhard90/chainlink-price-feed/internal/config"
	"github.com/zakhard90/chainlink-price-feed/internal/feed"
	"github.com/zakhard90/chainlink-price-feed/internal/trader"
	"github.com/zakhard90/chainlink-price-feed/internal/units"
)

type feedReading struct {
	Feed        string `json:"feed"`
	Description string `json:"description"`
	Decimals    uint8  `json:"decimals"`
	RoundID     string `json:"round_id"`
	UpdatedAt   uint64 `json:"updated_at"`
	AgeSeconds  int64  `json:"age_seconds"`
	Price       string `json:"price"`
	PriceRaw    string `json:"price_raw"`
}

func runPrice(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadFeed(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reading, _, err := readFeed(ctx, cfg, logger)
	if err != nil {
		return err
	}
	return printJSON(reading)
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadFeed(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	value, err := units.ParseEther(cfg.Value)
	if err != nil {
		return fmt.Errorf("parse value: %w", err)
	}
	unitPrice, err := units.ParseUnits(cfg.TokenPrice, units.TokenPriceDecimals)
	if err != nil {
		return fmt.Errorf("parse token price: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reading, price, err := readFeed(ctx, cfg, logger)
	if err != nil {
		return err
	}
	tokens, err := trader.Convert(value, price, unitPrice)
	if err != nil {
		return fmt.Errorf("convert: %w", err)
	}

	return printJSON(map[string]any{
		"feed":        reading,
		"value":       units.FormatEther(value),
		"token_price": units.FormatUnits(unitPrice, units.TokenPriceDecimals),
		"tokens":      units.FormatUnits(tokens, units.FeedDecimals),
		"tokens_raw":  tokens.String(),
	})
}

func readFeed(ctx context.Context, cfg config.FeedConfig, logger *zap.Logger) (feedReading, *big.Int, error) {
	if cfg.RPCURL == "" {
		return feedReading{}, nil, fmt.Errorf("rpc url is required")
	}
	if !common.IsHexAddress(cfg.FeedAddress) {
		return feedReading{}, nil, fmt.Errorf("invalid feed address: %q", cfg.FeedAddress)
	}

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return feedReading{}, nil, fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	chainlink, err := feed.NewChainlink(chainClient, common.HexToAddress(cfg.FeedAddress), feed.ChainlinkConfig{
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, logger)
	if err != nil {
		return feedReading{}, nil, err
	}

	decimals, err := chainlink.Decimals(ctx)
	if err != nil {
		return feedReading{}, nil, err
	}
	description, err := chainlink.Description(ctx)
	if err != nil {
		return feedReading{}, nil, err
	}
	round, err := chainlink.LatestRoundData(ctx)
	if err != nil {
		return feedReading{}, nil, err
	}
	price, err := feed.Validate(round)
	if err != nil {
		return feedReading{}, nil, err
	}

	reading := feedReading{
		Feed:        chainlink.Address().Hex(),
		Description: description,
		Decimals:    decimals,
		RoundID:     round.RoundID.String(),
		UpdatedAt:   round.UpdatedAt.Uint64(),
		Price:       units.FormatUnits(price, int32(decimals)),
		PriceRaw:    price.String(),
	}

	head, err := chainClient.LatestBlockNumber(ctx)
	if err != nil {
		return feedReading{}, nil, fmt.Errorf("latest block: %w", err)
	}
	headTime, err := chainClient.BlockTimestamp(ctx, head)
	if err != nil {
		return feedReading{}, nil, fmt.Errorf("block timestamp: %w", err)
	}
	reading.AgeSeconds = int64(headTime) - int64(reading.UpdatedAt)

	logger.Debug("feed read",
		zap.String("feed", reading.Feed),
		zap.String("description", description),
		zap.Uint64("head", head),
		zap.Int64("age_seconds", reading.AgeSeconds),
	)
	if decimals != units.FeedDecimals {
		logger.Warn("feed decimals differ from the exchange scale",
			zap.Uint8("decimals", decimals),
			zap.Int("expected", units.FeedDecimals),
		)
	}
	return reading, price, nil
}
