package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zakhard90/chainlink-price-feed/internal/api"
	"github.com/zakhard90/chainlink-price-feed/internal/chain"
	"github.com/zakhard90/chainlink-price-feed/internal/config"
	"github.com/zakhard90/chainlink-price-feed/internal/feed"
	"github.com/zakhard90/chainlink-price-feed/internal/metrics"
	"github.com/zakhard90/chainlink-price-feed/internal/service"
	"github.com/zakhard90/chainlink-price-feed/internal/state"
	"github.com/zakhard90/chainlink-price-feed/internal/storage"
	"github.com/zakhard90/chainlink-price-feed/internal/storage/postgres"
	"github.com/zakhard90/chainlink-price-feed/internal/units"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadServe(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	svcCfg, err := exchangeConfig(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	priceFeed, closeFeed, err := openFeed(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFeed()

	m := metrics.New(cfg.MetricsNamespace)
	opts := []service.Option{
		service.WithMetrics(m),
		service.WithLogger(logger),
	}
	if cfg.Journal != "" {
		opts = append(opts, service.WithSink(storage.Sink(storage.NewJsonlStorage(cfg.Journal))))
	}

	switch {
	case cfg.PGDSN != "":
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		opts = append(opts,
			service.WithSink(storage.Sink(store)),
			service.WithStore(&state.DBStore{Store: store, Name: cfg.StateName}),
		)
	case cfg.StateFile != "":
		opts = append(opts, service.WithStore(&state.FileStore{Path: cfg.StateFile}))
	}

	exchange, err := service.New(ctx, svcCfg, priceFeed, opts...)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.NewServer(exchange, m, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	st, err := exchange.State(ctx)
	if err != nil {
		return err
	}
	logger.Info("trader start",
		zap.String("listen", cfg.Listen),
		zap.String("owner", st.Owner.Hex()),
		zap.String("trader", st.TraderAddress.Hex()),
		zap.String("token", st.TokenAddress.Hex()),
		zap.String("token_price", st.TokenPrice.String()),
		zap.String("balance", st.Balance.String()),
		zap.Uint64("sequence", st.Sequence),
		zap.String("journal", cfg.Journal),
		zap.Bool("postgres", cfg.PGDSN != ""),
		zap.String("state_file", cfg.StateFile),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("trader shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func exchangeConfig(cfg config.ServeConfig) (service.Config, error) {
	addresses := map[string]string{
		"owner":          cfg.Owner,
		"trader-address": cfg.TraderAddress,
		"token-address":  cfg.TokenAddress,
	}
	for name, value := range addresses {
		if !common.IsHexAddress(value) {
			return service.Config{}, fmt.Errorf("invalid %s: %q", name, value)
		}
	}
	return service.Config{
		Owner:         common.HexToAddress(cfg.Owner),
		TraderAddress: common.HexToAddress(cfg.TraderAddress),
		TokenAddress:  common.HexToAddress(cfg.TokenAddress),
		TokenName:     cfg.TokenName,
		TokenSymbol:   cfg.TokenSymbol,
	}, nil
}

// openFeed dials the Chainlink aggregator when an RPC URL is configured and
// falls back to a mock feed pinned at the configured price otherwise.
func openFeed(ctx context.Context, cfg config.ServeConfig, logger *zap.Logger) (feed.Feed, func(), error) {
	if cfg.RPCURL == "" {
		price, err := units.ParseUnits(cfg.MockPrice, units.FeedDecimals)
		if err != nil {
			return nil, nil, fmt.Errorf("parse mock price: %w", err)
		}
		mock := feed.NewMock(common.HexToAddress("0x000000000000000000000000000000000000feed"))
		mock.SetPrice(price)
		mock.SetUpdateTime(uint64(time.Now().Unix()))
		mock.SetRoundID(1)
		mock.SetAnsweredInRound(1)
		logger.Warn("no rpc configured, using mock feed", zap.String("price", cfg.MockPrice))
		return mock, func() {}, nil
	}

	if !common.IsHexAddress(cfg.FeedAddress) {
		return nil, nil, fmt.Errorf("invalid feed address: %q", cfg.FeedAddress)
	}
	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect rpc: %w", err)
	}
	chainID, err := chainClient.ChainID(ctx)
	if err != nil {
		chainClient.Close()
		return nil, nil, fmt.Errorf("chain id: %w", err)
	}
	feedAddress := common.HexToAddress(cfg.FeedAddress)
	if ok, err := chainClient.HasCode(ctx, feedAddress); err != nil || !ok {
		chainClient.Close()
		if err != nil {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("no contract at feed address %s", feedAddress.Hex())
	}
	chainlink, err := feed.NewChainlink(chainClient, feedAddress, feed.ChainlinkConfig{
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, logger)
	if err != nil {
		chainClient.Close()
		return nil, nil, err
	}
	logger.Info("chainlink feed",
		zap.String("rpc", cfg.RPCURL),
		zap.String("chain_id", chainID.String()),
		zap.String("feed", cfg.FeedAddress),
	)
	return chainlink, chainClient.Close, nil
}
