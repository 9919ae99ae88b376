package main

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/zakhard90/chainlink-price-feed/internal/config"
	"github.com/zakhard90/chainlink-price-feed/internal/feed"
)

func TestExchangeConfigRejectsBadAddresses(t *testing.T) {
	cfg := config.ServeConfig{
		Owner:         "not-an-address",
		TraderAddress: "0x0000000000000000000000000000000000007ade",
		TokenAddress:  "0x000000000000000000000000000000000000703e",
	}
	if _, err := exchangeConfig(cfg); err == nil {
		t.Fatalf("expected error for invalid owner")
	}
	cfg.Owner = "0x00000000000000000000000000000000000000a1"
	got, err := exchangeConfig(cfg)
	if err != nil {
		t.Fatalf("exchange config: %v", err)
	}
	if got.Owner.Hex() != "0x00000000000000000000000000000000000000A1" {
		t.Fatalf("owner: %s", got.Owner.Hex())
	}
}

func TestOpenFeedFallsBackToMock(t *testing.T) {
	f, closeFeed, err := openFeed(context.Background(), config.ServeConfig{MockPrice: "3800.5"}, zap.NewNop())
	if err != nil {
		t.Fatalf("open feed: %v", err)
	}
	defer closeFeed()

	price, err := feed.PriceFeedData(context.Background(), f)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if price.String() != "380050000000" {
		t.Fatalf("mock price: %s", price)
	}
}
