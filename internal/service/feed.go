package service

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zakhard90/chainlink-price-feed/internal/feed"
	"github.com/zakhard90/chainlink-price-feed/internal/metrics"
	"github.com/zakhard90/chainlink-price-feed/internal/model"
)

type addresser interface {
	Address() common.Address
}

// observedFeed counts oracle reads by outcome.
type observedFeed struct {
	inner   feed.Feed
	metrics *metrics.Metrics
}

type addressedFeed struct {
	*observedFeed
	address common.Address
}

func (f *addressedFeed) Address() common.Address { return f.address }

func observeFeed(f feed.Feed, m *metrics.Metrics) feed.Feed {
	if m == nil {
		return f
	}
	observed := &observedFeed{inner: f, metrics: m}
	if a, ok := f.(addresser); ok {
		return &addressedFeed{observedFeed: observed, address: a.Address()}
	}
	return observed
}

func (f *observedFeed) LatestRoundData(ctx context.Context) (model.RoundData, error) {
	round, err := f.inner.LatestRoundData(ctx)
	if err != nil {
		f.metrics.ObserveOracleRead(err)
		return round, err
	}
	_, verr := feed.Validate(round)
	f.metrics.ObserveOracleRead(verr)
	return round, nil
}
