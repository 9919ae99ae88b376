package feed

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/zakhard90/chainlink-price-feed/internal/model"
)

var (
	// ErrInvalidPriceFeedResponse is returned for any reading that fails validation.
	ErrInvalidPriceFeedResponse = errors.New("feed: invalid price feed response")
	// ErrUnavailable is returned when the oracle could not be read at all.
	ErrUnavailable = errors.New("feed: unavailable")
)

// Feed supplies the latest oracle reading.
type Feed interface {
	LatestRoundData(ctx context.Context) (model.RoundData, error)
}

// Validate extracts a trusted price from a reading. Checks run in order:
// the feed has reported, the round was answered, the price is positive.
func Validate(r model.RoundData) (*big.Int, error) {
	if r.UpdatedAt == nil || r.UpdatedAt.Sign() == 0 {
		return nil, fmt.Errorf("%w: round never updated", ErrInvalidPriceFeedResponse)
	}
	if r.RoundID == nil || r.AnsweredInRound == nil || r.AnsweredInRound.Cmp(r.RoundID) < 0 {
		return nil, fmt.Errorf("%w: stale round", ErrInvalidPriceFeedResponse)
	}
	if r.Answer == nil || r.Answer.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive price", ErrInvalidPriceFeedResponse)
	}
	return new(big.Int).Set(r.Answer), nil
}

// PriceFeedData reads a fresh reading from f and validates it.
func PriceFeedData(ctx context.Context, f Feed) (*big.Int, error) {
	if f == nil {
		return nil, fmt.Errorf("feed is nil")
	}
	reading, err := f.LatestRoundData(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: latest round data: %w", ErrUnavailable, err)
	}
	return Validate(reading)
}
