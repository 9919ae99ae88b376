package trader

import (
	"errors"

	"github.com/zakhard90/chainlink-price-feed/internal/feed"
)

var (
	// ErrInvalidTokenAddress indicates a nil or zero-address token ledger at construction.
	ErrInvalidTokenAddress = errors.New("trader: invalid token address")
	// ErrInvalidFeedAddress indicates a nil or zero-address oracle at construction.
	ErrInvalidFeedAddress = errors.New("trader: invalid feed address")
	// ErrInvalidPrice indicates a non-positive unit token price.
	ErrInvalidPrice = errors.New("trader: invalid price")
	// ErrInvalidPriceFeedResponse indicates the oracle reading failed validation.
	ErrInvalidPriceFeedResponse = feed.ErrInvalidPriceFeedResponse
	// ErrValueExceedsMaxPurchase indicates a payment above the purchase ceiling.
	ErrValueExceedsMaxPurchase = errors.New("trader: value exceeds max purchase")
	// ErrUnauthorized indicates a non-owner attempted an owner-only call.
	ErrUnauthorized = errors.New("trader: caller is not the owner")
	// ErrInvalidPaymentAmount indicates a zero or negative payment.
	ErrInvalidPaymentAmount = errors.New("trader: invalid payment amount")
	// ErrReentrantCall indicates a call made from inside another in-flight call.
	ErrReentrantCall = errors.New("trader: reentrant call")
	// ErrArithmeticOverflow indicates an intermediate value exceeded 256 bits.
	ErrArithmeticOverflow = errors.New("trader: arithmetic overflow")
)

var abiErrorNames = []struct {
	err  error
	name string
}{
	{ErrInvalidTokenAddress, "InvalidTokenAddress"},
	{ErrInvalidFeedAddress, "InvalidFeedAddress"},
	{ErrInvalidPrice, "InvalidPrice"},
	{ErrInvalidPriceFeedResponse, "InvalidPriceFeedResponse"},
	{ErrValueExceedsMaxPurchase, "ValueExceedesMaxPurchase"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrInvalidPaymentAmount, "InvalidPaymentAmount"},
	{ErrReentrantCall, "ReentrantCall"},
	{ErrArithmeticOverflow, "ArithmeticOverflow"},
}

// ErrorName returns the contract ABI error name for err, or "" if err is not
// part of the exchange error taxonomy.
func ErrorName(err error) string {
	if err == nil {
		return ""
	}
	for _, entry := range abiErrorNames {
		if errors.Is(err, entry.err) {
			return entry.name
		}
	}
	return ""
}
