package trader

import (
	"math/big"

	"github.com/holiman/uint256"
)

var (
	weiPerEther      = uint256.NewInt(1_000_000_000_000_000_000)
	tokenPriceFactor = uint256.NewInt(100)
)

// convert computes payment * price / 1e18 * 100 / unitPrice with floor division.
// The result keeps the 8-decimal scale of the oracle price.
func convert(payment, price, unitPrice *big.Int) (*big.Int, error) {
	if payment == nil || payment.Sign() < 0 {
		return nil, ErrInvalidPaymentAmount
	}
	if unitPrice == nil || unitPrice.Sign() <= 0 {
		panic("trader: unit token price must be positive")
	}
	if price == nil || price.Sign() <= 0 {
		return nil, ErrInvalidPriceFeedResponse
	}

	p, overflow := uint256.FromBig(payment)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	pr, overflow := uint256.FromBig(price)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	up, overflow := uint256.FromBig(unitPrice)
	if overflow {
		return nil, ErrArithmeticOverflow
	}

	usdValue, overflow := new(uint256.Int).MulOverflow(p, pr)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	usdValue.Div(usdValue, weiPerEther)

	quantity, overflow := new(uint256.Int).MulOverflow(usdValue, tokenPriceFactor)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	quantity.Div(quantity, up)

	return quantity.ToBig(), nil
}

// Convert prices payment (wei) at an oracle price (8 decimals) and unit token
// price (2 decimals) without touching any exchange state.
func Convert(payment, price, unitPrice *big.Int) (*big.Int, error) {
	if unitPrice == nil || unitPrice.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	return convert(payment, price, unitPrice)
}
