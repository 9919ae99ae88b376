package units

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxDigits bounds the integer digits of a parsed amount. A uint256 has 78.
const MaxDigits = 78

const (
	// EtherDecimals is the native-currency precision (wei per ether).
	EtherDecimals = 18
	// FeedDecimals is the implied precision of USD oracle answers.
	FeedDecimals = 8
	// TokenPriceDecimals is the implied precision of the unit token price.
	TokenPriceDecimals = 2
)

// ParseUnits converts a human-readable decimal string into a fixed-point integer
// with the given number of decimals. More fractional digits than decimals is an
// error, and so is a result wider than MaxDigits.
func ParseUnits(value string, decimals int32) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if len(value) > 2*MaxDigits {
		return nil, fmt.Errorf("amount too long: %d characters", len(value))
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", value, err)
	}
	// The coefficient is bounded by the input length, so only the exponent
	// can blow the integer up. Check it before the value is materialized.
	exp := int64(d.Exponent()) + int64(decimals)
	if exp < -MaxDigits {
		return nil, fmt.Errorf("amount %q has more than %d decimals", value, decimals)
	}
	if d.Sign() != 0 && int64(d.NumDigits())+exp > MaxDigits {
		return nil, fmt.Errorf("amount %q exceeds %d digits", value, MaxDigits)
	}
	shifted := d.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", value, decimals)
	}
	return shifted.BigInt(), nil
}

// ParseEther converts an ether amount into wei.
func ParseEther(value string) (*big.Int, error) {
	return ParseUnits(value, EtherDecimals)
}

// FormatUnits renders a fixed-point integer with the given number of decimals,
// trimming trailing zeros.
func FormatUnits(value *big.Int, decimals int32) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -decimals).String()
}

// FormatEther renders wei as ether.
func FormatEther(value *big.Int) string {
	return FormatUnits(value, EtherDecimals)
}
