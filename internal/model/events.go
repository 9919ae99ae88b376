package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	EventTokenPriceUpdated = "TokenPriceUpdated"
	EventTokensPurchased   = "TokensPurchased"
	EventWithdrawalMade    = "WithdrawalMade"
)

// Event is anything the exchange emits after a committed call.
type Event interface {
	EventName() string
}

// TokenPriceUpdated is emitted when the owner changes the unit token price.
type TokenPriceUpdated struct {
	OldPrice *big.Int
	NewPrice *big.Int
}

func (TokenPriceUpdated) EventName() string { return EventTokenPriceUpdated }

// TokensPurchased is emitted once per successful purchase.
type TokensPurchased struct {
	Buyer       common.Address
	EthAmount   *big.Int
	TokenAmount *big.Int
}

func (TokensPurchased) EventName() string { return EventTokensPurchased }

// WithdrawalMade is emitted once per withdrawal, including zero-amount ones.
type WithdrawalMade struct {
	Owner  common.Address
	Amount *big.Int
}

func (WithdrawalMade) EventName() string { return EventWithdrawalMade }
